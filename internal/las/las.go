// Package las implements the LAN Authentication Subsystem: five pluggable
// auth modes (allow, basic, digest, ruuvi, deny) sharing one response
// envelope and one authorized-session table (§4.5).
package las

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Mode is the configured auth type.
type Mode string

// Recognized auth modes.
const (
	ModeAllow  Mode = "allow"
	ModeBasic  Mode = "basic"
	ModeDigest Mode = "digest"
	ModeRuuvi  Mode = "ruuvi"
	ModeDeny   Mode = "deny"
)

// modeString renders the mode the way the JSON envelope's lan_auth_type
// field expects.
func (m Mode) modeString() string {
	return "lan_auth_" + string(m)
}

// Config configures LAS: the mode and its mode-specific pre-image.
//   - basic:  Pass is base64("user:plaintext")
//   - digest: Pass is hex(MD5("user:realm:plaintext"))
//   - ruuvi:  Pass is hex(MD5("user:realm:plaintext")); realm is APSSID
type Config struct {
	Mode   Mode
	User   string
	Pass   string
	APSSID string
}

// HeaderField is one ordered response header; multiple fields may share a
// Name (e.g. two Set-Cookie lines).
type HeaderField struct {
	Name  string
	Value string
}

// Response is what a LAS operation produces for CHS to write out.
type Response struct {
	Status  int
	Headers []HeaderField
	Body    []byte
}

// Request is the subset of an incoming HTTP request LAS needs. Cookies is
// pre-parsed per-name by CHS (the fix from Design Notes §9, not the
// vulnerable substring scan). FromLAN is false when the request arrived
// on the provisioning AP's own interface, which short-circuits
// authentication to success (shared rule, §4.5).
type Request struct {
	Method   string
	Path     string
	RemoteIP string
	FromLAN  bool
	Headers  map[string]string
	Cookies  map[string]string
}

// LAS is the authentication subsystem. It owns the authorized-session
// table and the single in-flight LoginSession, both mutated only from the
// HTTP task (§5: "no lock").
type LAS struct {
	cfg      Config
	sessions sessionTable
	pending  *loginSession
}

// New constructs a LAS in the given mode.
func New(cfg Config) *LAS {
	return &LAS{cfg: cfg}
}

type envelope struct {
	Success     bool   `json:"success"`
	GatewayName string `json:"gateway_name"`
	LanAuthType string `json:"lan_auth_type"`
}

func (l *LAS) envelope(success bool) []byte {
	b, _ := json.Marshal(envelope{
		Success:     success,
		GatewayName: l.cfg.APSSID,
		LanAuthType: l.cfg.Mode.modeString(),
	})
	return b
}

// opaque is the digest challenge's opaque token: SHA-256 of the AP SSID,
// stable across challenges by construction.
func (l *LAS) opaque() string {
	h := sha256.Sum256([]byte(l.cfg.APSSID))
	return hex.EncodeToString(h[:])
}

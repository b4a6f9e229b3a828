package las

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// digestTokens are the fields a qop=auth digest response must carry; a
// header missing any one of them is rejected outright.
var digestTokens = []string{
	"username", "realm", "nonce", "uri", "response", "qop", "nc", "cnonce",
}

// digestParams are the comma-separated key=value pairs off an
// "Authorization: Digest ..." header.
type digestParams map[string]string

func parseDigestHeader(v string) digestParams {
	const prefix = "Digest "
	if !strings.HasPrefix(v, prefix) {
		return nil
	}
	v = strings.TrimPrefix(v, prefix)
	out := make(digestParams)
	for _, field := range strings.Split(v, ",") {
		field = strings.TrimSpace(field)
		eq := strings.IndexByte(field, '=')
		if eq < 0 {
			continue
		}
		name := strings.TrimSpace(field[:eq])
		val := strings.Trim(strings.TrimSpace(field[eq+1:]), `"`)
		out[name] = val
	}
	return out
}

// complete reports whether every required token is present.
func (p digestParams) complete() bool {
	for _, tok := range digestTokens {
		if _, ok := p[tok]; !ok {
			return false
		}
	}
	return true
}

func md5hex(parts ...string) string {
	h := md5.New()
	h.Write([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(h.Sum(nil))
}

// challengeDigest issues the 401 + WWW-Authenticate challenge that starts
// an RFC 2617 qop=auth exchange. The nonce is SHA-256 over 32 fresh
// random bytes; the opaque is SHA-256 of the AP SSID (§4.5).
func (l *LAS) challengeDigest(remoteIP string) *Response {
	ls := l.newLoginSession(remoteIP)
	hdr := `Digest realm="` + l.cfg.APSSID + `" qop="auth" nonce="` + ls.nonce +
		`" opaque="` + l.opaque() + `"`
	return &Response{
		Status:  401,
		Headers: []HeaderField{{Name: "WWW-Authenticate", Value: hdr}},
		Body:    l.envelope(false),
	}
}

// checkDigest validates an Authorization: Digest header against the
// currently outstanding challenge. cfg.Pass is HA1 = MD5(user:realm:pass)
// precomputed at configuration time, so the plaintext password is never
// held in memory here.
func (l *LAS) checkDigest(req Request, method string) *Response {
	p := parseDigestHeader(req.Headers["Authorization"])
	if p == nil || !p.complete() || l.pending.expired() {
		return l.challengeDigest(req.RemoteIP)
	}
	if p["nonce"] != l.pending.nonce || p["opaque"] != l.opaque() ||
		p["username"] != l.cfg.User || p["realm"] != l.cfg.APSSID {
		return l.challengeDigest(req.RemoteIP)
	}
	ha2 := md5hex(method, p["uri"])
	want := md5hex(l.cfg.Pass, p["nonce"], p["nc"], p["cnonce"], p["qop"], ha2)
	got := p["response"]
	if len(got) == len(want) && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1 {
		return &Response{Status: 200, Body: l.envelope(true)}
	}
	return l.challengeDigest(req.RemoteIP)
}

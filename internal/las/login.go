package las

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// loginSessionTTL bounds how long an issued challenge remains acceptable;
// past this a client must request a fresh one.
const loginSessionTTL = 60 * time.Second

// loginSession is the single in-flight challenge LAS is tracking for
// digest or ruuvi mode, recording the remote IP it was issued to; ruuvi
// mode requires POST /auth to come from that IP, digest mode does not
// check it. There is
// at most one outstanding at a time — a fresh GET /auth simply overwrites
// it, so only the most recent challenge is valid (§4.5).
type loginSession struct {
	nonce     string
	challenge string
	sessionID string
	remoteIP  string
	issuedAt  time.Time
}

// randomSHA256Hex draws 32 random bytes and returns their SHA-256 as hex,
// the challenge/nonce format §4.5 prescribes.
func randomSHA256Hex() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("las: crypto/rand unavailable: " + err.Error())
	}
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func (l *LAS) newLoginSession(remoteIP string) *loginSession {
	ls := &loginSession{
		nonce:     randomSHA256Hex(),
		challenge: randomSHA256Hex(),
		sessionID: newSessionID(),
		remoteIP:  remoteIP,
		issuedAt:  time.Now(),
	}
	l.pending = ls
	return ls
}

// expired reports whether this challenge is too old to accept a response
// against; an expired or absent pending challenge forces a fresh GET.
func (ls *loginSession) expired() bool {
	return ls == nil || time.Since(ls.issuedAt) > loginSessionTTL
}

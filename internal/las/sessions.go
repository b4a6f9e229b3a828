package las

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"

	"github.com/ruuvigw/wifimgr/internal/wmtypes"
)

// sessionSlots is the fixed size of the authorized-session table (§4.5:
// "up to four authorized sessions retained").
const sessionSlots = 4

// sessionIDLen is the length of a session identifier: sixteen uppercase
// ASCII letters.
const sessionIDLen = 16

// sessionTable is the fixed-size, insertion-ordered authorized-session
// table. Each slot binds a session id to the remote IP that authenticated
// it; lookups must match both. New entries are prepended at slot 0,
// existing entries shift toward higher indices, and whatever was in the
// last slot is evicted — the "shift right by one, overwrite index 0" rule
// from §4.5.
type sessionTable struct {
	slots [sessionSlots]wmtypes.AuthSession
}

// prepend inserts the (id, remoteIP) pair as the newest authorized
// session, evicting the oldest if the table is full.
func (t *sessionTable) prepend(id, remoteIP string) {
	for i := sessionSlots - 1; i > 0; i-- {
		t.slots[i] = t.slots[i-1]
	}
	t.slots[0] = wmtypes.AuthSession{SessionID: id, RemoteIP: remoteIP}
}

// has reports whether the (id, remoteIP) pair is present anywhere in the
// table. Ids of equal length are compared in constant time so a matching
// prefix is not leaked via timing; a length mismatch fails immediately.
func (t *sessionTable) has(id, remoteIP string) bool {
	if id == "" {
		return false
	}
	for i := range t.slots {
		s := &t.slots[i]
		if s.Empty() || s.RemoteIP != remoteIP {
			continue
		}
		if len(s.SessionID) == len(id) && subtle.ConstantTimeCompare([]byte(s.SessionID), []byte(id)) == 1 {
			return true
		}
	}
	return false
}

// remove zeroes every slot matching the (id, remoteIP) pair, reporting
// whether anything was dropped (§4.5's DELETE /auth).
func (t *sessionTable) remove(id, remoteIP string) bool {
	dropped := false
	for i := range t.slots {
		if !t.slots[i].Empty() && t.slots[i].SessionID == id && t.slots[i].RemoteIP == remoteIP {
			t.slots[i] = wmtypes.AuthSession{}
			dropped = true
		}
	}
	return dropped
}

// newSessionID returns a fresh session identifier: sixteen letters drawn
// uniformly from [A-Z] via crypto/rand, the same cryptoInt-over-rand
// discipline passwordgen uses for credential material.
func newSessionID() string {
	b := make([]byte, sessionIDLen)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(26))
		if err != nil {
			// rand.Reader never fails on supported platforms; a dead
			// entropy source leaves no safe fallback for a credential.
			panic("las: crypto/rand unavailable: " + err.Error())
		}
		b[i] = byte('A' + n.Int64())
	}
	return string(b)
}

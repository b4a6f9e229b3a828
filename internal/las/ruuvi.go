package las

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
)

func sha256hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// challengeRuuvi issues the 401 that starts a ruuvi challenge-response
// exchange: a fresh loginSession bound to the caller's IP, its challenge
// and session id carried in the WWW-Authenticate header, and the session
// id also set as the RUUVISESSION cookie (§4.5 step 1).
func (l *LAS) challengeRuuvi(remoteIP string) *Response {
	ls := l.newLoginSession(remoteIP)
	hdr := `x-ruuvi-interactive realm="` + l.cfg.APSSID +
		`" challenge="` + ls.challenge +
		`" session_cookie="` + SessionCookieName +
		`" session_id="` + ls.sessionID + `"`
	return &Response{
		Status: 401,
		Headers: []HeaderField{
			{Name: "WWW-Authenticate", Value: hdr},
			{Name: "Set-Cookie", Value: SessionCookieName + "=" + ls.sessionID + "; Path=/; HttpOnly"},
		},
		Body: l.envelope(false),
	}
}

// ruuviLoginBody is the POST /auth request body (§4.5 step 2).
type ruuviLoginBody struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// finishRuuvi validates a POST /auth against the pending challenge. The
// expected password is hex(SHA-256(challenge ":" pass)) where pass is
// cfg.Pass — hex(MD5("user:realm:plaintext")), precomputed, never the
// plaintext. The stored loginSession must match on session id (from the
// RUUVISESSION cookie), remote IP, username, and password hash; anything
// else gets a fresh challenge. On success the (session_id, remote_ip)
// pair is prepended to the authorized-session table, the pending
// challenge is cleared so it cannot be replayed, and any RUUVI_PREV_URL
// cookie is handed back as a Ruuvi-prev-url header and expired.
func (l *LAS) finishRuuvi(req Request, body []byte) *Response {
	var lb ruuviLoginBody
	if err := json.Unmarshal(body, &lb); err != nil {
		return &Response{Status: 400, Body: l.envelope(false)}
	}
	ls := l.pending
	if ls.expired() ||
		sessionCookie(req.Cookies) != ls.sessionID ||
		req.RemoteIP != ls.remoteIP ||
		lb.Login != l.cfg.User {
		return l.challengeRuuvi(req.RemoteIP)
	}

	want := sha256hex(ls.challenge + ":" + l.cfg.Pass)
	if len(lb.Password) != len(want) || subtle.ConstantTimeCompare([]byte(lb.Password), []byte(want)) != 1 {
		return l.challengeRuuvi(req.RemoteIP)
	}

	l.sessions.prepend(ls.sessionID, ls.remoteIP)
	l.pending = nil

	headers := []HeaderField{
		{Name: "Set-Cookie", Value: SessionCookieName + "=" + ls.sessionID + "; Path=/; HttpOnly"},
	}
	if prev, ok := req.Cookies[PrevURLCookieName]; ok && prev != "" {
		headers = append(headers,
			HeaderField{Name: "Ruuvi-prev-url", Value: prev},
			HeaderField{Name: "Set-Cookie", Value: PrevURLCookieName + "=; Max-Age=-1; Expires=Thu, 01 Jan 1970 00:00:00 GMT"},
		)
	}
	return &Response{Status: 200, Headers: headers, Body: []byte("{}")}
}

// checkRuuviCookie authorizes a request by checking its session cookie
// and remote IP against the authorized-session table.
func (l *LAS) checkRuuviCookie(req Request) bool {
	return l.sessions.has(sessionCookie(req.Cookies), req.RemoteIP)
}

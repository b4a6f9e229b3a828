package las

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTableKeepsLastFourInOrder(t *testing.T) {
	var tbl sessionTable
	pairs := [][2]string{
		{"AAAAAAAAAAAAAAAA", "10.0.0.1"},
		{"BBBBBBBBBBBBBBBB", "10.0.0.2"},
		{"CCCCCCCCCCCCCCCC", "10.0.0.3"},
		{"DDDDDDDDDDDDDDDD", "10.0.0.4"},
		{"EEEEEEEEEEEEEEEE", "10.0.0.5"},
	}
	for _, p := range pairs {
		tbl.prepend(p[0], p[1])
	}

	assert.False(t, tbl.has("AAAAAAAAAAAAAAAA", "10.0.0.1"), "oldest entry should have been evicted")
	for i, p := range pairs[1:] {
		require.True(t, tbl.has(p[0], p[1]))
		// reverse chronological: newest at slot 0
		assert.Equal(t, p[0], tbl.slots[len(pairs)-2-i].SessionID)
	}
}

func TestSessionTableMatchesOnBothIDAndIP(t *testing.T) {
	var tbl sessionTable
	tbl.prepend("AAAAAAAAAAAAAAAA", "10.0.0.1")
	assert.True(t, tbl.has("AAAAAAAAAAAAAAAA", "10.0.0.1"))
	assert.False(t, tbl.has("AAAAAAAAAAAAAAAA", "10.0.0.9"), "same id from a different IP must not match")

	assert.False(t, tbl.remove("AAAAAAAAAAAAAAAA", "10.0.0.9"))
	assert.True(t, tbl.remove("AAAAAAAAAAAAAAAA", "10.0.0.1"))
	assert.False(t, tbl.has("AAAAAAAAAAAAAAAA", "10.0.0.1"))
}

func TestNewSessionIDShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		id := newSessionID()
		assert.Regexp(t, regexp.MustCompile(`^[A-Z]{16}$`), id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1, "ids must not repeat every time")
}

func TestParseCookieHeaderExactNameMatch(t *testing.T) {
	// A cookie value that contains the target name as a substring must
	// not be mistaken for the real session cookie.
	got := ParseCookieHeader("evil=RUUVISESSION=stolen; RUUVISESSION=real")
	assert.Equal(t, "real", got[SessionCookieName])
}

func headerValue(resp *Response, name string) string {
	for _, h := range resp.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

func newRuuviLAS() *LAS {
	// Pass is hex(MD5("user1:RuuviGatewayEEFF:qwe")), precomputed the way
	// the deployment tooling hands it over.
	return New(Config{
		Mode:   ModeRuuvi,
		User:   "user1",
		Pass:   md5hex("user1", "RuuviGatewayEEFF", "qwe"),
		APSSID: "RuuviGatewayEEFF",
	})
}

func TestRuuviChallengeShape(t *testing.T) {
	l := newRuuviLAS()
	resp := l.HandleGetAuth(Request{FromLAN: true, RemoteIP: "192.168.1.10"})
	require.Equal(t, 401, resp.Status)

	www := headerValue(resp, "WWW-Authenticate")
	assert.Contains(t, www, `x-ruuvi-interactive realm="RuuviGatewayEEFF"`)
	assert.Contains(t, www, `challenge="`+l.pending.challenge+`"`)
	assert.Contains(t, www, `session_cookie="RUUVISESSION"`)
	assert.Contains(t, www, `session_id="`+l.pending.sessionID+`"`)
	assert.Regexp(t, `^[A-Z]{16}$`, l.pending.sessionID)
	assert.Regexp(t, `^[0-9a-f]{64}$`, l.pending.challenge)

	assert.Contains(t, headerValue(resp, "Set-Cookie"), SessionCookieName+"="+l.pending.sessionID)

	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body, &env))
	assert.False(t, env.Success)
	assert.Equal(t, "RuuviGatewayEEFF", env.GatewayName)
	assert.Equal(t, "lan_auth_ruuvi", env.LanAuthType)
}

func ruuviLogin(l *LAS, remoteIP string) (sessionID string, resp *Response) {
	get := l.HandleGetAuth(Request{FromLAN: true, RemoteIP: remoteIP})
	if get.Status != 401 {
		return "", get
	}
	id := l.pending.sessionID
	hash := sha256hex(l.pending.challenge + ":" + l.cfg.Pass)
	body, _ := json.Marshal(ruuviLoginBody{Login: "user1", Password: hash})
	post := l.HandlePostAuth(Request{
		FromLAN:  true,
		RemoteIP: remoteIP,
		Cookies:  map[string]string{SessionCookieName: id},
	}, body)
	return id, post
}

func TestRuuviFullFlow(t *testing.T) {
	l := newRuuviLAS()

	id, post := ruuviLogin(l, "192.168.1.10")
	require.Equal(t, 200, post.Status)
	assert.Equal(t, "{}", string(post.Body))
	assert.Nil(t, l.pending, "challenge must not be replayable after success")

	authedReq := Request{
		FromLAN:  true,
		RemoteIP: "192.168.1.10",
		Cookies:  map[string]string{SessionCookieName: id},
	}
	get := l.HandleGetAuth(authedReq)
	require.Equal(t, 200, get.Status)
	var env envelope
	require.NoError(t, json.Unmarshal(get.Body, &env))
	assert.True(t, env.Success)

	assert.Nil(t, l.CheckRequest(authedReq), "authorized session should pass the gate")

	del := l.HandleDeleteAuth(authedReq)
	require.Equal(t, 200, del.Status)
	assert.Equal(t, "{}", string(del.Body))

	again := l.HandleGetAuth(authedReq)
	require.Equal(t, 401, again.Status)
	assert.NotEqual(t, id, l.pending.sessionID, "a fresh challenge must carry a fresh session id")
}

func TestRuuviRejectsWrongRemoteIP(t *testing.T) {
	l := newRuuviLAS()

	get := l.HandleGetAuth(Request{FromLAN: true, RemoteIP: "192.168.1.10"})
	require.Equal(t, 401, get.Status)
	id := l.pending.sessionID
	hash := sha256hex(l.pending.challenge + ":" + l.cfg.Pass)
	body, _ := json.Marshal(ruuviLoginBody{Login: "user1", Password: hash})

	post := l.HandlePostAuth(Request{
		FromLAN:  true,
		RemoteIP: "192.168.1.66",
		Cookies:  map[string]string{SessionCookieName: id},
	}, body)
	assert.Equal(t, 401, post.Status)
}

func TestRuuviRejectsWrongPassword(t *testing.T) {
	l := newRuuviLAS()

	get := l.HandleGetAuth(Request{FromLAN: true, RemoteIP: "192.168.1.10"})
	require.Equal(t, 401, get.Status)
	id := l.pending.sessionID
	body, _ := json.Marshal(ruuviLoginBody{Login: "user1", Password: sha256hex("nope")})

	post := l.HandlePostAuth(Request{
		FromLAN:  true,
		RemoteIP: "192.168.1.10",
		Cookies:  map[string]string{SessionCookieName: id},
	}, body)
	assert.Equal(t, 401, post.Status)
}

func TestRuuviPrevURLReturnedAndExpired(t *testing.T) {
	l := newRuuviLAS()

	get := l.HandleGetAuth(Request{FromLAN: true, RemoteIP: "192.168.1.10"})
	require.Equal(t, 401, get.Status)
	id := l.pending.sessionID
	hash := sha256hex(l.pending.challenge + ":" + l.cfg.Pass)
	body, _ := json.Marshal(ruuviLoginBody{Login: "user1", Password: hash})

	post := l.HandlePostAuth(Request{
		FromLAN:  true,
		RemoteIP: "192.168.1.10",
		Cookies: map[string]string{
			SessionCookieName: id,
			PrevURLCookieName: "/status.json",
		},
	}, body)
	require.Equal(t, 200, post.Status)
	assert.Equal(t, "/status.json", headerValue(post, "Ruuvi-prev-url"))

	expired := false
	for _, h := range post.Headers {
		if h.Name == "Set-Cookie" && h.Value == PrevURLCookieName+"=; Max-Age=-1; Expires=Thu, 01 Jan 1970 00:00:00 GMT" {
			expired = true
		}
	}
	assert.True(t, expired, "RUUVI_PREV_URL cookie must be expired on successful login")
}

func TestRuuviGateRedirectsToLoginWithPrevURL(t *testing.T) {
	l := newRuuviLAS()

	gate := l.CheckRequest(Request{FromLAN: true, RemoteIP: "192.168.1.10", Path: "/status.json"})
	require.NotNil(t, gate)
	assert.Equal(t, 302, gate.Status)
	assert.Equal(t, "/auth.html", headerValue(gate, "Location"))
	assert.Contains(t, headerValue(gate, "Set-Cookie"), PrevURLCookieName+"=/status.json")

	assert.Nil(t, l.CheckRequest(Request{FromLAN: true, RemoteIP: "192.168.1.10", Path: "/style.css"}),
		"static assets must stay reachable so the login page can render")
}

func TestFromLANFalseShortCircuitsToSuccess(t *testing.T) {
	l := New(Config{Mode: ModeDeny, APSSID: "gw"})
	assert.Nil(t, l.CheckRequest(Request{FromLAN: false, Path: "/status.json"}))

	get := l.HandleGetAuth(Request{FromLAN: false})
	assert.Equal(t, 200, get.Status)
}

func TestSessionEvictionAcrossFiveLogins(t *testing.T) {
	l := newRuuviLAS()

	ips := []string{"10.1.0.1", "10.1.0.2", "10.1.0.3", "10.1.0.4", "10.1.0.5"}
	ids := make([]string, len(ips))
	for i, ip := range ips {
		id, post := ruuviLogin(l, ip)
		require.Equal(t, 200, post.Status)
		ids[i] = id
	}

	gate := l.CheckRequest(Request{
		FromLAN: true, RemoteIP: ips[0], Path: "/status.json",
		Cookies: map[string]string{SessionCookieName: ids[0]},
	})
	assert.NotNil(t, gate, "first login should have been evicted by the fifth")

	for i := 1; i < len(ids); i++ {
		assert.True(t, l.sessions.has(ids[i], ips[i]))
	}
}

func TestBasicAuth(t *testing.T) {
	l := New(Config{Mode: ModeBasic, APSSID: "test-ap", Pass: "dXNlcjpwYXNz"})
	resp := l.CheckRequest(Request{FromLAN: true, Headers: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}})
	assert.Nil(t, resp)

	resp2 := l.CheckRequest(Request{FromLAN: true, Headers: map[string]string{"Authorization": "Basic wrong"}})
	require.NotNil(t, resp2)
	assert.Equal(t, 401, resp2.Status)
	assert.Equal(t, `Basic realm="test-ap", charset="UTF-8"`, headerValue(resp2, "WWW-Authenticate"))
}

func digestAuthHeader(p map[string]string) string {
	h := "Digest "
	first := true
	for k, v := range p {
		if !first {
			h += ", "
		}
		h += k + `="` + v + `"`
		first = false
	}
	return h
}

func TestDigestChallengeAndVerification(t *testing.T) {
	ha1 := md5hex("admin", "test-ap", "secret")
	l := New(Config{Mode: ModeDigest, User: "admin", Pass: ha1, APSSID: "test-ap"})

	chal := l.HandleGetAuth(Request{FromLAN: true, Method: "GET", RemoteIP: "10.1.0.9"})
	require.Equal(t, 401, chal.Status)
	www := headerValue(chal, "WWW-Authenticate")
	assert.Contains(t, www, `Digest realm="test-ap" qop="auth"`)
	assert.Contains(t, www, `opaque="`+l.opaque()+`"`)
	assert.Regexp(t, `nonce="[0-9a-f]{64}"`, www)

	nonce := l.pending.nonce
	params := map[string]string{
		"username": "admin",
		"realm":    "test-ap",
		"nonce":    nonce,
		"uri":      "/status.json",
		"qop":      "auth",
		"nc":       "00000001",
		"cnonce":   "abcdef",
		"opaque":   l.opaque(),
	}
	ha2 := md5hex("GET", "/status.json")
	params["response"] = md5hex(ha1, nonce, "00000001", "abcdef", "auth", ha2)

	ok := l.CheckRequest(Request{
		FromLAN: true, Method: "GET",
		Headers: map[string]string{"Authorization": digestAuthHeader(params)},
	})
	assert.Nil(t, ok, "a correct digest response must pass")
}

func TestDigestRejectsWhenAnyTokenMissing(t *testing.T) {
	ha1 := md5hex("admin", "test-ap", "secret")
	l := New(Config{Mode: ModeDigest, User: "admin", Pass: ha1, APSSID: "test-ap"})

	l.HandleGetAuth(Request{FromLAN: true, Method: "GET", RemoteIP: "10.1.0.9"})
	ha2 := md5hex("GET", "/status.json")

	for _, drop := range digestTokens {
		nonce := l.pending.nonce
		full := map[string]string{
			"username": "admin",
			"realm":    "test-ap",
			"nonce":    nonce,
			"uri":      "/status.json",
			"qop":      "auth",
			"nc":       "00000001",
			"cnonce":   "abcdef",
			"opaque":   l.opaque(),
			"response": md5hex(ha1, nonce, "00000001", "abcdef", "auth", ha2),
		}
		params := make(map[string]string, len(full))
		for k, v := range full {
			if k != drop {
				params[k] = v
			}
		}
		resp := l.CheckRequest(Request{
			FromLAN: true, Method: "GET",
			Headers: map[string]string{"Authorization": digestAuthHeader(params)},
		})
		require.NotNil(t, resp, "missing %q must be rejected", drop)
		assert.Equal(t, 401, resp.Status)
	}
}

func TestAllowAndDenyModes(t *testing.T) {
	allow := New(Config{Mode: ModeAllow, APSSID: "gw"})
	assert.Nil(t, allow.CheckRequest(Request{FromLAN: true}))
	assert.Equal(t, 200, allow.HandleGetAuth(Request{FromLAN: true}).Status)

	deny := New(Config{Mode: ModeDeny, APSSID: "gw"})
	gate := deny.CheckRequest(Request{FromLAN: true})
	require.NotNil(t, gate)
	assert.Equal(t, 403, gate.Status)
	assert.Equal(t, 403, deny.HandleGetAuth(Request{FromLAN: true}).Status)
}

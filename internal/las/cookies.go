package las

import "strings"

// Cookie names on the wire. RUUVISESSION carries the authorized session
// id; RUUVI_PREV_URL remembers where an unauthenticated browser was
// headed so the UI can send it back there after login.
const (
	SessionCookieName = "RUUVISESSION"
	PrevURLCookieName = "RUUVI_PREV_URL"
)

// ParseCookieHeader splits a Cookie header into name/value pairs, looking
// for exact name matches rather than a raw substring search. The original
// ruuvi cookie-auth code split on ';', then looked for the session cookie
// name anywhere in each fragment with a plain substring compare — which
// let a client smuggle an unrelated cookie value containing the session
// cookie's name as a substring and bypass the lookup. This splits on '='
// within each ';'-delimited fragment and matches the name exactly
// (Design Notes §9, bug #3).
func ParseCookieHeader(header string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		name := strings.TrimSpace(part[:eq])
		value := strings.TrimSpace(part[eq+1:])
		if name == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// sessionCookie looks up the session cookie by its exact name, returning
// "" if absent.
func sessionCookie(cookies map[string]string) string {
	return cookies[SessionCookieName]
}

package las

import (
	"crypto/subtle"
	"strings"
)

// checkBasic implements RFC 7617 Basic auth: the Authorization header must
// carry "Basic " followed by exactly the configured base64 blob. There is
// no challenge state to track, so a bare 401 with WWW-Authenticate is the
// whole unauthorized reply.
func (l *LAS) checkBasic(req Request) *Response {
	auth := req.Headers["Authorization"]
	const prefix = "Basic "
	if strings.HasPrefix(auth, prefix) {
		got := strings.TrimPrefix(auth, prefix)
		want := l.cfg.Pass
		if len(got) == len(want) && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1 {
			return &Response{Status: 200, Body: l.envelope(true)}
		}
	}
	return &Response{
		Status: 401,
		Headers: []HeaderField{
			{Name: "WWW-Authenticate", Value: `Basic realm="` + l.cfg.APSSID + `", charset="UTF-8"`},
		},
		Body: l.envelope(false),
	}
}

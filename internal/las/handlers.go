package las

import "strings"

// HandleGetAuth serves GET /auth. In ruuvi mode a cookie matching an
// authorized session answers 200; anything else gets a fresh 401
// challenge (§4.5 steps 1 and 4). Digest mode likewise issues its
// challenge here; allow/basic/deny carry no challenge state.
func (l *LAS) HandleGetAuth(req Request) *Response {
	if !req.FromLAN {
		return &Response{Status: 200, Body: l.envelope(true)}
	}
	switch l.cfg.Mode {
	case ModeAllow:
		return &Response{Status: 200, Body: l.envelope(true)}
	case ModeDeny:
		return &Response{Status: 403, Body: l.envelope(false)}
	case ModeBasic:
		return l.checkBasic(req)
	case ModeDigest:
		return l.checkDigest(req, req.Method)
	case ModeRuuvi:
		if l.checkRuuviCookie(req) {
			return &Response{Status: 200, Body: l.envelope(true)}
		}
		return l.challengeRuuvi(req.RemoteIP)
	default:
		return &Response{Status: 403, Body: l.envelope(false)}
	}
}

// HandlePostAuth serves POST /auth, meaningful only in ruuvi mode (the
// challenge-response completion). Every other mode authenticates
// per-request via headers and has nothing for POST to do.
func (l *LAS) HandlePostAuth(req Request, body []byte) *Response {
	if !req.FromLAN {
		return &Response{Status: 200, Body: []byte("{}")}
	}
	if l.cfg.Mode != ModeRuuvi {
		return &Response{Status: 404}
	}
	return l.finishRuuvi(req, body)
}

// HandleDeleteAuth serves DELETE /auth: zero the calling session's table
// slot and expire its cookie (§4.5 step 5). A cookie matching no
// authorized session is rejected.
func (l *LAS) HandleDeleteAuth(req Request) *Response {
	if !req.FromLAN {
		return &Response{Status: 200, Body: []byte("{}")}
	}
	if l.cfg.Mode != ModeRuuvi {
		return &Response{Status: 404}
	}
	if !l.sessions.remove(sessionCookie(req.Cookies), req.RemoteIP) {
		return &Response{Status: 401, Body: l.envelope(false)}
	}
	return &Response{
		Status: 200,
		Headers: []HeaderField{
			{Name: "Set-Cookie", Value: SessionCookieName + "=; Path=/; HttpOnly; Max-Age=0"},
		},
		Body: []byte("{}"),
	}
}

// staticAsset reports whether path is a style/script/icon resource the
// login page itself needs — those are never gated, or the browser could
// not render the login UI to authenticate with.
func staticAsset(path string) bool {
	for _, ext := range []string{".css", ".js", ".ico", ".png", ".svg"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// CheckRequest gates every non-/auth route. It returns nil when the
// request is authorized and may proceed, or the Response CHS should write
// back verbatim otherwise. In ruuvi mode an unauthorized request is sent
// to the login page with a RUUVI_PREV_URL cookie recording where it was
// headed, so the UI can return the user there after login (§4.5 step 6).
func (l *LAS) CheckRequest(req Request) *Response {
	if !req.FromLAN {
		return nil
	}
	switch l.cfg.Mode {
	case ModeAllow:
		return nil
	case ModeDeny:
		return &Response{Status: 403, Body: l.envelope(false)}
	case ModeBasic:
		if resp := l.checkBasic(req); resp.Status == 200 {
			return nil
		} else {
			return resp
		}
	case ModeDigest:
		if resp := l.checkDigest(req, req.Method); resp.Status == 200 {
			return nil
		} else {
			return resp
		}
	case ModeRuuvi:
		if l.checkRuuviCookie(req) {
			return nil
		}
		if staticAsset(req.Path) || req.Path == "/auth.html" {
			return nil
		}
		return &Response{
			Status: 302,
			Headers: []HeaderField{
				{Name: "Location", Value: "/auth.html"},
				{Name: "Set-Cookie", Value: PrevURLCookieName + "=" + req.Path + "; Path=/"},
			},
			Body: []byte{},
		}
	default:
		return &Response{Status: 403, Body: l.envelope(false)}
	}
}

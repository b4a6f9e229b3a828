package chs

import (
	"bytes"
	"strings"

	"github.com/ruuvigw/wifimgr/internal/las"
	"github.com/ruuvigw/wifimgr/internal/zaperr"
)

// errMalformed is returned by parseRequest for a buffer with no line break
// or whose request line has fewer than two space-separated fields (method
// and path); the version field is not checked. There is no tolerance for
// the long tail of HTTP/1.1 grammar, matching the embedded parser's narrow
// five-field split: method, path, header block, cookie header, body.
var errMalformed error = zaperr.New(zaperr.KindParseError, "malformed request")

// request is the parsed result handed to the router.
type request struct {
	Method  string
	Path    string
	Query   string
	Headers map[string]string
	Cookies map[string]string
	Body    []byte
}

// headerTerminator locates the blank line ending the header block,
// accepting both CRLF-CRLF and bare LF-LF (§4.3). It returns the index
// where the blank line starts and where the body begins, or (-1, -1).
func headerTerminator(buf []byte) (end, bodyStart int) {
	if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
		return idx, idx + 4
	}
	if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
		return idx, idx + 2
	}
	return -1, -1
}

// splitLines splits a raw header block on LF, trimming a trailing CR from
// each line, so CRLF and bare-LF requests parse identically.
func splitLines(block []byte) [][]byte {
	lines := bytes.Split(block, []byte("\n"))
	for i, line := range lines {
		lines[i] = bytes.TrimSuffix(line, []byte("\r"))
	}
	return lines
}

// parseRequest destructures a raw buffer into its five fields: the
// request line's method and path, the header block (folded into a
// name->value map, last write wins), the Cookie header split out
// separately via las's exact-match parser, and whatever bytes remain as
// the body.
func parseRequest(buf []byte) (*request, error) {
	lineEnd := bytes.IndexByte(buf, '\n')
	if lineEnd < 0 {
		return nil, errMalformed
	}
	line := strings.TrimSuffix(string(buf[:lineEnd]), "\r")
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return nil, errMalformed
	}
	method := fields[0]
	rawPath := fields[1]

	path := rawPath
	query := ""
	if idx := strings.IndexByte(rawPath, '?'); idx >= 0 {
		path = rawPath[:idx]
		query = rawPath[idx+1:]
	}

	headerEnd, bodyStart := headerTerminator(buf)
	var headerBlock []byte
	var body []byte
	if headerEnd < 0 {
		headerBlock = buf[lineEnd+1:]
	} else {
		headerBlock = buf[lineEnd+1 : headerEnd]
		body = buf[bodyStart:]
	}

	headers := make(map[string]string)
	for _, hline := range splitLines(headerBlock) {
		if len(hline) == 0 {
			continue
		}
		colon := bytes.IndexByte(hline, ':')
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(string(hline[:colon]))
		value := strings.TrimSpace(string(hline[colon+1:]))
		headers[name] = value
	}

	cookies := map[string]string{}
	if c, ok := headers["Cookie"]; ok {
		cookies = cookiesFrom(c)
	}

	return &request{
		Method:  method,
		Path:    path,
		Query:   query,
		Headers: headers,
		Cookies: cookies,
		Body:    body,
	}, nil
}

// cookiesFrom is a thin indirection so parser.go doesn't need to know
// las's cookie-splitting internals; it delegates to the exact-match
// parser LAS itself uses, so CHS and LAS never disagree about which
// cookie is "the" session cookie.
func cookiesFrom(header string) map[string]string {
	return las.ParseCookieHeader(header)
}

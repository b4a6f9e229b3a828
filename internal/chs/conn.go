package chs

import (
	"bytes"
	"net"

	"github.com/ruuvigw/wifimgr/internal/zaperr"
)

// errOverflow is returned by readRequest when a request does not fit the
// fixed receive buffer — the embedded parser's "request too large, drop
// the connection" case (§4.2).
var errOverflow error = zaperr.New(zaperr.KindOverflow, "request exceeds receive buffer")

// readRequest fills buf from conn until it has seen the blank line ending
// the header block, plus a fully-received body (governed by
// Content-Length, defaulting to no body). It never grows buf: a request
// that doesn't fit is reported as errOverflow and the connection is
// expected to be dropped, mirroring the fixed 4KiB+1 staging buffer of
// the embedded HTTP daemon rather than net/http's arbitrarily-growing
// bufio.Reader.
func readRequest(conn net.Conn, buf []byte) (n int, err error) {
	bodyStart := -1
	for n < len(buf) {
		m, rerr := conn.Read(buf[n:])
		if m > 0 {
			n += m
			if bodyStart < 0 {
				_, bodyStart = headerTerminator(buf[:n])
			}
			if bodyStart >= 0 {
				need := contentLength(buf[:bodyStart])
				if n >= bodyStart+need {
					return n, nil
				}
				continue
			}
		}
		if rerr != nil {
			// A request whose body never reaches its Content-Length is
			// discarded, not served truncated.
			return n, rerr
		}
	}
	return n, errOverflow
}

// contentLength scans a raw header block for Content-Length without a
// full header parse — readRequest needs it before the request is handed
// to parseRequest.
func contentLength(header []byte) int {
	for _, line := range splitLines(header) {
		if len(line) > 15 && bytes.EqualFold(line[:15], []byte("Content-Length:")) {
			v := bytes.TrimSpace(line[15:])
			n := 0
			for _, c := range v {
				if c < '0' || c > '9' {
					return 0
				}
				n = n*10 + int(c-'0')
			}
			return n
		}
	}
	return 0
}

package chs

import (
	"fmt"
	"net"
	"time"

	"github.com/ruuvigw/wifimgr/internal/wmdef"
)

// imfFixdate is the RFC 7231 IMF-fixdate layout for the Date header.
const imfFixdate = "Mon, 02 Jan 2006 15:04:05 GMT"

// httpResponse is what a route handler produces; writeResponse renders it
// onto the wire in fixed-size chunks rather than a single large Write,
// the Go stand-in for the embedded daemon's non-blocking per-chunk send
// loop with a "MORE data coming" hint on every chunk but the last.
type httpResponse struct {
	Status      int
	StatusText  string
	ContentType string
	Headers     []headerField
	Body        []byte

	// NoCache adds the no-store/no-cache header pair; CacheStatic marks a
	// long-lived static asset instead. At most one should be set.
	NoCache     bool
	CacheStatic bool
}

type headerField struct {
	Name  string
	Value string
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 302:
		return "Found"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 413:
		return "Payload Too Large"
	case 503:
		return "Service Unavailable"
	default:
		return "Internal Server Error"
	}
}

// writeResponse serializes the status line, headers, and body in
// wmdef.HTTPChunkSize pieces. Each conn.Write carries its own deadline
// reset so a slow client extends only its own connection's budget, never
// stalls the acceptor. A response with no body carries only its
// Content-Length: 0, no content-type details.
func writeResponse(conn net.Conn, resp httpResponse) error {
	if resp.StatusText == "" {
		resp.StatusText = statusText(resp.Status)
	}
	head := fmt.Sprintf("HTTP/1.1 %d %s\r\n", resp.Status, resp.StatusText)
	head += "Server: " + wmdef.ServerHeader + "\r\n"
	head += "Date: " + time.Now().UTC().Format(imfFixdate) + "\r\n"
	if len(resp.Body) > 0 && resp.ContentType != "" {
		head += "Content-Type: " + resp.ContentType + "\r\n"
	}
	head += fmt.Sprintf("Content-Length: %d\r\n", len(resp.Body))
	head += "Connection: close\r\n"
	for _, h := range resp.Headers {
		head += h.Name + ": " + h.Value + "\r\n"
	}
	switch {
	case resp.NoCache:
		head += "Cache-Control: no-store, no-cache, must-revalidate, max-age=0\r\n"
		head += "Pragma: no-cache\r\n"
	case resp.CacheStatic:
		head += "Cache-Control: public, max-age=31536000\r\n"
	}
	head += "\r\n"

	if err := writeChunked(conn, []byte(head)); err != nil {
		return err
	}
	return writeChunked(conn, resp.Body)
}

func writeChunked(conn net.Conn, data []byte) error {
	for off := 0; off < len(data); off += wmdef.HTTPChunkSize {
		end := off + wmdef.HTTPChunkSize
		if end > len(data) {
			end = len(data)
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wmdef.HTTPConnDeadline))
		if _, err := conn.Write(data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func simple(status int, body string) httpResponse {
	return httpResponse{Status: status, ContentType: "text/plain", Body: []byte(body), NoCache: true}
}

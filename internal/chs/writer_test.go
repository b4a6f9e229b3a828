package chs

import (
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderResponse(t *testing.T, resp httpResponse) string {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() {
		err := writeResponse(server, resp)
		server.Close()
		done <- err
	}()
	data, _ := io.ReadAll(client)
	require.NoError(t, <-done)
	return string(data)
}

func TestWriteResponseShape(t *testing.T) {
	out := renderResponse(t, httpResponse{
		Status:      200,
		ContentType: "application/json",
		Body:        []byte(`{"ok":true}`),
		NoCache:     true,
	})

	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "Server: Ruuvi Gateway\r\n")
	assert.Regexp(t, `Date: [A-Z][a-z]{2}, \d{2} [A-Z][a-z]{2} \d{4} \d{2}:\d{2}:\d{2} GMT\r\n`, out)
	assert.Contains(t, out, "Content-Type: application/json\r\n")
	assert.Contains(t, out, "Content-Length: 11\r\n")
	assert.Contains(t, out, "Cache-Control: no-store, no-cache, must-revalidate, max-age=0\r\n")
	assert.Contains(t, out, "Pragma: no-cache\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"+`{"ok":true}`))
}

func TestWriteResponseEmptyBodyOmitsContentType(t *testing.T) {
	out := renderResponse(t, httpResponse{Status: 400, ContentType: "text/plain"})

	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 400 Bad Request\r\n"))
	assert.NotContains(t, out, "Content-Type:")
	assert.Contains(t, out, "Content-Length: 0\r\n")
}

func TestWriteResponseStaticCaching(t *testing.T) {
	out := renderResponse(t, httpResponse{
		Status:      200,
		ContentType: "text/css; charset=utf-8",
		Body:        []byte("body{}"),
		CacheStatic: true,
	})
	assert.Contains(t, out, "Cache-Control: public, max-age=31536000\r\n")
	assert.NotContains(t, out, "Pragma: no-cache")
}

func TestWriteResponseExtraHeadersPreserved(t *testing.T) {
	out := renderResponse(t, httpResponse{
		Status: 302,
		Headers: []headerField{
			{Name: "Location", Value: "http://10.10.0.1/"},
		},
	})
	assert.Contains(t, out, "Location: http://10.10.0.1/\r\n")
}

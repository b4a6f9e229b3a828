// Package chs implements the Captive HTTP Server: a hand-rolled HTTP/1.1
// surface speaking the narrow five-field request grammar and fixed-buffer
// discipline described in §4.2-§4.3, rather than net/http. net/http's
// bufio.Reader grows without bound and its router rewrites the request
// line before handlers ever see it, which would silently violate the
// fixed 4KiB+1 receive buffer and the destructive raw-line parse this
// server is required to reproduce byte for byte.
package chs

import (
	"context"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ruuvigw/wifimgr/internal/csm"
	"github.com/ruuvigw/wifimgr/internal/las"
	"github.com/ruuvigw/wifimgr/internal/state"
	"github.com/ruuvigw/wifimgr/internal/wmdef"
	"github.com/ruuvigw/wifimgr/internal/zaperr"
)

// Server is the CHS component.
type Server struct {
	cfg  *wmdef.Config
	csm  *csm.CSM
	las  *las.LAS
	staIP *state.StaIP
	net   *state.NetInfo
	aps   *state.APList

	assets     fs.FS
	assetsRoot string

	slog *zap.SugaredLogger

	apNet *net.IPNet

	// readiness reports the owning Core's lifecycle state for /healthz; it
	// is wired in by SetReadinessFunc after construction so this package
	// never needs to import internal/core.
	readiness func() string
}

// SetReadinessFunc wires the /healthz endpoint to f, which should return
// the current lifecycle state as a short string (e.g. core.Readiness's
// String()).
func (s *Server) SetReadinessFunc(f func() string) {
	s.readiness = f
}

// New constructs a CHS server bound to the given components.
func New(cfg *wmdef.Config, c *csm.CSM, l *las.LAS, staIP *state.StaIP, ni *state.NetInfo, aps *state.APList,
	assets fs.FS, assetsRoot string, slog *zap.SugaredLogger) *Server {

	_, apNet, _ := net.ParseCIDR(cfg.APIP + "/24")
	return &Server{
		cfg: cfg, csm: c, las: l,
		staIP: staIP, net: ni, aps: aps,
		assets: assets, assetsRoot: assetsRoot,
		slog: slog, apNet: apNet,
	}
}

// ListenAndServe runs the accept loop until ctx is canceled. Accept blocks
// for at most HTTPAcceptPeriod at a time, the Go analogue of the embedded
// daemon's periodic "check for shutdown signal" wakeup between accepts.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", netAddr(s.cfg.HTTPPort))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		if tl, ok := ln.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(s.cfg.HTTPAcceptPeriod))
		}
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.slog.Warnw("accept failed", "err", err)
			continue
		}
		go s.handleConn(conn)
	}
}

func netAddr(port int) string {
	return ":" + strconv.Itoa(port)
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(s.cfg.HTTPConnDeadline))

	connID := uuid.NewString()

	buf := make([]byte, wmdef.HTTPRecvBufSize)
	n, err := readRequest(conn, buf)
	if err != nil {
		if ze, ok := err.(zaperr.ZapError); ok && ze.Kind() == zaperr.KindOverflow {
			s.slog.Warnw("dropping connection", "conn_id", connID, "err", ze)
		} else {
			s.slog.Debugw("recv failed", "conn_id", connID,
				"err", zaperr.New(zaperr.KindIoError, "recv failed", "cause", err))
		}
		return
	}

	req, err := parseRequest(buf[:n])
	if err != nil {
		s.slog.Debugw("unparseable request", "conn_id", connID, "err", err)
		_ = writeResponse(conn, simple(400, ""))
		return
	}

	remoteIP, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	onLAN := s.onLANInterface(remoteIP)

	resp := s.route(req, remoteIP, onLAN)
	if werr := writeResponse(conn, resp); werr != nil {
		s.slog.Debugw("write failed", "conn_id", connID,
			"err", zaperr.New(zaperr.KindIoError, "send failed", "cause", werr))
		return
	}
	s.slog.Debugw("request served",
		"conn_id", connID, "remote", remoteIP,
		"method", req.Method, "path", req.Path, "status", resp.Status)
}

// onLANInterface reports whether remoteIP belongs to the provisioning
// AP's own subnet. A request from outside that subnet is assumed to have
// arrived via the station's upstream (LAN) interface instead, matching
// the boolean NetInfo.RenderStatusJSON expects.
func (s *Server) onLANInterface(remoteIP string) bool {
	ip := net.ParseIP(remoteIP)
	if ip == nil || s.apNet == nil {
		return true
	}
	return !s.apNet.Contains(ip)
}

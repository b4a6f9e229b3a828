package chs

import (
	"context"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/ruuvigw/wifimgr/internal/las"
	"github.com/ruuvigw/wifimgr/internal/state"
	"github.com/ruuvigw/wifimgr/internal/wmdef"
	"github.com/ruuvigw/wifimgr/internal/wmtypes"
	"github.com/ruuvigw/wifimgr/internal/zaperr"
)

// scanSyncBudget bounds how long an /ap.json request will wait for a full
// scan before giving up with a 503; scanWatchdogTimeout is the watchdog
// budget ScanSync divides its periodic wakes by.
const (
	scanSyncBudget      = 30 * time.Second
	scanWatchdogTimeout = 5 * time.Second
)

// route dispatches one parsed request to its handler. The captive-portal
// redirect is decided first, from the Host header; then the LAN auth
// gate; everything past those two checks is a plain method+path switch.
func (s *Server) route(req *request, remoteIP string, onLAN bool) httpResponse {
	if s.wantsCaptiveRedirect(req.Headers["Host"]) {
		return s.redirectToPortal()
	}

	if req.Path == "/healthz" {
		return s.handleHealthz()
	}

	if req.Path != "/auth" {
		if gate := s.las.CheckRequest(lasRequest(req, remoteIP, onLAN)); gate != nil {
			s.logAuthRejection(req, remoteIP, gate.Status)
			return fromLAS(*gate)
		}
	}

	switch {
	case (req.Path == "/" || req.Path == "/index.html") && req.Method == "GET":
		return s.serveAsset("index.html")
	case req.Path == "/ap.json" && req.Method == "GET":
		return s.handleApJSON()
	case req.Path == "/status.json" && req.Method == "GET":
		return s.handleStatusJSON(onLAN)
	case req.Path == "/auth" && req.Method == "GET":
		return fromLAS(*s.las.HandleGetAuth(lasRequest(req, remoteIP, onLAN)))
	case req.Path == "/auth" && req.Method == "POST":
		resp := s.las.HandlePostAuth(lasRequest(req, remoteIP, onLAN), req.Body)
		s.logAuthRejection(req, remoteIP, resp.Status)
		return fromLAS(*resp)
	case req.Path == "/auth" && req.Method == "DELETE":
		return fromLAS(*s.las.HandleDeleteAuth(lasRequest(req, remoteIP, onLAN)))
	case req.Path == "/connect.json" && req.Method == "POST":
		return s.handleConnectPost(req)
	case req.Path == "/connect.json" && req.Method == "DELETE":
		return s.handleConnectDelete()
	case req.Method == "GET":
		return s.serveAsset(strings.TrimPrefix(req.Path, "/"))
	default:
		return simple(404, "not found")
	}
}

// logAuthRejection records an auth denial. Challenge issuance on GET
// /auth and 302 redirects to the login page are part of the normal flow,
// not failures, and are not logged.
func (s *Server) logAuthRejection(req *request, remoteIP string, status int) {
	if status != 401 && status != 403 {
		return
	}
	s.slog.Debugw("authentication failed", "conn_remote", remoteIP,
		"err", zaperr.New(zaperr.KindAuthFailure, "authentication failed", "path", req.Path, "status", status))
}

func lasRequest(req *request, remoteIP string, onLAN bool) las.Request {
	return las.Request{
		Method:   req.Method,
		Path:     req.Path,
		RemoteIP: remoteIP,
		FromLAN:  onLAN,
		Headers:  req.Headers,
		Cookies:  req.Cookies,
	}
}

func fromLAS(r las.Response) httpResponse {
	hf := make([]headerField, 0, len(r.Headers))
	for _, h := range r.Headers {
		hf = append(hf, headerField{Name: h.Name, Value: h.Value})
	}
	return httpResponse{Status: r.Status, ContentType: "application/json", Headers: hf, Body: r.Body, NoCache: true}
}

func jsonOK() httpResponse {
	return httpResponse{Status: 200, ContentType: "application/json", Body: []byte("{}"), NoCache: true}
}

func (s *Server) handleHealthz() httpResponse {
	state := "unknown"
	if s.readiness != nil {
		state = s.readiness()
	}
	return httpResponse{Status: 200, ContentType: "application/json", Body: []byte(`{"state":"` + state + `"}`), NoCache: true}
}

// handleApJSON runs a synchronous scan and returns its rendered JSON; the
// request blocks for the scan's duration (it may take seconds across many
// channels), 503 if the scan or the list's lock cannot be obtained.
func (s *Server) handleApJSON() httpResponse {
	ctx, cancel := context.WithTimeout(context.Background(), scanSyncBudget)
	defer cancel()
	body, err := s.csm.ScanSync(ctx, scanWatchdogTimeout, nil)
	if err != nil {
		if _, ok := err.(state.ErrLockTimeout); ok {
			err = zaperr.New(zaperr.KindLockTimeout, "ap list lock timeout", "cause", err)
		}
		s.slog.Warnw("scan sync failed", "err", err)
		return simple(503, "scan unavailable")
	}
	return httpResponse{Status: 200, ContentType: "application/json", Body: body, NoCache: true}
}

func (s *Server) handleStatusJSON(onLAN bool) httpResponse {
	body, err := s.net.RenderStatusJSON(onLAN)
	if err != nil {
		if _, ok := err.(state.ErrLockTimeout); ok {
			s.slog.Warnw("status render failed",
				"err", zaperr.New(zaperr.KindLockTimeout, "net info lock timeout", "cause", err))
			return simple(503, "")
		}
		return simple(500, "internal error")
	}
	return httpResponse{Status: 200, ContentType: "application/json", Body: body, NoCache: true}
}

// handleConnectPost implements §4.4's POST /connect.json three-way split
// on the X-Custom-ssid / X-Custom-pwd headers: neither present means
// "switch to the Ethernet uplink"; SSID alone reconnects reusing the
// saved password only when the SSID matches what was saved; both present
// is a full user-initiated station connect.
func (s *Server) handleConnectPost(req *request) httpResponse {
	ssid, hasSSID := req.Headers["X-Custom-ssid"]
	pwd, hasPwd := req.Headers["X-Custom-pwd"]

	switch {
	case !hasSSID && !hasPwd:
		s.csm.ConnectEth()
		return jsonOK()
	case hasSSID && !hasPwd:
		if ssid == "" || len(ssid) > wmdef.MaxSSIDLen {
			return simple(400, "bad ssid")
		}
		s.csm.ConnectStaSSIDOnly(ssid)
		return jsonOK()
	case hasSSID && hasPwd:
		creds := wmtypes.StaCreds{SSID: ssid, Password: pwd}
		if ssid == "" || creds.Validate() != nil {
			return simple(400, "bad credentials")
		}
		s.csm.ConnectStaWithCreds(creds)
		return jsonOK()
	default:
		return simple(400, "ssid required")
	}
}

// handleConnectDelete drops whichever uplink is active: Ethernet if it is
// up, the station connection otherwise.
func (s *Server) handleConnectDelete() httpResponse {
	if s.csm.EthConnected() {
		s.csm.DisconnectEth()
	} else {
		s.csm.DisconnectSta()
	}
	return jsonOK()
}

func (s *Server) serveAsset(name string) httpResponse {
	clean := path.Clean("/" + name)[1:]
	data, err := fs.ReadFile(s.assets, path.Join(s.assetsRoot, clean))
	if err != nil {
		s.slog.Debugw("asset not found",
			"err", zaperr.New(zaperr.KindResourceNotFound, "no such asset", "name", clean))
		return simple(404, "not found")
	}
	resp := httpResponse{Status: 200, ContentType: contentTypeFor(clean), Body: data}
	// HTML and JSON are always revalidated; styles and scripts are
	// immutable for a given firmware image and may be cached hard.
	switch path.Ext(clean) {
	case ".html", ".json", "":
		resp.NoCache = true
	default:
		resp.CacheStatic = true
	}
	return resp
}

func contentTypeFor(name string) string {
	switch path.Ext(name) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json"
	case ".ico":
		return "image/x-icon"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

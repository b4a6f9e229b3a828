package chs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ruuvigw/wifimgr/internal/credstore"
	"github.com/ruuvigw/wifimgr/internal/csm"
	"github.com/ruuvigw/wifimgr/internal/las"
	"github.com/ruuvigw/wifimgr/internal/radio"
	"github.com/ruuvigw/wifimgr/internal/state"
	"github.com/ruuvigw/wifimgr/internal/webassets"
	"github.com/ruuvigw/wifimgr/internal/wmdef"
	"github.com/ruuvigw/wifimgr/internal/wmtypes"
)

func newTestServer(t *testing.T, mode las.Mode) (*Server, *csm.CSM, *radio.Simulator) {
	t.Helper()
	cfg := wmdef.DefaultConfig()
	store, err := credstore.Open(filepath.Join(t.TempDir(), "creds.db"), "ns")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sim := radio.NewSimulator()
	staIP := &state.StaIP{}
	ni := &state.NetInfo{}
	aps := &state.APList{}
	c := csm.New(cfg, sim, store, staIP, ni, aps,
		nil, zap.NewNop().Sugar(), wmtypes.WifiSettings{APSSID: cfg.APSSID})

	l := las.New(las.Config{Mode: mode, APSSID: cfg.APSSID, Pass: "secret"})
	assets, root := webassets.FS()
	return New(cfg, c, l, staIP, ni, aps, assets, root, zap.NewNop().Sugar()), c, sim
}

// runCSM starts the state machine's dispatch loop for tests that need it
// live (captive redirect checks IsWorking; /ap.json runs a scan).
func runCSM(t *testing.T, c *csm.CSM) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		c.StopAndDestroy()
		cancel()
	})
	require.Eventually(t, c.IsWorking, time.Second, 5*time.Millisecond)
}

func TestRouteServesIndexAllowMode(t *testing.T) {
	s, _, _ := newTestServer(t, las.ModeAllow)
	resp := s.route(&request{Method: "GET", Path: "/"}, "10.10.0.50", true)
	assert.Equal(t, 200, resp.Status)
	assert.Contains(t, string(resp.Body), "<html")
	assert.True(t, resp.NoCache)
}

func TestRouteServesStaticAssetCacheable(t *testing.T) {
	s, _, _ := newTestServer(t, las.ModeAllow)
	resp := s.route(&request{Method: "GET", Path: "/style.css"}, "10.10.0.50", true)
	assert.Equal(t, 200, resp.Status)
	assert.True(t, resp.CacheStatic)
	assert.False(t, resp.NoCache)
}

func TestRouteStatusJSON(t *testing.T) {
	s, _, _ := newTestServer(t, las.ModeAllow)
	resp := s.route(&request{Method: "GET", Path: "/status.json"}, "10.10.0.50", true)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType)
}

func TestRouteDenyModeBlocksEverything(t *testing.T) {
	s, _, _ := newTestServer(t, las.ModeDeny)
	resp := s.route(&request{Method: "GET", Path: "/status.json"}, "10.10.0.50", true)
	assert.Equal(t, 403, resp.Status)
}

func TestRouteRuuviModeRedirectsToLogin(t *testing.T) {
	s, _, _ := newTestServer(t, las.ModeRuuvi)
	resp := s.route(&request{Method: "GET", Path: "/status.json"}, "10.10.0.50", true)
	assert.Equal(t, 302, resp.Status)
}

func TestRouteUnknownPathIs404(t *testing.T) {
	s, _, _ := newTestServer(t, las.ModeAllow)
	resp := s.route(&request{Method: "GET", Path: "/nope"}, "10.10.0.50", true)
	assert.Equal(t, 404, resp.Status)
}

func TestConnectPostWithBothHeadersConnectsSta(t *testing.T) {
	s, _, _ := newTestServer(t, las.ModeAllow)
	req := &request{
		Method: "POST", Path: "/connect.json",
		Headers: map[string]string{"X-Custom-ssid": "HomeNet", "X-Custom-pwd": "secret123"},
	}
	resp := s.route(req, "10.10.0.50", true)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "{}", string(resp.Body))
}

func TestConnectPostWithoutHeadersConnectsEth(t *testing.T) {
	s, _, _ := newTestServer(t, las.ModeAllow)
	req := &request{Method: "POST", Path: "/connect.json", Headers: map[string]string{}}
	resp := s.route(req, "10.10.0.50", true)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "{}", string(resp.Body))
}

func TestConnectPostBoundaryLengths(t *testing.T) {
	s, _, _ := newTestServer(t, las.ModeAllow)

	ssid32 := string(make([]byte, 0))
	for len(ssid32) < 32 {
		ssid32 += "s"
	}
	pwd64 := ""
	for len(pwd64) < 64 {
		pwd64 += "p"
	}

	ok := s.route(&request{
		Method: "POST", Path: "/connect.json",
		Headers: map[string]string{"X-Custom-ssid": ssid32, "X-Custom-pwd": pwd64},
	}, "10.10.0.50", true)
	assert.Equal(t, 200, ok.Status)

	tooLongSSID := s.route(&request{
		Method: "POST", Path: "/connect.json",
		Headers: map[string]string{"X-Custom-ssid": ssid32 + "s", "X-Custom-pwd": "x"},
	}, "10.10.0.50", true)
	assert.Equal(t, 400, tooLongSSID.Status)

	tooLongPwd := s.route(&request{
		Method: "POST", Path: "/connect.json",
		Headers: map[string]string{"X-Custom-ssid": "net", "X-Custom-pwd": pwd64 + "p"},
	}, "10.10.0.50", true)
	assert.Equal(t, 400, tooLongPwd.Status)
}

func TestConnectDeleteDisconnects(t *testing.T) {
	s, _, _ := newTestServer(t, las.ModeAllow)
	resp := s.route(&request{Method: "DELETE", Path: "/connect.json"}, "10.10.0.50", true)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "{}", string(resp.Body))
}

func TestCaptiveRedirectForForeignHost(t *testing.T) {
	s, c, _ := newTestServer(t, las.ModeAllow)
	runCSM(t, c)

	req := &request{
		Method:  "GET",
		Path:    "/connecttest.txt",
		Headers: map[string]string{"Host": "www.msftconnecttest.com"},
	}
	resp := s.route(req, "10.10.0.50", false)
	require.Equal(t, 302, resp.Status)

	loc := ""
	for _, h := range resp.Headers {
		if h.Name == "Location" {
			loc = h.Value
		}
	}
	assert.Equal(t, "http://10.10.0.1/", loc)
}

func TestNoCaptiveRedirectForAPHost(t *testing.T) {
	s, c, _ := newTestServer(t, las.ModeAllow)
	runCSM(t, c)

	req := &request{
		Method:  "GET",
		Path:    "/index.html",
		Headers: map[string]string{"Host": "10.10.0.1"},
	}
	resp := s.route(req, "10.10.0.50", false)
	assert.Equal(t, 200, resp.Status)
}

func TestApJSONRunsScan(t *testing.T) {
	s, c, sim := newTestServer(t, las.ModeAllow)
	sim.CannedScan = []radio.ScanResult{
		{SSID: "net-a", Channel: 1, RSSI: -40, AuthMode: 3},
	}
	runCSM(t, c)

	req := &request{
		Method:  "GET",
		Path:    "/ap.json",
		Headers: map[string]string{"Host": "10.10.0.1"},
	}
	resp := s.route(req, "10.10.0.50", false)
	require.Equal(t, 200, resp.Status)
	assert.Contains(t, string(resp.Body), "net-a")
}

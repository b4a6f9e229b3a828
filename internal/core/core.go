package core

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/ruuvigw/wifimgr/internal/chs"
	"github.com/ruuvigw/wifimgr/internal/credstore"
	"github.com/ruuvigw/wifimgr/internal/csm"
	"github.com/ruuvigw/wifimgr/internal/dnshijack"
	"github.com/ruuvigw/wifimgr/internal/las"
	"github.com/ruuvigw/wifimgr/internal/passwordgen"
	"github.com/ruuvigw/wifimgr/internal/radio"
	"github.com/ruuvigw/wifimgr/internal/state"
	"github.com/ruuvigw/wifimgr/internal/webassets"
	"github.com/ruuvigw/wifimgr/internal/wmdef"
	"github.com/ruuvigw/wifimgr/internal/wmtypes"
)

// Core is the single process-wide value holding every component this
// appliance needs: one CredStore, three state holders, LAS, CSM, the DNS
// hijacker, and CHS — wired up once at boot and torn down once at
// shutdown.
type Core struct {
	cfg *wmdef.Config

	creds *credstore.Store
	staIP *state.StaIP
	net   *state.NetInfo
	aps   *state.APList

	las *las.LAS
	csm *csm.CSM
	dns *dnshijack.Responder
	chs *chs.Server

	readiness readinessTracker
	slog      *zap.SugaredLogger
}

// New wires up a Core from cfg. driver is the radio-driver collaborator;
// pass radio.NewSimulator() when no real hardware backend is wired in yet.
func New(cfg *wmdef.Config, driver radio.Driver, slog *zap.SugaredLogger) (*Core, error) {
	c := &Core{cfg: cfg, slog: slog}
	c.readiness.set(Starting)

	creds, err := credstore.Open(cfg.CredStorePath, cfg.CredStoreNS)
	if err != nil {
		c.readiness.set(Broken)
		return nil, err
	}
	c.creds = creds

	triple, err := creds.Load()
	if err != nil {
		c.readiness.set(Broken)
		return nil, err
	}

	settings := triple.Settings
	if settings.APSSID == "" {
		pass := cfg.APPassword
		if pass == "" {
			if generated, genErr := passwordgen.DefaultAPPassword(); genErr == nil {
				pass = generated
			} else {
				slog.Warnw("failed to generate default AP password, leaving AP open", "err", genErr)
			}
		}
		apSSID := cfg.APSSID
		if mac, macErr := driver.MAC(); macErr == nil {
			apSSID = wmtypes.GenerateAPSSID(cfg.APSSID, mac)
		}
		settings = wmtypes.WifiSettings{
			APSSID:     apSSID,
			APPassword: pass,
			APChannel:  cfg.APChannel,
			APHidden:   cfg.APHidden,
		}
		if err := settings.Validate(); err != nil {
			c.readiness.set(Broken)
			return nil, err
		}
	}

	c.readiness.set(Initing)

	c.staIP = &state.StaIP{}
	c.net = &state.NetInfo{}
	c.aps = &state.APList{}

	c.las = las.New(las.Config{
		Mode:   las.Mode(cfg.LanAuthType),
		User:   cfg.LanAuthUser,
		Pass:   cfg.LanAuthPass,
		APSSID: settings.APSSID,
	})

	gwIP := net.ParseIP(cfg.APIP)
	c.dns = dnshijack.New(cfg, gwIP, slog.Named("dns"))

	c.csm = csm.New(cfg, driver, c.creds, c.staIP, c.net, c.aps, c.dns, slog.Named("csm"), settings)

	assetsFS, root := webassets.FS()
	c.chs = chs.New(cfg, c.csm, c.las, c.staIP, c.net, c.aps, assetsFS, root, slog.Named("chs"))
	c.chs.SetReadinessFunc(func() string { return c.Readiness().String() })

	if !triple.Creds.Configured() {
		if err := driver.SetAPConfig(radio.APConfig{
			SSID: settings.APSSID, Password: settings.APPassword,
			Channel: settings.APChannel, Hidden: settings.APHidden,
		}); err != nil {
			slog.Warnw("initial AP config failed", "err", err)
		}
	}

	return c, nil
}

// Run starts CSM's dispatch loop and CHS's accept loop, and blocks until
// ctx is canceled or CHS's listener fails. It brings the appliance up in
// AP mode immediately; a restored StaCreds triple triggers an automatic
// reconnect attempt once CSM is running.
func (c *Core) Run(ctx context.Context) error {
	go c.csm.Run(ctx)
	c.csm.StartAp()

	triple, err := c.creds.Load()
	if err == nil && triple.Creds.Configured() {
		c.csm.RestoreStaConnection(triple.Creds)
	}

	c.readiness.set(Online)
	err = c.chs.ListenAndServe(ctx)

	c.readiness.set(Stopping)
	c.csm.StopAndDestroy()
	_ = c.creds.Close()
	c.readiness.set(Offline)
	return err
}

// Readiness reports the appliance's current lifecycle state, for a
// /healthz handler or a supervisor probe.
func (c *Core) Readiness() Readiness {
	return c.readiness.get()
}

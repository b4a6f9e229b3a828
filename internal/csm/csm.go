// Package csm implements the Connectivity State Machine: the single-writer
// controller that translates radio-driver events and host commands into
// Wi-Fi/AP mode changes and NetInfo/StaIP updates (§4.1). It runs as one
// dedicated goroutine blocking on a bounded channel, the Go equivalent of
// the embedded task blocking on queue.recv(∞).
package csm

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ruuvigw/wifimgr/internal/credstore"
	"github.com/ruuvigw/wifimgr/internal/radio"
	"github.com/ruuvigw/wifimgr/internal/state"
	"github.com/ruuvigw/wifimgr/internal/wmdef"
	"github.com/ruuvigw/wifimgr/internal/wmlog"
	"github.com/ruuvigw/wifimgr/internal/wmtypes"
	"github.com/ruuvigw/wifimgr/internal/zaperr"
)

// queueDepth is the bounded FIFO depth required to be >=3 by §4.1.
const queueDepth = 16

// DNSHijacker starts/stops the captive DNS responder; satisfied by
// internal/dnshijack.Responder. Kept as a narrow interface here so CSM's
// tests don't need a real UDP listener.
type DNSHijacker interface {
	Start() error
	Stop() error
}

// CSM is the connectivity state machine. Construct with New, then run it
// on its own goroutine via Run.
type CSM struct {
	cfg    *wmdef.Config
	driver radio.Driver
	creds  *credstore.Store
	staIP  *state.StaIP
	net    *state.NetInfo
	aps    *state.APList
	dns    DNSHijacker
	slog   *zap.SugaredLogger

	// reconnLog throttles the warnings a flapping upstream produces in a
	// storm: repeated connect failures and lost-connection reconnects.
	reconnLog *wmlog.ThrottledLogger

	queue chan Msg

	bits bits

	settings wmtypes.WifiSettings
	ethUp    atomic.Bool

	credsMu      sync.Mutex
	pendingCreds wmtypes.StaCreds

	scanMu      sync.Mutex
	scan        wmtypes.ScanProgress
	scanGen     uint64
	scanWorking []wmtypes.AccessPoint
	scanTimer   *time.Timer
	scanNotify  chan struct{}

	backoff backoff.BackOff

	stopOnce sync.Once
	stopped  chan struct{}
}

// New constructs a CSM. settings is the initial WifiSettings overlay
// (defaults overlaid by CredStore.load, per the WifiSettings lifecycle).
func New(cfg *wmdef.Config, driver radio.Driver, creds *credstore.Store,
	staIP *state.StaIP, net *state.NetInfo, aps *state.APList,
	dns DNSHijacker, slog *zap.SugaredLogger, settings wmtypes.WifiSettings) *CSM {

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 2 * time.Minute
	bo.MaxElapsedTime = 0 // retry forever; CSM owns the loop, not backoff's

	return &CSM{
		cfg:        cfg,
		driver:     driver,
		creds:      creds,
		staIP:      staIP,
		net:        net,
		aps:        aps,
		dns:        dns,
		slog:       slog,
		reconnLog:  wmlog.Throttled(slog, 2*time.Second, time.Minute),
		queue:      make(chan Msg, queueDepth),
		settings:   settings,
		backoff:    bo,
		scanNotify: closedChan(),
		stopped:    make(chan struct{}),
	}
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

// post enqueues a message, blocking if the queue is momentarily full
// (§4.1: "Queue push with infinite wait is acceptable because the producer
// set is small and bounded").
func (c *CSM) post(m Msg) {
	c.queue <- m
}

// --- public command API, called from CHS/host code ---

// StartWifiScan requests an async scan.
func (c *CSM) StartWifiScan() { c.post(Msg{Kind: MsgStartWifiScan}) }

// ConnectEth requests the host switch its uplink to Ethernet.
func (c *CSM) ConnectEth() { c.post(Msg{Kind: MsgConnectEth}) }

// DisconnectEth requests the host drop its Ethernet uplink.
func (c *CSM) DisconnectEth() { c.post(Msg{Kind: MsgDisconnectEth}) }

// ConnectStaWithCreds stashes the SSID/password CHS received on
// POST /connect.json, then requests a user-initiated connect. The
// credentials are picked up by handleConnectSta on its own goroutine, so
// there is no race between this call returning and the credentials being
// read.
func (c *CSM) ConnectStaWithCreds(creds wmtypes.StaCreds) {
	c.credsMu.Lock()
	c.pendingCreds = creds
	c.credsMu.Unlock()
	c.ConnectSta(wmtypes.ConnUser)
}

// RestoreStaConnection is ConnectStaWithCreds for credentials loaded from
// CredStore at boot rather than supplied by a client: it tags the request
// ConnRestoreConnection so handleStaGotIP skips re-persisting what was
// just read back.
func (c *CSM) RestoreStaConnection(creds wmtypes.StaCreds) {
	c.credsMu.Lock()
	c.pendingCreds = creds
	c.credsMu.Unlock()
	c.ConnectSta(wmtypes.ConnRestoreConnection)
}

// ConnectStaSSIDOnly handles a connect request carrying only an SSID: if
// it matches the saved SSID the saved password is reused, otherwise the
// password is overwritten with the empty string before reconnecting
// (§4.4's POST /connect.json ssid-without-password case).
func (c *CSM) ConnectStaSSIDOnly(ssid string) {
	creds := wmtypes.StaCreds{SSID: ssid}
	if t, err := c.creds.Load(); err == nil && t.Creds.SSID == ssid {
		creds.Password = t.Creds.Password
	}
	c.ConnectStaWithCreds(creds)
}

// EthConnected reports whether the Ethernet uplink is currently up, for
// CHS's DELETE /connect.json dispatch.
func (c *CSM) EthConnected() bool { return c.ethUp.Load() }

// ConnectSta requests a station connect with the given reason. For a
// User-initiated request, REQUEST_STA_CONNECT is set before the message is
// enqueued, per the ordering guarantee in §5.
func (c *CSM) ConnectSta(reason wmtypes.ConnectionRequest) {
	if reason == wmtypes.ConnUser {
		c.bits.set(bitRequestStaConnect)
	}
	if reason == wmtypes.ConnRestoreConnection {
		c.bits.set(bitRequestRestoreSta)
	}
	c.post(Msg{Kind: MsgConnectSta, ConnReason: reason})
}

// DisconnectSta requests the station disconnect.
func (c *CSM) DisconnectSta() {
	c.bits.set(bitRequestDisconnect)
	c.post(Msg{Kind: MsgDisconnectSta})
}

// StartAp requests the provisioning AP come up.
func (c *CSM) StartAp() { c.post(Msg{Kind: MsgStartAp}) }

// StopAp requests the provisioning AP come down.
func (c *CSM) StopAp() { c.post(Msg{Kind: MsgStopAp}) }

// StopAndDestroy drains CSM to a terminal state and stops its goroutine.
// This is the one command that is not an error (§7).
func (c *CSM) StopAndDestroy() {
	c.post(Msg{Kind: MsgStopAndDestroy})
	<-c.stopped
}

// IsWorking reports whether provisioning is still in progress — the flag
// the captive-portal redirect in CHS checks (§4.3).
func (c *CSM) IsWorking() bool { return c.bits.has(bitIsWorking) }

// Run is the CSM task's main loop: block on the queue, dispatch, repeat,
// until StopAndDestroy. It also fans radio-driver events into the same
// queue, preserving single-writer serialization of all Wi-Fi mutations.
func (c *CSM) Run(ctx context.Context) {
	c.bits.set(bitIsWorking)
	go c.eventPump(ctx)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case m := <-c.queue:
			if c.dispatch(ctx, m) {
				c.shutdown()
				return
			}
		}
	}
}

func (c *CSM) shutdown() {
	c.stopOnce.Do(func() {
		c.scanMu.Lock()
		if c.scanTimer != nil {
			c.scanTimer.Stop()
		}
		c.scanMu.Unlock()
		close(c.stopped)
	})
}

// eventPump translates radio.Driver events into CSM messages, the Go
// equivalent of the ISR-adjacent callback that may only enqueue.
func (c *CSM) eventPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.driver.Events():
			if !ok {
				c.slog.Warnw("radio event stream ended",
					"err", zaperr.New(zaperr.KindQueueFailure, "event channel closed"))
				return
			}
			c.post(translateEvent(ev))
		}
	}
}

func translateEvent(ev radio.Event) Msg {
	switch ev.Kind {
	case radio.EventStaDisconnected:
		return Msg{Kind: MsgStaDisconnected, Reason: ev.Reason}
	case radio.EventScanNext:
		return Msg{Kind: MsgScanNext}
	case radio.EventScanDone:
		return Msg{Kind: MsgScanDone}
	case radio.EventStaGotIP:
		return Msg{Kind: MsgStaGotIP, Addr: ev.Addr}
	case radio.EventApStaConnected:
		return Msg{Kind: MsgApStaConnected}
	case radio.EventApStaDisconnected:
		return Msg{Kind: MsgApStaDisconnected}
	case radio.EventApStaIPAssigned:
		return Msg{Kind: MsgApStaIPAssigned}
	default:
		return Msg{Kind: MsgTaskWatchdogFeed}
	}
}

// dispatch handles one message; it returns true when CSM should terminate.
func (c *CSM) dispatch(ctx context.Context, m Msg) bool {
	switch m.Kind {
	case MsgStartWifiScan:
		c.handleStartWifiScan(m.ack)
	case MsgScanNext:
		c.handleScanAdvance(m.scanGen, false)
	case MsgScanDone:
		c.handleScanAdvance(m.scanGen, true)
	case MsgConnectEth:
		c.handleConnectEth()
	case MsgDisconnectEth:
		c.handleDisconnectEth()
	case MsgConnectSta:
		c.handleConnectSta(m.ConnReason)
	case MsgDisconnectSta:
		c.handleDisconnectSta()
	case MsgStartAp:
		c.handleStartAp()
	case MsgStopAp:
		c.handleStopAp()
	case MsgStaDisconnected:
		c.handleStaDisconnected(m.Reason)
	case MsgStaGotIP:
		c.handleStaGotIP(m.Addr)
	case MsgApStaConnected:
		c.handleApStaConnected()
	case MsgApStaDisconnected:
		c.handleApStaDisconnected()
	case MsgApStaIPAssigned:
		c.bits.set(bitApStaIPAssigned)
	case MsgTaskWatchdogFeed:
		// no-op; presence on the queue is the feed itself
	case MsgStopAndDestroy:
		return true
	}
	return false
}

func (c *CSM) handleConnectEth() {
	c.ethUp.Store(true)
	if c.bits.has(bitWifiConnected) {
		c.handleDisconnectSta()
	}
	info, err := c.driver.NetifInfo()
	if err != nil {
		c.slog.Warnw("failed to read eth netif info",
			"err", zaperr.New(zaperr.KindRadioDriver, "netif info read failed", "cause", err))
		return
	}
	c.publishConnected(info, wmtypes.ReasonOk, nil)
}

func (c *CSM) handleDisconnectEth() {
	c.ethUp.Store(false)
}

func (c *CSM) handleConnectSta(reason wmtypes.ConnectionRequest) {
	if c.bits.has(bitWifiConnected) {
		c.handleDisconnectSta()
		c.post(Msg{Kind: MsgConnectSta, ConnReason: wmtypes.ConnAutoReconnect})
		return
	}

	c.credsMu.Lock()
	creds := c.pendingCreds
	c.credsMu.Unlock()

	if err := c.driver.SetStaConfig(radio.StaConfig{SSID: creds.SSID, Password: creds.Password}); err != nil {
		c.reconnLog.Warnw("SetStaConfig failed",
			"err", zaperr.New(zaperr.KindRadioDriver, "set sta config failed", "ssid", creds.SSID, "cause", err))
	}
	if err := c.driver.Connect(); err != nil {
		c.reconnLog.Warnw("Connect failed",
			"err", zaperr.New(zaperr.KindRadioDriver, "connect failed", "reason", reason, "cause", err))
	}
}

func (c *CSM) handleDisconnectSta() {
	if err := c.driver.Disconnect(); err != nil {
		c.slog.Warnw("Disconnect failed",
			"err", zaperr.New(zaperr.KindRadioDriver, "disconnect failed", "cause", err))
	}
}

func (c *CSM) handleStartAp() {
	if err := c.driver.StartAP(); err != nil {
		c.slog.Warnw("StartAP failed",
			"err", zaperr.New(zaperr.KindRadioDriver, "start ap failed", "cause", err))
		return
	}
	c.bits.set(bitApStarted)
	c.bits.set(bitApActive)
}

func (c *CSM) handleStopAp() {
	if err := c.driver.StopAP(); err != nil {
		c.slog.Warnw("StopAP failed",
			"err", zaperr.New(zaperr.KindRadioDriver, "stop ap failed", "cause", err))
		return
	}
	c.bits.clear(bitApActive)
	c.bits.clear(bitApStarted)
}

func (c *CSM) handleStaDisconnected(reason int) {
	c.bits.clear(bitScanInProgress)
	c.bits.clear(bitWifiConnected)
	wasRequested := c.bits.testAndClear(bitRequestStaConnect)
	wasUserDisconnect := c.bits.testAndClear(bitRequestDisconnect)

	var urc wmtypes.UpdateReason
	switch {
	case wasRequested:
		urc = wmtypes.ReasonFailedAttempt
	case wasUserDisconnect:
		urc = wmtypes.ReasonUserDisconnect
	default:
		urc = wmtypes.ReasonLostConnection
	}

	c.staIP.Reset()
	c.net.Set(wmtypes.NetworkInfo{UpdateReason: urc, Extra: fmt.Sprintf("reason=%d", reason)})

	if urc == wmtypes.ReasonLostConnection {
		delay := c.backoff.NextBackOff()
		c.reconnLog.Warnw("connection lost, scheduling reconnect", "reason", reason, "delay", delay)
		time.AfterFunc(delay, func() {
			c.post(Msg{Kind: MsgConnectSta, ConnReason: wmtypes.ConnAutoReconnect})
		})
	}
}

func (c *CSM) handleStaGotIP(addr net.IP) {
	c.bits.clear(bitRequestStaConnect)
	wasRestore := c.bits.testAndClear(bitRequestRestoreSta)
	c.bits.set(bitWifiConnected)
	c.backoff.Reset()
	c.reconnLog.Clear()

	info, err := c.driver.NetifInfo()
	if err != nil {
		c.slog.Warnw("failed to read netif info after StaGotIp",
			"err", zaperr.New(zaperr.KindRadioDriver, "netif info read failed", "cause", err))
		info = radio.NetifInfo{IP: addr}
	}
	if info.IP == nil {
		info.IP = addr
	}

	c.credsMu.Lock()
	creds := c.pendingCreds
	c.credsMu.Unlock()

	if !wasRestore {
		if err := c.creds.Save(credstore.Triple{Settings: c.settings, Creds: creds}); err != nil {
			c.slog.Warnw("failed to persist credentials", "err", err)
		}
	}

	c.publishConnected(info, wmtypes.ReasonOk, &creds.SSID)
}

// publishConnected writes the connected netif info to StaIP/NetInfo. ssid is
// the SSID of the network just joined — the STA's own SSID for a Wi-Fi
// connect, or nil for an Ethernet uplink (which has no SSID of its own).
func (c *CSM) publishConnected(info radio.NetifInfo, reason wmtypes.UpdateReason, ssid *string) {
	c.staIP.Set(info.IP)

	dhcp := ""
	if info.DHCPServer != nil {
		dhcp = info.DHCPServer.String()
	}
	c.net.Set(wmtypes.NetworkInfo{
		SSID:         ssid,
		IP:           ipString(info.IP),
		Netmask:      ipString(info.Netmask),
		Gateway:      ipString(info.Gateway),
		DHCPServer:   dhcp,
		UpdateReason: reason,
	})
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func (c *CSM) handleApStaConnected() {
	c.bits.clear(bitApStaIPAssigned)
	c.bits.set(bitApStaConnected)
	if !c.bits.has(bitWifiConnected) && c.dns != nil {
		if err := c.dns.Start(); err != nil {
			c.slog.Warnw("failed to start DNS hijack", "err", err)
		}
	}
}

func (c *CSM) handleApStaDisconnected() {
	c.bits.clear(bitApStaConnected)
	c.bits.clear(bitApStaIPAssigned)
	if c.dns != nil {
		if err := c.dns.Stop(); err != nil {
			c.slog.Warnw("failed to stop DNS hijack", "err", err)
		}
	}
}

package csm

import (
	"context"
	"time"

	"github.com/ruuvigw/wifimgr/internal/state"
	"github.com/ruuvigw/wifimgr/internal/wmdef"
	"github.com/ruuvigw/wifimgr/internal/wmtypes"
	"github.com/ruuvigw/wifimgr/internal/zaperr"
)

// handleStartWifiScan implements §4.1's StartWifiScan rule: a no-op if a
// scan is already in progress, otherwise a fresh ScanProgress and the
// first channel's active scan is kicked, with a one-shot timer scheduled
// to force progression via ScanNext.
func (c *CSM) handleStartWifiScan(ack chan chan struct{}) {
	if c.bits.has(bitScanInProgress) {
		if ack != nil {
			c.scanMu.Lock()
			ch := c.scanNotify
			c.scanMu.Unlock()
			ack <- ch
		}
		return
	}
	c.bits.set(bitScanInProgress)

	c.scanMu.Lock()
	c.scanGen++
	gen := c.scanGen
	c.scan = wmtypes.ScanProgress{
		FirstChan: wmdef.DefaultFirstChannel,
		LastChan:  wmdef.DefaultFirstChannel + wmdef.DefaultChannelCount - 1,
	}
	c.scan.CurChan = c.scan.FirstChan
	c.scanWorking = c.scanWorking[:0]
	c.scanNotify = make(chan struct{})
	ch := c.scanNotify
	if c.scanTimer != nil {
		c.scanTimer.Stop()
	}
	cur := c.scan.CurChan
	c.scanTimer = time.AfterFunc(wmdef.ScanDelayBetweenMs*time.Millisecond, func() {
		c.post(Msg{Kind: MsgScanNext, scanGen: gen})
	})
	c.scanMu.Unlock()

	if ack != nil {
		ack <- ch
	}

	if err := c.driver.StartScan(cur, wmdef.ScanChannelDwellMs); err != nil {
		c.slog.Warnw("StartScan failed",
			"err", zaperr.New(zaperr.KindRadioDriver, "start scan failed", "channel", cur, "cause", err))
	}
}

// handleScanAdvance implements both ScanDone (fromDriver=true: read and
// fold in this channel's results) and ScanNext (the timer fallback that
// forces progression even if ScanDone was missed). A stale generation
// (a timer left over from a scan that already finished, or was superseded
// by a new StartWifiScan) is a harmless no-op.
func (c *CSM) handleScanAdvance(gen uint64, fromDriver bool) {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	if gen != 0 && gen != c.scanGen {
		return
	}
	if !c.bits.has(bitScanInProgress) {
		return
	}

	if fromDriver {
		results, err := c.driver.ScanResults()
		if err != nil {
			c.slog.Warnw("ScanResults failed",
				"err", zaperr.New(zaperr.KindRadioDriver, "scan results read failed", "cause", err))
		} else {
			for _, r := range results {
				c.scanWorking = append(c.scanWorking, wmtypes.AccessPoint{
					SSID: r.SSID, Channel: r.Channel, RSSI: r.RSSI, AuthMode: r.AuthMode,
				})
			}
			if len(c.scanWorking) > 2*wmdef.MaxAPNum {
				c.scanWorking = state.DedupAndSort(c.scanWorking, 2*wmdef.MaxAPNum)
			} else {
				c.scanWorking = state.DedupAndSort(c.scanWorking, len(c.scanWorking))
			}
		}
	}

	c.scan.CurChan++
	c.scan.NumAccessPoints = len(c.scanWorking)

	if c.scan.Done() {
		final := state.DedupAndSort(c.scanWorking, wmdef.MaxAPNum)
		c.aps.Set(final)
		c.bits.clear(bitScanInProgress)
		if c.scanTimer != nil {
			c.scanTimer.Stop()
		}
		close(c.scanNotify)
		return
	}

	gen2 := gen
	if gen2 == 0 {
		gen2 = c.scanGen
	}
	cur := c.scan.CurChan
	if c.scanTimer != nil {
		c.scanTimer.Stop()
	}
	c.scanTimer = time.AfterFunc(wmdef.ScanDelayBetweenMs*time.Millisecond, func() {
		c.post(Msg{Kind: MsgScanNext, scanGen: gen2})
	})

	if err := c.driver.StartScan(cur, wmdef.ScanChannelDwellMs); err != nil {
		c.slog.Warnw("StartScan failed",
			"err", zaperr.New(zaperr.KindRadioDriver, "start scan failed", "channel", cur, "cause", err))
	}
}

// ScanSync is CSM's contract exposed to CHS (§4.1): post StartWifiScan,
// then block until the scan completes, periodically invoking feedWatchdog
// (every ~1/3 of the watchdog timeout, mirroring the embedded binary
// semaphore's recurring wake), finally returning the owned, rendered AP
// list JSON.
func (c *CSM) ScanSync(ctx context.Context, watchdogTimeout time.Duration, feedWatchdog func()) ([]byte, error) {
	ack := make(chan chan struct{}, 1)
	c.post(Msg{Kind: MsgStartWifiScan, ack: ack})

	var ch chan struct{}
	select {
	case ch = <-ack:
	case <-ctx.Done():
		return nil, zaperr.New(zaperr.KindQueueFailure, "scan request not acknowledged", "cause", ctx.Err())
	}

	interval := watchdogTimeout / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ch:
			return c.aps.RenderJSON()
		case <-ticker.C:
			if feedWatchdog != nil {
				feedWatchdog()
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

package radio

import (
	"fmt"
	"net"
	"sync"
)

// Simulator is a deterministic in-memory Driver used by CSM's tests. It
// never touches real hardware; StartScan/Connect/etc. succeed immediately
// and callers drive its behavior by pushing events via Inject or by
// configuring CannedScan/ConnectErr before exercising CSM.
type Simulator struct {
	mu sync.Mutex

	apUp, staUp bool
	apCfg       APConfig
	staCfg      StaConfig

	events chan Event

	// CannedScan is returned verbatim from ScanResults.
	CannedScan []ScanResult
	// ConnectErr, if set, is returned by Connect instead of succeeding.
	ConnectErr error
	// Netif is returned verbatim from NetifInfo.
	Netif NetifInfo
	// HWAddr is returned verbatim from MAC; defaults to a fixed
	// locally-administered address so tests are deterministic.
	HWAddr net.HardwareAddr
}

// NewSimulator returns a ready-to-use Simulator with a buffered event
// channel deep enough for a test's worth of events.
func NewSimulator() *Simulator {
	return &Simulator{events: make(chan Event, 64)}
}

// SetMode records the requested AP/STA mode combination.
func (s *Simulator) SetMode(apEnabled, staEnabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apUp, s.staUp = apEnabled, staEnabled
	return nil
}

// SetAPConfig records the pending AP configuration.
func (s *Simulator) SetAPConfig(cfg APConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apCfg = cfg
	return nil
}

// SetStaConfig records the pending STA configuration.
func (s *Simulator) SetStaConfig(cfg StaConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staCfg = cfg
	return nil
}

// Connect either fails with ConnectErr or succeeds silently; tests drive
// the resulting StaGotIp/StaDisconnected event explicitly via Inject.
func (s *Simulator) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ConnectErr
}

// Disconnect always succeeds.
func (s *Simulator) Disconnect() error { return nil }

// StartAP marks the AP as active.
func (s *Simulator) StartAP() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apUp = true
	return nil
}

// StopAP marks the AP as inactive.
func (s *Simulator) StopAP() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apUp = false
	return nil
}

// StartScan validates the channel and queues an EventScanDone immediately,
// the way a fast simulated radio would.
func (s *Simulator) StartScan(channel int, dwellMs int) error {
	if channel <= 0 {
		return fmt.Errorf("invalid channel %d", channel)
	}
	s.Inject(Event{Kind: EventScanDone})
	return nil
}

// StopScan is a no-op.
func (s *Simulator) StopScan() error { return nil }

// ScanResults returns CannedScan.
func (s *Simulator) ScanResults() ([]ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CannedScan, nil
}

// NetifInfo returns the configured Netif, defaulting to an empty record.
func (s *Simulator) NetifInfo() (NetifInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Netif, nil
}

// MAC returns the configured hardware address.
func (s *Simulator) MAC() (net.HardwareAddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HWAddr == nil {
		return net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0xEE, 0xFF}, nil
	}
	return s.HWAddr, nil
}

// Events exposes the event channel CSM consumes from.
func (s *Simulator) Events() <-chan Event {
	return s.events
}

// Inject pushes an event as if the radio driver had reported it.
func (s *Simulator) Inject(e Event) {
	s.events <- e
}

// InjectGotIP is a convenience for the common StaGotIp case.
func (s *Simulator) InjectGotIP(ip net.IP) {
	s.Inject(Event{Kind: EventStaGotIP, Addr: ip})
}

// InjectDisconnected is a convenience for the common StaDisconnected case.
func (s *Simulator) InjectDisconnected(reason int) {
	s.Inject(Event{Kind: EventStaDisconnected, Reason: reason})
}

// Package radio defines the narrow interface CSM uses to drive the Wi-Fi
// radio — the "radio driver" external collaborator from §1, out of scope
// for this module's core. It is modeled the way ap_common/platform.Platform
// abstracts hardware specifics behind a handful of methods: production code
// depends only on Driver, never on a concrete radio stack.
package radio

import "net"

// Event is something the radio driver reports asynchronously, posted into
// CSM's command queue the way an ISR-adjacent callback would.
type Event struct {
	Kind EventKind
	// Reason carries the disconnect reason code for StaDisconnected.
	Reason int
	// Addr carries the assigned address for StaGotIp.
	Addr net.IP
}

// EventKind enumerates the radio-driver events CSM accepts (§4.1).
type EventKind int

// Recognized event kinds.
const (
	EventStaDisconnected EventKind = iota
	EventScanNext
	EventScanDone
	EventStaGotIP
	EventApStaConnected
	EventApStaDisconnected
	EventApStaIPAssigned
)

// ScanResult is one access point seen during an active scan.
type ScanResult struct {
	SSID     string
	Channel  int
	RSSI     int
	AuthMode int
}

// StaConfig is what CSM pushes to the driver before calling Connect.
type StaConfig struct {
	SSID     string
	Password string
}

// APConfig is what CSM pushes to the driver before calling StartAP.
type APConfig struct {
	SSID     string
	Password string
	Channel  int
	Hidden   bool
}

// NetifInfo is the STA interface's current addressing, read back after
// StaGotIp so CSM can publish it to NetInfo/StaIP.
type NetifInfo struct {
	IP         net.IP
	Netmask    net.IP
	Gateway    net.IP
	DHCPServer net.IP
}

// Driver is the external radio-driver collaborator. Implementations must be
// safe to call from a single goroutine (CSM never calls it concurrently).
type Driver interface {
	// SetMode switches between AP, STA, and AP+STA concurrent modes.
	SetMode(apEnabled, staEnabled bool) error
	SetAPConfig(cfg APConfig) error
	SetStaConfig(cfg StaConfig) error

	Connect() error
	Disconnect() error

	StartAP() error
	StopAP() error

	// StartScan kicks an active scan of a single channel with the given
	// dwell upper bound in milliseconds; completion is reported later as
	// an EventScanDone on Events().
	StartScan(channel int, dwellMs int) error
	StopScan() error
	ScanResults() ([]ScanResult, error)

	NetifInfo() (NetifInfo, error)

	// MAC returns the radio's hardware address, used to derive the
	// provisioning AP's per-device SSID suffix.
	MAC() (net.HardwareAddr, error)

	// Events delivers asynchronous radio-driver events to CSM.
	Events() <-chan Event
}

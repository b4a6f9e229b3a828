package csm

import (
	"net"

	"github.com/ruuvigw/wifimgr/internal/wmtypes"
)

// msgKind enumerates every command and event CSM's queue accepts (§4.1).
type msgKind int

// Recognized message kinds. Commands come first, then radio-driver events.
const (
	MsgStartWifiScan msgKind = iota
	MsgConnectEth
	MsgConnectSta
	MsgDisconnectEth
	MsgDisconnectSta
	MsgStartAp
	MsgStopAp
	MsgStopAndDestroy
	MsgTaskWatchdogFeed

	MsgStaDisconnected
	MsgScanNext
	MsgScanDone
	MsgStaGotIP
	MsgApStaConnected
	MsgApStaDisconnected
	MsgApStaIPAssigned
)

// Msg is the single message type flowing through CSM's bounded queue; only
// the fields relevant to Kind are populated.
type Msg struct {
	Kind       msgKind
	ConnReason wmtypes.ConnectionRequest
	Reason     int
	Addr       net.IP
	// scanGen tags ScanNext/ScanDone messages with the scan generation
	// they belong to, so a stale timer firing after a scan has already
	// finished (or a fresh one started) is a harmless no-op.
	scanGen uint64
	// ack, when non-nil on a StartWifiScan message, receives the scan's
	// completion channel once CSM has (re)armed it — letting ScanSync
	// observe the *current* scan's notify channel instead of racing a
	// stale one left over from a prior scan.
	ack chan chan struct{}
}

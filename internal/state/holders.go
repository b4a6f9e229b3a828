// Package state implements the thread-safe publish-via-lock holders CSM
// writes to and CHS reads from: StaIP, NetInfo, and the AP scan list. All
// rendering happens inside the critical section; no pointer into a locked
// buffer is ever allowed to escape (Design Notes §9).
package state

import (
	"encoding/json"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/ruuvigw/wifimgr/internal/wmtypes"
)

// LockTimeout is how long a reader will wait for a holder's mutex before
// giving up; HTTP handlers translate the resulting error into a 503.
const LockTimeout = 50 * time.Millisecond

// ErrLockTimeout is returned by the locked accessors when the mutex could
// not be acquired within LockTimeout.
type ErrLockTimeout struct{ Holder string }

func (e ErrLockTimeout) Error() string { return e.Holder + ": lock timeout" }

// tryLock attempts to acquire mu within LockTimeout by blocking on it from
// a helper goroutine and waiting at most LockTimeout for that goroutine to
// get it; it reports whether the lock was acquired.
func tryLock(mu *sync.Mutex) bool {
	done := make(chan struct{})
	acquired := make(chan bool, 1)
	go func() {
		mu.Lock()
		select {
		case <-done:
			mu.Unlock()
		default:
			acquired <- true
		}
	}()
	select {
	case <-acquired:
		return true
	case <-time.After(LockTimeout):
		close(done)
		return false
	}
}

// StaIP is a thread-safe holder of the current station IP address. An
// absent address is represented as nil, fixing the Option<Ip> ambiguity
// called out in Design Notes §9: the captive-portal substring check only
// ever runs against a real address.
type StaIP struct {
	mu sync.Mutex
	ip net.IP
}

// Set records the station's current IP address (nil clears it).
func (s *StaIP) Set(ip net.IP) {
	s.mu.Lock()
	s.ip = ip
	s.mu.Unlock()
}

// Reset clears the station IP, e.g. on disconnect.
func (s *StaIP) Reset() {
	s.Set(nil)
}

// Get returns a copy of the current station IP, or nil if unset.
func (s *StaIP) Get() net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ip == nil {
		return nil
	}
	cp := make(net.IP, len(s.ip))
	copy(cp, s.ip)
	return cp
}

// NetInfo is a thread-safe holder of the current NetworkInfo record,
// rendered to JSON entirely inside the critical section.
type NetInfo struct {
	mu   sync.Mutex
	info wmtypes.NetworkInfo
	lan  bool
}

// Set publishes a new NetworkInfo snapshot.
func (n *NetInfo) Set(info wmtypes.NetworkInfo) {
	n.mu.Lock()
	n.info = info
	n.mu.Unlock()
}

// Reset clears the published info back to its zero value.
func (n *NetInfo) Reset() {
	n.Set(wmtypes.NetworkInfo{})
}

// Get returns a copy of the current NetworkInfo.
func (n *NetInfo) Get() wmtypes.NetworkInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.info
}

// statusJSON mirrors the /status.json field set from §4.4.
type statusJSON struct {
	SSID    *string `json:"ssid"`
	IP      string  `json:"ip"`
	Netmask string  `json:"netmask"`
	GW      string  `json:"gw"`
	DHCP    string  `json:"dhcp"`
	URC     int     `json:"urc"`
	Extra   string  `json:"extra,omitempty"`
	LAN     int     `json:"lan"`
}

// RenderStatusJSON renders the current status JSON inside the lock,
// returning ErrLockTimeout if the mutex is contended beyond LockTimeout.
// lan is true when the request arrived on the STA-facing interface.
func (n *NetInfo) RenderStatusJSON(lan bool) ([]byte, error) {
	if !tryLock(&n.mu) {
		return nil, ErrLockTimeout{Holder: "NetInfo"}
	}
	defer n.mu.Unlock()

	info := n.info
	lanFlag := 0
	if lan {
		lanFlag = 1
	}
	doc := statusJSON{
		SSID:    info.SSID,
		IP:      orZero(info.IP),
		Netmask: orZero(info.Netmask),
		GW:      orZero(info.Gateway),
		DHCP:    info.DHCPServer,
		URC:     int(info.UpdateReason) - 1, // Ok=0, FailedAttempt=1, ... Undefined=-1
		Extra:   info.Extra,
		LAN:     lanFlag,
	}
	return json.Marshal(doc)
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// APList is the holder for the last scan result rendered as JSON.
type APList struct {
	mu  sync.Mutex
	aps []wmtypes.AccessPoint
}

type apJSON struct {
	SSID    string `json:"ssid"`
	Channel int    `json:"chan"`
	RSSI    int    `json:"rssi"`
	Auth    int    `json:"auth"`
}

// Set replaces the current AP list with an already-deduplicated, sorted,
// truncated slice (the caller, CSM, is responsible for calling DedupAndSort).
func (a *APList) Set(aps []wmtypes.AccessPoint) {
	a.mu.Lock()
	a.aps = aps
	a.mu.Unlock()
}

// RenderJSON renders the current AP list as JSON inside the lock.
func (a *APList) RenderJSON() ([]byte, error) {
	if !tryLock(&a.mu) {
		return nil, ErrLockTimeout{Holder: "APList"}
	}
	defer a.mu.Unlock()

	docs := make([]apJSON, 0, len(a.aps))
	for _, ap := range a.aps {
		docs = append(docs, apJSON{SSID: ap.SSID, Channel: ap.Channel, RSSI: ap.RSSI, Auth: ap.AuthMode})
	}
	return json.Marshal(docs)
}

// DedupAndSort implements the §4.4 algorithm: for identical (ssid, authmode)
// pairs keep the strongest RSSI, compact, stable-sort by RSSI descending,
// and truncate to maxAPs.
func DedupAndSort(in []wmtypes.AccessPoint, maxAPs int) []wmtypes.AccessPoint {
	work := make([]wmtypes.AccessPoint, len(in))
	copy(work, in)

	for i := 0; i < len(work); i++ {
		if work[i].SSID == "" {
			continue
		}
		for j := i + 1; j < len(work); j++ {
			if work[j].SSID == "" {
				continue
			}
			if work[j].SSID == work[i].SSID && work[j].AuthMode == work[i].AuthMode {
				if work[j].RSSI > work[i].RSSI {
					work[i].RSSI = work[j].RSSI
				}
				work[j].SSID = ""
			}
		}
	}

	compact := make([]wmtypes.AccessPoint, 0, len(work))
	for _, ap := range work {
		if ap.SSID != "" {
			compact = append(compact, ap)
		}
	}

	sort.SliceStable(compact, func(i, j int) bool {
		return compact[i].RSSI > compact[j].RSSI
	})

	if len(compact) > maxAPs {
		compact = compact[:maxAPs]
	}
	return compact
}

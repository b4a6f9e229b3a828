// Package dnshijack implements the captive-portal DNS responder: every
// query received on the AP-facing interface gets answered with the
// gateway's own address, so any client's "am I online" probe resolves
// straight back to the provisioning portal.
package dnshijack

import (
	"net"
	"strconv"
	"sync"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/ruuvigw/wifimgr/internal/wmdef"
)

// Responder is the DNS hijack component. It satisfies csm.DNSHijacker.
type Responder struct {
	addr string
	ip   net.IP
	slog *zap.SugaredLogger

	mu     sync.Mutex
	server *dns.Server
}

// New constructs a Responder that will answer every query with gwIP,
// listening on UDP port cfg.DNSPort.
func New(cfg *wmdef.Config, gwIP net.IP, slog *zap.SugaredLogger) *Responder {
	return &Responder{
		addr: net.JoinHostPort("", strconv.Itoa(cfg.DNSPort)),
		ip:   gwIP,
		slog: slog,
	}
}

// Start begins serving DNS on a background goroutine and returns once the
// listener is up, or with the listen error if it cannot be opened. It is
// idempotent: calling Start while already running is a no-op.
func (r *Responder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.server != nil {
		return nil
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", r.handle)

	started := make(chan error, 1)
	srv := &dns.Server{Addr: r.addr, Net: "udp", Handler: mux, UDPSize: wmdef.DNSMaxQuerySz,
		NotifyStartedFunc: func() { started <- nil }}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			r.slog.Debugw("dns server stopped", "err", err)
			select {
			case started <- err:
			default:
			}
		}
	}()
	if err := <-started; err != nil {
		return err
	}
	r.server = srv
	return nil
}

// Stop shuts the responder down; safe to call when not running.
func (r *Responder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.server == nil {
		return nil
	}
	err := r.server.Shutdown()
	r.server = nil
	return err
}

// handle answers every A question with r.ip, TTL 0, matching the embedded
// hijacker's "never cache, always point here" behavior. Questions of any
// other type get no answer record, so a reply carries one answer per A
// question rather than one per question. Oversized or otherwise malformed
// queries are dropped rather than answered (§4.6).
func (r *Responder) handle(w dns.ResponseWriter, req *dns.Msg) {
	if req == nil || len(req.Question) == 0 {
		return
	}
	if req.Len() > wmdef.DNSMaxQuerySz {
		return
	}

	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true
	m.RecursionDesired = false
	m.RecursionAvailable = false
	m.Truncated = false

	for _, q := range req.Question {
		if q.Qtype != dns.TypeA {
			continue
		}
		rr := &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: wmdef.DNSTTLSeconds},
			A:   r.ip,
		}
		m.Answer = append(m.Answer, rr)
	}

	if err := w.WriteMsg(m); err != nil {
		r.slog.Debugw("dns write failed", "err", err)
	}
}

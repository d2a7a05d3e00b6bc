// Package resolver implements the asynchronous DNS resolver from spec 4.3:
// forward (A/AAAA), reverse (PTR), and SRV/TXT lookups driven entirely by
// the daemon's own I/O loop rather than blocking calls, with its own
// retry/timeout/search-list handling. Grounded on sar.c/sar.h (conf.sar_timeout,
// conf.sar_retries, conf.sar_search, the request table keyed by query id,
// and the timeout callback that retries or fails a request), but wire-level
// RR construction and parsing is delegated to github.com/miekg/dns instead
// of sar.c's hand-rolled DNS packet (de)serialization.
package resolver

import (
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	log "github.com/GameSurge/srvx-sub002/pkg/minilog"
)

// Config mirrors sar.c's conf struct: nameserver list, per-request timeout,
// retry count, and a domain search list applied to unqualified names.
type Config struct {
	Nameservers []string // "host:port"; falls back to 127.0.0.1:53 if empty
	Timeout     time.Duration
	Retries     int
	Search      []string
}

func DefaultConfig() Config {
	return Config{
		Nameservers: []string{"127.0.0.1:53"},
		Timeout:     3 * time.Second,
		Retries:     3,
	}
}

// Result carries back whatever RR data the caller asked for; only the
// fields relevant to the query type are populated.
type Result struct {
	Addrs    []net.IP
	Hostname string // PTR/CNAME target
	SRV      []*dns.SRV
	TXT      []string
	Err      error
}

type request struct {
	id       uint16
	question dns.Question
	sentAt   time.Time
	retries  int
	names    []string // remaining search-list candidates, for forward lookups
	callback func(Result)
	conn     net.PacketConn
	server   string
}

// Resolver drives queries over a caller-supplied net.PacketConn, matching
// the I/O loop's "one socket, many pending requests" model: nothing here
// spawns a goroutine per lookup. Deliver must be called by the owning
// loop whenever the resolver's UDP socket becomes readable, and Tick once
// per timer sweep to retry/expire stale requests.
type Resolver struct {
	cfg  Config
	conn net.PacketConn

	mu      sync.Mutex
	pending map[uint16]*request
}

// New creates a Resolver bound to conn (typically a UDP socket the I/O
// loop already owns and multiplexes).
func New(cfg Config, conn net.PacketConn) *Resolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultConfig().Retries
	}
	if len(cfg.Nameservers) == 0 {
		cfg.Nameservers = DefaultConfig().Nameservers
	}
	return &Resolver{cfg: cfg, conn: conn, pending: make(map[uint16]*request)}
}

func (r *Resolver) pickServer() string {
	return r.cfg.Nameservers[rand.Intn(len(r.cfg.Nameservers))]
}

func (r *Resolver) newID() uint16 {
	for {
		id := uint16(rand.Intn(1 << 16))
		if _, taken := r.pending[id]; !taken {
			return id
		}
	}
}

// LookupHost resolves name (an A/AAAA lookup), applying the configured
// search list to unqualified (dot-free) names, exactly as sar.c's
// gethostbyname walks conf.sar_search before giving up.
func (r *Resolver) LookupHost(name string, v6 bool, cb func(Result)) error {
	candidates := searchCandidates(name, r.cfg.Search)
	qtype := dns.TypeA
	if v6 {
		qtype = dns.TypeAAAA
	}
	return r.start(candidates[0], qtype, candidates[1:], cb)
}

// LookupAddr issues a PTR query for addr's in-addr.arpa / ip6.arpa name.
func (r *Resolver) LookupAddr(addr net.IP, cb func(Result)) error {
	arpa, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return fmt.Errorf("resolver: ReverseAddr: %w", err)
	}
	return r.start(arpa, dns.TypePTR, nil, cb)
}

// LookupSRV issues an SRV query for _service._proto.name.
func (r *Resolver) LookupSRV(service, proto, name string, cb func(Result)) error {
	qname := fmt.Sprintf("_%s._%s.%s", service, proto, dns.Fqdn(name))
	return r.start(qname, dns.TypeSRV, nil, cb)
}

// LookupTXT issues a TXT query.
func (r *Resolver) LookupTXT(name string, cb func(Result)) error {
	return r.start(dns.Fqdn(name), dns.TypeTXT, nil, cb)
}

func searchCandidates(name string, search []string) []string {
	fq := dns.Fqdn(name)
	if strings.Contains(strings.TrimSuffix(name, "."), ".") || len(search) == 0 {
		return []string{fq}
	}
	out := make([]string, 0, len(search)+1)
	for _, s := range search {
		out = append(out, dns.Fqdn(name+"."+s))
	}
	out = append(out, fq)
	return out
}

func (r *Resolver) start(qname string, qtype uint16, fallbackNames []string, cb func(Result)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := &request{
		id:       r.newID(),
		question: dns.Question{Name: qname, Qtype: qtype, Qclass: dns.ClassINET},
		sentAt:   time.Now(),
		names:    fallbackNames,
		callback: cb,
		server:   r.pickServer(),
	}
	r.pending[req.id] = req
	return r.send(req)
}

func (r *Resolver) send(req *request) error {
	msg := new(dns.Msg)
	msg.Id = req.id
	msg.RecursionDesired = true
	msg.Question = []dns.Question{req.question}

	packed, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("resolver: pack query: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", req.server)
	if err != nil {
		return fmt.Errorf("resolver: resolve nameserver %q: %w", req.server, err)
	}
	if _, err := r.conn.WriteTo(packed, addr); err != nil {
		return fmt.Errorf("resolver: send query: %w", err)
	}
	return nil
}

// Deliver processes one inbound UDP datagram, matching it to a pending
// request by id and invoking its callback. The caller's I/O loop reads
// datagrams off the resolver's socket and feeds them here.
func (r *Resolver) Deliver(data []byte) {
	msg := new(dns.Msg)
	if err := msg.Unpack(data); err != nil {
		log.Debug("resolver: Unpack: %v", err)
		return
	}

	r.mu.Lock()
	req, ok := r.pending[msg.Id]
	if ok {
		delete(r.pending, msg.Id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.finish(req, msg)
}

func (r *Resolver) finish(req *request, msg *dns.Msg) {
	if msg.Rcode == dns.RcodeNameError && len(req.names) > 0 {
		// Search-list fallthrough: try the next candidate name.
		next := req.names[0]
		req.names = req.names[1:]
		req.question.Name = next
		req.id = r.newIDLocked()
		req.sentAt = time.Now()
		req.retries = 0
		r.mu.Lock()
		r.pending[req.id] = req
		r.mu.Unlock()
		if err := r.send(req); err != nil {
			req.callback(Result{Err: err})
		}
		return
	}

	if msg.Rcode != dns.RcodeSuccess {
		req.callback(Result{Err: fmt.Errorf("resolver: rcode %s", dns.RcodeToString[msg.Rcode])})
		return
	}

	var res Result
	for _, rr := range msg.Answer {
		switch v := rr.(type) {
		case *dns.A:
			res.Addrs = append(res.Addrs, v.A)
		case *dns.AAAA:
			res.Addrs = append(res.Addrs, v.AAAA)
		case *dns.PTR:
			res.Hostname = strings.TrimSuffix(v.Ptr, ".")
		case *dns.CNAME:
			res.Hostname = strings.TrimSuffix(v.Target, ".")
		case *dns.SRV:
			res.SRV = append(res.SRV, v)
		case *dns.TXT:
			res.TXT = append(res.TXT, v.Txt...)
		}
	}
	req.callback(res)
}

func (r *Resolver) newIDLocked() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newID()
}

// Tick retries or fails any request older than the configured timeout,
// mirroring sar_timeout_cb's sweep over the pending-request list.
func (r *Resolver) Tick(now time.Time) {
	r.mu.Lock()
	var retry, expired []*request
	for id, req := range r.pending {
		if now.Sub(req.sentAt) < r.cfg.Timeout {
			continue
		}
		if req.retries >= r.cfg.Retries {
			expired = append(expired, req)
			delete(r.pending, id)
			continue
		}
		req.retries++
		req.sentAt = now
		retry = append(retry, req)
	}
	r.mu.Unlock()

	for _, req := range retry {
		if err := r.send(req); err != nil {
			log.Debug("resolver: retry send: %v", err)
		}
	}
	for _, req := range expired {
		req.callback(Result{Err: fmt.Errorf("resolver: timed out after %d retries", r.cfg.Retries)})
	}
}

// Pending reports the number of in-flight requests, for diagnostics.
func (r *Resolver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

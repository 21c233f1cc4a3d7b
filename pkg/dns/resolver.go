package dns

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/config"
	"github.com/Ikey168/IKOS-sub006/pkg/metrics"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
	"github.com/Ikey168/IKOS-sub006/pkg/transport/udp"
)

// dnsPort is the well-known port DNS servers listen on.
const dnsPort = 53

// pendingQuery is one in-flight query awaiting a response or timeout
// (spec §4.8: "A pending-query record holds (id, name, type, deadline,
// retries, callback)").
type pendingQuery struct {
	name        string
	qtype       Type
	retriesLeft int
	query       []byte
	resultCh    chan queryResult
	timer       timerwheel.Handle
}

type queryResult struct {
	rr  ResourceRecord
	err error
}

// Resolver is the recursive DNS resolver spec §4.8 describes: it sends
// UDP queries to a rotating list of configured servers, matches
// responses by id, follows in-bundle CNAME chains, and caches answers
// by TTL.
type Resolver struct {
	localAddr addr.IPv4
	udpLayer  *udp.Layer
	sock      *udp.Socket
	wheel     *timerwheel.Wheel

	servers    []addr.IPv4
	serverIdx  uint32
	timeout    time.Duration
	maxRetries int

	cache *Cache
	group singleflight.Group

	mu      sync.Mutex
	pending map[uint16]*pendingQuery
	nextID  uint32

	metrics *metrics.Stack
	log     *zap.Logger
}

// New constructs a Resolver bound to localAddr, sending queries over
// udpLayer to cfg's DNS server list (spec §6: "Per-stack: DNS server
// list (up to 8), DNS timeout and retries, cache max entries and
// default TTL"). It starts a background goroutine that reads responses
// off the bound socket for the Resolver's lifetime.
func New(localAddr addr.IPv4, udpLayer *udp.Layer, wheel *timerwheel.Wheel, cfg config.Stack, m *metrics.Stack, log *zap.Logger) (*Resolver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	servers := make([]addr.IPv4, 0, len(cfg.DNSServers))
	for _, s := range cfg.DNSServers {
		ip, err := addr.ParseIPv4(s)
		if err != nil {
			return nil, fmt.Errorf("dns: parsing server %q: %w", s, err)
		}
		servers = append(servers, ip)
	}

	sock := udpLayer.NewSocket()
	if err := udpLayer.Bind(sock, localAddr, 0); err != nil {
		return nil, err
	}

	r := &Resolver{
		localAddr:  localAddr,
		udpLayer:   udpLayer,
		sock:       sock,
		wheel:      wheel,
		servers:    servers,
		timeout:    cfg.DNSTimeout,
		maxRetries: cfg.DNSRetries,
		cache:      NewCache(cfg.DNSCacheSize, cfg.DNSDefaultTTL),
		pending:    make(map[uint16]*pendingQuery),
		metrics:    m,
		log:        log.Named("dns"),
	}
	if m != nil {
		r.cache.OnHit(m.DNSCacheHits.Inc)
		r.cache.OnMiss(m.DNSCacheMisses.Inc)
	}

	go r.recvLoop()
	return r, nil
}

func (r *Resolver) recvLoop() {
	for {
		dg := r.sock.Recv()
		r.handleResponse(dg.Payload)
	}
}

func (r *Resolver) handleResponse(payload []byte) {
	msg, err := ParseMessage(payload)
	if err != nil {
		r.log.Debug("dropping DNS response: parse failed", zap.Error(err))
		return
	}
	if !msg.Header.QR() {
		return
	}

	r.mu.Lock()
	pq, ok := r.pending[msg.Header.ID]
	if ok {
		delete(r.pending, msg.Header.ID)
		r.wheel.Cancel(pq.timer)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if len(msg.Questions) == 0 || normalize(msg.Questions[0].Name) != normalize(pq.name) {
		pq.resultCh <- queryResult{err: nerr.ErrInvalidArgument}
		return
	}
	if err := rcodeError(msg.Header.RCode()); err != nil {
		pq.resultCh <- queryResult{err: err}
		return
	}

	rr, err := resolveChain(msg, pq.name, pq.qtype)
	if err != nil {
		pq.resultCh <- queryResult{err: err}
		return
	}
	r.cache.Insert(pq.name, rr)
	pq.resultCh <- queryResult{rr: rr}
}

// resolveChain walks msg's answers, following CNAME records until it
// finds one of qtype for the queried name (spec §4.8: "CNAMEs chain to
// the next name; resolvers may follow in-bundle answers").
func resolveChain(msg Message, name string, qtype Type) (ResourceRecord, error) {
	target := normalize(name)
	for hops := 0; hops < len(msg.Answers)+1; hops++ {
		found := false
		for _, rr := range msg.Answers {
			if normalize(rr.Name) != target {
				continue
			}
			if rr.Type == qtype {
				return rr, nil
			}
			if rr.Type == TypeCNAME {
				target = normalize(string(rr.RData))
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return ResourceRecord{}, nerr.ErrNXDomain
}

// rcodeError maps a response's RCODE to the matching sentinel (spec
// §4.8 response processing; RFC 1035 §4.1.1's rcode values 1-3 are
// format error, server failure, and name error respectively -- this
// resolver only distinguishes the cases spec §7's error taxonomy
// names).
func rcodeError(rcode uint8) error {
	switch rcode {
	case 0:
		return nil
	case 2:
		return nerr.ErrServFail
	case 3:
		return nerr.ErrNXDomain
	case 5:
		return nerr.ErrRefused
	default:
		return nerr.ErrInvalidArgument
	}
}

// Resolve looks up (name, qtype) under ClassIN, serving from cache when
// possible and otherwise issuing a query with retry-across-servers
// (spec §4.8's "Timeouts and retries"). Concurrent callers resolving
// the same (name, qtype) share a single in-flight query.
func (r *Resolver) Resolve(name string, qtype Type) (ResourceRecord, error) {
	if rr, ok := r.cache.Get(name, qtype, ClassIN); ok {
		return rr, nil
	}

	key := fmt.Sprintf("%s|%d", normalize(name), qtype)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.query(name, qtype)
	})
	if err != nil {
		return ResourceRecord{}, err
	}
	return v.(ResourceRecord), nil
}

func (r *Resolver) query(name string, qtype Type) (ResourceRecord, error) {
	if len(r.servers) == 0 {
		return ResourceRecord{}, nerr.ErrInvalidState
	}

	id := uint16(atomic.AddUint32(&r.nextID, 1))
	packet, err := EncodeQuery(id, name, qtype, ClassIN)
	if err != nil {
		return ResourceRecord{}, err
	}

	pq := &pendingQuery{
		name:        name,
		qtype:       qtype,
		retriesLeft: r.maxRetries,
		query:       packet,
		resultCh:    make(chan queryResult, 1),
	}
	r.mu.Lock()
	r.pending[id] = pq
	r.mu.Unlock()

	r.sendAttempt(id, pq)

	result := <-pq.resultCh
	return result.rr, result.err
}

// sendAttempt transmits pq's query to the next server in rotation and
// arms the per-query timeout timer (spec §4.8: "Rotate through the
// configured server list on retry").
func (r *Resolver) sendAttempt(id uint16, pq *pendingQuery) {
	idx := atomic.AddUint32(&r.serverIdx, 1) - 1
	server := r.servers[int(idx)%len(r.servers)]

	if _, err := r.sock.SendTo(pq.query, server, dnsPort); err != nil {
		r.log.Debug("dns query send failed", zap.Error(err))
	}
	if r.metrics != nil {
		r.metrics.DNSQueriesSent.Inc()
	}

	h := r.wheel.Arm(r.timeout, func() { r.onTimeout(id) })
	r.mu.Lock()
	pq.timer = h
	r.mu.Unlock()
}

func (r *Resolver) onTimeout(id uint16) {
	r.mu.Lock()
	pq, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if pq.retriesLeft <= 0 {
		delete(r.pending, id)
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.DNSTimeouts.Inc()
		}
		pq.resultCh <- queryResult{err: nerr.ErrTimeout}
		return
	}
	pq.retriesLeft--
	r.mu.Unlock()

	r.sendAttempt(id, pq)
}

// CacheLen reports the resolver's current cache size, for tests and
// diagnostics.
func (r *Resolver) CacheLen() int { return r.cache.Len() }

// GetHostByName resolves name's A records (spec §4.7's gethostbyname).
func (r *Resolver) GetHostByName(name string) (addr.IPv4, error) {
	rr, err := r.Resolve(name, TypeA)
	if err != nil {
		return addr.IPv4{}, err
	}
	if len(rr.RData) != 4 {
		return addr.IPv4{}, nerr.ErrInvalidArgument
	}
	return addr.IPv4FromBytes(rr.RData), nil
}

// AddrInfo mirrors the subset of POSIX getaddrinfo's result this stack
// supports: a resolved IPv4 address.
type AddrInfo struct {
	Addr addr.IPv4
}

// GetAddrInfo resolves name to its address list (spec §4.7's
// getaddrinfo). This stack's A-only resolution means the list always
// has zero or one entries.
func (r *Resolver) GetAddrInfo(name string) ([]AddrInfo, error) {
	ip, err := r.GetHostByName(name)
	if err != nil {
		return nil, err
	}
	return []AddrInfo{{Addr: ip}}, nil
}

// FreeAddrInfo exists for API symmetry with POSIX's getaddrinfo/
// freeaddrinfo pairing (spec §4.7 names both); Go's garbage collector
// makes it a no-op here.
func FreeAddrInfo(_ []AddrInfo) {}

// GetHostByAddr resolves ip's PTR record via the standard
// in-addr.arpa reverse zone (spec §4.7's gethostbyaddr).
func (r *Resolver) GetHostByAddr(ip addr.IPv4) (string, error) {
	name := fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa", ip[3], ip[2], ip[1], ip[0])
	rr, err := r.Resolve(name, TypePTR)
	if err != nil {
		return "", err
	}
	return string(rr.RData), nil
}

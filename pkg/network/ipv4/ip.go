package ipv4

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/link"
	"github.com/Ikey168/IKOS-sub006/pkg/metrics"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
)

// ProtocolHandler receives a reassembled (or unfragmented) IPv4
// payload. buf still owns the backing netbuf so a transport handler
// that wants to hold onto the payload past the call must copy it.
type ProtocolHandler func(src, dst addr.IPv4, payload []byte, buf *netbuf.Netbuf)

// NeighborResolver maps a next-hop IPv4 address to the link address to
// frame the outgoing Ethernet header with. Spec §3 treats ARP as "a
// collaborator; not specified here" -- this interface is that seam,
// satisfied by StaticNeighbors for loopback-only or pre-provisioned
// topologies and by a real ARP implementation in a fuller deployment.
type NeighborResolver interface {
	Resolve(ip addr.IPv4) (addr.LinkAddr, error)
}

// StaticNeighbors is a fixed IP->link-address table, sufficient for
// point-to-point and loopback-only topologies and for tests.
type StaticNeighbors struct {
	mu      sync.RWMutex
	entries map[addr.IPv4]addr.LinkAddr
}

// NewStaticNeighbors returns an empty table.
func NewStaticNeighbors() *StaticNeighbors {
	return &StaticNeighbors{entries: make(map[addr.IPv4]addr.LinkAddr)}
}

// Set installs (or replaces) the link address for ip.
func (s *StaticNeighbors) Set(ip addr.IPv4, hw addr.LinkAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ip] = hw
}

// Resolve implements NeighborResolver.
func (s *StaticNeighbors) Resolve(ip addr.IPv4) (addr.LinkAddr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hw, ok := s.entries[ip]
	if !ok {
		return addr.LinkAddr{}, nerr.ErrHostUnreachable
	}
	return hw, nil
}

// Layer implements spec §4.4: IPv4 send/receive, routing, fragmentation
// and reassembly, and per-protocol dispatch, sitting between the link
// layer below and UDP/TCP/ICMP above.
type Layer struct {
	mu       sync.RWMutex
	handlers map[uint8]ProtocolHandler

	link      *link.Layer
	routes    *RoutingTable
	reasm     *Reassembler
	neighbors NeighborResolver
	pool      *netbuf.Pool
	metrics   *metrics.Stack
	log       *zap.Logger

	nextID uint32
}

// New constructs an IPv4 Layer. It registers itself with l as the
// handler for EtherTypeIPv4 so received frames flow straight in.
func New(l *link.Layer, routes *RoutingTable, wheel *timerwheel.Wheel, neighbors NeighborResolver, pool *netbuf.Pool, m *metrics.Stack, log *zap.Logger) *Layer {
	if log == nil {
		log = zap.NewNop()
	}
	layer := &Layer{
		handlers:  make(map[uint8]ProtocolHandler),
		link:      l,
		routes:    routes,
		reasm:     NewReassembler(wheel, m, log),
		neighbors: neighbors,
		pool:      pool,
		metrics:   m,
		log:       log.Named("ipv4"),
	}
	l.RegisterHandler(link.EtherTypeIPv4, layer.receiveFrame)
	return layer
}

// RegisterProtocol installs (or replaces) the handler invoked for
// datagrams whose protocol field matches proto (spec §4.4's protocol
// dispatch: ICMP=1, TCP=6, UDP=17).
func (l *Layer) RegisterProtocol(proto uint8, h ProtocolHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[proto] = h
}

func (l *Layer) lookup(proto uint8) (ProtocolHandler, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.handlers[proto]
	return h, ok
}

// receiveFrame is the link-layer hand-off point: it parses the IPv4
// header, drops or reassembles fragments, and dispatches complete
// datagrams by protocol (spec §4.4's receive_datagram).
func (l *Layer) receiveFrame(dev *device.Device, buf *netbuf.Netbuf) {
	raw := buf.Bytes()
	hdr, err := Parse(raw)
	if err != nil {
		if errors.Is(err, nerr.ErrChecksumMismatch) && l.metrics != nil {
			l.metrics.IPChecksumErrors.Inc()
		}
		l.log.Debug("dropping datagram: header parse failed", zap.Error(err))
		l.pool.Free(buf)
		return
	}

	payload := raw[MinHeaderLen:hdr.TotalLength]

	if hdr.FragmentOffset == 0 && !hdr.MoreFragments() {
		l.deliver(hdr, payload, buf)
		return
	}

	offset := int(hdr.FragmentOffset) * 8
	complete, err := l.reasm.Insert(hdr.Src, hdr.Dst, hdr.Protocol, hdr.ID, offset, hdr.MoreFragments(), payload)
	l.pool.Free(buf)
	if err != nil {
		l.log.Debug("dropping fragment: reassembly rejected it", zap.Error(err))
		return
	}
	if complete == nil {
		return // more fragments still outstanding
	}
	l.deliverReassembled(hdr, complete)
}

func (l *Layer) deliver(hdr Header, payload []byte, buf *netbuf.Netbuf) {
	h, ok := l.lookup(hdr.Protocol)
	if !ok {
		l.log.Debug("dropping datagram: no protocol handler", zap.Uint8("protocol", hdr.Protocol))
		if l.metrics != nil {
			l.metrics.IPNoProtocol.Inc()
		}
		l.pool.Free(buf)
		return
	}
	h(hdr.Src, hdr.Dst, payload, buf)
}

// deliverReassembled hands a fully reassembled datagram to its
// protocol handler. The backing buffer is a freshly built byte slice,
// not a pool buffer, so the handler receives a nil *netbuf.Netbuf and
// must not call Free on it.
func (l *Layer) deliverReassembled(hdr Header, payload []byte) {
	h, ok := l.lookup(hdr.Protocol)
	if !ok {
		l.log.Debug("dropping reassembled datagram: no protocol handler", zap.Uint8("protocol", hdr.Protocol))
		if l.metrics != nil {
			l.metrics.IPNoProtocol.Inc()
		}
		return
	}
	h(hdr.Src, hdr.Dst, payload, nil)
}

// maxFragmentPayload returns the largest payload size that fits one
// fragment out mtu: rounded down to a multiple of 8 octets (spec §4.4:
// "each at most (mtu - 20) & ~7 payload octets").
func maxFragmentPayload(mtu int) int {
	return (mtu - MinHeaderLen) &^ 7
}

// Send implements spec §4.4's send_datagram: route lookup, optional
// fragmentation, and hand-off to the link layer for each resulting
// fragment.
func (l *Layer) Send(src, dst addr.IPv4, protocol uint8, dontFragment bool, payload []byte) error {
	route, err := l.routes.Lookup(dst)
	if err != nil {
		return err
	}
	dev := route.Interface
	nextHop := NextHop(route, dst)

	hw, err := l.neighbors.Resolve(nextHop)
	if err != nil {
		return err
	}

	id := uint16(atomic.AddUint32(&l.nextID, 1))
	mtu := dev.MTU()

	if len(payload) <= mtu-MinHeaderLen {
		return l.sendOne(dev, hw, src, dst, protocol, id, 0, false, payload)
	}
	if dontFragment {
		return nerr.ErrInvalidArgument
	}

	chunk := maxFragmentPayload(mtu)
	if chunk <= 0 {
		return nerr.ErrInvalidArgument
	}
	for off := 0; off < len(payload); off += chunk {
		end := off + chunk
		more := true
		if end >= len(payload) {
			end = len(payload)
			more = false
		}
		if err := l.sendOne(dev, hw, src, dst, protocol, id, off, more, payload[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layer) sendOne(dev *device.Device, hw addr.LinkAddr, src, dst addr.IPv4, protocol uint8, id uint16, offsetOctets int, more bool, payload []byte) error {
	buf, err := l.pool.Alloc(l.pool.Capacity())
	if err != nil {
		return err
	}
	if err := buf.Reserve(l.pool.Capacity() - len(payload) - MinHeaderLen); err != nil {
		l.pool.Free(buf)
		return err
	}
	if err := buf.Append(payload); err != nil {
		l.pool.Free(buf)
		return err
	}

	hdrBytes, err := buf.PushHeader(MinHeaderLen)
	if err != nil {
		l.pool.Free(buf)
		return err
	}

	flags := uint16(0)
	if more {
		flags |= FlagMF
	}
	h := Header{
		TotalLength:    uint16(MinHeaderLen + len(payload)),
		ID:             id,
		Flags:          flags,
		FragmentOffset: uint16(offsetOctets / 8),
		TTL:            DefaultTTL,
		Protocol:       protocol,
		Src:            src,
		Dst:            dst,
	}
	Marshal(h, hdrBytes)

	buf.Proto = link.EtherTypeIPv4
	return l.link.SendFrame(dev, hw, link.EtherTypeIPv4, buf)
}

// PendingReassemblies reports in-flight fragment reassemblies.
func (l *Layer) PendingReassemblies() int { return l.reasm.Pending() }

// FreeBuf returns buf to this layer's pool. Protocol handlers that
// receive a non-nil *netbuf.Netbuf (i.e. an unfragmented datagram) use
// this once they are done reading its payload.
func (l *Layer) FreeBuf(buf *netbuf.Netbuf) { l.pool.Free(buf) }

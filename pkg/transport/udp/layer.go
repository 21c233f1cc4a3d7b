package udp

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/checksum"
	"github.com/Ikey168/IKOS-sub006/pkg/metrics"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
	"github.com/Ikey168/IKOS-sub006/pkg/network/ipv4"
)

// Layer implements spec §4.5: the per-port socket table, the
// ephemeral port allocator, and the udp_receive/udp_send handlers
// wired into an ipv4.Layer.
type Layer struct {
	mu     sync.RWMutex
	byPort map[uint16]*Socket

	ports *PortAllocator
	ip    *ipv4.Layer

	metrics *metrics.Stack
	log     *zap.Logger
}

// New constructs a Layer over ip, with an ephemeral port range of
// [portLow, portHigh] (spec §9's Open Question: this module uses
// 49152-65535 by default, see pkg/config). It registers itself as
// ip's ProtoUDP handler.
func New(ip *ipv4.Layer, portLow, portHigh uint16, m *metrics.Stack, log *zap.Logger) *Layer {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Layer{
		byPort:  make(map[uint16]*Socket),
		ports:   NewPortAllocator(portLow, portHigh),
		ip:      ip,
		metrics: m,
		log:     log.Named("udp"),
	}
	ip.RegisterProtocol(ipv4.ProtoUDP, l.receive)
	return l
}

// NewSocket returns an unbound socket.
func (l *Layer) NewSocket() *Socket {
	return newSocket(l)
}

// Bind assigns sock a local address and port; port 0 requests an
// ephemeral allocation (spec §4.5's port allocator).
func (l *Layer) Bind(sock *Socket, localAddr addr.IPv4, port uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if port == 0 {
		p, err := l.ports.Allocate()
		if err != nil {
			return err
		}
		port = p
	} else if err := l.ports.Reserve(port); err != nil {
		return err
	}
	if _, exists := l.byPort[port]; exists {
		l.ports.Release(port)
		return nerr.ErrAddressInUse
	}

	sock.mu.Lock()
	sock.localAddr, sock.localPort, sock.bound = localAddr, port, true
	sock.mu.Unlock()

	l.byPort[port] = sock
	return nil
}

// Connect fixes sock's remote endpoint for subsequent Send calls
// (spec §3's "optional (remote_addr, remote_port) for connected
// mode").
func (l *Layer) Connect(sock *Socket, remoteAddr addr.IPv4, remotePort uint16) error {
	sock.mu.Lock()
	defer sock.mu.Unlock()
	if !sock.bound {
		return nerr.ErrNotBound
	}
	sock.remoteAddr, sock.remotePort, sock.connected = remoteAddr, remotePort, true
	return nil
}

// Close releases sock's bound port, if any.
func (l *Layer) Close(sock *Socket) {
	sock.mu.Lock()
	port := sock.localPort
	bound := sock.bound
	sock.bound = false
	sock.mu.Unlock()
	if !bound {
		return
	}

	l.mu.Lock()
	delete(l.byPort, port)
	l.mu.Unlock()
	l.ports.Release(port)
}

func (l *Layer) lookup(port uint16) (*Socket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.byPort[port]
	return s, ok
}

// receive implements spec §4.5's udp_receive: parse, validate length,
// verify checksum when non-zero, look up the destination socket, and
// enqueue or drop.
func (l *Layer) receive(src, dst addr.IPv4, payload []byte, buf *netbuf.Netbuf) {
	defer func() {
		if buf != nil {
			l.ip.FreeBuf(buf)
		}
	}()

	hdr, err := ParseHeader(payload)
	if err != nil {
		l.log.Debug("dropping datagram: header parse failed", zap.Error(err))
		return
	}
	data := payload[HeaderLen:hdr.Length]

	if hdr.Checksum != 0 {
		if !verifyChecksum(src, dst, hdr, data) {
			l.log.Debug("dropping datagram: checksum mismatch")
			if l.metrics != nil {
				l.metrics.IPChecksumErrors.Inc()
			}
			return
		}
	}

	sock, ok := l.lookup(hdr.DstPort)
	if !ok {
		l.log.Debug("dropping datagram: no socket bound to port", zap.Uint16("port", hdr.DstPort))
		return
	}
	sock.enqueue(Datagram{SrcAddr: src, SrcPort: hdr.SrcPort, Payload: append([]byte{}, data...)})
	if l.metrics != nil {
		l.metrics.UDPDatagramsIn.Inc()
	}
}

func verifyChecksum(src, dst addr.IPv4, hdr Header, data []byte) bool {
	packet := make([]byte, HeaderLen+len(data))
	MarshalHeader(hdr, packet)
	copy(packet[HeaderLen:], data)
	packet[6], packet[7] = 0, 0

	seq := checksum.PseudoHeaderIPv4(src, dst, ipv4.ProtoUDP, hdr.Length)
	seq = checksum.Checksum(packet, seq)
	return checksum.Finalize(seq) == 0
}

// send implements spec §4.5's udp_send: build the UDP header, fold in
// the checksum if enabled, and hand the datagram to the IP layer.
func (l *Layer) send(srcAddr addr.IPv4, srcPort uint16, dstAddr addr.IPv4, dstPort uint16, checksumOn bool, data []byte) (int, error) {
	length := uint16(HeaderLen + len(data))
	packet := make([]byte, length)
	MarshalHeader(Header{SrcPort: srcPort, DstPort: dstPort, Length: length}, packet)
	copy(packet[HeaderLen:], data)

	if checksumOn {
		seq := checksum.PseudoHeaderIPv4(srcAddr, dstAddr, ipv4.ProtoUDP, length)
		seq = checksum.Checksum(packet, seq)
		sum := checksum.Finalize(seq)
		if sum == 0 {
			sum = 0xffff // RFC 768: a computed zero is transmitted as all-ones
		}
		packet[6] = byte(sum >> 8)
		packet[7] = byte(sum)
	}

	if err := l.ip.Send(srcAddr, dstAddr, ipv4.ProtoUDP, false, packet); err != nil {
		return 0, err
	}
	if l.metrics != nil {
		l.metrics.UDPDatagramsOut.Inc()
	}
	return len(data), nil
}

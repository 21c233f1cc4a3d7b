package tcp

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/checksum"
	"github.com/Ikey168/IKOS-sub006/pkg/metrics"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
	"github.com/Ikey168/IKOS-sub006/pkg/network/ipv4"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
	"github.com/Ikey168/IKOS-sub006/pkg/waiter"
)

// fourTuple identifies one established connection (spec §3: "no two
// TCP sockets share a 4-tuple").
type fourTuple struct {
	localAddr, remoteAddr addr.IPv4
	localPort, remotePort uint16
}

// Layer implements spec §4.6/§4.7's TCP demultiplex: established
// connections are matched by 4-tuple, then listening sockets by local
// port (spec §4.7: "incoming TCP segment is matched first against the
// set of established 4-tuples; on miss, against listening sockets by
// local port; on miss, send RST").
type Layer struct {
	mu        sync.RWMutex
	conns     map[fourTuple]*Socket
	listeners map[uint16]*Socket

	ports *portAllocator
	ip    *ipv4.Layer
	wheel *timerwheel.Wheel

	metrics *metrics.Stack
	log     *zap.Logger

	issCounter uint32
}

// New constructs a Layer over ip, registering itself as ip's ProtoTCP
// handler.
func New(ip *ipv4.Layer, wheel *timerwheel.Wheel, portLow, portHigh uint16, m *metrics.Stack, log *zap.Logger) *Layer {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Layer{
		conns:     make(map[fourTuple]*Socket),
		listeners: make(map[uint16]*Socket),
		ports:     newPortAllocator(portLow, portHigh),
		ip:        ip,
		wheel:     wheel,
		metrics:   m,
		log:       log.Named("tcp"),
	}
	ip.RegisterProtocol(ipv4.ProtoTCP, l.receive)
	return l
}

// nextISS generates an initial sequence number. Real stacks derive ISS
// from a clock plus a connection-specific hash (RFC 793 sec 3.3) to
// resist blind-reset/injection attacks; this stack uses a monotonically
// increasing counter that starts at zero and advances by 64000 per
// call (it is not seeded), sufficient for the
// single-process, trusted-peer setting this spec targets but not
// hardened against off-path spoofing (documented as an accepted
// simplification).
func (l *Layer) nextISS() Seq {
	return Seq(atomic.AddUint32(&l.issCounter, 64000))
}

// Listen creates a passive-open socket bound to (localAddr, port) in
// LISTEN state with the given backlog depth (spec §4.6: "CLOSED,
// passive open -> LISTEN").
func (l *Layer) Listen(localAddr addr.IPv4, port uint16, backlog int) (*Socket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if port != 0 {
		if err := l.ports.reserve(port); err != nil {
			return nil, err
		}
	} else {
		p, err := l.ports.allocate()
		if err != nil {
			return nil, err
		}
		port = p
	}
	if _, exists := l.listeners[port]; exists {
		l.ports.release(port)
		return nil, nerr.ErrAddressInUse
	}

	sock := newSocket(l)
	sock.localAddr, sock.localPort = localAddr, port
	sock.state = StateListen
	sock.listening = true
	sock.backlogCap = backlog

	l.listeners[port] = sock
	return sock, nil
}

// TryAccept pops a fully-established connection from listener's
// backlog without blocking, returning ErrWouldBlock if none is pending.
func (l *Layer) TryAccept(listener *Socket) (*Socket, error) {
	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.backlog) > 0 {
		conn := listener.backlog[0]
		listener.backlog = listener.backlog[1:]
		return conn, nil
	}
	if listener.state != StateListen {
		return nil, nerr.ErrInvalidState
	}
	return nil, nerr.ErrWouldBlock
}

// Accept blocks until listener's backlog has a fully-established
// connection, then returns it (spec §4.7: "accept blocks until the
// listening socket's pending-connection queue is non-empty").
func (l *Layer) Accept(listener *Socket) (*Socket, error) {
	for {
		conn, err := l.TryAccept(listener)
		if err != nerr.ErrWouldBlock {
			return conn, err
		}

		entry := waiter.NewEntry()
		listener.AcceptWaiter.EventRegister(entry, waiter.EventIn)
		listener.mu.Lock()
		ready := len(listener.backlog) > 0
		listener.mu.Unlock()
		if ready {
			listener.AcceptWaiter.EventUnregister(entry)
			continue
		}
		<-entry.Wait()
		listener.AcceptWaiter.EventUnregister(entry)
	}
}

// Dial performs an active open: allocate an ephemeral local port, build
// a SYN_SENT socket, send the initial SYN, and block until the
// handshake completes or fails (spec §4.6: "CLOSED, active open -> send
// SYN, set ISS -> SYN_SENT").
func (l *Layer) Dial(localAddr, remoteAddr addr.IPv4, remotePort uint16) (*Socket, error) {
	l.mu.Lock()
	port, err := l.ports.allocate()
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	sock := newSocket(l)
	sock.localAddr, sock.remoteAddr = localAddr, remoteAddr
	sock.localPort, sock.remotePort = port, remotePort
	sock.iss = l.nextISS()
	sock.sndUNA, sock.sndNXT = sock.iss, sock.iss.Add(1)
	sock.state = StateSynSent
	l.conns[fourTuple{localAddr, remoteAddr, port, remotePort}] = sock
	l.mu.Unlock()

	if err := l.sendSegment(sock, FlagSYN, sock.iss, nil); err != nil {
		l.removeConn(sock)
		return nil, err
	}

	entry := waiter.NewEntry()
	sock.RWaiter.EventRegister(entry, waiter.EventIn|waiter.EventErr)
	for {
		st := sock.State()
		if st == StateEstablished {
			sock.RWaiter.EventUnregister(entry)
			return sock, nil
		}
		if st == StateClosed {
			sock.RWaiter.EventUnregister(entry)
			sock.mu.Lock()
			err := sock.pendingErr
			sock.mu.Unlock()
			if err == nil {
				err = nerr.ErrConnectionRefused
			}
			return nil, err
		}
		<-entry.Wait()
	}
}

func (l *Layer) removeConn(sock *Socket) {
	l.mu.Lock()
	delete(l.conns, fourTuple{sock.localAddr, sock.remoteAddr, sock.localPort, sock.remotePort})
	l.mu.Unlock()
	l.ports.release(sock.localPort)
}

func (l *Layer) lookupConn(key fourTuple) (*Socket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.conns[key]
	return s, ok
}

func (l *Layer) lookupListener(port uint16) (*Socket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.listeners[port]
	return s, ok
}

// receive implements spec §4.7's TCP demultiplex entry point.
func (l *Layer) receive(src, dst addr.IPv4, payload []byte, buf *netbuf.Netbuf) {
	defer func() {
		if buf != nil {
			l.ip.FreeBuf(buf)
		}
	}()

	hdr, err := ParseHeader(payload)
	if err != nil {
		l.log.Debug("dropping segment: header parse failed", zap.Error(err))
		return
	}
	data := payload[hdr.HeaderLen():]

	if !verifyTCPChecksum(src, dst, payload) {
		l.log.Debug("dropping segment: checksum mismatch")
		if l.metrics != nil {
			l.metrics.IPChecksumErrors.Inc()
		}
		return
	}
	if l.metrics != nil {
		l.metrics.TCPSegmentsIn.Inc()
	}

	key := fourTuple{dst, src, hdr.DstPort, hdr.SrcPort}
	if sock, ok := l.lookupConn(key); ok {
		l.processSegment(sock, src, dst, hdr, data)
		return
	}
	if listener, ok := l.lookupListener(hdr.DstPort); ok {
		l.processListener(listener, src, dst, hdr, data)
		return
	}

	if !hdr.RST() {
		l.sendRST(dst, src, hdr)
	}
}

func (l *Layer) sendRST(localAddr, remoteAddr addr.IPv4, inReplyTo Header) {
	seq := inReplyTo.AckNum
	flags := FlagRST
	if !inReplyTo.ACK() {
		flags |= FlagACK
	}
	packet := buildSegment(Header{
		SrcPort: inReplyTo.DstPort,
		DstPort: inReplyTo.SrcPort,
		SeqNum:  seq,
		AckNum:  inReplyTo.SeqNum.Add(segLen(inReplyTo, 0)),
		Flags:   flags,
	}, nil, localAddr, remoteAddr)
	_ = l.ip.Send(localAddr, remoteAddr, ipv4.ProtoTCP, false, packet)
}

func segLen(hdr Header, dataLen int) uint32 {
	n := uint32(dataLen)
	if hdr.SYN() {
		n++
	}
	if hdr.FIN() {
		n++
	}
	return n
}

func verifyTCPChecksum(src, dst addr.IPv4, segment []byte) bool {
	cp := append([]byte{}, segment...)
	cp[16], cp[17] = 0, 0
	seq := checksum.PseudoHeaderIPv4(src, dst, ipv4.ProtoTCP, uint16(len(segment)))
	seq = checksum.Checksum(cp, seq)
	return checksum.Finalize(seq) == 0
}

func buildSegment(hdr Header, data []byte, src, dst addr.IPv4) []byte {
	out := make([]byte, MinHeaderLen+len(data))
	MarshalHeader(hdr, out)
	copy(out[MinHeaderLen:], data)

	seq := checksum.PseudoHeaderIPv4(src, dst, ipv4.ProtoTCP, uint16(len(out)))
	seq = checksum.Checksum(out, seq)
	sum := checksum.Finalize(seq)
	out[16] = byte(sum >> 8)
	out[17] = byte(sum)
	return out
}

// sendSegment builds and transmits one segment carrying flags/seq/data
// plus the socket's current ACK number and advertised window.
func (l *Layer) sendSegment(sock *Socket, flags uint8, seq Seq, data []byte) error {
	sock.mu.Lock()
	hdr := Header{
		SrcPort: sock.localPort,
		DstPort: sock.remotePort,
		SeqNum:  seq,
		AckNum:  sock.rcvNXT,
		Flags:   flags,
		Window:  uint16(sock.rcvWND),
	}
	localAddr, remoteAddr := sock.localAddr, sock.remoteAddr
	sock.mu.Unlock()

	packet := buildSegment(hdr, data, localAddr, remoteAddr)
	if err := l.ip.Send(localAddr, remoteAddr, ipv4.ProtoTCP, false, packet); err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.TCPSegmentsOut.Inc()
	}
	return nil
}


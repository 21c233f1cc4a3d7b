package udp

import (
	"sync"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/waiter"
)

// DefaultQueueDepth bounds a socket's receive queue absent an explicit
// override (spec §3: "a bounded FIFO queue of received datagrams").
const DefaultQueueDepth = 64

// Datagram is one received UDP payload with its source endpoint (spec
// §4.5: "enqueue a datagram record (src_ip, src_port, payload)").
type Datagram struct {
	SrcAddr addr.IPv4
	SrcPort uint16
	Payload []byte
}

// Stats mirrors the UDP socket statistics spec §3 names.
type Stats struct {
	DatagramsIn  uint64
	DatagramsOut uint64
	BufferFull   uint64
}

// Socket is a UDP socket (spec §3 "UDP socket"): a local endpoint, an
// optional connected-mode remote endpoint, a bounded receive queue,
// and broadcast/checksum flags.
type Socket struct {
	mu sync.Mutex

	localAddr  addr.IPv4
	localPort  uint16
	remoteAddr addr.IPv4
	remotePort uint16
	connected  bool
	bound      bool

	queue    []Datagram
	maxQueue int

	broadcast       bool
	checksumEnabled bool

	stats Stats

	Waiter waiter.Queue

	layer *Layer
}

func newSocket(layer *Layer) *Socket {
	return &Socket{layer: layer, maxQueue: DefaultQueueDepth, checksumEnabled: true}
}

// SetBroadcast toggles whether this socket may send to a broadcast
// destination.
func (s *Socket) SetBroadcast(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = v
}

// SetChecksum toggles whether outgoing datagrams carry a non-zero
// checksum (spec §4.5 allows checksum-off operation).
func (s *Socket) SetChecksum(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checksumEnabled = v
}

// LocalEndpoint returns the socket's bound local address and port.
func (s *Socket) LocalEndpoint() addr.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addr.Endpoint{Addr: s.localAddr, Port: s.localPort}
}

// RemoteEndpoint returns the socket's connected-mode remote endpoint,
// the zero value if unconnected.
func (s *Socket) RemoteEndpoint() addr.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addr.Endpoint{Addr: s.remoteAddr, Port: s.remotePort}
}

// Stats returns a snapshot of the socket's counters.
func (s *Socket) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// enqueue appends dg to the receive queue, dropping it and incrementing
// buffer_full if the queue is at capacity (spec §4.5).
func (s *Socket) enqueue(dg Datagram) {
	s.mu.Lock()
	full := len(s.queue) >= s.maxQueue
	if !full {
		s.queue = append(s.queue, dg)
		s.stats.DatagramsIn++
	} else {
		s.stats.BufferFull++
	}
	s.mu.Unlock()

	if full {
		if s.layer.metrics != nil {
			s.layer.metrics.UDPBufferFull.Inc()
		}
		return
	}
	s.Waiter.Notify(waiter.EventIn)
}

// TryRecv pops the oldest queued datagram without blocking, returning
// ErrWouldBlock if the queue is empty.
func (s *Socket) TryRecv() (Datagram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Datagram{}, nerr.ErrWouldBlock
	}
	dg := s.queue[0]
	s.queue = s.queue[1:]
	return dg, nil
}

// Recv blocks (via the socket's Waiter) until a datagram is available.
func (s *Socket) Recv() Datagram {
	for {
		if dg, err := s.TryRecv(); err == nil {
			return dg
		}
		entry := waiter.NewEntry()
		s.Waiter.EventRegister(entry, waiter.EventIn)
		if dg, err := s.TryRecv(); err == nil {
			s.Waiter.EventUnregister(entry)
			return dg
		}
		<-entry.Wait()
		s.Waiter.EventUnregister(entry)
	}
}

// SendTo transmits data to (dstAddr, dstPort) (spec §4.5's udp_send).
// The socket need not be connected; if it is, SendTo still allows an
// explicit destination (matching BSD sendto semantics).
func (s *Socket) SendTo(data []byte, dstAddr addr.IPv4, dstPort uint16) (int, error) {
	s.mu.Lock()
	if !s.bound {
		s.mu.Unlock()
		return 0, nerr.ErrNotBound
	}
	srcAddr, srcPort := s.localAddr, s.localPort
	checksumOn := s.checksumEnabled
	s.mu.Unlock()

	n, err := s.layer.send(srcAddr, srcPort, dstAddr, dstPort, checksumOn, data)
	if err == nil {
		s.mu.Lock()
		s.stats.DatagramsOut++
		s.mu.Unlock()
	}
	return n, err
}

// Send transmits to the connected-mode remote endpoint, failing with
// ErrNotConnected if the socket has no peer.
func (s *Socket) Send(data []byte) (int, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return 0, nerr.ErrNotConnected
	}
	dstAddr, dstPort := s.remoteAddr, s.remotePort
	s.mu.Unlock()
	return s.SendTo(data, dstAddr, dstPort)
}

package tcp

import (
	"sync"
	"time"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
	"github.com/Ikey168/IKOS-sub006/pkg/waiter"
)

// State is one of the eleven RFC 793 connection states spec §3 names.
type State int

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynRcvd
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRcvd:
		return "SYN_RCVD"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	case StateTimeWait:
		return "TIME_WAIT"
	default:
		return "UNKNOWN"
	}
}

// MSL is the maximum segment lifetime; TIME_WAIT lasts 2*MSL (spec
// §4.6 default 60s total, i.e. MSL=30s).
const MSL = 30 * time.Second

// outSegment is one transmitted, not-yet-acknowledged segment on the
// retransmission queue (spec §3: "retransmission queue of unacknowledged
// segments").
type outSegment struct {
	seq     Seq
	data    []byte
	flags   uint8
	sentAt  time.Time
	retries int
}

// inSegment is a received, out-of-order segment awaiting contiguity
// (spec §3: "out-of-order queue").
type inSegment struct {
	seq  Seq
	data []byte
}

// Socket is a TCP connection (spec §3 "TCP socket"): the 4-tuple, RFC
// 793 state, sequence spaces, congestion/RTT state, and the four FIFO
// queues (send buffer, receive buffer, retransmission queue,
// out-of-order queue).
type Socket struct {
	mu sync.Mutex

	state State

	localAddr, remoteAddr addr.IPv4
	localPort, remotePort uint16

	sndUNA, sndNXT, iss Seq
	sndWND              uint32
	rcvNXT, irs         Seq
	rcvWND              uint32

	cong congestionState

	sendBuf     []byte
	retransQ    []outSegment
	outOfOrder  []inSegment
	recvBuf     []byte

	nodelay   bool
	keepalive bool

	retransTimer  timerwheel.Handle
	retransArmed  bool
	persistTimer  timerwheel.Handle
	persistArmed  bool
	timeWaitTimer timerwheel.Handle

	dupAcks int

	backlog     []*Socket // pending, fully-handshaked connections awaiting Accept
	backlogCap  int
	listening   bool
	parentListener *Socket // set on a SYN_RCVD child until it joins its listener's backlog

	closed     bool
	finSent    bool
	pendingErr error

	RWaiter      waiter.Queue
	WWaiter      waiter.Queue
	AcceptWaiter waiter.Queue

	layer *Layer
}

func newSocket(layer *Layer) *Socket {
	return &Socket{layer: layer, state: StateClosed, rcvWND: DefaultWindow, cong: newCongestionState(DefaultMSS)}
}

// DefaultWindow is the receive window this stack advertises absent an
// application override.
const DefaultWindow = 65535

// LocalEndpoint returns the socket's local 4-tuple half.
func (s *Socket) LocalEndpoint() addr.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addr.Endpoint{Addr: s.localAddr, Port: s.localPort}
}

// RemoteEndpoint returns the socket's remote 4-tuple half.
func (s *Socket) RemoteEndpoint() addr.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addr.Endpoint{Addr: s.remoteAddr, Port: s.remotePort}
}

// State returns the socket's current RFC 793 state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetNoDelay toggles Nagle coalescing (spec §3 socket option
// "nodelay").
func (s *Socket) SetNoDelay(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodelay = v
}

// SetKeepAlive toggles the keep-alive option (spec §3 socket option
// "keepalive"). This stack records the flag but the keep-alive probe
// timer is out of this module's tested scope.
func (s *Socket) SetKeepAlive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepalive = v
}

// SetBacklog raises a LISTEN socket's pending-connection queue depth
// after bind(2) and listen(2) have run as separate calls (spec §4.7).
func (s *Socket) SetBacklog(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlogCap = n
}

func (s *Socket) inFlight() uint32 {
	return uint32(s.sndUNA.Sub(s.sndNXT))
}

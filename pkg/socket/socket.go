// Package socket implements the BSD-style socket system-call surface
// (spec §4.7): a process-wide file-descriptor table mapping small
// integers to per-protocol control blocks, dispatching socket/bind/
// listen/accept/connect/send/recv/sendto/recvfrom/close/shutdown/
// setsockopt/getsockopt/getsockname/getpeername to the UDP and TCP
// layers beneath it.
package socket

import (
	"sync"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/transport/tcp"
	"github.com/Ikey168/IKOS-sub006/pkg/transport/udp"
)

// Type is the socket type named at socket(2) time.
type Type int

const (
	// TypeStream is SOCK_STREAM: a TCP socket.
	TypeStream Type = iota
	// TypeDgram is SOCK_DGRAM: a UDP socket.
	TypeDgram
)

// ShutdownHow selects which half of a connection shutdown(2) closes.
// This stack only models the full-duplex case; ShutdownRead/Write are
// accepted but both currently behave as ShutdownBoth, since neither
// udp.Socket nor tcp.Socket exposes independently-closable halves.
type ShutdownHow int

const (
	ShutdownRead ShutdownHow = iota
	ShutdownWrite
	ShutdownBoth
)

// controlBlock is the per-fd state backing one open socket. For a
// stream socket, exactly one of tcpSock (connected/accepted) or
// tcpListener (passive) is set once Bind/Connect/Accept has run.
type controlBlock struct {
	mu sync.Mutex

	typ         Type
	nonBlocking bool

	udpSock     *udp.Socket
	tcpSock     *tcp.Socket
	tcpListener *tcp.Socket
}

// Table is the process-wide handle table (spec §4.7: "a process-wide
// handle table maps small integer file descriptors to socket control
// blocks"). One Table backs one stack.Stack.
type Table struct {
	mu   sync.Mutex
	byFD map[int]*controlBlock
	next int

	udp *udp.Layer
	tcp *tcp.Layer
}

// New constructs an empty Table dispatching to udpLayer and tcpLayer.
func New(udpLayer *udp.Layer, tcpLayer *tcp.Layer) *Table {
	return &Table{
		byFD: make(map[int]*controlBlock),
		next: 1,
		udp:  udpLayer,
		tcp:  tcpLayer,
	}
}

// Socket allocates a new file descriptor of the given type (spec
// §4.7's socket(domain, type, protocol); domain is always IPv4 and
// protocol is implied by typ in this stack).
func (t *Table) Socket(typ Type) (int, error) {
	cb := &controlBlock{typ: typ}
	switch typ {
	case TypeDgram:
		cb.udpSock = t.udp.NewSocket()
	case TypeStream:
		// tcpSock/tcpListener are created lazily by Bind/Connect/Accept.
	default:
		return 0, nerr.ErrInvalidArgument
	}

	return t.install(cb), nil
}

func (t *Table) install(cb *controlBlock) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.next
	t.next++
	t.byFD[fd] = cb
	return fd
}

func (t *Table) lookup(fd int) (*controlBlock, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cb, ok := t.byFD[fd]
	if !ok {
		return nil, nerr.ErrNoSocket
	}
	return cb, nil
}

// Bind assigns (localAddr, port) to fd (spec §4.7's bind). For a
// stream socket this creates the underlying LISTEN-capable tcp.Socket
// with a zero backlog; Listen later raises it.
func (t *Table) Bind(fd int, localAddr addr.IPv4, port uint16) error {
	cb, err := t.lookup(fd)
	if err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.typ {
	case TypeDgram:
		return t.udp.Bind(cb.udpSock, localAddr, port)
	case TypeStream:
		if cb.tcpSock != nil || cb.tcpListener != nil {
			return nerr.ErrAlreadyConnected
		}
		listener, err := t.tcp.Listen(localAddr, port, 0)
		if err != nil {
			return err
		}
		cb.tcpListener = listener
		return nil
	}
	return nerr.ErrInvalidArgument
}

// Listen marks a bound stream socket's backlog depth (spec §4.7's
// listen). UDP sockets reject Listen.
func (t *Table) Listen(fd int, backlog int) error {
	cb, err := t.lookup(fd)
	if err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.typ != TypeStream || cb.tcpListener == nil {
		return nerr.ErrInvalidState
	}
	cb.tcpListener.SetBacklog(backlog)
	return nil
}

// Accept blocks (unless fd is non-blocking) until a connection is
// pending, then installs it under a freshly allocated descriptor (spec
// §4.7's accept).
func (t *Table) Accept(fd int) (int, error) {
	cb, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	cb.mu.Lock()
	if cb.typ != TypeStream || cb.tcpListener == nil {
		cb.mu.Unlock()
		return 0, nerr.ErrInvalidState
	}
	listener, nonBlocking := cb.tcpListener, cb.nonBlocking
	cb.mu.Unlock()

	var conn *tcp.Socket
	if nonBlocking {
		conn, err = t.tcp.TryAccept(listener)
	} else {
		conn, err = t.tcp.Accept(listener)
	}
	if err != nil {
		return 0, err
	}

	return t.install(&controlBlock{typ: TypeStream, tcpSock: conn}), nil
}

// Connect performs an active open: for UDP, records the default
// destination used by later Send calls; for TCP, runs the three-way
// handshake (spec §4.7's connect). A TCP connect always blocks to
// completion in this stack; non-blocking connect (EINPROGRESS-style
// polling) is not modeled.
func (t *Table) Connect(fd int, remoteAddr addr.IPv4, remotePort uint16) error {
	cb, err := t.lookup(fd)
	if err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.typ {
	case TypeDgram:
		if cb.udpSock.LocalEndpoint().Port == 0 {
			if err := t.udp.Bind(cb.udpSock, addr.IPv4{}, 0); err != nil {
				return err
			}
		}
		return t.udp.Connect(cb.udpSock, remoteAddr, remotePort)
	case TypeStream:
		if cb.tcpSock != nil || cb.tcpListener != nil {
			return nerr.ErrAlreadyConnected
		}
		sock, err := t.tcp.Dial(addr.IPv4{}, remoteAddr, remotePort)
		if err != nil {
			return err
		}
		cb.tcpSock = sock
		return nil
	}
	return nerr.ErrInvalidArgument
}

// Send writes to a connected socket's peer (spec §4.7's send).
func (t *Table) Send(fd int, data []byte) (int, error) {
	cb, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.typ {
	case TypeDgram:
		if cb.udpSock == nil {
			return 0, nerr.ErrNotConnected
		}
		return cb.udpSock.Send(data)
	case TypeStream:
		if cb.tcpSock == nil {
			return 0, nerr.ErrNotConnected
		}
		return cb.tcpSock.Write(data)
	}
	return 0, nerr.ErrInvalidArgument
}

// SendTo writes a UDP datagram to an explicit destination, bypassing
// any connected-mode peer (spec §4.7's sendto). TCP sockets reject it.
func (t *Table) SendTo(fd int, data []byte, dstAddr addr.IPv4, dstPort uint16) (int, error) {
	cb, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.typ != TypeDgram || cb.udpSock == nil {
		return 0, nerr.ErrInvalidArgument
	}
	if cb.udpSock.LocalEndpoint().Port == 0 {
		if err := t.udp.Bind(cb.udpSock, addr.IPv4{}, 0); err != nil {
			return 0, err
		}
	}
	return cb.udpSock.SendTo(data, dstAddr, dstPort)
}

// Recv reads from a connected socket, blocking (unless fd is
// non-blocking) until data arrives, the peer closes, or an error is
// pending (spec §4.7's recv).
func (t *Table) Recv(fd int, buf []byte) (int, error) {
	cb, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	cb.mu.Lock()
	typ, nonBlocking, udpSock, tcpSock := cb.typ, cb.nonBlocking, cb.udpSock, cb.tcpSock
	cb.mu.Unlock()

	switch typ {
	case TypeDgram:
		if udpSock == nil {
			return 0, nerr.ErrNotConnected
		}
		var dg udp.Datagram
		if nonBlocking {
			var err error
			dg, err = udpSock.TryRecv()
			if err != nil {
				return 0, err
			}
		} else {
			dg = udpSock.Recv()
		}
		return copy(buf, dg.Payload), nil
	case TypeStream:
		if tcpSock == nil {
			return 0, nerr.ErrNotConnected
		}
		if nonBlocking {
			return tcpSock.TryRead(buf)
		}
		return tcpSock.Read(buf)
	}
	return 0, nerr.ErrInvalidArgument
}

// RecvFrom reads a UDP datagram and reports its source endpoint (spec
// §4.7's recvfrom). TCP sockets reject it (a connection has exactly
// one peer, reported by GetPeerName instead).
func (t *Table) RecvFrom(fd int, buf []byte) (int, addr.IPv4, uint16, error) {
	cb, err := t.lookup(fd)
	if err != nil {
		return 0, addr.IPv4{}, 0, err
	}
	cb.mu.Lock()
	nonBlocking, udpSock := cb.nonBlocking, cb.udpSock
	cb.mu.Unlock()
	if cb.typ != TypeDgram || udpSock == nil {
		return 0, addr.IPv4{}, 0, nerr.ErrInvalidArgument
	}

	var dg udp.Datagram
	if nonBlocking {
		dg, err = udpSock.TryRecv()
		if err != nil {
			return 0, addr.IPv4{}, 0, err
		}
	} else {
		dg = udpSock.Recv()
	}
	n := copy(buf, dg.Payload)
	return n, dg.SrcAddr, dg.SrcPort, nil
}

// Close releases fd. A stream socket runs the active-close sequence;
// a listening socket is simply forgotten (in-flight SYNs are not
// tracked per-fd once past the handshake).
func (t *Table) Close(fd int) error {
	t.mu.Lock()
	cb, ok := t.byFD[fd]
	if ok {
		delete(t.byFD, fd)
	}
	t.mu.Unlock()
	if !ok {
		return nerr.ErrNoSocket
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.tcpSock != nil {
		return cb.tcpSock.Close()
	}
	return nil
}

// Shutdown half-closes a stream connection (spec §4.7's shutdown).
func (t *Table) Shutdown(fd int, how ShutdownHow) error {
	cb, err := t.lookup(fd)
	if err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.typ != TypeStream || cb.tcpSock == nil {
		return nerr.ErrInvalidState
	}
	return cb.tcpSock.Close()
}

// SetNonBlocking toggles whether Accept/Recv/RecvFrom return
// ErrWouldBlock instead of suspending the caller.
func (t *Table) SetNonBlocking(fd int, v bool) error {
	cb, err := t.lookup(fd)
	if err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.nonBlocking = v
	return nil
}

// SetNoDelay toggles TCP_NODELAY on a stream socket (spec §3 socket
// option "nodelay").
func (t *Table) SetNoDelay(fd int, v bool) error {
	cb, err := t.lookup(fd)
	if err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.typ != TypeStream || cb.tcpSock == nil {
		return nerr.ErrInvalidState
	}
	cb.tcpSock.SetNoDelay(v)
	return nil
}

// SetKeepAlive toggles SO_KEEPALIVE on a stream socket.
func (t *Table) SetKeepAlive(fd int, v bool) error {
	cb, err := t.lookup(fd)
	if err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.typ != TypeStream || cb.tcpSock == nil {
		return nerr.ErrInvalidState
	}
	cb.tcpSock.SetKeepAlive(v)
	return nil
}

// SetBroadcast toggles SO_BROADCAST on a datagram socket.
func (t *Table) SetBroadcast(fd int, v bool) error {
	cb, err := t.lookup(fd)
	if err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.typ != TypeDgram || cb.udpSock == nil {
		return nerr.ErrInvalidState
	}
	cb.udpSock.SetBroadcast(v)
	return nil
}

// SetChecksum toggles whether a datagram socket transmits a non-zero
// UDP checksum (spec §4.5 allows checksum-off operation).
func (t *Table) SetChecksum(fd int, v bool) error {
	cb, err := t.lookup(fd)
	if err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.typ != TypeDgram || cb.udpSock == nil {
		return nerr.ErrInvalidState
	}
	cb.udpSock.SetChecksum(v)
	return nil
}

// GetSockName reports fd's local endpoint (spec §4.7's getsockname).
func (t *Table) GetSockName(fd int) (addr.Endpoint, error) {
	cb, err := t.lookup(fd)
	if err != nil {
		return addr.Endpoint{}, err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case cb.udpSock != nil:
		return cb.udpSock.LocalEndpoint(), nil
	case cb.tcpSock != nil:
		return cb.tcpSock.LocalEndpoint(), nil
	case cb.tcpListener != nil:
		return cb.tcpListener.LocalEndpoint(), nil
	}
	return addr.Endpoint{}, nerr.ErrNotBound
}

// GetPeerName reports fd's connected remote endpoint (spec §4.7's
// getpeername).
func (t *Table) GetPeerName(fd int) (addr.Endpoint, error) {
	cb, err := t.lookup(fd)
	if err != nil {
		return addr.Endpoint{}, err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case cb.udpSock != nil:
		ep := cb.udpSock.RemoteEndpoint()
		if ep.Port == 0 {
			return addr.Endpoint{}, nerr.ErrNotConnected
		}
		return ep, nil
	case cb.tcpSock != nil:
		return cb.tcpSock.RemoteEndpoint(), nil
	}
	return addr.Endpoint{}, nerr.ErrNotConnected
}

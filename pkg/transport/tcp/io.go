package tcp

import (
	"io"
	"time"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/waiter"
)

// TryRead copies received, in-order bytes into buf without blocking,
// returning ErrWouldBlock if none are available yet (spec §4.7:
// "non-blocking mode returns would-block instead").
func (s *Socket) TryRead(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recvBuf) > 0 {
		n := copy(buf, s.recvBuf)
		s.recvBuf = s.recvBuf[n:]
		return n, nil
	}
	if s.pendingErr != nil {
		return 0, s.pendingErr
	}
	switch s.state {
	case StateCloseWait, StateClosing, StateLastAck, StateTimeWait, StateClosed:
		return 0, io.EOF
	}
	return 0, nerr.ErrWouldBlock
}

// Read copies received, in-order bytes into buf, blocking until data
// is available, the peer has closed its side, or the connection has
// failed (spec §5: "recv ... suspend the calling thread").
func (s *Socket) Read(buf []byte) (int, error) {
	for {
		n, err := s.TryRead(buf)
		if err != nerr.ErrWouldBlock {
			return n, err
		}

		entry := waiter.NewEntry()
		s.RWaiter.EventRegister(entry, waiter.EventIn|waiter.EventErr|waiter.EventHUp)
		if n, err := s.TryRead(buf); err != nerr.ErrWouldBlock {
			s.RWaiter.EventUnregister(entry)
			return n, err
		}
		<-entry.Wait()
		s.RWaiter.EventUnregister(entry)
	}
}

// Write queues data for transmission and kicks the sender; it does not
// block for acknowledgment (spec §5 only names recv/accept/connect as
// suspension points, plus send when the local buffer is full).
func (s *Socket) Write(data []byte) (int, error) {
	s.mu.Lock()
	switch s.state {
	case StateEstablished, StateCloseWait:
	default:
		s.mu.Unlock()
		return 0, nerr.ErrInvalidState
	}
	if len(s.sendBuf) > 0 && len(s.sendBuf)+len(data) > maxSendBuf {
		s.mu.Unlock()
		return 0, nerr.ErrBufferFull
	}
	s.sendBuf = append(s.sendBuf, data...)
	s.mu.Unlock()

	s.layer.trySend(s)
	return len(data), nil
}

// maxSendBuf bounds the unsent-data backlog Write will accept before
// reporting ErrBufferFull.
const maxSendBuf = 1 << 20

// Close begins the active-close sequence (spec §4.6: ESTABLISHED close
// -> FIN_WAIT_1, CLOSE_WAIT close -> LAST_ACK), sending a FIN carrying
// the next unused sequence number.
func (s *Socket) Close() error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return nil
	case StateEstablished:
		s.state = StateFinWait1
	case StateCloseWait:
		s.state = StateLastAck
	case StateSynSent, StateSynRcvd, StateListen:
		s.state = StateClosed
		s.mu.Unlock()
		s.layer.removeConn(s)
		return nil
	default:
		s.mu.Unlock()
		return nil
	}
	seq := s.sndNXT
	s.sndNXT = s.sndNXT.Add(1)
	s.finSent = true
	s.retransQ = append(s.retransQ, outSegment{seq: seq, flags: FlagFIN | FlagACK, sentAt: time.Now()})
	needArm := !s.retransArmed
	s.mu.Unlock()

	err := s.layer.sendSegment(s, FlagFIN|FlagACK, seq, nil)
	if needArm {
		s.layer.rearmRetransTimer(s)
	}
	return err
}

// trySend pushes as much of sock's send buffer as the congestion
// window, the peer's advertised window, and the MSS allow (spec §4.6:
// "send size = min(MSS, cwnd - in_flight, SND.WND)"), arming the
// persist timer instead when the window is closed.
func (l *Layer) trySend(sock *Socket) {
	for {
		sock.mu.Lock()
		if len(sock.sendBuf) == 0 {
			sock.mu.Unlock()
			return
		}
		if sock.sndWND == 0 {
			sock.mu.Unlock()
			l.armPersistTimer(sock)
			return
		}

		inFlight := sock.inFlight()
		if inFlight >= sock.cong.cwnd {
			sock.mu.Unlock()
			return
		}
		window := sock.cong.cwnd - inFlight
		var usable uint32
		if sock.sndWND > inFlight {
			usable = sock.sndWND - inFlight
		}
		if usable < window {
			window = usable
		}
		chunk := sock.cong.mss
		if window < chunk {
			chunk = window
		}
		if uint32(len(sock.sendBuf)) < chunk {
			chunk = uint32(len(sock.sendBuf))
		}
		if chunk == 0 {
			sock.mu.Unlock()
			return
		}
		// Nagle: hold a small trailing write while earlier data is still
		// unacknowledged (spec §4.6's "nodelay" option disables this).
		if !sock.nodelay && chunk < sock.cong.mss && uint32(len(sock.sendBuf)) == chunk && len(sock.retransQ) > 0 {
			sock.mu.Unlock()
			return
		}

		data := append([]byte{}, sock.sendBuf[:chunk]...)
		sock.sendBuf = sock.sendBuf[chunk:]
		seq := sock.sndNXT
		sock.sndNXT = sock.sndNXT.Add(chunk)
		sock.retransQ = append(sock.retransQ, outSegment{seq: seq, data: data, flags: FlagACK | FlagPSH, sentAt: time.Now()})
		needArm := !sock.retransArmed
		sock.mu.Unlock()

		_ = l.sendSegment(sock, FlagACK|FlagPSH, seq, data)
		if needArm {
			l.rearmRetransTimer(sock)
		}
	}
}

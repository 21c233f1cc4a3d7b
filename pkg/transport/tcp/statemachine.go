package tcp

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/waiter"
)

// acceptable implements spec §4.6's segment-acceptability test: at
// least one octet of the segment lies in [RCV.NXT, RCV.NXT+RCV.WND).
// A zero-length segment is acceptable if its sequence number equals
// RCV.NXT (or the window is non-empty and it falls inside it).
func acceptable(sock *Socket, seq Seq, dataLen int) bool {
	if dataLen == 0 {
		if sock.rcvWND == 0 {
			return seq == sock.rcvNXT
		}
		return InWindow(seq, sock.rcvNXT, sock.rcvWND)
	}
	end := seq.Add(uint32(dataLen) - 1)
	return InWindow(seq, sock.rcvNXT, sock.rcvWND) || InWindow(end, sock.rcvNXT, sock.rcvWND)
}

// processListener handles a segment arriving at a LISTEN socket (spec
// §4.6: "LISTEN, SYN recv -> send SYN-ACK, record IRS -> SYN_RCVD").
func (l *Layer) processListener(listener *Socket, src, dst addr.IPv4, hdr Header, data []byte) {
	if hdr.RST() {
		return
	}
	if hdr.ACK() {
		l.sendRST(dst, src, hdr)
		return
	}
	if !hdr.SYN() {
		return
	}

	listener.mu.Lock()
	if len(listener.backlog) >= listener.backlogCap && listener.backlogCap > 0 {
		listener.mu.Unlock()
		return // backlog full; silently drop the SYN, peer will retransmit
	}
	listener.mu.Unlock()

	child := newSocket(l)
	child.localAddr, child.remoteAddr = dst, src
	child.localPort, child.remotePort = hdr.DstPort, hdr.SrcPort
	child.irs = hdr.SeqNum
	child.rcvNXT = hdr.SeqNum.Add(1)
	child.iss = l.nextISS()
	child.sndUNA, child.sndNXT = child.iss, child.iss.Add(1)
	child.sndWND = uint32(hdr.Window)
	child.state = StateSynRcvd

	l.mu.Lock()
	l.conns[fourTuple{dst, src, hdr.DstPort, hdr.SrcPort}] = child
	l.mu.Unlock()

	listener.mu.Lock()
	child.parentListener = listener
	listener.mu.Unlock()

	if err := l.sendSegment(child, FlagSYN|FlagACK, child.iss, nil); err != nil {
		l.log.Debug("failed to send SYN-ACK", zap.Error(err))
	}
}

// processSegment dispatches an incoming segment to the state-specific
// handler for an already-known connection (spec §4.6's transition
// table).
func (l *Layer) processSegment(sock *Socket, src, dst addr.IPv4, hdr Header, data []byte) {
	sock.mu.Lock()
	state := sock.state
	sock.mu.Unlock()

	if hdr.RST() {
		l.abort(sock, nerr.ErrConnectionReset)
		return
	}

	switch state {
	case StateSynSent:
		l.handleSynSent(sock, hdr)
	case StateSynRcvd:
		l.handleSynRcvd(sock, hdr, data)
	case StateEstablished, StateFinWait1, StateFinWait2, StateCloseWait, StateClosing, StateLastAck:
		l.handleConnected(sock, state, hdr, data)
	case StateTimeWait:
		// Absorb and re-ACK stray segments (spec §4.6: TIME_WAIT "holds
		// the 4-tuple ... to absorb stray segments").
		sock.mu.Lock()
		nxt := sock.sndNXT
		sock.mu.Unlock()
		_ = l.sendSegment(sock, FlagACK, nxt, nil)
	}
}

func (l *Layer) handleSynSent(sock *Socket, hdr Header) {
	sock.mu.Lock()
	if !hdr.SYN() {
		sock.mu.Unlock()
		return
	}
	if hdr.ACK() && hdr.AckNum != sock.sndNXT {
		sock.mu.Unlock()
		return
	}
	sock.irs = hdr.SeqNum
	sock.rcvNXT = hdr.SeqNum.Add(1)
	sock.sndWND = uint32(hdr.Window)
	wasACK := hdr.ACK()
	if wasACK {
		sock.sndUNA = hdr.AckNum
		sock.state = StateEstablished
	} else {
		// simultaneous open: SYN without ACK -> SYN_RCVD (RFC 793 sec 3.4)
		sock.state = StateSynRcvd
	}
	nxt := sock.sndNXT
	sock.mu.Unlock()

	flags := FlagACK
	if !wasACK {
		flags |= FlagSYN
	}
	_ = l.sendSegment(sock, flags, nxt, nil)
	sock.RWaiter.Notify(waiter.EventIn)
}

func (l *Layer) handleSynRcvd(sock *Socket, hdr Header, data []byte) {
	sock.mu.Lock()
	if !hdr.ACK() || hdr.AckNum != sock.sndNXT {
		sock.mu.Unlock()
		return
	}
	sock.sndUNA = hdr.AckNum
	sock.sndWND = uint32(hdr.Window)
	sock.state = StateEstablished
	parent := sock.parentListener
	sock.mu.Unlock()

	if parent != nil {
		parent.mu.Lock()
		parent.backlog = append(parent.backlog, sock)
		parent.mu.Unlock()
		parent.AcceptWaiter.Notify(waiter.EventIn)
	}

	if len(data) > 0 {
		l.handleConnected(sock, StateEstablished, hdr, data)
	}
}

// handleConnected is the common receive path for every post-handshake
// state: accept in-window data, advance RCV.NXT, process the FIN bit,
// and process the ACK field against the send side (spec §4.6's
// ESTABLISHED/FIN_WAIT_1/FIN_WAIT_2/CLOSE_WAIT/CLOSING/LAST_ACK rows).
func (l *Layer) handleConnected(sock *Socket, state State, hdr Header, data []byte) {
	if !acceptable(sock, hdr.SeqNum, len(data)) {
		_ = l.sendSegment(sock, FlagACK, sock.sndNXT, nil)
		return
	}

	l.processAck(sock, hdr)
	l.trySend(sock)
	gotFin := l.processData(sock, hdr, data)

	sock.mu.Lock()
	newState := sock.state
	nxt := sock.sndNXT
	sock.mu.Unlock()

	if gotFin {
		sock.RWaiter.Notify(waiter.EventHUp)
		switch newState {
		case StateEstablished:
			l.transition(sock, StateCloseWait)
			_ = l.sendSegment(sock, FlagACK, nxt, nil)
		case StateFinWait1:
			l.transition(sock, StateClosing)
			_ = l.sendSegment(sock, FlagACK, nxt, nil)
		case StateFinWait2:
			l.transition(sock, StateTimeWait)
			_ = l.sendSegment(sock, FlagACK, nxt, nil)
			l.armTimeWait(sock)
		}
	}

	// ACK of our own FIN: FIN_WAIT_1 -> FIN_WAIT_2, LAST_ACK -> CLOSED,
	// CLOSING -> TIME_WAIT.
	sock.mu.Lock()
	finAcked := sock.finSent && sock.sndUNA == sock.sndNXT
	st := sock.state
	sock.mu.Unlock()
	if finAcked {
		switch st {
		case StateFinWait1:
			l.transition(sock, StateFinWait2)
		case StateClosing:
			l.transition(sock, StateTimeWait)
			l.armTimeWait(sock)
		case StateLastAck:
			l.transition(sock, StateClosed)
			l.removeConn(sock)
		}
	}
}

// processData appends in-order payload to the receive buffer,
// re-orders genuinely out-of-order segments, and reports whether a FIN
// has now been contiguously received.
func (l *Layer) processData(sock *Socket, hdr Header, data []byte) (gotFin bool) {
	sock.mu.Lock()
	defer sock.mu.Unlock()

	seq := hdr.SeqNum
	if len(data) > 0 {
		if seq == sock.rcvNXT {
			sock.recvBuf = append(sock.recvBuf, data...)
			sock.rcvNXT = sock.rcvNXT.Add(uint32(len(data)))
			sock.mergeOutOfOrder()
		} else if sock.rcvNXT.Less(seq) {
			sock.insertOutOfOrder(seq, data)
		}
	}

	if hdr.FIN() {
		finSeq := hdr.SeqNum.Add(uint32(len(data)))
		if finSeq == sock.rcvNXT {
			sock.rcvNXT = sock.rcvNXT.Add(1)
			gotFin = true
		}
	}
	if len(data) > 0 {
		sock.RWaiter.Notify(waiter.EventIn)
	}
	return gotFin
}

// mergeOutOfOrder folds any buffered segments that have become
// contiguous with rcvNXT into recvBuf. Caller holds sock.mu.
func (s *Socket) mergeOutOfOrder() {
	for {
		sort.Slice(s.outOfOrder, func(i, j int) bool { return s.outOfOrder[i].seq.Less(s.outOfOrder[j].seq) })
		progressed := false
		for i, seg := range s.outOfOrder {
			if seg.seq == s.rcvNXT {
				s.recvBuf = append(s.recvBuf, seg.data...)
				s.rcvNXT = s.rcvNXT.Add(uint32(len(seg.data)))
				s.outOfOrder = append(s.outOfOrder[:i], s.outOfOrder[i+1:]...)
				progressed = true
				break
			}
		}
		if !progressed {
			return
		}
	}
}

// insertOutOfOrder buffers a future segment, rejecting one that
// duplicates or overlaps data already queued. Caller holds sock.mu.
func (s *Socket) insertOutOfOrder(seq Seq, data []byte) {
	end := seq.Add(uint32(len(data)))
	for _, seg := range s.outOfOrder {
		segEnd := seg.seq.Add(uint32(len(seg.data)))
		if seq.Less(segEnd) && seg.seq.Less(end) {
			return
		}
	}
	cp := append([]byte{}, data...)
	s.outOfOrder = append(s.outOfOrder, inSegment{seq: seq, data: cp})
}

// processAck implements spec §4.6's ACK processing: advance SND.UNA,
// drain the retransmission queue, update the RTT estimator, and run
// RFC 5681 congestion control; also detects and acts on triple
// duplicate ACKs (fast retransmit).
func (l *Layer) processAck(sock *Socket, hdr Header) {
	sock.mu.Lock()

	sock.sndWND = uint32(hdr.Window)

	if !hdr.ACK() {
		sock.mu.Unlock()
		return
	}

	if hdr.AckNum == sock.sndUNA {
		fastRetransmit := false
		if hdr.AckNum != sock.sndNXT {
			sock.dupAcks++
			if sock.dupAcks == 3 {
				sock.cong.onFastRetransmit()
				fastRetransmit = true
			}
		}
		sock.mu.Unlock()
		if fastRetransmit {
			l.retransmitOldest(sock)
		}
		return
	}

	if !(sock.sndUNA.Less(hdr.AckNum) && hdr.AckNum.LessEq(sock.sndNXT)) {
		sock.mu.Unlock()
		return // ack_num outside (SND.UNA, SND.NXT]; ignore
	}

	sock.dupAcks = 0
	ackedBytes := uint32(sock.sndUNA.Sub(hdr.AckNum))
	sock.sndUNA = hdr.AckNum

	var sampleFrom *outSegment
	kept := sock.retransQ[:0]
	for i := range sock.retransQ {
		seg := sock.retransQ[i]
		if seg.seq.Add(uint32(len(seg.data))).LessEq(hdr.AckNum) {
			if sampleFrom == nil && seg.retries == 0 {
				s := seg
				sampleFrom = &s
			}
			continue
		}
		kept = append(kept, seg)
	}
	sock.retransQ = kept

	if sampleFrom != nil {
		sock.cong.onRTTSample(time.Since(sampleFrom.sentAt))
	}
	if ackedBytes > 0 {
		sock.cong.onAck(ackedBytes)
	}
	retransEmpty := len(sock.retransQ) == 0
	sock.mu.Unlock()

	if retransEmpty {
		l.cancelRetransTimer(sock)
	} else {
		l.rearmRetransTimer(sock)
	}
}

func (l *Layer) transition(sock *Socket, to State) {
	sock.mu.Lock()
	sock.state = to
	sock.mu.Unlock()
	sock.RWaiter.Notify(waiter.EventIn | waiter.EventHUp)
}

func (l *Layer) abort(sock *Socket, err error) {
	sock.mu.Lock()
	if sock.state == StateClosed {
		sock.mu.Unlock()
		return
	}
	sock.state = StateClosed
	sock.pendingErr = err
	sock.mu.Unlock()

	l.cancelRetransTimer(sock)
	l.removeConn(sock)
	sock.RWaiter.Notify(waiter.EventIn | waiter.EventErr | waiter.EventHUp)
	sock.AcceptWaiter.Notify(waiter.EventErr)
}

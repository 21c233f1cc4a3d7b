package tcp

import (
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/waiter"
)

// rearmRetransTimer (re-)schedules the retransmission timer for the
// segment at SND.UNA using the socket's current RTO estimate (spec
// §4.6/§5: "retransmission timer ... fires at the current RTO
// estimate").
func (l *Layer) rearmRetransTimer(sock *Socket) {
	sock.mu.Lock()
	if sock.retransArmed {
		l.wheel.Cancel(sock.retransTimer)
	}
	rto := sock.cong.rto
	sock.retransArmed = true
	sock.mu.Unlock()

	h := l.wheel.Arm(rto, func() { l.onRetransTimeout(sock) })
	sock.mu.Lock()
	sock.retransTimer = h
	sock.mu.Unlock()
}

func (l *Layer) cancelRetransTimer(sock *Socket) {
	sock.mu.Lock()
	defer sock.mu.Unlock()
	if sock.retransArmed {
		l.wheel.Cancel(sock.retransTimer)
		sock.retransArmed = false
	}
}

// onRetransTimeout fires when the oldest unacknowledged segment's RTO
// expires: apply RFC 5681's timeout response, retransmit, and double
// the backoff, aborting after MaxBackoff (spec §4.6).
func (l *Layer) onRetransTimeout(sock *Socket) {
	sock.mu.Lock()
	if sock.state == StateClosed || len(sock.retransQ) == 0 {
		sock.retransArmed = false
		sock.mu.Unlock()
		return
	}
	sock.cong.onRTO()
	if sock.cong.backoff > MaxBackoff {
		sock.retransArmed = false
		sock.state = StateClosed
		sock.pendingErr = nerr.ErrTimeout
		sock.mu.Unlock()
		l.removeConn(sock)
		sock.RWaiter.Notify(waiter.EventErr | waiter.EventHUp)
		sock.AcceptWaiter.Notify(waiter.EventErr)
		return
	}
	seg := sock.retransQ[0]
	seg.retries++
	sock.retransQ[0] = seg
	sock.mu.Unlock()

	_ = l.sendSegment(sock, seg.flags, seg.seq, seg.data)
	if l.metrics != nil {
		l.metrics.TCPRetransCount.Inc()
	}
	l.rearmRetransTimer(sock)
}

// retransmitOldest resends the segment at SND.UNA immediately, used on
// the third duplicate ACK (spec §4.6's fast retransmit).
func (l *Layer) retransmitOldest(sock *Socket) {
	sock.mu.Lock()
	if len(sock.retransQ) == 0 {
		sock.mu.Unlock()
		return
	}
	seg := sock.retransQ[0]
	sock.mu.Unlock()
	_ = l.sendSegment(sock, seg.flags, seg.seq, seg.data)
	if l.metrics != nil {
		l.metrics.TCPRetransCount.Inc()
	}
}

// armTimeWait schedules the 2*MSL TIME_WAIT expiry that finally frees
// the connection's 4-tuple and local port (spec §4.6).
func (l *Layer) armTimeWait(sock *Socket) {
	h := l.wheel.Arm(2*MSL, func() {
		l.removeConn(sock)
		sock.mu.Lock()
		sock.state = StateClosed
		sock.mu.Unlock()
	})
	sock.mu.Lock()
	sock.timeWaitTimer = h
	sock.mu.Unlock()
}

// armPersistTimer schedules a zero-window probe (spec §4.6/§5: "persist
// timer ... probes a zero receive window at exponentially increasing
// intervals"). The interval reuses the RTO estimate rather than a
// separate counter, which grows on its own via onRTO-style backoff.
func (l *Layer) armPersistTimer(sock *Socket) {
	sock.mu.Lock()
	if sock.persistArmed {
		sock.mu.Unlock()
		return
	}
	sock.persistArmed = true
	interval := sock.cong.rto
	sock.mu.Unlock()

	h := l.wheel.Arm(interval, func() { l.onPersistFire(sock) })
	sock.mu.Lock()
	sock.persistTimer = h
	sock.mu.Unlock()
}

func (l *Layer) onPersistFire(sock *Socket) {
	sock.mu.Lock()
	sock.persistArmed = false
	if sock.sndWND != 0 || sock.state == StateClosed || len(sock.sendBuf) == 0 {
		sock.mu.Unlock()
		return
	}
	probe := append([]byte{}, sock.sendBuf[:1]...)
	seq := sock.sndNXT
	sock.mu.Unlock()

	_ = l.sendSegment(sock, FlagACK, seq, probe)
	interval := sock.cong.rto * 2
	if interval > MaxRTO2 {
		interval = MaxRTO2
	}
	sock.mu.Lock()
	sock.cong.rto = interval
	sock.mu.Unlock()
	l.armPersistTimer(sock)
}

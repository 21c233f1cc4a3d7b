package tcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/device/loopdev"
	"github.com/Ikey168/IKOS-sub006/pkg/link"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
	"github.com/Ikey168/IKOS-sub006/pkg/network/ipv4"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
)

// buildLoopbackLayer mirrors layer_test.go's buildLoopbackTCP but lives
// in package tcp (not tcp_test) so these tests can reach unexported
// Socket and Layer fields directly.
func buildLoopbackLayer(t *testing.T) (*Layer, addr.IPv4) {
	t.Helper()
	pool := netbuf.NewPool(256, netbuf.DefaultCapacity)
	reg := device.NewRegistry(nil, nil)
	lo := loopdev.New("lo", reg)
	require.NoError(t, reg.Register(lo))
	require.NoError(t, reg.Up(lo))

	loAddr := addr.IPv4{127, 0, 0, 1}
	lo.Configure(loAddr, addr.CIDRMask(8), addr.IPv4{})

	linkLayer := link.New(reg, pool, nil, nil)
	reg.SetReceiveHandler(linkLayer.ReceiveFrame)

	routes := ipv4.NewRoutingTable()
	routes.Add(ipv4.Route{Destination: loAddr, Netmask: addr.CIDRMask(8), Interface: lo, Type: ipv4.RouteDirect})

	wheel := timerwheel.New(time.Millisecond, nil)
	wheel.Start()
	t.Cleanup(wheel.Stop)

	neighbors := ipv4.NewStaticNeighbors()
	neighbors.Set(loAddr, addr.LinkAddr{})

	ipLayer := ipv4.New(linkLayer, routes, wheel, neighbors, pool, nil, nil)
	return New(ipLayer, wheel, 49152, 65535, nil, nil), loAddr
}

// newEstablishedSocket fabricates a Socket in StateEstablished bound to
// a remote address with no route, so sendSegment's underlying ip.Send
// fails closed without actually putting a frame on the wire — trySend
// ignores that error (spec §4.6 treats send as best-effort, retried by
// the retransmission timer), which makes the socket's sequence-space
// bookkeeping observable without any loopback round trip racing the
// assertions below.
func newEstablishedSocket(t *testing.T, l *Layer, localAddr addr.IPv4, localPort, remotePort uint16) *Socket {
	t.Helper()
	sock := newSocket(l)
	sock.localAddr, sock.remoteAddr = localAddr, addr.IPv4{10, 0, 0, 1}
	sock.localPort, sock.remotePort = localPort, remotePort
	sock.iss = l.nextISS()
	sock.sndUNA, sock.sndNXT = sock.iss, sock.iss.Add(1)
	sock.rcvNXT = Seq(1)
	sock.state = StateEstablished
	l.mu.Lock()
	l.conns[fourTuple{localAddr, sock.remoteAddr, localPort, remotePort}] = sock
	l.mu.Unlock()
	return sock
}

// TestTrySendNeverExceedsAdvertisedWindow drives trySend with a
// congestion window that has grown well past the peer's advertised
// window (the normal state after a few RTTs of congestion-avoidance
// growth past the 65535-byte default) and asserts SND.NXT never
// advances past SND.UNA + SND.WND (spec.md's invariant "SND.UNA <=
// SND.NXT <= SND.UNA + SND.WND").
func TestTrySendNeverExceedsAdvertisedWindow(t *testing.T) {
	layer, loAddr := buildLoopbackLayer(t)
	sock := newEstablishedSocket(t, layer, loAddr, 49200, 9300)

	sock.mu.Lock()
	sock.sndWND = 2000
	sock.cong.cwnd = 50000 // past sndWND, as congestion avoidance eventually grows it
	sock.sendBuf = make([]byte, 100000)
	sock.mu.Unlock()

	layer.trySend(sock)

	sock.mu.Lock()
	inFlight := sock.sndUNA.Sub(sock.sndNXT) // sndNXT - sndUNA, signed
	wnd := sock.sndWND
	sock.mu.Unlock()

	require.GreaterOrEqual(t, inFlight, int32(0))
	require.LessOrEqual(t, uint32(inFlight), wnd, "SND.NXT must not advance past SND.UNA + SND.WND")
	require.EqualValues(t, wnd, inFlight, "trySend should fill exactly the advertised window, no more")
}

// TestRetransmitOnLossResendsAndBacksOff exercises spec §8 scenario 3
// (retransmission on loss): the oldest unacknowledged segment's RTO
// fires, the segment is resent, and the backoff/RTO state advances
// (RFC 6298 sec 5.5).
func TestRetransmitOnLossResendsAndBacksOff(t *testing.T) {
	layer, loAddr := buildLoopbackLayer(t)
	sock := newEstablishedSocket(t, layer, loAddr, 49201, 9301)

	sock.mu.Lock()
	seq := sock.sndNXT
	sock.sendBuf = nil
	sock.retransQ = []outSegment{{seq: seq, data: []byte("lost segment"), flags: FlagACK | FlagPSH, sentAt: time.Now()}}
	sock.sndNXT = seq.Add(uint32(len("lost segment")))
	initialRTO := sock.cong.rto
	sock.mu.Unlock()

	layer.onRetransTimeout(sock)

	sock.mu.Lock()
	defer sock.mu.Unlock()
	require.Len(t, sock.retransQ, 1)
	require.Equal(t, 1, sock.retransQ[0].retries, "the lost segment must be retransmitted")
	require.Equal(t, 1, sock.cong.backoff)
	require.Equal(t, 2*initialRTO, sock.cong.rto, "RTO must double on timeout (RFC 6298 sec 5.5)")
	require.Equal(t, sock.cong.mss, sock.cong.cwnd, "cwnd resets to one segment on RTO (RFC 5681 sec 3.1)")
	require.True(t, sock.retransArmed, "the retransmission timer must be rearmed for the next attempt")
}

// TestRetransmitOnLossGivesUpAfterMaxBackoff exercises the rest of
// scenario 3: once backoff exceeds MaxBackoff the connection is
// abandoned with ErrTimeout instead of retrying forever.
func TestRetransmitOnLossGivesUpAfterMaxBackoff(t *testing.T) {
	layer, loAddr := buildLoopbackLayer(t)
	sock := newEstablishedSocket(t, layer, loAddr, 49202, 9302)

	sock.mu.Lock()
	sock.retransQ = []outSegment{{seq: sock.sndNXT, data: []byte("x"), flags: FlagACK | FlagPSH, sentAt: time.Now()}}
	sock.sndNXT = sock.sndNXT.Add(1)
	sock.cong.backoff = MaxBackoff
	sock.mu.Unlock()

	layer.onRetransTimeout(sock)

	require.Equal(t, StateClosed, sock.State())
	sock.mu.Lock()
	defer sock.mu.Unlock()
	require.ErrorIs(t, sock.pendingErr, nerr.ErrTimeout)
}

// TestTimeWaitHoldsPortUntilExpiry exercises spec §8 scenario 6
// (TIME_WAIT reuse): the 4-tuple and local port stay reserved for the
// lifetime of TIME_WAIT and only become available once the 2*MSL timer
// fires (simulated here directly, since waiting out the real 60s 2*MSL
// is not practical in a unit test).
func TestTimeWaitHoldsPortUntilExpiry(t *testing.T) {
	layer, loAddr := buildLoopbackLayer(t)
	port, err := layer.ports.allocate()
	require.NoError(t, err)
	sock := newEstablishedSocket(t, layer, loAddr, port, 9303)

	sock.mu.Lock()
	sock.state = StateTimeWait
	sock.mu.Unlock()

	require.True(t, layer.ports.test(port), "the port must stay reserved while the connection is in TIME_WAIT")
	require.Error(t, layer.ports.reserve(port), "a port held by a TIME_WAIT connection must not be reusable yet")

	other, err := layer.ports.allocate()
	require.NoError(t, err, "a different ephemeral port must still be allocatable")
	require.NotEqual(t, port, other)

	// Simulate the 2*MSL timer firing: armTimeWait's own callback does
	// exactly this pair of steps.
	layer.removeConn(sock)
	sock.mu.Lock()
	sock.state = StateClosed
	sock.mu.Unlock()

	require.False(t, layer.ports.test(port), "the port must be released once TIME_WAIT expires")
	require.NoError(t, layer.ports.reserve(port), "the port must be reusable once TIME_WAIT expires")
}

package tcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCongestionStateInitialValues(t *testing.T) {
	c := newCongestionState(1460)
	require.EqualValues(t, 4380, c.cwnd) // min(4*1460, max(2*1460, 4380)) = min(5840, 4380)
	require.EqualValues(t, InitialSSThresh, c.ssthresh)
	require.Equal(t, MinRTO, c.rto)
}

func TestCongestionSlowStartGrowsByMSS(t *testing.T) {
	c := newCongestionState(1460)
	before := c.cwnd
	c.onAck(1460)
	require.Equal(t, before+1460, c.cwnd)
}

func TestCongestionAvoidanceGrowsSublinearly(t *testing.T) {
	c := newCongestionState(1460)
	c.ssthresh = c.cwnd // force congestion avoidance
	before := c.cwnd
	c.onAck(1460)
	require.Less(t, c.cwnd-before, uint32(1460))
}

func TestFastRetransmitHalvesWindow(t *testing.T) {
	c := newCongestionState(1460)
	c.cwnd = 20000
	c.onFastRetransmit()
	require.EqualValues(t, 10000, c.ssthresh)
	require.EqualValues(t, 10000+3*1460, c.cwnd)
}

func TestOnRTOResetsCwndAndDoublesRTO(t *testing.T) {
	c := newCongestionState(1460)
	c.rto = time.Second
	c.onRTO()
	require.EqualValues(t, c.mss, c.cwnd)
	require.Equal(t, 2*time.Second, c.rto)
	require.Equal(t, 1, c.backoff)
}

func TestOnRTTSampleUpdatesSRTT(t *testing.T) {
	c := newCongestionState(1460)
	c.onRTTSample(100 * time.Millisecond)
	require.Equal(t, 100*time.Millisecond, c.srtt)
	require.True(t, c.rttMeasured)

	c.onRTTSample(200 * time.Millisecond)
	require.Greater(t, c.srtt, 100*time.Millisecond)
	require.Equal(t, 0, c.backoff)
}

func TestClampRTOBounds(t *testing.T) {
	require.Equal(t, MinRTO, clampRTO(time.Millisecond))
	require.Equal(t, MaxRTO, clampRTO(time.Hour))
}

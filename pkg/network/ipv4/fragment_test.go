package ipv4_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/network/ipv4"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
)

func newTestReassembler() *ipv4.Reassembler {
	wheel := timerwheel.New(time.Millisecond, nil)
	return ipv4.NewReassembler(wheel, nil, nil)
}

func TestReassemblyInOrder(t *testing.T) {
	r := newTestReassembler()
	src, dst := addr.IPv4{10, 0, 0, 1}, addr.IPv4{10, 0, 0, 2}

	first := make([]byte, 8)
	for i := range first {
		first[i] = byte(i)
	}
	second := []byte{9, 9, 9}

	complete, err := r.Insert(src, dst, ipv4.ProtoUDP, 42, 0, true, first)
	require.NoError(t, err)
	require.Nil(t, complete)

	complete, err = r.Insert(src, dst, ipv4.ProtoUDP, 42, 8, false, second)
	require.NoError(t, err)
	require.Equal(t, append(first, second...), complete)
	require.Equal(t, 0, r.Pending())
}

func TestReassemblyOutOfOrder(t *testing.T) {
	r := newTestReassembler()
	src, dst := addr.IPv4{10, 0, 0, 1}, addr.IPv4{10, 0, 0, 2}

	first := make([]byte, 8)
	second := []byte{1, 2, 3}

	complete, err := r.Insert(src, dst, ipv4.ProtoUDP, 7, 8, false, second)
	require.NoError(t, err)
	require.Nil(t, complete)

	complete, err = r.Insert(src, dst, ipv4.ProtoUDP, 7, 0, true, first)
	require.NoError(t, err)
	require.Equal(t, append(first, second...), complete)
}

func TestReassemblyRejectsOverlap(t *testing.T) {
	r := newTestReassembler()
	src, dst := addr.IPv4{10, 0, 0, 1}, addr.IPv4{10, 0, 0, 2}

	_, err := r.Insert(src, dst, ipv4.ProtoUDP, 1, 0, true, make([]byte, 8))
	require.NoError(t, err)

	_, err = r.Insert(src, dst, ipv4.ProtoUDP, 1, 4, false, make([]byte, 4))
	require.ErrorIs(t, err, nerr.ErrInvalidArgument)
}

func TestReassemblyDistinctKeysDoNotInterfere(t *testing.T) {
	r := newTestReassembler()
	src, dst := addr.IPv4{10, 0, 0, 1}, addr.IPv4{10, 0, 0, 2}

	_, err := r.Insert(src, dst, ipv4.ProtoUDP, 1, 0, true, make([]byte, 8))
	require.NoError(t, err)
	_, err = r.Insert(src, dst, ipv4.ProtoTCP, 1, 0, true, make([]byte, 8))
	require.NoError(t, err)

	require.Equal(t, 2, r.Pending())
}

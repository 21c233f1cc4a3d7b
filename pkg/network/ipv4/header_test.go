package ipv4_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/network/ipv4"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	h := ipv4.Header{
		TOS:            0,
		TotalLength:    40,
		ID:             0x1234,
		Flags:          ipv4.FlagDF,
		FragmentOffset: 0,
		TTL:            ipv4.DefaultTTL,
		Protocol:       ipv4.ProtoTCP,
		Src:            addr.IPv4{10, 0, 0, 1},
		Dst:            addr.IPv4{10, 0, 0, 2},
	}
	buf := make([]byte, 40)
	ipv4.Marshal(h, buf)

	got, err := ipv4.Parse(buf)
	require.NoError(t, err)
	require.Equal(t, h.ID, got.ID)
	require.Equal(t, h.Flags, got.Flags)
	require.Equal(t, h.Protocol, got.Protocol)
	require.Equal(t, h.Src, got.Src)
	require.Equal(t, h.Dst, got.Dst)
}

func TestParseRejectsBadChecksum(t *testing.T) {
	h := ipv4.Header{TotalLength: 20, Protocol: ipv4.ProtoUDP}
	buf := make([]byte, 20)
	ipv4.Marshal(h, buf)
	buf[1] ^= 0xff // corrupt TOS without fixing checksum

	_, err := ipv4.Parse(buf)
	require.ErrorIs(t, err, nerr.ErrChecksumMismatch)
}

func TestParseRejectsShortBuffer(t *testing.T) {
	_, err := ipv4.Parse(make([]byte, 10))
	require.ErrorIs(t, err, nerr.ErrInvalidArgument)
}

func TestParseRejectsBadVersion(t *testing.T) {
	buf := make([]byte, 20)
	buf[0] = 0x50 // version 5
	_, err := ipv4.Parse(buf)
	require.ErrorIs(t, err, nerr.ErrInvalidArgument)
}

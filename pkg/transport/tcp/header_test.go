package tcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderMarshalParseRoundTrip(t *testing.T) {
	hdr := Header{
		SrcPort:   1234,
		DstPort:   80,
		SeqNum:    Seq(1000),
		AckNum:    Seq(2000),
		Flags:     FlagSYN | FlagACK,
		Window:    65535,
		UrgentPtr: 0,
	}
	buf := make([]byte, MinHeaderLen)
	MarshalHeader(hdr, buf)

	got, err := ParseHeader(buf)
	require.NoError(t, err)
	require.Equal(t, hdr.SrcPort, got.SrcPort)
	require.Equal(t, hdr.DstPort, got.DstPort)
	require.Equal(t, hdr.SeqNum, got.SeqNum)
	require.Equal(t, hdr.AckNum, got.AckNum)
	require.Equal(t, hdr.Flags, got.Flags)
	require.Equal(t, hdr.Window, got.Window)
	require.EqualValues(t, 5, got.DataOffset)
	require.True(t, got.SYN())
	require.True(t, got.ACK())
	require.False(t, got.FIN())
}

func TestParseHeaderRejectsShortBuffer(t *testing.T) {
	_, err := ParseHeader(make([]byte, 10))
	require.Error(t, err)
}

func TestFlagHelpers(t *testing.T) {
	hdr := Header{Flags: FlagFIN | FlagRST | FlagPSH}
	require.True(t, hdr.FIN())
	require.True(t, hdr.RST())
	require.True(t, hdr.PSH())
	require.False(t, hdr.SYN())
	require.False(t, hdr.ACK())
}

package checksum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeVerifyRoundTrip(t *testing.T) {
	pkt := []byte{0x45, 0x00, 0x00, 0x1c, 0x1c, 0x46, 0x40, 0x00, 0x40, 0x01, 0x00, 0x00, 0xac, 0x10, 0x0a, 0x63, 0xac, 0x10, 0x0a, 0x0c}
	pkt[10], pkt[11] = 0, 0
	sum := Compute(pkt)
	pkt[10] = byte(sum >> 8)
	pkt[11] = byte(sum)

	require.Equal(t, uint16(0), Compute(pkt))
}

func TestMutationChangesChecksum(t *testing.T) {
	pkt := []byte{0x45, 0x00, 0x00, 0x1c, 0x1c, 0x46, 0x40, 0x00, 0x40, 0x01, 0x00, 0x00, 0xac, 0x10, 0x0a, 0x63, 0xac, 0x10, 0x0a, 0x0c}
	base := Compute(pkt)
	pkt[2] ^= 0xff
	require.NotEqual(t, base, Compute(pkt))
}

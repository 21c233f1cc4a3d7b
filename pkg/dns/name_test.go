package dns_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/dns"
)

func TestEncodeDecodeNameRoundTrip(t *testing.T) {
	encoded, err := dns.EncodeName("www.Example.com")
	require.NoError(t, err)

	decoded, next, err := dns.DecodeName(encoded, 0)
	require.NoError(t, err)
	require.Equal(t, "www.example.com", decoded)
	require.Equal(t, len(encoded), next)
}

func TestEncodeNameRejectsOverlongLabel(t *testing.T) {
	label := make([]byte, 64)
	for i := range label {
		label[i] = 'a'
	}
	_, err := dns.EncodeName(string(label) + ".com")
	require.Error(t, err)
}

func TestDecodeNameFollowsCompressionPointer(t *testing.T) {
	msg := []byte{}
	msg = append(msg, 3, 'c', 'o', 'm', 0) // offset 0: "com."
	// offset 5: "example" + pointer to offset 0
	msg = append(msg, 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 0xC0, 0x00)

	decoded, _, err := dns.DecodeName(msg, 5)
	require.NoError(t, err)
	require.Equal(t, "example.com", decoded)
}

func TestDecodeNameRejectsPointerLoop(t *testing.T) {
	msg := []byte{0xC0, 0x00} // points to itself
	_, _, err := dns.DecodeName(msg, 0)
	require.Error(t, err)
}

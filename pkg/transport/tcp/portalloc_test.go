package tcp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

func TestPortAllocatorScansForwardAndWraps(t *testing.T) {
	p := newPortAllocator(49152, 49154)
	a, err := p.allocate()
	require.NoError(t, err)
	require.Equal(t, uint16(49152), a)

	b, err := p.allocate()
	require.NoError(t, err)
	require.Equal(t, uint16(49153), b)

	c, err := p.allocate()
	require.NoError(t, err)
	require.Equal(t, uint16(49154), c)

	_, err = p.allocate()
	require.ErrorIs(t, err, nerr.ErrAddressInUse)

	p.release(a)
	d, err := p.allocate()
	require.NoError(t, err)
	require.Equal(t, a, d)
}

func TestPortAllocatorReserveRejectsDuplicate(t *testing.T) {
	p := newPortAllocator(49152, 65535)
	require.NoError(t, p.reserve(9000))
	require.ErrorIs(t, p.reserve(9000), nerr.ErrAddressInUse)
	p.release(9000)
	require.NoError(t, p.reserve(9000))
}

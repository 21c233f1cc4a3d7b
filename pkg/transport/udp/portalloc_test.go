package udp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/transport/udp"
)

func TestPortAllocatorScansForwardAndWraps(t *testing.T) {
	p := udp.NewPortAllocator(49152, 49154)

	a, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, uint16(49152), a)

	b, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, uint16(49153), b)

	c, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, uint16(49154), c)

	_, err = p.Allocate()
	require.ErrorIs(t, err, nerr.ErrAddressInUse)

	p.Release(a)
	d, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, a, d)
}

func TestPortAllocatorReserveRejectsDuplicate(t *testing.T) {
	p := udp.NewPortAllocator(49152, 65535)
	require.NoError(t, p.Reserve(53))
	require.ErrorIs(t, p.Reserve(53), nerr.ErrAddressInUse)
	p.Release(53)
	require.NoError(t, p.Reserve(53))
}

package netbuf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

func TestPoolAllocFree(t *testing.T) {
	p := NewPool(2, 128)
	require.Equal(t, Stats{FreeCount: 2}, p.Stats())

	b1, err := p.Alloc(64)
	require.NoError(t, err)
	require.Equal(t, 0, b1.Len())

	b2, err := p.Alloc(128)
	require.NoError(t, err)

	_, err = p.Alloc(1)
	require.ErrorIs(t, err, nerr.ErrNoBufferSpace)
	require.Equal(t, uint64(1), p.Stats().AllocFailures)

	p.Free(b1)
	require.Equal(t, 1, p.Stats().FreeCount)
	p.Free(b2)
	require.Equal(t, 2, p.Stats().FreeCount)
}

func TestPoolAllocTooLarge(t *testing.T) {
	p := NewPool(1, 64)
	_, err := p.Alloc(65)
	require.ErrorIs(t, err, nerr.ErrInvalidArgument)
}

func TestReserveThenPushPull(t *testing.T) {
	p := NewPool(1, 256)
	b, err := p.Alloc(100)
	require.NoError(t, err)

	require.NoError(t, b.Reserve(64))
	require.Equal(t, 64, b.Headroom())
	require.Equal(t, 0, b.Len())

	require.NoError(t, b.Put(40))
	require.Equal(t, 40, b.Len())

	hdr, err := b.PushHeader(20)
	require.NoError(t, err)
	require.Len(t, hdr, 20)
	require.Equal(t, 60, b.Len())

	stripped, err := b.PullHeader(20)
	require.NoError(t, err)
	require.Len(t, stripped, 20)
	require.Equal(t, 40, b.Len())
}

func TestBoundaryCrossRejected(t *testing.T) {
	p := NewPool(1, 32)
	b, err := p.Alloc(32)
	require.NoError(t, err)

	require.NoError(t, b.Reserve(16))
	require.ErrorIs(t, b.Put(17), nerr.ErrBoundaryCross)
	require.ErrorIs(t, b.Push(17), nerr.ErrBoundaryCross)

	require.NoError(t, b.Put(16))
	require.ErrorIs(t, b.Pull(33), nerr.ErrBoundaryCross)
}

func TestPutPullRoundTrips(t *testing.T) {
	p := NewPool(1, 256)
	b, err := p.Alloc(256)
	require.NoError(t, err)

	require.NoError(t, b.Reserve(32))
	before := b.head
	require.NoError(t, b.Put(50))
	require.NoError(t, b.Pull(50))
	require.Equal(t, before+50, b.head)
	require.Equal(t, 0, b.Len())
}

package device_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/device/loopdev"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
)

func TestRegisterDuplicateName(t *testing.T) {
	reg := device.NewRegistry(nil, nil)
	lo := loopdev.New("lo", reg)
	require.NoError(t, reg.Register(lo))

	dup := loopdev.New("lo", reg)
	require.ErrorIs(t, reg.Register(dup), nerr.ErrDuplicateName)
}

func TestLookupByNameAndIndex(t *testing.T) {
	reg := device.NewRegistry(nil, nil)
	lo := loopdev.New("lo", reg)
	require.NoError(t, reg.Register(lo))

	found, err := reg.LookupByName("lo")
	require.NoError(t, err)
	require.Same(t, lo, found)

	found, err = reg.LookupByIndex(lo.Index())
	require.NoError(t, err)
	require.Same(t, lo, found)

	_, err = reg.LookupByName("eth9")
	require.ErrorIs(t, err, nerr.ErrNoSuchDevice)
}

func TestTransmitRefusesWhenDown(t *testing.T) {
	reg := device.NewRegistry(nil, nil)
	lo := loopdev.New("lo", reg)
	require.NoError(t, reg.Register(lo))

	pool := netbuf.NewPool(1, 256)
	buf, err := pool.Alloc(10)
	require.NoError(t, err)

	err = reg.Transmit(lo, buf)
	require.ErrorIs(t, err, nerr.ErrDeviceDown)
}

func TestUpLoopsReceiveBackThroughTransmit(t *testing.T) {
	reg := device.NewRegistry(nil, nil)
	lo := loopdev.New("lo", reg)
	require.NoError(t, reg.Register(lo))
	require.NoError(t, reg.Up(lo))
	require.True(t, lo.IsUp())

	var gotProto uint16
	reg.SetReceiveHandler(func(dev *device.Device, buf *netbuf.Netbuf) {
		gotProto = buf.Proto
	})

	pool := netbuf.NewPool(1, 256)
	buf, err := pool.Alloc(10)
	require.NoError(t, err)
	buf.Proto = 0x0800
	require.NoError(t, reg.Transmit(lo, buf))
	require.Equal(t, uint16(0x0800), gotProto)
}

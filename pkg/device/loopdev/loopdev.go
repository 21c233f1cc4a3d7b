// Package loopdev implements the loopback network device (spec §3's
// loopback device type and the "two sockets on 127.0.0.1" scenarios of
// spec §8). Frames handed to StartXmit are delivered straight back
// through the registry's receive path; there is no physical framing.
package loopdev

import (
	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
)

// MTU is the conventional loopback MTU (spec §4.2 device entity has an
// MTU field; 65535 lets a full-size reassembled datagram pass through
// unfragmented).
const MTU = 65535

type ops struct {
	registry *device.Registry
}

func (o *ops) Open(dev *device.Device) error  { return nil }
func (o *ops) Close(dev *device.Device) error { return nil }

func (o *ops) StartXmit(dev *device.Device, buf *netbuf.Netbuf) error {
	return o.registry.Receive(dev, buf)
}

func (o *ops) SetMACAddr(dev *device.Device, a addr.LinkAddr) error { return nil }

func (o *ops) IOCtl(dev *device.Device, cmd int, arg any) (any, error) {
	return nil, nil
}

// New constructs a loopback device named name, not yet registered.
// registry is the same registry the caller will subsequently Register
// the device into (StartXmit loops frames back through it).
func New(name string, registry *device.Registry) *device.Device {
	dev := device.New(name, device.TypeLoopback, MTU, addr.LinkAddr{}, &ops{registry: registry})
	return dev
}

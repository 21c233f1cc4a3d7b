//go:build linux

// Package tapdev implements a Linux TAP-backed network device (spec §6
// "Device-driver interface (consumed)"): a real driver the registry can
// register, bring up, and transmit/receive through, used by
// cmd/netstackctl run and integration tests that want to exchange
// frames with the host kernel's network stack. Grounded on
// runZeroInc-conniver/sockstats's pkg/linux syscall-wrapping style and
// HydraDNS's raw-socket buffer-size tuning (other_examples).
package tapdev

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
)

const (
	ifNameSize = 16
	iffTap     = 0x0002
	iffNoPI    = 0x1000
	tunSetIff  = 0x400454ca

	// RecvBufferSize/SendBufferSize mirror HydraDNS's 4MB socket
	// buffers for high-throughput UDP. Open does not apply them to the
	// TAP file descriptor.
	RecvBufferSize = 4 * 1024 * 1024
	SendBufferSize = 4 * 1024 * 1024
)

type ifReq struct {
	Name  [ifNameSize]byte
	Flags uint16
	_     [22]byte // pad to match struct ifreq's union size
}

// ops implements device.Ops against an open TAP file descriptor.
type ops struct {
	fd       *os.File
	pool     *netbuf.Pool
	registry *device.Registry
	done     chan struct{}
}

// Open creates (or attaches to) a TAP interface named ifName and
// returns a device.Device driven by it. pool supplies buffers for the
// read loop; registry is the same registry the caller will
// subsequently Register the device into, and is the read loop's
// hand-off point to the link layer, mirroring loopdev's pattern.
func Open(ifName string, mtu int, hwAddr addr.LinkAddr, pool *netbuf.Pool, registry *device.Registry) (*device.Device, error) {
	fd, err := os.OpenFile("/dev/net/tun", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tapdev: open /dev/net/tun: %w", err)
	}

	var req ifReq
	copy(req.Name[:], ifName)
	req.Flags = iffTap | iffNoPI

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd.Fd(), tunSetIff, uintptr(unsafe.Pointer(&req))); errno != 0 {
		fd.Close()
		return nil, fmt.Errorf("tapdev: TUNSETIFF: %w", errno)
	}

	o := &ops{fd: fd, pool: pool, registry: registry, done: make(chan struct{})}
	dev := device.New(ifName, device.TypeEthernet, mtu, hwAddr, o)
	return dev, nil
}

func (o *ops) Open(dev *device.Device) error {
	go o.readLoop(dev)
	return nil
}

func (o *ops) Close(dev *device.Device) error {
	close(o.done)
	return o.fd.Close()
}

func (o *ops) StartXmit(dev *device.Device, buf *netbuf.Netbuf) error {
	_, err := o.fd.Write(buf.Bytes())
	o.pool.Free(buf)
	return err
}

func (o *ops) SetMACAddr(dev *device.Device, a addr.LinkAddr) error { return nil }

func (o *ops) IOCtl(dev *device.Device, cmd int, arg any) (any, error) { return nil, nil }

func (o *ops) readLoop(dev *device.Device) {
	for {
		select {
		case <-o.done:
			return
		default:
		}

		buf, err := o.pool.Alloc(dev.MTU() + 14)
		if err != nil {
			continue
		}
		n, err := o.fd.Read(buf.TailSlice())
		if err != nil {
			o.pool.Free(buf)
			return
		}
		if err := buf.Put(n); err != nil {
			o.pool.Free(buf)
			continue
		}

		if err := o.registry.Receive(dev, buf); err != nil {
			o.pool.Free(buf)
		}
	}
}

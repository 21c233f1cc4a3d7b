//go:build !linux

package tapdev

import (
	"errors"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
)

// Open is unavailable outside Linux; TAP device creation is a
// Linux-specific ioctl (TUNSETIFF) with no portable equivalent.
func Open(ifName string, mtu int, hwAddr addr.LinkAddr, pool *netbuf.Pool, registry *device.Registry) (*device.Device, error) {
	return nil, errors.New("tapdev: not supported on this platform")
}

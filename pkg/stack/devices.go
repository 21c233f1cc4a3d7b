package stack

import (
	"fmt"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/config"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/device/loopdev"
	"github.com/Ikey168/IKOS-sub006/pkg/device/tapdev"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
)

// syntheticHWAddr derives a stable, locally-administered MAC for a
// tapdev interface from its name: the host kernel assigns the real
// address to the tap device itself, but the device.Device abstraction
// wants one up front to answer addr.LinkAddr queries and build Ethernet
// frames before the kernel hands one back.
func syntheticHWAddr(name string) addr.LinkAddr {
	var a addr.LinkAddr
	a[0] = 0x02 // locally administered, unicast
	copy(a[1:], name)
	return a
}

// bringUpInterface constructs, registers, and brings up the device
// named by ifc (a loopback device for "lo", a host TAP device
// otherwise), configures its address, and returns the device alongside
// its parsed IP and netmask (spec §6: "Per-interface: IP address,
// netmask, gateway, MTU, flags").
func bringUpInterface(registry *device.Registry, pool *netbuf.Pool, ifc config.Interface) (dev *device.Device, ip, netmask, gateway addr.IPv4, err error) {
	ip, err = addr.ParseIPv4(ifc.Address)
	if err != nil {
		return nil, addr.IPv4{}, addr.IPv4{}, addr.IPv4{}, fmt.Errorf("stack: parsing address %q for %q: %w", ifc.Address, ifc.Name, err)
	}
	netmask, err = addr.ParseIPv4(ifc.Netmask)
	if err != nil {
		return nil, addr.IPv4{}, addr.IPv4{}, addr.IPv4{}, fmt.Errorf("stack: parsing netmask %q for %q: %w", ifc.Netmask, ifc.Name, err)
	}

	if ifc.Name == "lo" {
		dev = loopdev.New(ifc.Name, registry)
	} else {
		dev, err = tapdev.Open(ifc.Name, ifc.MTU, syntheticHWAddr(ifc.Name), pool, registry)
		if err != nil {
			return nil, addr.IPv4{}, addr.IPv4{}, addr.IPv4{}, fmt.Errorf("stack: opening tap %q: %w", ifc.Name, err)
		}
	}
	if err := registry.Register(dev); err != nil {
		return nil, addr.IPv4{}, addr.IPv4{}, addr.IPv4{}, fmt.Errorf("stack: registering %q: %w", ifc.Name, err)
	}

	if ifc.Gateway != "" {
		gateway, err = addr.ParseIPv4(ifc.Gateway)
		if err != nil {
			return nil, addr.IPv4{}, addr.IPv4{}, addr.IPv4{}, fmt.Errorf("stack: parsing gateway %q for %q: %w", ifc.Gateway, ifc.Name, err)
		}
	}
	dev.Configure(ip, netmask, gateway)

	if ifc.Up {
		if err := registry.Up(dev); err != nil {
			return nil, addr.IPv4{}, addr.IPv4{}, addr.IPv4{}, fmt.Errorf("stack: bringing up %q: %w", ifc.Name, err)
		}
	}
	return dev, ip, netmask, gateway, nil
}

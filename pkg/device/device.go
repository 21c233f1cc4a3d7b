// Package device implements the network device registry (spec §4.2):
// the entity model for a network interface, its vtable, and the
// registry that enumerates and drives it. Grounded on gVisor's NIC
// abstraction (other_examples' runsc/boot/network.go, stack's
// transport_demuxer.go) for the "registry owns devices, devices are
// polymorphic over a small operations vtable" shape.
package device

import (
	"sync"
	"sync/atomic"

	"golang.org/x/net/bpf"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
)

// Type distinguishes device kinds (spec §3: "type (Ethernet/loopback)").
type Type int

const (
	TypeEthernet Type = iota
	TypeLoopback
)

func (t Type) String() string {
	if t == TypeLoopback {
		return "loopback"
	}
	return "ethernet"
}

// Flags are the device flags named in spec §3.
type Flags uint32

const (
	FlagUp Flags = 1 << iota
	FlagBroadcast
	FlagMulticast
	FlagPromisc
)

// Stats mirrors the statistics counters spec §4.2 requires.
type Stats struct {
	RxPackets uint64
	TxPackets uint64
	RxErrors  uint64
	TxErrors  uint64
	TxDropped uint64
}

// Ops is the capability set a driver implements (spec §6 "Device-driver
// interface (consumed)"): a device is polymorphic over this vtable, not
// over an inheritance hierarchy (spec §9).
type Ops interface {
	// Open enables reception on dev. Called by Registry.Up.
	Open(dev *Device) error
	// Close disables dev. Called by Registry.Down.
	Close(dev *Device) error
	// StartXmit consumes or defers buf. On defer, the driver owns buf
	// until its transmission completes, at which point the driver
	// returns it to the pool itself.
	StartXmit(dev *Device, buf *netbuf.Netbuf) error
	// SetMACAddr reprograms the device's hardware address.
	SetMACAddr(dev *Device, a addr.LinkAddr) error
	// IOCtl is an optional escape hatch for driver-specific controls;
	// implementations that have none can return ErrInvalidArgument.
	IOCtl(dev *Device, cmd int, arg any) (any, error)
}

// Device is a registered network interface (spec §3 "Network device").
type Device struct {
	mu sync.RWMutex

	name  string
	index int
	typ   Type

	mtu    int
	hwAddr addr.LinkAddr

	ipAddr  addr.IPv4
	netmask addr.IPv4
	gateway addr.IPv4

	flags uint32 // atomic bitmask of Flags

	ops    Ops
	filter *bpf.VM // optional; nil means "accept everything"

	stats Stats
}

// New constructs a device entity. It is not usable until registered
// with a Registry and brought Up.
func New(name string, typ Type, mtu int, hwAddr addr.LinkAddr, ops Ops) *Device {
	return &Device{name: name, typ: typ, mtu: mtu, hwAddr: hwAddr, ops: ops, index: -1}
}

func (d *Device) Name() string  { return d.name }
func (d *Device) Index() int    { return d.index }
func (d *Device) Type() Type    { return d.typ }
func (d *Device) MTU() int      { return d.mtu }
func (d *Device) HWAddr() addr.LinkAddr {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hwAddr
}

// setHWAddr updates the device's hardware address directly (bypassing
// the driver vtable); Registry.SetMACAddr is the entry point that also
// invokes the driver.
func (d *Device) setHWAddr(a addr.LinkAddr) {
	d.mu.Lock()
	d.hwAddr = a
	d.mu.Unlock()
}

// Flags returns the current flag bitmask.
func (d *Device) Flags() Flags { return Flags(atomic.LoadUint32(&d.flags)) }

func (d *Device) setFlag(f Flags)   { setBit(&d.flags, uint32(f), true) }
func (d *Device) clearFlag(f Flags) { setBit(&d.flags, uint32(f), false) }

func setBit(addr *uint32, bit uint32, set bool) {
	for {
		old := atomic.LoadUint32(addr)
		var next uint32
		if set {
			next = old | bit
		} else {
			next = old &^ bit
		}
		if atomic.CompareAndSwapUint32(addr, old, next) {
			return
		}
	}
}

// IsUp reports whether FlagUp is set.
func (d *Device) IsUp() bool { return d.Flags()&FlagUp != 0 }

// Addressing returns the device's configured IPv4 address, netmask,
// and gateway.
func (d *Device) Addressing() (ip, netmask, gateway addr.IPv4) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ipAddr, d.netmask, d.gateway
}

// Configure sets the device's IPv4 addressing (spec §6 "Configuration
// interface. Per-interface: IP address, netmask, gateway").
func (d *Device) Configure(ip, netmask, gateway addr.IPv4) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ipAddr, d.netmask, d.gateway = ip, netmask, gateway
	d.setFlag(FlagBroadcast)
}

// SetFilter attaches (or, with a nil program, clears) an optional BPF
// classifier. When set, Receive drops any frame the program rejects
// before it reaches the link layer, the way a real NIC's attached
// SO_ATTACH_FILTER/XDP program would (SPEC_FULL domain-stack wiring).
func (d *Device) SetFilter(prog []bpf.Instruction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prog == nil {
		d.filter = nil
		return nil
	}
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return err
	}
	d.filter = vm
	return nil
}

// admits reports whether a raw frame passes the attached filter (or
// there is none).
func (d *Device) admits(frame []byte) bool {
	d.mu.RLock()
	vm := d.filter
	d.mu.RUnlock()
	if vm == nil {
		return true
	}
	n, err := vm.Run(frame)
	return err == nil && n > 0
}

// Stats returns a snapshot of the device's counters.
func (d *Device) Stats() Stats {
	return Stats{
		RxPackets: atomic.LoadUint64(&d.stats.RxPackets),
		TxPackets: atomic.LoadUint64(&d.stats.TxPackets),
		RxErrors:  atomic.LoadUint64(&d.stats.RxErrors),
		TxErrors:  atomic.LoadUint64(&d.stats.TxErrors),
		TxDropped: atomic.LoadUint64(&d.stats.TxDropped),
	}
}

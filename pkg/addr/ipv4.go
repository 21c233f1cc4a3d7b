package addr

import (
	"encoding/binary"
	"fmt"
)

// IPv4 is a 32-bit IPv4 address held in network byte order (spec §3).
type IPv4 [4]byte

// IPv4FromBytes copies b (exactly 4 octets, network byte order) into
// an IPv4.
func IPv4FromBytes(b []byte) IPv4 {
	var a IPv4
	copy(a[:], b)
	return a
}

// IPv4FromUint32 builds an IPv4 from a host-order uint32 (as produced
// by, e.g., binary arithmetic on an address), converting to network
// byte order.
func IPv4FromUint32(v uint32) IPv4 {
	var a IPv4
	binary.BigEndian.PutUint32(a[:], v)
	return a
}

// Uint32 returns a as a host-order uint32, for bitwise subnet
// arithmetic.
func (a IPv4) Uint32() uint32 { return binary.BigEndian.Uint32(a[:]) }

// Equal reports whether a and b denote the same address.
func (a IPv4) Equal(b IPv4) bool { return a == b }

// Mask applies netmask, zeroing host bits: used for subnet-membership
// and broadcast-address computation.
func (a IPv4) Mask(netmask IPv4) IPv4 {
	return IPv4FromUint32(a.Uint32() & netmask.Uint32())
}

// SameSubnet reports whether a and b share the network prefix
// identified by netmask: (a ^ b) & mask == 0 (spec §3).
func (a IPv4) SameSubnet(b IPv4, netmask IPv4) bool {
	return (a.Uint32()^b.Uint32())&netmask.Uint32() == 0
}

// IsBroadcastFor reports whether a is the directed broadcast address
// of the subnet identified by netmask: all host bits set.
func (a IPv4) IsBroadcastFor(netmask IPv4) bool {
	hostMask := ^netmask.Uint32()
	return a.Uint32()&hostMask == hostMask
}

// IsMulticast reports whether a falls in class D (224.0.0.0/4).
func (a IPv4) IsMulticast() bool { return a[0]&0xf0 == 0xe0 }

// IsLoopback reports whether a falls in 127.0.0.0/8.
func (a IPv4) IsLoopback() bool { return a[0] == 127 }

// IsUnspecified reports whether a is 0.0.0.0.
func (a IPv4) IsUnspecified() bool { return a == IPv4{} }

// String renders a in dotted-quad notation.
func (a IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// ParseIPv4 parses dotted-quad notation.
func ParseIPv4(s string) (IPv4, error) {
	var a IPv4
	var parts [4]int
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &parts[0], &parts[1], &parts[2], &parts[3])
	if err != nil || n != 4 {
		return IPv4{}, fmt.Errorf("addr: invalid IPv4 address %q", s)
	}
	for i, p := range parts {
		if p < 0 || p > 255 {
			return IPv4{}, fmt.Errorf("addr: invalid IPv4 address %q", s)
		}
		a[i] = byte(p)
	}
	return a, nil
}

// CIDRMask returns the netmask corresponding to a /ones prefix length,
// e.g. CIDRMask(24) = 255.255.255.0.
func CIDRMask(ones int) IPv4 {
	if ones <= 0 {
		return IPv4{}
	}
	if ones >= 32 {
		return IPv4{0xff, 0xff, 0xff, 0xff}
	}
	return IPv4FromUint32(^uint32(0) << uint(32-ones))
}

// Endpoint is a (IPv4 address, port) pair (spec §9 "socket address").
type Endpoint struct {
	Addr IPv4
	Port uint16
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Addr, e.Port) }

// ParseEndpoint parses the "a.b.c.d:port" stringform produced by
// String (spec §8: "to_string then from_string recovers the original
// (ip, port)").
func ParseEndpoint(s string) (Endpoint, error) {
	var a [4]int
	var port int
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d:%d", &a[0], &a[1], &a[2], &a[3], &port)
	if err != nil || n != 5 {
		return Endpoint{}, fmt.Errorf("addr: invalid endpoint %q", s)
	}
	var ip IPv4
	for i, p := range a {
		if p < 0 || p > 255 {
			return Endpoint{}, fmt.Errorf("addr: invalid endpoint %q", s)
		}
		ip[i] = byte(p)
	}
	if port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("addr: invalid endpoint %q", s)
	}
	return Endpoint{Addr: ip, Port: uint16(port)}, nil
}

// Package addr implements the link-layer and IPv4 address types shared
// by every layer of the stack (spec §3 "Link address" / "IP address"),
// grounded on the wire-level address handling in
// sun977-NeoScan's netraw packet builder and gVisor's tcpip.Address
// conventions (parse-from-bytes / serialize-to-bytes, never cast a
// pointer — spec §9 "Packed wire headers").
package addr

import "fmt"

// LinkAddr is a 6-octet opaque link-layer (MAC-style) address.
type LinkAddr [6]byte

// BroadcastLinkAddr is the all-ones link-layer broadcast address.
var BroadcastLinkAddr = LinkAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// LinkAddrFromBytes copies b (which must be exactly 6 octets) into a
// LinkAddr.
func LinkAddrFromBytes(b []byte) LinkAddr {
	var a LinkAddr
	copy(a[:], b)
	return a
}

// IsBroadcast reports whether a is the all-ones broadcast address.
func (a LinkAddr) IsBroadcast() bool { return a == BroadcastLinkAddr }

// IsMulticast reports whether a is a multicast address: the
// least-significant bit of the first octet is set, and a is not the
// broadcast address.
func (a LinkAddr) IsMulticast() bool {
	return a[0]&0x01 != 0 && !a.IsBroadcast()
}

// IsUnicast reports whether a is neither broadcast nor multicast.
func (a LinkAddr) IsUnicast() bool { return !a.IsBroadcast() && !a.IsMulticast() }

// String renders a as six colon-separated lowercase hex octets.
func (a LinkAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// ParseLinkAddr parses the "xx:xx:xx:xx:xx:xx" stringform produced by
// String.
func ParseLinkAddr(s string) (LinkAddr, error) {
	var a LinkAddr
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x", &a[0], &a[1], &a[2], &a[3], &a[4], &a[5])
	if err != nil || n != 6 {
		return LinkAddr{}, fmt.Errorf("addr: invalid link address %q", s)
	}
	return a, nil
}

// Package ipv4 implements the IPv4 header, routing table, fragmentation
// and reassembly, and per-protocol demultiplex (spec §4.4). Wire
// layouts are parsed from and serialized to byte slices directly
// (spec §9 "Packed wire headers" — never cast a pointer).
package ipv4

import (
	"encoding/binary"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/checksum"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

// Protocol numbers spec §4.4 names.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// MinHeaderLen is the fixed 20-octet header spec §6 requires (IHL=5,
// no options — this stack never generates or parses IP options).
const MinHeaderLen = 20

// DefaultTTL is the hop limit spec §4.4 sets on constructed headers.
const DefaultTTL = 64

// Flag bits within the 3-bit flags field.
const (
	FlagDF uint16 = 1 << 14
	FlagMF uint16 = 1 << 13
)

// Header is the parsed, host-accessible form of an IPv4 header (spec
// §6). Field access always goes through these typed accessors, never a
// raw struct overlay.
type Header struct {
	TOS            uint8
	TotalLength    uint16
	ID             uint16
	Flags          uint16 // FlagDF / FlagMF
	FragmentOffset uint16 // in 8-octet units
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	Src            addr.IPv4
	Dst            addr.IPv4
}

// MoreFragments reports whether the MF flag is set.
func (h Header) MoreFragments() bool { return h.Flags&FlagMF != 0 }

// DontFragment reports whether the DF flag is set.
func (h Header) DontFragment() bool { return h.Flags&FlagDF != 0 }

// Marshal serializes h into the first MinHeaderLen octets of b
// (len(b) must be >= MinHeaderLen), computing and filling in the
// checksum over the header with the checksum field zeroed during
// computation (spec §4.4).
func Marshal(h Header, b []byte) {
	b[0] = 0x40 | 5 // version=4, IHL=5
	b[1] = h.TOS
	binary.BigEndian.PutUint16(b[2:4], h.TotalLength)
	binary.BigEndian.PutUint16(b[4:6], h.ID)
	binary.BigEndian.PutUint16(b[6:8], h.Flags|h.FragmentOffset)
	b[8] = h.TTL
	b[9] = h.Protocol
	b[10], b[11] = 0, 0
	copy(b[12:16], h.Src[:])
	copy(b[16:20], h.Dst[:])

	sum := checksum.Compute(b[:MinHeaderLen])
	binary.BigEndian.PutUint16(b[10:12], sum)
}

// Parse validates and decodes the IPv4 header occupying the front of
// b. It checks version==4, IHL*4<=len(b), total_length<=len(b), and
// the header checksum (spec §4.4 "On receive, validate").
func Parse(b []byte) (Header, error) {
	if len(b) < MinHeaderLen {
		return Header{}, nerr.ErrInvalidArgument
	}
	version := b[0] >> 4
	ihl := int(b[0]&0x0f) * 4
	if version != 4 {
		return Header{}, nerr.ErrInvalidArgument
	}
	if ihl < MinHeaderLen || ihl > len(b) {
		return Header{}, nerr.ErrInvalidArgument
	}
	totalLength := binary.BigEndian.Uint16(b[2:4])
	if int(totalLength) > len(b) {
		return Header{}, nerr.ErrInvalidArgument
	}

	if checksum.Compute(b[:ihl]) != 0 {
		return Header{}, nerr.ErrChecksumMismatch
	}

	flagsAndOffset := binary.BigEndian.Uint16(b[6:8])
	h := Header{
		TOS:            b[1],
		TotalLength:    totalLength,
		ID:             binary.BigEndian.Uint16(b[4:6]),
		Flags:          flagsAndOffset & 0xe000,
		FragmentOffset: flagsAndOffset & 0x1fff,
		TTL:            b[8],
		Protocol:       b[9],
		Checksum:       binary.BigEndian.Uint16(b[10:12]),
		Src:            addr.IPv4FromBytes(b[12:16]),
		Dst:            addr.IPv4FromBytes(b[16:20]),
	}
	return h, nil
}

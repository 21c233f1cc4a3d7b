// Package udp implements stateless datagram delivery (spec §4.5): the
// UDP wire header, a bitmap-backed ephemeral port allocator, the UDP
// socket's bounded receive queue, and the udp_receive/udp_send
// handlers wired into an ipv4.Layer.
package udp

import (
	"encoding/binary"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

// HeaderLen is the fixed 8-octet UDP header (spec §6).
const HeaderLen = 8

// Header is the parsed UDP header.
type Header struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// ParseHeader decodes the UDP header from the front of b, validating
// that 8 <= length <= len(b) (spec §4.5).
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, nerr.ErrInvalidArgument
	}
	h := Header{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		Length:   binary.BigEndian.Uint16(b[4:6]),
		Checksum: binary.BigEndian.Uint16(b[6:8]),
	}
	if h.Length < HeaderLen || int(h.Length) > len(b) {
		return Header{}, nerr.ErrInvalidArgument
	}
	return h, nil
}

// MarshalHeader serializes h into the first HeaderLen octets of b.
func MarshalHeader(h Header, b []byte) {
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint16(b[4:6], h.Length)
	binary.BigEndian.PutUint16(b[6:8], h.Checksum)
}

// Package tcp implements the full RFC 793 connection state machine
// (spec §4.6): segment wire format, sequence-space tracking, the send
// and receive buffers, retransmission with RFC 6298 RTT estimation and
// RFC 5681 congestion control, and the Layer that demultiplexes
// incoming segments to per-socket state machines.
package tcp

import (
	"encoding/binary"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

// MinHeaderLen is the fixed 20-octet header with no options (spec §6).
const MinHeaderLen = 20

// Flag bits, high to low per spec §6: CWR|ECE|URG|ACK|PSH|RST|SYN|FIN.
const (
	FlagFIN uint8 = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
)

// Header is the parsed TCP segment header (options are not modeled;
// this stack never generates or consumes any option, MSS included).
type Header struct {
	SrcPort    uint16
	DstPort    uint16
	SeqNum     Seq
	AckNum     Seq
	DataOffset uint8 // in 32-bit words, >= 5
	Flags      uint8
	Window     uint16
	Checksum   uint16
	UrgentPtr  uint16
}

func (h Header) HeaderLen() int { return int(h.DataOffset) * 4 }

func (h Header) has(f uint8) bool { return h.Flags&f != 0 }

func (h Header) SYN() bool { return h.has(FlagSYN) }
func (h Header) ACK() bool { return h.has(FlagACK) }
func (h Header) FIN() bool { return h.has(FlagFIN) }
func (h Header) RST() bool { return h.has(FlagRST) }
func (h Header) PSH() bool { return h.has(FlagPSH) }

// ParseHeader decodes the TCP header occupying the front of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < MinHeaderLen {
		return Header{}, nerr.ErrInvalidArgument
	}
	dataOffset := b[12] >> 4
	headerLen := int(dataOffset) * 4
	if headerLen < MinHeaderLen || headerLen > len(b) {
		return Header{}, nerr.ErrInvalidArgument
	}
	return Header{
		SrcPort:    binary.BigEndian.Uint16(b[0:2]),
		DstPort:    binary.BigEndian.Uint16(b[2:4]),
		SeqNum:     Seq(binary.BigEndian.Uint32(b[4:8])),
		AckNum:     Seq(binary.BigEndian.Uint32(b[8:12])),
		DataOffset: dataOffset,
		Flags:      b[13],
		Window:     binary.BigEndian.Uint16(b[14:16]),
		Checksum:   binary.BigEndian.Uint16(b[16:18]),
		UrgentPtr:  binary.BigEndian.Uint16(b[18:20]),
	}, nil
}

// MarshalHeader serializes h (with DataOffset forced to 5: no options)
// into the first MinHeaderLen octets of b.
func MarshalHeader(h Header, b []byte) {
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint32(b[4:8], uint32(h.SeqNum))
	binary.BigEndian.PutUint32(b[8:12], uint32(h.AckNum))
	b[12] = 5 << 4
	b[13] = h.Flags
	binary.BigEndian.PutUint16(b[14:16], h.Window)
	b[16], b[17] = 0, 0
	binary.BigEndian.PutUint16(b[18:20], h.UrgentPtr)
}

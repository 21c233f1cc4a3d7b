package dns

import (
	"encoding/binary"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

// Type is a DNS RR type (spec §4.8's qtype).
type Type uint16

const (
	TypeA     Type = 1
	TypeCNAME Type = 5
	TypePTR   Type = 12
)

// Class is a DNS RR class (spec §4.8's qclass); this resolver only
// ever sends/accepts ClassIN.
type Class uint16

const ClassIN Class = 1

// HeaderLen is the fixed 12-octet DNS header (spec §4.8).
const HeaderLen = 12

const flagRD = 1 << 8 // recursion desired, bit 8 of the 16-bit flags field
const flagQR = 1 << 15

// Header is the 12-octet DNS message header (spec §4.8: "id, 16-bit
// flags field (QR|opcode:4|AA|TC|RD|RA|Z:3|rcode:4), qdcount, ancount,
// nscount, arcount").
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// QR reports whether this message is a response.
func (h Header) QR() bool { return h.Flags&flagQR != 0 }

// RCode returns the low 4 bits of Flags.
func (h Header) RCode() uint8 { return uint8(h.Flags & 0xF) }

// Question is one entry in a message's question section.
type Question struct {
	Name  string
	Type  Type
	Class Class
}

// ResourceRecord is one decoded answer/authority/additional record
// (spec §4.8: "name, type, class, TTL, rdlength, rdata").
type ResourceRecord struct {
	Name  string
	Type  Type
	Class Class
	TTL   uint32
	RData []byte
}

// Message is a fully decoded (or to-be-encoded) DNS message.
type Message struct {
	Header    Header
	Questions []Question
	Answers   []ResourceRecord
}

// EncodeQuery builds a 12-octet header plus one question (spec §4.8:
// "Build a 12-octet header: id, flags (RD=1 for recursion desired),
// qdcount=1; append encoded name, qtype, qclass").
func EncodeQuery(id uint16, name string, qtype Type, qclass Class) ([]byte, error) {
	encodedName, err := EncodeName(name)
	if err != nil {
		return nil, err
	}

	out := make([]byte, HeaderLen, HeaderLen+len(encodedName)+4)
	binary.BigEndian.PutUint16(out[0:2], id)
	binary.BigEndian.PutUint16(out[2:4], flagRD)
	binary.BigEndian.PutUint16(out[4:6], 1) // qdcount
	// ancount, nscount, arcount all zero

	out = append(out, encodedName...)
	var tail [4]byte
	binary.BigEndian.PutUint16(tail[0:2], uint16(qtype))
	binary.BigEndian.PutUint16(tail[2:4], uint16(qclass))
	out = append(out, tail[:]...)
	return out, nil
}

// ParseMessage decodes a complete DNS message: header, every question,
// and every answer record (spec §4.8's "Response processing").
// Authority and additional sections are not parsed, since this
// resolver only consults answers.
func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < HeaderLen {
		return Message{}, nerr.ErrInvalidArgument
	}

	hdr := Header{
		ID:      binary.BigEndian.Uint16(msg[0:2]),
		Flags:   binary.BigEndian.Uint16(msg[2:4]),
		QDCount: binary.BigEndian.Uint16(msg[4:6]),
		ANCount: binary.BigEndian.Uint16(msg[6:8]),
		NSCount: binary.BigEndian.Uint16(msg[8:10]),
		ARCount: binary.BigEndian.Uint16(msg[10:12]),
	}

	offset := HeaderLen
	questions := make([]Question, 0, hdr.QDCount)
	for i := uint16(0); i < hdr.QDCount; i++ {
		name, next, err := DecodeName(msg, offset)
		if err != nil {
			return Message{}, err
		}
		if next+4 > len(msg) {
			return Message{}, nerr.ErrInvalidArgument
		}
		q := Question{
			Name:  name,
			Type:  Type(binary.BigEndian.Uint16(msg[next : next+2])),
			Class: Class(binary.BigEndian.Uint16(msg[next+2 : next+4])),
		}
		questions = append(questions, q)
		offset = next + 4
	}

	answers := make([]ResourceRecord, 0, hdr.ANCount)
	for i := uint16(0); i < hdr.ANCount; i++ {
		rr, next, err := parseRR(msg, offset)
		if err != nil {
			return Message{}, err
		}
		answers = append(answers, rr)
		offset = next
	}

	return Message{Header: hdr, Questions: questions, Answers: answers}, nil
}

func parseRR(msg []byte, offset int) (ResourceRecord, int, error) {
	name, next, err := DecodeName(msg, offset)
	if err != nil {
		return ResourceRecord{}, 0, err
	}
	if next+10 > len(msg) {
		return ResourceRecord{}, 0, nerr.ErrInvalidArgument
	}
	rtype := Type(binary.BigEndian.Uint16(msg[next : next+2]))
	class := Class(binary.BigEndian.Uint16(msg[next+2 : next+4]))
	ttl := binary.BigEndian.Uint32(msg[next+4 : next+8])
	rdlength := int(binary.BigEndian.Uint16(msg[next+8 : next+10]))
	rdataStart := next + 10
	if rdataStart+rdlength > len(msg) {
		return ResourceRecord{}, 0, nerr.ErrInvalidArgument
	}

	rdata := msg[rdataStart : rdataStart+rdlength]
	if rtype == TypeCNAME || rtype == TypePTR {
		// CNAME/PTR rdata is itself a (possibly compressed) name;
		// resolve it against the whole message so a pointer into the
		// question section decodes correctly (spec §4.8: "CNAMEs chain
		// to the next name").
		target, _, err := DecodeName(msg, rdataStart)
		if err != nil {
			return ResourceRecord{}, 0, err
		}
		rdata = []byte(target)
	} else {
		rdata = append([]byte{}, rdata...)
	}

	return ResourceRecord{Name: name, Type: rtype, Class: class, TTL: ttl, RData: rdata}, rdataStart + rdlength, nil
}

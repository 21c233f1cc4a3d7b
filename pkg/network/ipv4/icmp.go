package ipv4

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/checksum"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
)

// ICMP message types this stack understands (SPEC_FULL's supplemented
// minimal ICMP: echo request/reply and destination-unreachable, enough
// for reachability diagnostics without a full RFC 792 implementation).
const (
	ICMPEchoReply   uint8 = 0
	ICMPDestUnreach uint8 = 3
	ICMPEchoRequest uint8 = 8
)

// Destination-unreachable codes this stack emits.
const (
	ICMPCodeNetUnreachable  uint8 = 0
	ICMPCodeHostUnreachable uint8 = 1
	ICMPCodePortUnreachable uint8 = 3
)

const icmpHeaderLen = 8

// ICMPMessage is the parsed form of an ICMP header plus its body (spec
// supplement: RFC 792 wire format, type/code/checksum/rest-of-header).
type ICMPMessage struct {
	Type     uint8
	Code     uint8
	Ident    uint16
	Sequence uint16
	Data     []byte
}

// ParseICMP decodes an ICMP message from b, validating its checksum.
func ParseICMP(b []byte) (ICMPMessage, error) {
	if len(b) < icmpHeaderLen {
		return ICMPMessage{}, nerr.ErrInvalidArgument
	}
	if checksum.Compute(b) != 0 {
		return ICMPMessage{}, nerr.ErrChecksumMismatch
	}
	return ICMPMessage{
		Type:     b[0],
		Code:     b[1],
		Ident:    binary.BigEndian.Uint16(b[4:6]),
		Sequence: binary.BigEndian.Uint16(b[6:8]),
		Data:     append([]byte{}, b[icmpHeaderLen:]...),
	}, nil
}

// MarshalICMP serializes m, computing the checksum over the full
// message.
func MarshalICMP(m ICMPMessage) []byte {
	out := make([]byte, icmpHeaderLen+len(m.Data))
	out[0] = m.Type
	out[1] = m.Code
	binary.BigEndian.PutUint16(out[4:6], m.Ident)
	binary.BigEndian.PutUint16(out[6:8], m.Sequence)
	copy(out[icmpHeaderLen:], m.Data)
	binary.BigEndian.PutUint16(out[2:4], checksum.Compute(out))
	return out
}

// ICMPResponder implements the minimal ICMP service SPEC_FULL adds on
// top of the distilled spec: it answers echo requests and can emit
// destination-unreachable for datagrams this stack cannot deliver.
// Registered with a Layer via RegisterProtocol(ProtoICMP, ...).
type ICMPResponder struct {
	layer *Layer
	log   *zap.Logger

	// OnMessage, if set, is invoked with every ICMP message this
	// responder receives (request or reply) after it is parsed,
	// mirroring the registry's SetReceiveHandler seam for diagnostics
	// and tests that need to observe traffic this responder answers.
	OnMessage func(ICMPMessage)
}

// NewICMPResponder wires an ICMPResponder to layer, registering it as
// the ProtoICMP handler.
func NewICMPResponder(layer *Layer, log *zap.Logger) *ICMPResponder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &ICMPResponder{layer: layer, log: log.Named("icmp")}
	layer.RegisterProtocol(ProtoICMP, r.receive)
	return r
}

func (r *ICMPResponder) receive(src, dst addr.IPv4, payload []byte, buf *netbuf.Netbuf) {
	defer func() {
		if buf != nil {
			r.layer.pool.Free(buf)
		}
	}()

	msg, err := ParseICMP(payload)
	if err != nil {
		r.log.Debug("dropping icmp message: parse failed", zap.Error(err))
		return
	}
	if r.OnMessage != nil {
		r.OnMessage(msg)
	}
	if msg.Type != ICMPEchoRequest {
		return
	}

	reply := ICMPMessage{
		Type:     ICMPEchoReply,
		Code:     0,
		Ident:    msg.Ident,
		Sequence: msg.Sequence,
		Data:     msg.Data,
	}
	if err := r.layer.Send(dst, src, ProtoICMP, false, MarshalICMP(reply)); err != nil {
		r.log.Debug("failed to send icmp echo reply", zap.Error(err))
	}
}

// SendDestUnreachable emits a destination-unreachable message quoting
// the offending datagram's header and first 8 octets of payload (RFC
// 792), sent from src back toward the original sender.
func (r *ICMPResponder) SendDestUnreachable(src, origSrc addr.IPv4, code uint8, origHeader []byte) error {
	quote := origHeader
	if len(quote) > MinHeaderLen+8 {
		quote = quote[:MinHeaderLen+8]
	}
	// The 4-octet "unused" field RFC 792 puts before the quoted header
	// is already covered by ICMPMessage's Ident/Sequence pair (left at
	// their zero value here), so Data holds only the quote itself.
	msg := ICMPMessage{Type: ICMPDestUnreach, Code: code, Data: append([]byte{}, quote...)}
	return r.layer.Send(src, origSrc, ProtoICMP, false, MarshalICMP(msg))
}

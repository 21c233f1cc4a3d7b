// Package dns implements the recursive DNS resolver spec §4.8 names: a
// wire-format codec for names, queries, and responses (RFC 1035 §4.1),
// a TTL-evicting cache, and a UDP-backed resolver with per-query
// timeout/retry and pending-query coalescing.
package dns

import (
	"strings"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

// MaxNameLength is the wire-format limit on an encoded name, labels
// plus length octets plus the terminating zero (spec §4.8).
const MaxNameLength = 255

// MaxLabelLength is the per-label limit (spec §4.8: "Labels (<=63
// octets)").
const MaxLabelLength = 63

// maxPointerHops bounds compression-pointer chasing during decode.
// Spec §9's REDESIGN FLAGS call this out explicitly: "DNS decompression
// in the source does not bound pointer loops; implementers must add a
// hop limit." 128 comfortably exceeds any legitimate compressed name
// (a name has at most 127 labels given the 255-octet limit) while still
// catching a pointer cycle quickly.
const maxPointerHops = 128

// pointerFlag marks the top two bits of a length octet that begin a
// compression pointer (spec §4.8: "top two bits set").
const pointerFlag = 0xC0

// EncodeName writes name (a dotted, case-preserved domain name, with
// or without a trailing dot) in wire format: length-prefixed labels
// terminated by a zero-length label. EncodeName never emits
// compression pointers; it is used only for outgoing queries, which
// this resolver always builds as a single question.
func EncodeName(name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return []byte{0}, nil
	}

	labels := strings.Split(name, ".")
	var out []byte
	total := 0
	for _, label := range labels {
		if len(label) == 0 || len(label) > MaxLabelLength {
			return nil, nerr.ErrInvalidArgument
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
		total += len(label) + 1
		if total > MaxNameLength {
			return nil, nerr.ErrInvalidArgument
		}
	}
	out = append(out, 0)
	return out, nil
}

// DecodeName reads a wire-format name starting at offset in msg,
// following compression pointers as needed, and returns the decoded
// name (lowercased, dot-separated, no trailing dot for the root) and
// the offset immediately after the name's on-the-wire representation
// at the point DecodeName was first called (i.e. not following any
// jumped-to pointer target, matching RFC 1035's "first occurrence"
// rule for a message's overall cursor).
func DecodeName(msg []byte, offset int) (string, int, error) {
	var labels []string
	cursor := offset
	endOffset := -1
	hops := 0

	for {
		if cursor >= len(msg) {
			return "", 0, nerr.ErrInvalidArgument
		}
		length := int(msg[cursor])

		if length&pointerFlag == pointerFlag {
			if cursor+1 >= len(msg) {
				return "", 0, nerr.ErrInvalidArgument
			}
			hops++
			if hops > maxPointerHops {
				return "", 0, nerr.ErrPointerLoop
			}
			if endOffset == -1 {
				endOffset = cursor + 2
			}
			ptr := (int(length&^pointerFlag) << 8) | int(msg[cursor+1])
			cursor = ptr
			continue
		}

		if length == 0 {
			cursor++
			break
		}
		if length > MaxLabelLength || cursor+1+length > len(msg) {
			return "", 0, nerr.ErrInvalidArgument
		}
		labels = append(labels, strings.ToLower(string(msg[cursor+1:cursor+1+length])))
		cursor += 1 + length
	}

	if endOffset == -1 {
		endOffset = cursor
	}

	name := strings.Join(labels, ".")
	if len(name) > MaxNameLength {
		return "", 0, nerr.ErrInvalidArgument
	}
	return name, endOffset, nil
}

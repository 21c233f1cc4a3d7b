// Package checksum implements the one's-complement Internet checksum
// (RFC 1071) used by IPv4, UDP, and TCP header validation (spec §4.4,
// §4.5, §4.6, §8: "verify(compute(packet)) == true for any packet;
// mutating any byte changes the checksum").
package checksum

// Checksum accumulates b into the running sum seq, folding 16-bit
// words. Callers checksum multiple discontiguous regions (pseudo-header
// then header then payload) by threading seq through successive calls
// before a final Finalize.
func Checksum(b []byte, seq uint32) uint32 {
	if len(b)%2 != 0 {
		b = append(append([]byte{}, b...), 0)
	}
	for i := 0; i < len(b); i += 2 {
		seq += uint32(b[i])<<8 | uint32(b[i+1])
	}
	return seq
}

// Finalize folds the 32-bit accumulator down to a 16-bit one's
// complement checksum.
func Finalize(seq uint32) uint16 {
	for seq>>16 != 0 {
		seq = seq&0xffff + seq>>16
	}
	return ^uint16(seq)
}

// Compute is the common case: checksum one contiguous buffer and fold.
func Compute(b []byte) uint16 {
	return Finalize(Checksum(b, 0))
}

// PseudoHeaderIPv4 returns the running checksum accumulator seeded with
// the IPv4 pseudo-header (src, dst, zero, protocol, length) that UDP and
// TCP fold into their checksum per RFC 793/RFC 768 (spec §9 "the
// pseudo-header-inclusive checksum per RFC 793 is required").
func PseudoHeaderIPv4(src, dst [4]byte, protocol uint8, length uint16) uint32 {
	var seq uint32
	seq += uint32(src[0])<<8 | uint32(src[1])
	seq += uint32(src[2])<<8 | uint32(src[3])
	seq += uint32(dst[0])<<8 | uint32(dst[1])
	seq += uint32(dst[2])<<8 | uint32(dst[3])
	seq += uint32(protocol)
	seq += uint32(length)
	return seq
}

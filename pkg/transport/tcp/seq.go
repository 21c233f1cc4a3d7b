package tcp

// Seq is a 32-bit TCP sequence number; comparisons must go through the
// wrap-aware helpers below rather than native < / > (spec §4.6:
// "Sequence number comparisons use 32-bit wrap-aware arithmetic:
// a < b iff (int32)(a - b) < 0").
type Seq uint32

// Less reports whether a precedes b in sequence space, accounting for
// wraparound.
func (a Seq) Less(b Seq) bool { return int32(a-b) < 0 }

// LessEq reports whether a precedes or equals b.
func (a Seq) LessEq(b Seq) bool { return a == b || a.Less(b) }

// InWindow reports whether seq lies in [start, start+size) (a
// half-open window of size octets), wrap-aware.
func InWindow(seq, start Seq, size uint32) bool {
	if size == 0 {
		return seq == start
	}
	return seq-start < Seq(size)
}

// Add returns a+n, wrapping as uint32 arithmetic requires.
func (a Seq) Add(n uint32) Seq { return a + Seq(n) }

// Sub returns the signed distance b-a interpreted in sequence space
// (how far a must advance to reach b), as an int32.
func (a Seq) Sub(b Seq) int32 { return int32(b - a) }

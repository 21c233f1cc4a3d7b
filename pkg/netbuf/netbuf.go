// Package netbuf implements the packet buffer used throughout the stack:
// a contiguous byte slice with four offsets (base, head, tail, end) that
// support zero-copy header prepend/strip, modeled on the kernel sk_buff
// (see the skbuff/SKBuff memory-layout diagram this package is grounded
// on) and handed out exclusively by a fixed-cardinality Pool (spec §4.1).
package netbuf

import "github.com/Ikey168/IKOS-sub006/pkg/nerr"

// DeviceRef is the minimal identity a Netbuf needs of the device it
// arrived on or will be sent out of. pkg/device.Device satisfies this;
// netbuf does not import pkg/device to avoid a dependency cycle (the
// device registry owns Netbufs, not the other way around).
type DeviceRef interface {
	Name() string
	Index() int
}

// Netbuf is a single packet buffer. head and tail satisfy
// 0 <= head <= tail <= len(data) at all times; data is never reallocated
// after the buffer is carved out by a Pool.
type Netbuf struct {
	data []byte

	head int
	tail int

	// Dev is the originating (receive) or destination (send) device.
	// Nil until a layer sets it.
	Dev DeviceRef

	// Proto is an opaque protocol tag set by whichever layer produced
	// this buffer (an EtherType, an IP protocol number, or a
	// layer-private value); consumers interpret it themselves.
	Proto uint16
}

// newNetbuf allocates the backing array; only called by a Pool at
// construction time. Buffers are never created outside a Pool.
func newNetbuf(capacity int) *Netbuf {
	return &Netbuf{data: make([]byte, capacity)}
}

func (b *Netbuf) reset() {
	b.head, b.tail = 0, 0
	b.Dev = nil
	b.Proto = 0
}

// Cap returns the buffer's total capacity (buffer_end - buffer_base).
func (b *Netbuf) Cap() int { return len(b.data) }

// Len returns the current payload length (tail - head).
func (b *Netbuf) Len() int { return b.tail - b.head }

// Headroom returns head - buffer_base, i.e. how many octets may be
// pushed before hitting the start of the buffer.
func (b *Netbuf) Headroom() int { return b.head }

// Tailroom returns how many octets may still be put() before hitting
// buffer_end.
func (b *Netbuf) Tailroom() int { return len(b.data) - b.tail }

// Bytes returns the current payload [head, tail). The returned slice
// aliases the buffer; callers must not retain it past the buffer's
// lifetime (i.e. past a Pool.Free or a further head/tail operation that
// could be reused after reset).
func (b *Netbuf) Bytes() []byte { return b.data[b.head:b.tail] }

// TailSlice returns the writable region [tail, buffer_end), for a
// driver read loop that fills the buffer directly before committing
// the actual byte count with Put.
func (b *Netbuf) TailSlice() []byte { return b.data[b.tail:] }

// Reserve sets head = tail = n, the standard send-path call used to
// carve out headroom (spec: "typical send path calls reserve(MAX_HEADER)
// before prepending per-layer headers").
func (b *Netbuf) Reserve(n int) error {
	if n < 0 || n > len(b.data) {
		return nerr.ErrBoundaryCross
	}
	b.head, b.tail = n, n
	return nil
}

// Put grows tail by n, extending the payload (append n octets of
// payload/trailer). Fails if it would cross buffer_end.
func (b *Netbuf) Put(n int) error {
	if n < 0 || b.tail+n > len(b.data) {
		return nerr.ErrBoundaryCross
	}
	b.tail += n
	return nil
}

// Pull advances head by n, stripping a header on receive. Fails if it
// would cross tail.
func (b *Netbuf) Pull(n int) error {
	if n < 0 || b.head+n > b.tail {
		return nerr.ErrBoundaryCross
	}
	b.head += n
	return nil
}

// Push retracts head by n, prepending a header on send. Fails if it
// would cross buffer_base.
func (b *Netbuf) Push(n int) error {
	if n < 0 || b.head-n < 0 {
		return nerr.ErrBoundaryCross
	}
	b.head -= n
	return nil
}

// PushHeader is Push followed by returning the now-included header
// region [head, head+n), for the common "push then fill in the header
// fields" call sequence.
func (b *Netbuf) PushHeader(n int) ([]byte, error) {
	if err := b.Push(n); err != nil {
		return nil, err
	}
	return b.data[b.head : b.head+n], nil
}

// PullHeader is Pull preceded by returning the header region about to be
// stripped, for the common "read header fields then strip" sequence.
func (b *Netbuf) PullHeader(n int) ([]byte, error) {
	if n < 0 || b.head+n > b.tail {
		return nil, nerr.ErrBoundaryCross
	}
	h := b.data[b.head : b.head+n]
	b.head += n
	return h, nil
}

// Append copies p onto the tail, growing it via Put.
func (b *Netbuf) Append(p []byte) error {
	if err := b.Put(len(p)); err != nil {
		return err
	}
	copy(b.data[b.tail-len(p):b.tail], p)
	return nil
}

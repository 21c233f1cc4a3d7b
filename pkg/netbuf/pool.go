package netbuf

import (
	"sync"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

// DefaultCapacity is the per-buffer capacity used by stack.New when the
// caller does not override it; large enough for a reassembled 65535-byte
// IPv4 datagram (spec §4.4's fragment reassembly builds one contiguous
// buffer) but also used, sized down, for ordinary frame-sized buffers.
const DefaultCapacity = 65535

// DefaultCount is the fixed pool cardinality spec §3 names as the
// canonical example ("e.g. 256").
const DefaultCount = 256

// Stats mirrors the pool statistics named in spec §4.1.
type Stats struct {
	FreeCount     int
	AllocFailures uint64
}

// Pool is a fixed-cardinality netbuf allocator backed by a free list.
// Allocation never blocks and never grows the pool; on exhaustion it
// fails explicitly and the caller is expected to drop the packet.
type Pool struct {
	mu       sync.Mutex
	capacity int
	free     []*Netbuf
	allocFl  uint64
}

// NewPool preallocates count buffers of the given per-buffer capacity.
func NewPool(count, capacity int) *Pool {
	p := &Pool{capacity: capacity}
	p.free = make([]*Netbuf, 0, count)
	for i := 0; i < count; i++ {
		p.free = append(p.free, newNetbuf(capacity))
	}
	return p
}

// Alloc returns a buffer with zero headroom (head = tail = 0) and
// capacity >= size, or ErrInvalidArgument if size exceeds the pool's
// per-buffer capacity, or ErrNoBufferSpace if the free list is empty.
func (p *Pool) Alloc(size int) (*Netbuf, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if size < 0 || size > p.capacity {
		return nil, nerr.ErrInvalidArgument
	}
	n := len(p.free)
	if n == 0 {
		p.allocFl++
		return nil, nerr.ErrNoBufferSpace
	}
	buf := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	buf.reset()
	return buf, nil
}

// Free returns buf to the pool. Callers must not retain buf or any
// slice obtained from buf.Bytes() afterward; ownership passes back to
// the pool (spec §3: "Exclusively owned by at most one queue at a
// time; ownership passes with the buffer").
func (p *Pool) Free(buf *Netbuf) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	buf.reset()
	p.free = append(p.free, buf)
}

// Stats returns a snapshot of the pool's statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{FreeCount: len(p.free), AllocFailures: p.allocFl}
}

// Capacity returns the fixed per-buffer capacity (the MAX_PACKET bound
// for Alloc's size argument).
func (p *Pool) Capacity() int { return p.capacity }

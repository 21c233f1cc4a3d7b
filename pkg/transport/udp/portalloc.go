package udp

import (
	"sync"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

// PortAllocator is a 65536-bit bitmap of port usage (spec §4.5: "Port
// allocation maintains a 65536-bit bitmap; ephemeral allocation scans
// forward from the last cursor, wraps at range end").
type PortAllocator struct {
	mu     sync.Mutex
	bitmap [65536 / 64]uint64
	low    uint16
	high   uint16
	cursor uint32
}

// NewPortAllocator constructs an allocator whose ephemeral range is
// [low, high] inclusive.
func NewPortAllocator(low, high uint16) *PortAllocator {
	return &PortAllocator{low: low, high: high, cursor: uint32(low)}
}

func (p *PortAllocator) test(port uint16) bool {
	return p.bitmap[port/64]&(1<<(port%64)) != 0
}

func (p *PortAllocator) set(port uint16, used bool) {
	if used {
		p.bitmap[port/64] |= 1 << (port % 64)
	} else {
		p.bitmap[port/64] &^= 1 << (port % 64)
	}
}

// Reserve marks port as used explicitly (for an application-chosen
// bind), failing with ErrAddressInUse if it is already taken.
func (p *PortAllocator) Reserve(port uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.test(port) {
		return nerr.ErrAddressInUse
	}
	p.set(port, true)
	return nil
}

// Allocate scans forward from the last cursor through the ephemeral
// range, wrapping at the end, and returns the first free port.
func (p *PortAllocator) Allocate() (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	span := uint32(p.high) - uint32(p.low) + 1
	for i := uint32(0); i < span; i++ {
		port := uint16(p.low + uint16((p.cursor-uint32(p.low)+i)%span))
		if !p.test(port) {
			p.set(port, true)
			p.cursor = uint32(port) + 1
			return port, nil
		}
	}
	return 0, nerr.ErrAddressInUse
}

// Release returns port to the free pool.
func (p *PortAllocator) Release(port uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(port, false)
}

package tcp

import (
	"sync"

	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

// portAllocator is the TCP ephemeral port bitmap, independent of UDP's
// (RFC 793 and RFC 768 port spaces do not share allocation state);
// grounded on the same forward-scan-with-wraparound design as
// pkg/transport/udp's allocator (spec §4.5, applied here to TCP active
// opens per spec §9's shared ephemeral-range policy).
type portAllocator struct {
	mu     sync.Mutex
	bitmap [65536 / 64]uint64
	low    uint16
	high   uint16
	cursor uint32
}

func newPortAllocator(low, high uint16) *portAllocator {
	return &portAllocator{low: low, high: high, cursor: uint32(low)}
}

func (p *portAllocator) test(port uint16) bool {
	return p.bitmap[port/64]&(1<<(port%64)) != 0
}

func (p *portAllocator) set(port uint16, used bool) {
	if used {
		p.bitmap[port/64] |= 1 << (port % 64)
	} else {
		p.bitmap[port/64] &^= 1 << (port % 64)
	}
}

func (p *portAllocator) reserve(port uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.test(port) {
		return nerr.ErrAddressInUse
	}
	p.set(port, true)
	return nil
}

func (p *portAllocator) allocate() (uint16, error) {
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

func (p *portAllocator) release(port uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(port, false)
}

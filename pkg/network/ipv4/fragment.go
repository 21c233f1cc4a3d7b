package ipv4

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/metrics"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
)

// ReassemblyTimeout is the default fragment-entry lifetime (spec §3,
// §4.4: "Timer fires at 30 s -> drop and increment fragments_failed").
const ReassemblyTimeout = 30 * time.Second

// fragKey identifies one in-flight reassembly (spec §3).
type fragKey struct {
	src, dst addr.IPv4
	protocol uint8
	id       uint16
}

type fragPiece struct {
	offset int // octets from the start of the original payload
	data   []byte
}

type reassemblyEntry struct {
	mu             sync.Mutex
	pieces         []fragPiece
	expectedLength int // -1 until the last fragment (MF=0) arrives
	receivedLength int
	timer          timerwheel.Handle
}

// Reassembler implements spec §4.4's fragment reassembly: fragments
// are collected per (src, dst, protocol, id), delivered once
// contiguous, and evicted on completion or timeout.
type Reassembler struct {
	mu      sync.Mutex
	entries map[fragKey]*reassemblyEntry

	wheel   *timerwheel.Wheel
	metrics *metrics.Stack
	log     *zap.Logger
	timeout time.Duration
}

// NewReassembler constructs a Reassembler driven by wheel for its
// per-entry timeout timers.
func NewReassembler(wheel *timerwheel.Wheel, m *metrics.Stack, log *zap.Logger) *Reassembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reassembler{
		entries: make(map[fragKey]*reassemblyEntry),
		wheel:   wheel,
		metrics: m,
		log:     log.Named("ipv4.reassembly"),
		timeout: ReassemblyTimeout,
	}
}

// Insert adds one fragment's payload (the octets after the IP header)
// to the reassembly identified by (src, dst, protocol, id). offset is
// in octets (already multiplied out from the wire's 8-octet units).
// It returns the reassembled datagram once every fragment through the
// last (MF=0) one has arrived with no gaps.
func (r *Reassembler) Insert(src, dst addr.IPv4, protocol uint8, id uint16, offset int, moreFragments bool, data []byte) (complete []byte, err error) {
	key := fragKey{src, dst, protocol, id}

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &reassemblyEntry{expectedLength: -1}
		r.entries[key] = e
		e.timer = r.wheel.Arm(r.timeout, func() { r.expire(key) })
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range e.pieces {
		if overlaps(p.offset, len(p.data), offset, len(data)) {
			return nil, nerr.ErrInvalidArgument
		}
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	e.pieces = append(e.pieces, fragPiece{offset: offset, data: cp})
	e.receivedLength += len(data)
	sort.Slice(e.pieces, func(i, j int) bool { return e.pieces[i].offset < e.pieces[j].offset })

	if !moreFragments {
		e.expectedLength = offset + len(data)
	}

	if e.expectedLength < 0 || e.receivedLength != e.expectedLength {
		return nil, nil
	}

	buf, ok := contiguous(e.pieces, e.expectedLength)
	if !ok {
		return nil, nil
	}

	r.wheel.Cancel(e.timer)
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()

	return buf, nil
}

// expire drops an entry whose timer fired before it completed.
func (r *Reassembler) expire(key fragKey) {
	r.mu.Lock()
	_, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()
	if ok {
		r.log.Debug("fragment reassembly timed out", zap.Uint16("id", key.id))
		if r.metrics != nil {
			r.metrics.IPFragmentsFailed.Inc()
		}
	}
}

// Pending reports how many reassemblies are currently in flight.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func overlaps(aOff, aLen, bOff, bLen int) bool {
	return aOff < bOff+bLen && bOff < aOff+aLen
}

// contiguous walks pieces (already sorted by offset) and builds a
// single buffer of length total if they tile [0, total) with no gaps.
func contiguous(pieces []fragPiece, total int) ([]byte, bool) {
	out := make([]byte, total)
	next := 0
	for _, p := range pieces {
		if p.offset != next {
			return nil, false
		}
		copy(out[p.offset:p.offset+len(p.data)], p.data)
		next = p.offset + len(p.data)
	}
	return out, next == total
}

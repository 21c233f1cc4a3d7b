// Package timerwheel implements the single timer wheel spec §9 calls
// for: "Model as a single timer wheel that invokes registered callbacks
// on expiry; callbacks may re-arm or cancel themselves." It backs every
// explicit timer named in spec §5 (TCP retransmission, keep-alive,
// TIME_WAIT, DNS query timeout, IP fragment reassembly) with at least
// 1ms granularity.
package timerwheel

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handle identifies one armed timer; returned by Arm, consumed by
// Cancel. Backed by a uuid so handles stay unique across re-arms
// without the wheel needing a monotonic counter guarded by its own
// lock on the hot path.
type Handle uuid.UUID

type entry struct {
	deadline time.Time
	handle   Handle
	cb       func()
	index    int // heap index, maintained by container/heap
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Wheel is a single shared timer facility. The zero value is not
// usable; construct with New.
type Wheel struct {
	tick   time.Duration
	log    *zap.Logger
	mu     sync.Mutex
	h      entryHeap
	byID   map[Handle]*entry
	stopCh chan struct{}
	doneCh chan struct{}
}

// MinGranularity is the floor spec §5 requires ("at least 1 ms
// granularity").
const MinGranularity = time.Millisecond

// New constructs a Wheel that checks for expired timers every tick
// (clamped to MinGranularity).
func New(tick time.Duration, log *zap.Logger) *Wheel {
	if tick < MinGranularity {
		tick = MinGranularity
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Wheel{
		tick:   tick,
		log:    log.Named("timerwheel"),
		byID:   make(map[Handle]*entry),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the wheel's background tick goroutine. There is no
// guard against a second call, which starts a second goroutine;
// stack.New calls this exactly once.
func (w *Wheel) Start() {
	go w.run()
}

// Stop halts the tick goroutine and blocks until it has exited.
// Already-armed timers are dropped without firing.
func (w *Wheel) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Wheel) run() {
	defer close(w.doneCh)
	t := time.NewTicker(w.tick)
	defer t.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case now := <-t.C:
			w.fireExpired(now)
		}
	}
}

func (w *Wheel) fireExpired(now time.Time) {
	var due []*entry
	w.mu.Lock()
	for len(w.h) > 0 && !w.h[0].deadline.After(now) {
		e := heap.Pop(&w.h).(*entry)
		delete(w.byID, e.handle)
		due = append(due, e)
	}
	w.mu.Unlock()

	// Callbacks run outside the lock: they are free to call Arm/Cancel
	// on this same wheel (re-arming themselves), which would otherwise
	// deadlock.
	for _, e := range due {
		cb := e.cb
		go func() {
			defer func() {
				if r := recover(); r != nil {
					w.log.Error("timer callback panicked", zap.Any("recover", r))
				}
			}()
			cb()
		}()
	}
}

// Arm schedules cb to run after d elapses and returns a Handle that
// Cancel can later use to abort it before it fires.
func (w *Wheel) Arm(d time.Duration, cb func()) Handle {
	h := Handle(uuid.New())
	e := &entry{deadline: time.Now().Add(d), handle: h, cb: cb}
	w.mu.Lock()
	defer w.mu.Unlock()
	heap.Push(&w.h, e)
	w.byID[h] = e
	return h
}

// Cancel aborts a previously armed timer. Canceling an already-fired
// or already-canceled handle is a no-op.
func (w *Wheel) Cancel(h Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.byID[h]
	if !ok {
		return
	}
	heap.Remove(&w.h, e.index)
	delete(w.byID, h)
}

// Pending reports how many timers are currently armed; used by tests
// and by stack-level diagnostics.
func (w *Wheel) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.h)
}

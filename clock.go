package statechart

import (
	"container/heap"
	"sync"
	"time"
)

// Handle identifies a scheduled callback so it can later be cancelled.
type Handle uint64

// Clock is the host-side timer collaborator (spec §6). The default
// RealClock wraps the host's real timers; SimulatedClock advances virtual
// time deterministically and is required for reproducible tests of delayed
// transitions (spec §4.D, scenarios S1/S2).
type Clock interface {
	SetTimeout(fn func(), delay time.Duration) Handle
	ClearTimeout(h Handle)
	Now() time.Time
}

// RealClock is the default Clock, backed by time.AfterFunc.
type RealClock struct {
	mu      sync.Mutex
	timers  map[Handle]*time.Timer
	nextID  Handle
}

// NewRealClock constructs a RealClock.
func NewRealClock() *RealClock {
	return &RealClock{timers: make(map[Handle]*time.Timer)}
}

func (c *RealClock) SetTimeout(fn func(), delay time.Duration) Handle {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	t := time.AfterFunc(delay, func() {
		c.mu.Lock()
		_, live := c.timers[id]
		delete(c.timers, id)
		c.mu.Unlock()
		if live {
			fn()
		}
	})

	c.mu.Lock()
	c.timers[id] = t
	c.mu.Unlock()
	return id
}

func (c *RealClock) ClearTimeout(h Handle) {
	c.mu.Lock()
	t, ok := c.timers[h]
	delete(c.timers, h)
	c.mu.Unlock()
	if ok {
		t.Stop()
	}
}

func (c *RealClock) Now() time.Time { return time.Now() }

// timerEntry is one scheduled callback inside a SimulatedClock's heap,
// ordered by (due, sequence) per spec §5's ordering guarantee (c): delayed
// events fire in (due_time, scheduled_order) order, ties broken by
// scheduling order.
type timerEntry struct {
	due       time.Duration
	sequence  uint64
	handle    Handle
	fn        func()
	cancelled bool
	index     int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].sequence < h[j].sequence
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// SimulatedClock is a deterministic, manually-advanced Clock for tests. It
// fires all due callbacks in scheduled order when Increment advances the
// virtual clock past their due time; see scenarios S1/S2 in spec §8.
type SimulatedClock struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	nextID  Handle
	byID    map[Handle]*timerEntry
	pending timerHeap
}

// NewSimulatedClock creates a SimulatedClock starting at virtual time 0.
func NewSimulatedClock() *SimulatedClock {
	c := &SimulatedClock{byID: make(map[Handle]*timerEntry)}
	heap.Init(&c.pending)
	return c
}

func (c *SimulatedClock) SetTimeout(fn func(), delay time.Duration) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.seq++
	e := &timerEntry{due: c.now + delay, sequence: c.seq, handle: id, fn: fn}
	c.byID[id] = e
	heap.Push(&c.pending, e)
	return id
}

func (c *SimulatedClock) ClearTimeout(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byID[h]; ok {
		e.cancelled = true
		delete(c.byID, h)
	}
}

func (c *SimulatedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(0, 0).Add(c.now)
}

// Increment advances virtual time by d and synchronously fires every
// non-cancelled callback whose due time is now <= the advanced clock, in
// (due_time, scheduled_order) order.
func (c *SimulatedClock) Increment(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	var due []func()
	for c.pending.Len() > 0 && c.pending[0].due <= target {
		e := heap.Pop(&c.pending).(*timerEntry)
		if e.cancelled {
			continue
		}
		delete(c.byID, e.handle)
		due = append(due, e.fn)
	}
	c.now = target
	c.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

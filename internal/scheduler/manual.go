package scheduler

import (
	"container/heap"
	"time"
)

// Manual is a virtual-clock scheduler. Nothing runs until the owner calls
// Advance, Tick or Flush; callbacks then run on the caller's goroutine in
// due-time order, ties broken by scheduling order.
type Manual struct {
	now   time.Time
	seq   uint64
	tasks taskHeap
}

// NewManual creates a manual scheduler starting at start.
// A zero start uses a fixed epoch so test output is stable.
func NewManual(start time.Time) *Manual {
	if start.IsZero() {
		start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Manual{now: start}
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTask{due: m.now.Add(d), seq: m.seq, fn: fn}
	heap.Push(&m.tasks, t)
	return t
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	return m.now
}

// Pending returns the number of scheduled, not yet run or stopped callbacks.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Tick runs every callback due at the current time, including ones
// scheduled with zero delay while ticking. Returns how many ran.
func (m *Manual) Tick() int {
	return m.runUntil(m.now)
}

// Advance moves the clock forward by d, running callbacks as their due time
// is reached. Returns how many ran.
func (m *Manual) Advance(d time.Duration) int {
	return m.runUntil(m.now.Add(d))
}

// Flush runs callbacks until none remain, advancing the clock to each due
// time. limit bounds the number of callbacks so a self-rescheduling loop
// cannot hang a test; it returns how many ran.
func (m *Manual) Flush(limit int) int {
	ran := 0
	for ran < limit {
		t := m.next()
		if t == nil {
			break
		}
		if t.due.After(m.now) {
			m.now = t.due
		}
		heap.Pop(&m.tasks)
		t.stopped = true
		t.fn()
		ran++
	}
	return ran
}

func (m *Manual) runUntil(until time.Time) int {
	ran := 0
	for {
		t := m.next()
		if t == nil || t.due.After(until) {
			break
		}
		if t.due.After(m.now) {
			m.now = t.due
		}
		heap.Pop(&m.tasks)
		t.stopped = true
		t.fn()
		ran++
	}
	if until.After(m.now) {
		m.now = until
	}
	return ran
}

// next returns the earliest live task, discarding stopped ones.
func (m *Manual) next() *manualTask {
	for m.tasks.Len() > 0 {
		t := m.tasks[0]
		if !t.stopped {
			return t
		}
		heap.Pop(&m.tasks)
	}
	return nil
}

type manualTask struct {
	due     time.Time
	seq     uint64
	fn      func()
	stopped bool
	index   int
}

func (t *manualTask) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type taskHeap []*manualTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*manualTask)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

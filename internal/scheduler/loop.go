package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/reactor/internal/log"
)

// DefaultQueueCapacity is the default buffer size for the task queue.
const DefaultQueueCapacity = 1024

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithQueueCapacity sets the task queue buffer capacity.
func WithQueueCapacity(capacity int) LoopOption {
	return func(l *Loop) {
		l.queueCapacity = capacity
	}
}

// Loop is a single-goroutine FIFO event loop. Every callback scheduled through
// AfterFunc or submitted through Do runs on the goroutine that called Run, so
// tree state needs no locking as long as it is only touched from callbacks.
type Loop struct {
	queue         chan func()
	queueCapacity int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running  atomic.Bool
	started  atomic.Bool
	readyCh  chan struct{}
	readyMu  sync.Mutex
	readySet bool

	processed atomic.Int64
	panics    atomic.Int64
}

// NewLoop creates a loop. Call Run to start processing.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		queueCapacity: DefaultQueueCapacity,
		readyCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.queue = make(chan func(), l.queueCapacity)
	return l
}

// Run processes tasks until ctx is cancelled or Stop is called.
// Run can only be called once - subsequent calls return immediately.
func (l *Loop) Run(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}

	l.ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	l.running.Store(true)

	l.readyMu.Lock()
	if !l.readySet {
		close(l.readyCh)
		l.readySet = true
	}
	l.readyMu.Unlock()

	defer func() {
		l.running.Store(false)
		l.wg.Done()
	}()

	for {
		select {
		case <-l.ctx.Done():
			return
		case fn := <-l.queue:
			l.runTask(fn)
		}
	}
}

// WaitForReady blocks until the loop is accepting tasks.
func (l *Loop) WaitForReady(ctx context.Context) error {
	select {
	case <-l.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the loop and waits for the current task to finish.
// Pending tasks are not run.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// IsRunning reports whether the loop is processing tasks.
func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// ProcessedCount returns how many tasks have run.
func (l *Loop) ProcessedCount() int64 {
	return l.processed.Load()
}

// Do enqueues fn to run on the loop goroutine.
func (l *Loop) Do(fn func()) error {
	if l.started.Load() && !l.running.Load() {
		return ErrLoopStopped
	}
	select {
	case l.queue <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// DoAndWait enqueues fn and blocks until it has run on the loop goroutine.
func (l *Loop) DoAndWait(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Do(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc implements Scheduler. Stop cancels fn until it starts on the
// loop goroutine, including after the wall-clock timer has queued it.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		if !t.state.CompareAndSwap(timerWaiting, timerQueued) {
			return
		}
		err := l.Do(func() {
			if t.state.CompareAndSwap(timerQueued, timerDone) {
				fn()
			}
		})
		if err != nil {
			t.state.Store(timerDone)
			log.ErrorErr(log.CatScheduler, "dropping scheduled task", err, "delay", d)
		}
	})
	return t
}

// Now implements Scheduler.
func (l *Loop) Now() time.Time {
	return time.Now()
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			log.Error(log.CatScheduler, "task panicked", "panic", r)
		}
	}()
	fn()
	l.processed.Add(1)
}

const (
	timerWaiting int32 = iota
	timerQueued
	timerDone
)

type loopTimer struct {
	timer *time.Timer
	state atomic.Int32
}

func (t *loopTimer) Stop() bool {
	if t.state.CompareAndSwap(timerWaiting, timerDone) {
		t.timer.Stop()
		return true
	}
	return t.state.CompareAndSwap(timerQueued, timerDone)
}

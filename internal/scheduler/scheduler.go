// Package scheduler provides the cooperative host event loop the background
// engine runs on: plain tasks, idle callbacks with a bounded deadline, and a
// fixed-delay timer fallback for hosts without an idle facility.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs fn at a low-priority moment, no later than timeout from now.
type Scheduler interface {
	RequestIdle(fn func(), timeout time.Duration)
}

// MaxTimerDelay caps the fallback timer delay.
const MaxTimerDelay = 200 * time.Millisecond

// Timer is the fallback scheduler: it runs callbacks on their own goroutine
// after min(timeout, MaxTimerDelay).
type Timer struct{}

// RequestIdle schedules fn with time.AfterFunc.
func (Timer) RequestIdle(fn func(), timeout time.Duration) {
	delay := timeout
	if delay <= 0 || delay > MaxTimerDelay {
		delay = MaxTimerDelay
	}
	time.AfterFunc(delay, fn)
}

type idleCallback struct {
	fn       func()
	deadline time.Time
}

// Loop is a single-consumer event loop. Tasks run in FIFO order; idle
// callbacks run only when no task is queued, unless their deadline has
// passed, in which case they are promoted ahead of further tasks.
type Loop struct {
	mu    sync.Mutex
	tasks []func()
	idle  []idleCallback
	wake  chan struct{}
	now   func() time.Time
}

// NewLoop returns an empty loop.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// Post queues a task.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.signal()
}

// RequestIdle queues an idle callback with a deadline of now+timeout.
func (l *Loop) RequestIdle(fn func(), timeout time.Duration) {
	l.mu.Lock()
	l.idle = append(l.idle, idleCallback{fn: fn, deadline: l.now().Add(timeout)})
	l.mu.Unlock()
	l.signal()
}

// Pending reports the number of queued tasks and idle callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) + len(l.idle)
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// next pops the next unit of work, or nil when the loop is empty.
func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.idle) > 0 && !l.now().Before(l.idle[0].deadline) {
		return l.popIdle()
	}
	if len(l.tasks) > 0 {
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		return fn
	}
	if len(l.idle) > 0 {
		return l.popIdle()
	}
	return nil
}

func (l *Loop) popIdle() func() {
	cb := l.idle[0]
	l.idle[0] = idleCallback{}
	l.idle = l.idle[1:]
	return cb.fn
}

// Step runs the next unit of work and reports whether there was one.
func (l *Loop) Step() bool {
	fn := l.next()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Drain runs queued work, including work queued while draining, until the
// loop is empty and returns how many callbacks ran.
func (l *Loop) Drain() int {
	ran := 0
	for fn := l.next(); fn != nil; fn = l.next() {
		fn()
		ran++
	}
	return ran
}

// Run processes work until ctx is done. Idle callbacks that are not yet due
// wait for either their deadline or a quiet loop.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

package timeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type (
	// Loop serializes all timeline work onto a single goroutine
	Loop interface {
		// Post enqueues fn to run on the loop. Safe from any goroutine
		Post(fn func())

		// Go runs fn off the loop
		Go(fn func())

		// After runs fn on the loop once d has elapsed
		After(d time.Duration, fn func()) Timer

		// Every runs fn on the loop every d until stopped
		Every(d time.Duration, fn func()) Timer
	}

	// Timer is a cancellation token for a scheduled callback. Once Stop
	// returns the callback will not run, even if it was already queued
	Timer interface {
		Stop()
	}

	// EventLoop is the production Loop backed by a goroutine and the
	// system clock
	EventLoop struct {
		mu      sync.Mutex
		queue   []func()
		wake    chan struct{}
		running atomic.Bool
	}

	loopTimer struct {
		stopped atomic.Bool
		stop    func()
	}
)

// NewEventLoop creates an idle loop; call Run to start processing
func NewEventLoop() *EventLoop {
	return &EventLoop{
		wake: make(chan struct{}, 1),
	}
}

// Run processes posted work until the context is cancelled
func (l *EventLoop) Run(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	defer l.running.Store(false)

	for {
		for _, fn := range l.drain() {
			fn()
		}
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Post enqueues fn to run on the loop goroutine
func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Go runs fn on its own goroutine
func (l *EventLoop) Go(fn func()) {
	go fn()
}

// After schedules fn onto the loop after d
func (l *EventLoop) After(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	timer := time.AfterFunc(d, func() {
		l.Post(t.guard(fn))
	})
	t.stop = func() { timer.Stop() }
	return t
}

// Every schedules fn onto the loop every d
func (l *EventLoop) Every(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				l.Post(t.guard(fn))
			}
		}
	}()
	t.stop = func() {
		ticker.Stop()
		close(done)
	}
	return t
}

func (l *EventLoop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := l.queue
	l.queue = nil
	return res
}

func (t *loopTimer) Stop() {
	if t.stopped.CompareAndSwap(false, true) {
		t.stop()
	}
}

func (t *loopTimer) guard(fn func()) func() {
	return func() {
		if !t.stopped.Load() {
			fn()
		}
	}
}

// Call runs fn off the loop and delivers its result back onto the loop
func Call[T any](l Loop, fn func() (T, error), done func(T, error)) {
	l.Go(func() {
		res, err := fn()
		l.Post(func() { done(res, err) })
	})
}

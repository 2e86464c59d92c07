// Package timelinetest provides a deterministic timeline.Loop with virtual
// time for tests
package timelinetest

import (
	"sort"
	"sync"
	"time"

	"mimic-swap/pkg/timeline"
)

type (
	// ManualLoop runs nothing until told to. Posted work runs on RunPending,
	// work handed to Go runs on RunAsync, and timers fire on Advance. Drain
	// runs both until nothing is left
	ManualLoop struct {
		mu      sync.Mutex
		start   time.Time
		elapsed time.Duration
		queue   []func()
		async   []func()
		timers  []*manualTimer
		seq     int
	}

	manualTimer struct {
		loop    *ManualLoop
		at      time.Duration
		period  time.Duration
		seq     int
		fn      func()
		stopped bool
	}
)

// Epoch is the virtual wall-clock time of a fresh ManualLoop
var Epoch = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

var _ timeline.Loop = (*ManualLoop)(nil)

// NewManualLoop creates a loop whose clock starts at Epoch
func NewManualLoop() *ManualLoop {
	return &ManualLoop{start: Epoch}
}

// Post queues fn to run on the next RunPending or Drain
func (l *ManualLoop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, fn)
}

// Go queues fn as off-loop work, run by RunAsync or Drain
func (l *ManualLoop) Go(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.async = append(l.async, fn)
}

// After schedules fn at the current virtual time plus d
func (l *ManualLoop) After(d time.Duration, fn func()) timeline.Timer {
	return l.schedule(d, 0, fn)
}

// Every schedules fn every d of virtual time
func (l *ManualLoop) Every(d time.Duration, fn func()) timeline.Timer {
	return l.schedule(d, d, fn)
}

// Now returns the virtual wall-clock time
func (l *ManualLoop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.start.Add(l.elapsed)
}

// Elapsed returns the virtual time passed since creation
func (l *ManualLoop) Elapsed() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.elapsed
}

// ActiveTimers counts the timers that have not been stopped or fired
func (l *ManualLoop) ActiveTimers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// RunPending runs posted work, including work posted while running, but
// leaves off-loop work queued
func (l *ManualLoop) RunPending() {
	for {
		fn, ok := l.next()
		if !ok {
			return
		}
		fn()
	}
}

// RunAsync runs the off-loop work queued so far and reports whether there
// was any. Results it posts stay queued until RunPending
func (l *ManualLoop) RunAsync() bool {
	l.mu.Lock()
	async := l.async
	l.async = nil
	l.mu.Unlock()

	for _, fn := range async {
		fn()
	}
	return len(async) > 0
}

// Step runs one round trip: off-loop work, then the posted results
func (l *ManualLoop) Step() {
	l.RunAsync()
	l.RunPending()
}

// Drain runs posted work and off-loop work until both queues are empty
func (l *ManualLoop) Drain() {
	for {
		l.RunPending()
		if !l.RunAsync() {
			return
		}
	}
}

// Advance moves virtual time forward by d, firing due timers in order and
// draining after each one
func (l *ManualLoop) Advance(d time.Duration) {
	l.Drain()

	l.mu.Lock()
	target := l.elapsed + d
	l.mu.Unlock()

	for {
		t, ok := l.due(target)
		if !ok {
			break
		}
		t.fn()
		l.Drain()
	}

	l.mu.Lock()
	l.elapsed = target
	l.mu.Unlock()
}

func (l *ManualLoop) schedule(
	d, period time.Duration, fn func(),
) timeline.Timer {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	t := &manualTimer{
		loop:   l,
		at:     l.elapsed + d,
		period: period,
		seq:    l.seq,
		fn:     fn,
	}
	l.timers = append(l.timers, t)
	return t
}

func (l *ManualLoop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue = l.queue[1:]
	return fn, true
}

// due pops the earliest timer at or before target and moves the clock to
// its deadline. Periodic timers are rescheduled
func (l *ManualLoop) due(target time.Duration) (*manualTimer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.timers) == 0 {
		return nil, false
	}
	sort.SliceStable(l.timers, func(i, j int) bool {
		a, b := l.timers[i], l.timers[j]
		if a.at != b.at {
			return a.at < b.at
		}
		return a.seq < b.seq
	})

	t := l.timers[0]
	if t.at > target {
		return nil, false
	}
	l.elapsed = t.at
	if t.period > 0 {
		t.at += t.period
	} else {
		l.timers = l.timers[1:]
	}
	return t, true
}

func (t *manualTimer) Stop() {
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	for i, other := range l.timers {
		if other == t {
			l.timers = append(l.timers[:i], l.timers[i+1:]...)
			return
		}
	}
}

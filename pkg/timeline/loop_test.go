package timeline_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mimic-swap/pkg/timeline"
)

func runLoop(t *testing.T) *timeline.EventLoop {
	t.Helper()
	l := timeline.NewEventLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l
}

func TestEventLoopPostRunsInOrder(t *testing.T) {
	l := runLoop(t)

	done := make(chan []int, 1)
	var got []int
	for i := range 5 {
		l.Post(func() { got = append(got, i) })
	}
	l.Post(func() { done <- got })

	select {
	case res := <-done:
		assert.Equal(t, []int{0, 1, 2, 3, 4}, res)
	case <-time.After(time.Second):
		t.Fatal("posted work did not run")
	}
}

func TestEventLoopAfterStop(t *testing.T) {
	l := runLoop(t)

	var fired atomic.Int32
	timer := l.After(20*time.Millisecond, func() { fired.Add(1) })
	timer.Stop()
	l.After(10*time.Millisecond, func() { fired.Add(10) })

	assert.Eventually(t, func() bool {
		return fired.Load() == 10
	}, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(10), fired.Load())
}

func TestEventLoopEvery(t *testing.T) {
	l := runLoop(t)

	var ticks atomic.Int32
	var timer timeline.Timer
	stopped := make(chan struct{})
	l.Post(func() {
		timer = l.Every(5*time.Millisecond, func() {
			if ticks.Add(1) == 3 {
				timer.Stop()
				close(stopped)
			}
		})
	})

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(3), ticks.Load())
}

func TestCallDeliversOnLoop(t *testing.T) {
	l := runLoop(t)

	type result struct {
		v   int
		err error
	}
	done := make(chan result, 1)
	boom := errors.New("boom")

	timeline.Call(l,
		func() (int, error) { return 7, boom },
		func(v int, err error) { done <- result{v, err} },
	)

	select {
	case res := <-done:
		assert.Equal(t, 7, res.v)
		assert.ErrorIs(t, res.err, boom)
	case <-time.After(time.Second):
		t.Fatal("call result was not delivered")
	}
}

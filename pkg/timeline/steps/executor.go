package steps

import (
	"context"

	"mimic-swap/pkg/timeline"
)

// base holds the per-epoch bookkeeping shared by every executor
type base struct {
	timeline.Env

	sc        timeline.StepContext
	epoch     uint64
	begun     bool
	stopped   bool
	completed bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// enter records the context and reports whether it starts a new epoch.
// A new epoch cancels the in-flight calls of the previous one
func (b *base) enter(sc timeline.StepContext) bool {
	fresh := !b.begun || sc.ResetKey != b.epoch
	if fresh {
		if b.cancel != nil {
			b.cancel()
		}
		b.ctx, b.cancel = context.WithCancel(context.Background())
		b.epoch = sc.ResetKey
		b.begun = true
		b.completed = false
	}
	b.sc = sc
	return fresh
}

// current reports whether a result tagged with epoch may still be applied
func (b *base) current(epoch uint64) bool {
	return !b.stopped && b.begun && epoch == b.epoch
}

func (b *base) halt() {
	b.stopped = true
	if b.cancel != nil {
		b.cancel()
	}
}

// complete reports the completed status and signals completion once per
// epoch
func (b *base) complete(description string) {
	first := !b.completed
	b.completed = true
	b.Report.Status(timeline.StatusCompleted, description, "")
	if first {
		b.Report.Complete()
	}
}

func (b *base) fail(description, errMsg string) {
	b.Report.Status(timeline.StatusError, description, errMsg)
}

func (b *base) loading(description string) {
	b.Report.Status(timeline.StatusLoading, description, "")
}

func (b *base) pending(description string) {
	b.Report.Status(timeline.StatusPending, description, "")
}

func stopTimer(t timeline.Timer) {
	if t != nil {
		t.Stop()
	}
}

package timeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type (
	// Timeline orchestrates the swap steps for one set of inputs. It owns
	// the Aggregator and the config signature cell, mounts executors whose
	// dependencies have completed, and runs the reset protocol. All state
	// changes happen on its Loop
	Timeline struct {
		defs []StepDefinition
		loop Loop
		log  zerolog.Logger
		agg  *Aggregator
		sig  SigCell

		inputs      Inputs
		started     bool
		closed      bool
		resetting   bool
		reconciling bool
		dirty       bool
		scheduled   bool
		mounted     map[StepID]*mount
		listeners   []func(State)

		mu       sync.RWMutex
		snapshot State
	}

	mount struct {
		def    StepDefinition
		exec   Executor
		tl     *Timeline
		closed bool
	}
)

// maxPasses bounds the re-evaluation cascade triggered by one event
const maxPasses = 32

var (
	ErrNoSteps          = errors.New("timeline needs at least one step")
	ErrDuplicateStep    = errors.New("duplicate step id")
	ErrUnknownDep       = errors.New("dependency must name an earlier step")
	ErrMissingFactory   = errors.New("step has no executor factory")
	ErrStepNotMounted   = errors.New("step is not mounted")
	ErrStepCannotRetry  = errors.New("step does not support retry")
	ErrExecutorStopped  = errors.New("executor has been stopped")
	ErrTimelineIsClosed = errors.New("timeline is closed")
)

// New validates the step definitions and creates an idle timeline.
// Dependencies must reference steps defined earlier, which rules out cycles
func New(defs []StepDefinition, loop Loop, log zerolog.Logger) (*Timeline, error) {
	if len(defs) == 0 {
		return nil, ErrNoSteps
	}

	seen := make(map[StepID]bool, len(defs))
	for _, def := range defs {
		if seen[def.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, def.ID)
		}
		if def.New == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingFactory, def.ID)
		}
		for _, dep := range def.Dependencies {
			if !seen[dep] {
				return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownDep, def.ID, dep)
			}
		}
		seen[def.ID] = true
	}

	t := &Timeline{
		defs:    defs,
		loop:    loop,
		log:     log.With().Str("component", "timeline").Logger(),
		agg:     NewAggregator(defs),
		mounted: map[StepID]*mount{},
	}
	t.snapshot = t.agg.State()
	return t, nil
}

// OnChange registers fn to be called on the loop whenever the state
// changes. Register before the first Update
func (t *Timeline) OnChange(fn func(State)) {
	t.listeners = append(t.listeners, fn)
}

// State returns the latest published state. Safe from any goroutine
func (t *Timeline) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot.clone()
}

// IsLoading reports whether any mounted step is doing work
func (t *Timeline) IsLoading() bool {
	return t.State().IsLoading
}

// Update posts new inputs to the loop. A larger ResetKey than the current
// one starts a new attempt
func (t *Timeline) Update(in Inputs) {
	t.loop.Post(func() { t.update(in) })
}

// Retry posts a user retry for a mounted step in error
func (t *Timeline) Retry(id StepID) {
	t.loop.Post(func() {
		if err := t.retry(id); err != nil {
			t.log.Warn().Err(err).Str("step", string(id)).Msg("Retry ignored")
		}
	})
}

// Close posts a teardown that stops every executor. Later updates are
// ignored
func (t *Timeline) Close() {
	t.loop.Post(func() {
		t.closed = true
		t.unmountAll()
		t.publish()
	})
}

func (t *Timeline) update(in Inputs) {
	if t.closed {
		t.log.Debug().Err(ErrTimelineIsClosed).Msg("Update ignored")
		return
	}
	if t.started && in.ResetKey < t.inputs.ResetKey {
		t.log.Warn().
			Uint64("reset_key", in.ResetKey).
			Uint64("current", t.inputs.ResetKey).
			Msg("Stale reset key ignored")
		return
	}

	reset := t.started && in.ResetKey > t.inputs.ResetKey
	changed := !t.started || !in.sameAttempt(t.inputs)
	t.inputs = in
	t.started = true

	if reset {
		t.log.Info().Uint64("reset_key", in.ResetKey).Msg("Resetting timeline")
		t.invalidate()
		t.loop.Post(t.reinitialize)
		return
	}
	if changed {
		t.reconcile()
	}
}

// invalidate synchronously tears down every executor of the old epoch
func (t *Timeline) invalidate() {
	t.unmountAll()
	t.sig.clear()
	t.resetting = true
}

// reinitialize runs after the pass that detected the reset
func (t *Timeline) reinitialize() {
	if t.closed {
		return
	}
	t.agg.Reset()
	t.sig.clear()
	t.resetting = false
	t.reconcile()
}

func (t *Timeline) retry(id StepID) error {
	m, ok := t.mounted[id]
	if !ok {
		return ErrStepNotMounted
	}
	r, ok := m.exec.(Retrier)
	if !ok {
		return ErrStepCannotRetry
	}
	r.Retry()
	t.reconcile()
	return nil
}

func (t *Timeline) reconcile() {
	if t.reconciling {
		t.dirty = true
		return
	}
	t.reconciling = true
	defer func() { t.reconciling = false }()

	for i := 0; ; i++ {
		t.dirty = false
		t.pass()
		if !t.dirty {
			break
		}
		if i >= maxPasses {
			t.log.Error().Int("passes", i).Msg("Timeline did not settle")
			break
		}
	}
	t.publish()
}

func (t *Timeline) pass() {
	if t.closed || t.resetting || !t.inputs.IsVisible {
		t.unmountAll()
		return
	}

	eligible := Eligible(t.defs, t.agg.State())
	for _, def := range t.defs {
		if _, ok := t.mounted[def.ID]; ok && !eligible[def.ID] {
			t.unmount(def.ID)
		}
	}
	for _, def := range t.defs {
		if _, ok := t.mounted[def.ID]; !ok && eligible[def.ID] {
			t.mountStep(def)
		}
	}

	sc := t.context()
	for _, def := range t.defs {
		if m, ok := t.mounted[def.ID]; ok && !m.closed {
			m.exec.Evaluate(sc)
		}
	}
}

func (t *Timeline) context() StepContext {
	in := t.inputs
	return StepContext{
		FromToken:   in.FromToken,
		ToToken:     in.ToToken,
		FromAmount:  in.FromAmount,
		ToAmount:    in.ToAmount,
		Slippage:    in.Slippage,
		UserAddress: in.UserAddress,
		IsVisible:   in.IsVisible,
		ResetKey:    in.ResetKey,
		ConfigSig:   &t.sig,
	}
}

func (t *Timeline) mountStep(def StepDefinition) {
	m := &mount{def: def, tl: t}
	m.exec = def.New(Env{
		Loop:   t.loop,
		Report: m,
		Logger: t.log.With().
			Str("step", string(def.ID)).
			Uint64("epoch", t.inputs.ResetKey).
			Logger(),
	})
	t.mounted[def.ID] = m
	t.log.Debug().Str("step", string(def.ID)).Msg("Step mounted")
}

func (t *Timeline) unmount(id StepID) {
	m, ok := t.mounted[id]
	if !ok {
		return
	}
	m.closed = true
	m.exec.Stop()
	delete(t.mounted, id)
	if t.agg.SetLoading(id, false) {
		t.dirty = true
	}
	t.log.Debug().Str("step", string(id)).Msg("Step unmounted")
}

func (t *Timeline) unmountAll() {
	for i := len(t.defs) - 1; i >= 0; i-- {
		t.unmount(t.defs[i].ID)
	}
}

// changed marks the aggregate dirty. Outside a reconcile the pass is
// posted so executor callbacks never re-enter themselves
func (t *Timeline) changed() {
	if t.reconciling {
		t.dirty = true
		return
	}
	if t.scheduled {
		return
	}
	t.scheduled = true
	t.loop.Post(func() {
		t.scheduled = false
		t.reconcile()
	})
}

func (t *Timeline) dependenciesMet(def StepDefinition) bool {
	for _, dep := range def.Dependencies {
		if t.agg.Status(dep) != StatusCompleted {
			return false
		}
	}
	return true
}

func (t *Timeline) publish() {
	next := t.agg.State()

	t.mu.Lock()
	same := equalState(t.snapshot, next)
	t.snapshot = next
	t.mu.Unlock()

	if same {
		return
	}
	for _, fn := range t.listeners {
		fn(next.clone())
	}
}

func (m *mount) Status(status Status, description, errMsg string) {
	if m.closed {
		return
	}
	if status != StatusPending && !m.tl.dependenciesMet(m.def) {
		m.tl.log.Warn().
			Str("step", string(m.def.ID)).
			Str("status", string(status)).
			Msg("Status change before dependencies completed")
		return
	}
	if m.tl.agg.SetStatus(m.def.ID, status, description, errMsg) {
		m.tl.changed()
	}
}

func (m *mount) Loading(loading bool) {
	if m.closed {
		return
	}
	if m.tl.agg.SetLoading(m.def.ID, loading) {
		m.tl.changed()
	}
}

func (m *mount) Complete() {
	if m.closed {
		return
	}
	if m.tl.agg.Complete(m.def.ID) {
		m.tl.changed()
	}
}

func (m *mount) SetConfigSig(sig string) error {
	if m.closed {
		return ErrExecutorStopped
	}
	if err := m.tl.sig.store(sig); err != nil {
		return err
	}
	m.tl.changed()
	return nil
}

func equalState(a, b State) bool {
	if a.IsLoading != b.IsLoading ||
		a.CurrentStepIndex != b.CurrentStepIndex ||
		len(a.Steps) != len(b.Steps) {
		return false
	}
	for i := range a.Steps {
		if a.Steps[i] != b.Steps[i] {
			return false
		}
	}
	return true
}

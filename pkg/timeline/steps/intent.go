package steps

import (
	"fmt"
	"time"

	"mimic-swap/pkg/protocol"
	"mimic-swap/pkg/timeline"
)

type (
	// IntentOptions configures the intent step
	IntentOptions struct {
		PollInterval     time.Duration
		ExecutionTimeout time.Duration
	}

	// IntentExecutor waits for the config's execution to yield an intent
	// hash, then follows the intent until it is terminal
	IntentExecutor struct {
		base
		api  IntentSource
		opts IntentOptions

		phase    intentPhase
		gen      int
		sig      string
		hash     string
		intent   *protocol.Intent
		fetching bool
		lastErr  error
		timedOut bool
		poll     timeline.Timer
		deadline timeline.Timer
	}

	intentPhase int
)

const (
	phaseIdle intentPhase = iota
	phaseLookup
	phaseMonitor
	phaseDone
)

// NewIntent creates the intent executor for a freshly mounted step
func NewIntent(
	env timeline.Env, api IntentSource, opts IntentOptions,
) *IntentExecutor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ExecutionTimeout <= 0 {
		opts.ExecutionTimeout = DefaultExecutionTimeout
	}
	return &IntentExecutor{
		base: base{Env: env},
		api:  api,
		opts: opts,
	}
}

// Evaluate implements timeline.Executor
func (i *IntentExecutor) Evaluate(sc timeline.StepContext) {
	if i.stopped {
		return
	}
	if i.enter(sc) {
		i.clear()
	}
	i.trigger()
	i.report()
}

// Stop implements timeline.Executor
func (i *IntentExecutor) Stop() {
	i.stopTimers()
	i.halt()
}

func (i *IntentExecutor) clear() {
	i.stopTimers()
	i.phase = phaseIdle
	i.gen++
	i.sig = ""
	i.hash = ""
	i.intent = nil
	i.fetching = false
	i.lastErr = nil
	i.timedOut = false
}

func (i *IntentExecutor) trigger() {
	if !i.sc.IsVisible || i.phase != phaseIdle || i.sc.ConfigSig == nil {
		return
	}
	if sig, ok := i.sc.ConfigSig.ConfigSig(); ok {
		i.startLookup(sig)
	}
}

// startLookup polls executions until one yields an intent hash or the
// execution timeout elapses
func (i *IntentExecutor) startLookup(sig string) {
	i.enterPhase(phaseLookup)
	i.sig = sig
	i.Logger.Info().Str("config_sig", sig).Msg("Waiting for execution")

	i.deadline = i.Loop.After(i.opts.ExecutionTimeout, i.expire)
	i.poll = i.Loop.Every(i.opts.PollInterval, i.fetchExecutions)
	i.fetchExecutions()
}

// startMonitor polls the intent until it reaches a terminal status
func (i *IntentExecutor) startMonitor(hash string) {
	i.enterPhase(phaseMonitor)
	i.hash = hash
	i.Logger.Info().Str("intent", hash).Msg("Monitoring intent")

	i.poll = i.Loop.Every(i.opts.PollInterval, i.fetchIntent)
	i.fetchIntent()
}

func (i *IntentExecutor) finish() {
	i.enterPhase(phaseDone)
}

// enterPhase cancels every timer of the previous phase and invalidates its
// in-flight fetch
func (i *IntentExecutor) enterPhase(p intentPhase) {
	i.stopTimers()
	i.phase = p
	i.gen++
	i.fetching = false
	i.lastErr = nil
}

func (i *IntentExecutor) stopTimers() {
	stopTimer(i.poll)
	stopTimer(i.deadline)
	i.poll = nil
	i.deadline = nil
}

func (i *IntentExecutor) expire() {
	if i.stopped || i.phase != phaseLookup {
		return
	}
	i.Logger.Warn().
		Dur("timeout", i.opts.ExecutionTimeout).
		Str("config_sig", i.sig).
		Msg("No execution data received")
	i.timedOut = true
	i.finish()
	i.report()
}

func (i *IntentExecutor) fetchExecutions() {
	if i.stopped || i.phase != phaseLookup || i.fetching {
		return
	}
	i.fetching = true
	epoch, gen, ctx, sig := i.epoch, i.gen, i.ctx, i.sig

	timeline.Call(i.Loop,
		func() ([]protocol.Execution, error) {
			return i.api.Executions(ctx, sig)
		},
		func(execs []protocol.Execution, err error) {
			if !i.current(epoch) || gen != i.gen {
				return
			}
			i.fetching = false
			if err != nil {
				i.Logger.Debug().Err(err).Msg("Execution lookup failed")
				i.lastErr = err
				i.report()
				return
			}
			i.lastErr = nil
			for _, e := range execs {
				if hash, ok := e.IntentHash(); ok {
					i.startMonitor(hash)
					break
				}
			}
			i.report()
		},
	)
}

func (i *IntentExecutor) fetchIntent() {
	if i.stopped || i.phase != phaseMonitor || i.fetching {
		return
	}
	i.fetching = true
	epoch, gen, ctx, hash := i.epoch, i.gen, i.ctx, i.hash

	timeline.Call(i.Loop,
		func() (*protocol.Intent, error) {
			return i.api.IntentByHash(ctx, hash)
		},
		func(in *protocol.Intent, err error) {
			if !i.current(epoch) || gen != i.gen {
				return
			}
			i.fetching = false
			if err != nil || in == nil {
				i.Logger.Debug().Err(err).Msg("Intent lookup failed")
				i.lastErr = err
				i.report()
				return
			}
			i.lastErr = nil
			i.intent = in
			if in.Status.IsTerminal() {
				i.Logger.Info().Str("status", string(in.Status)).Msg("Intent reached terminal status")
				i.finish()
			}
			i.report()
		},
	)
}

func (i *IntentExecutor) report() {
	if !i.sc.IsVisible || i.phase == phaseIdle {
		i.Report.Loading(false)
		i.pending("Waiting for config signature...")
		return
	}

	i.Report.Loading(i.phase == phaseLookup || i.phase == phaseMonitor)

	if i.timedOut {
		i.fail("Execution timeout - no response received",
			fmt.Sprintf("No execution data received within %d seconds",
				int(i.opts.ExecutionTimeout/time.Second)))
		return
	}

	if i.intent == nil {
		switch {
		case i.phase == phaseLookup && i.lastErr != nil:
			i.loading("Execution lookup failed, retrying...")
		case i.phase == phaseLookup:
			i.loading("Waiting for execution data...")
		case i.lastErr != nil:
			i.loading("Intent lookup failed, retrying...")
		default:
			i.loading("Monitoring intent status...")
		}
		return
	}

	switch status := i.intent.Status; status {
	case protocol.IntentSucceeded:
		i.complete("Intent completed successfully")
	case protocol.IntentFailed:
		i.fail("Intent execution failed", "Intent status: failed")
	case protocol.IntentDiscarded, protocol.IntentExpired:
		i.fail("Intent was discarded or expired", fmt.Sprintf("Intent status: %s", status))
	case protocol.IntentCreated, protocol.IntentEnqueued, protocol.IntentSubmitted:
		i.loading("Intent is pending execution...")
	default:
		i.loading(fmt.Sprintf("Intent status: %s", status))
	}
}

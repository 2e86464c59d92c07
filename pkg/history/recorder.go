package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mimic-swap/pkg/protocol"
	"mimic-swap/pkg/timeline"
	"mimic-swap/pkg/timeline/steps"
)

type (
	// Recorder turns a running timeline into attempt records. Wrap the
	// step collaborators with Creator and Intents so submissions are seen,
	// and feed every published state to Observe
	Recorder struct {
		store *Storage
		log   zerolog.Logger
		now   func() time.Time

		mu       sync.Mutex
		template Attempt
		current  *Attempt
	}

	recordingCreator struct {
		steps.ConfigCreator
		rec *Recorder
	}

	recordingIntents struct {
		steps.IntentSource
		rec *Recorder
	}
)

// NewRecorder creates a recorder writing to store
func NewRecorder(store *Storage, log zerolog.Logger) *Recorder {
	return &Recorder{
		store: store,
		log:   log.With().Str("component", "history").Logger(),
		now:   time.Now,
	}
}

// Begin describes the next attempt. Call it whenever the timeline is
// reset; nothing is written until a config is created
func (r *Recorder) Begin(fromSymbol, toSymbol string, in timeline.Inputs) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := ""
	if in.UserAddress != nil {
		user = in.UserAddress.Hex()
	}
	r.template = Attempt{
		FromSymbol: fromSymbol,
		ToSymbol:   toSymbol,
		FromToken:  in.FromToken,
		ToToken:    in.ToToken,
		FromAmount: in.FromAmount,
		ToAmount:   in.ToAmount,
		Slippage:   in.Slippage,
		User:       user,
	}
	r.current = nil
}

// Current returns the attempt being recorded, if any
func (r *Recorder) Current() (*Attempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil, false
	}
	return r.current.clone(), true
}

// Creator wraps a config creator so created configs start an attempt
func (r *Recorder) Creator(inner steps.ConfigCreator) steps.ConfigCreator {
	return &recordingCreator{ConfigCreator: inner, rec: r}
}

// Intents wraps an intent source so the first intent hash is recorded
func (r *Recorder) Intents(inner steps.IntentSource) steps.IntentSource {
	return &recordingIntents{IntentSource: inner, rec: r}
}

// Observe records the final outcome of the current attempt
func (r *Recorder) Observe(state timeline.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.IsFinal() {
		return
	}

	if failed, ok := state.Failed(); ok {
		r.current.Status = StatusFailed
		r.current.Step = string(failed.ID)
		r.current.Error = failed.Error
		if r.current.Error == "" {
			r.current.Error = failed.Description
		}
	} else if state.Completed() {
		r.current.Status = StatusCompleted
	} else {
		return
	}
	r.update()
}

func (r *Recorder) created(sig string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	a := r.template
	a.ID = uuid.New().String()
	a.Created = now
	a.LastUpdated = now
	a.ConfigSig = sig
	a.Status = StatusRunning

	if err := r.store.Create(&a); err != nil {
		r.log.Error().Err(err).Msg("Failed to record attempt")
		return
	}
	r.current = &a
	r.log.Debug().Str("id", a.ID).Str("config_sig", sig).Msg("Attempt recorded")
}

func (r *Recorder) intentSeen(sig, hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.ConfigSig != sig || r.current.IntentHash != "" {
		return
	}
	r.current.IntentHash = hash
	r.update()
}

// update persists the current attempt; the caller holds mu
func (r *Recorder) update() {
	r.current.LastUpdated = r.now()
	if err := r.store.Update(r.current); err != nil {
		r.log.Error().Err(err).Str("id", r.current.ID).Msg("Failed to update attempt")
	}
}

func (c *recordingCreator) SignAndCreate(
	ctx context.Context, spec protocol.ConfigSpec, signer protocol.Signer,
) (*protocol.Config, error) {
	cfg, err := c.ConfigCreator.SignAndCreate(ctx, spec, signer)
	if err == nil && cfg != nil && cfg.Sig != "" {
		c.rec.created(cfg.Sig)
	}
	return cfg, err
}

func (i *recordingIntents) Executions(
	ctx context.Context, configSig string,
) ([]protocol.Execution, error) {
	execs, err := i.IntentSource.Executions(ctx, configSig)
	if err != nil {
		return nil, err
	}
	for _, e := range execs {
		if hash, ok := e.IntentHash(); ok {
			i.rec.intentSeen(configSig, hash)
			break
		}
	}
	return execs, nil
}

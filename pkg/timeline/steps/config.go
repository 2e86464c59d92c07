package steps

import (
	"errors"
	"fmt"
	"time"

	"mimic-swap/pkg/protocol"
	"mimic-swap/pkg/timeline"
	"mimic-swap/pkg/units"
)

type (
	// ConfigOptions configures the config step
	ConfigOptions struct {
		TaskCID           string
		Description       string
		ScheduleOffset    time.Duration
		Validity          time.Duration
		TriggerDelta      string
		ExecutionFeeLimit string
		MinValidations    int
		Signer            protocol.Signer
		Now               func() time.Time
		Version           func() string
	}

	// ConfigExecutor signs and submits the swap config once the approval
	// has completed and publishes the resulting signature
	ConfigExecutor struct {
		base
		api  ConfigCreator
		opts ConfigOptions

		manifest    protocol.Manifest
		manifestRun callState
		manifestErr error
		submit      callState
		submitErr   error
	}
)

var (
	ErrNoSigner    = errors.New("no wallet signer configured")
	ErrEmptyConfig = errors.New("protocol returned no config")
)

// NewConfig creates the config executor for a freshly mounted step
func NewConfig(
	env timeline.Env, api ConfigCreator, opts ConfigOptions,
) *ConfigExecutor {
	if opts.TaskCID == "" {
		opts.TaskCID = DefaultTaskCID
	}
	if opts.Description == "" {
		opts.Description = DefaultDescription
	}
	if opts.ScheduleOffset <= 0 {
		opts.ScheduleOffset = DefaultScheduleOffset
	}
	if opts.Validity <= 0 {
		opts.Validity = DefaultConfigValidity
	}
	if opts.TriggerDelta == "" {
		opts.TriggerDelta = DefaultTriggerDelta
	}
	if opts.ExecutionFeeLimit == "" {
		opts.ExecutionFeeLimit = "0"
	}
	if opts.MinValidations <= 0 {
		opts.MinValidations = protocol.DefaultMinValidations
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Version == nil {
		opts.Version = RandomVersion
	}
	return &ConfigExecutor{
		base: base{Env: env},
		api:  api,
		opts: opts,
	}
}

// Evaluate implements timeline.Executor
func (c *ConfigExecutor) Evaluate(sc timeline.StepContext) {
	if c.stopped {
		return
	}
	if c.enter(sc) {
		c.clear()
	}
	c.evaluate()
}

// Retry resubmits a failed config or reloads a failed manifest
func (c *ConfigExecutor) Retry() {
	if c.stopped {
		return
	}
	switch {
	case c.manifestRun == callFailed:
		c.manifestRun = callIdle
		c.manifestErr = nil
	case c.submit == callFailed:
		c.submit = callIdle
		c.submitErr = nil
	}
}

// Stop implements timeline.Executor
func (c *ConfigExecutor) Stop() {
	c.halt()
}

func (c *ConfigExecutor) clear() {
	c.manifest = nil
	c.manifestRun = callIdle
	c.manifestErr = nil
	c.submit = callIdle
	c.submitErr = nil
}

func (c *ConfigExecutor) evaluate() {
	c.trigger()
	c.report()
}

func (c *ConfigExecutor) trigger() {
	sc := c.sc
	if !sc.IsVisible {
		return
	}
	if c.manifestRun == callIdle {
		c.loadManifest()
		return
	}
	if c.manifestRun != callDone {
		return
	}
	if sc.UserAddress == nil || sc.FromAmount == "" || sc.ToAmount == "" {
		return
	}
	if c.submit != callIdle || c.completed {
		return
	}
	c.create()
}

func (c *ConfigExecutor) loadManifest() {
	c.manifestRun = callRunning
	epoch, ctx, cid := c.epoch, c.ctx, c.opts.TaskCID

	timeline.Call(c.Loop,
		func() (protocol.Manifest, error) {
			return c.api.Manifest(ctx, cid)
		},
		func(m protocol.Manifest, err error) {
			if !c.current(epoch) {
				return
			}
			if err != nil {
				c.Logger.Error().Err(err).Str("task_cid", cid).Msg("Manifest loading failed")
				c.manifestRun = callFailed
				c.manifestErr = err
			} else {
				c.manifestRun = callDone
				c.manifest = m
			}
			c.evaluate()
		},
	)
}

func (c *ConfigExecutor) create() {
	c.submit = callRunning
	spec, err := c.spec()
	if err != nil {
		c.Logger.Error().Err(err).Msg("Config construction failed")
		c.submit = callFailed
		c.submitErr = err
		return
	}

	epoch, ctx, signer := c.epoch, c.ctx, c.opts.Signer
	c.Logger.Info().
		Str("schedule", spec.Trigger.Schedule).
		Int64("end_date", spec.Trigger.EndDate).
		Str("version", spec.Version).
		Msg("Creating swap configuration")

	timeline.Call(c.Loop,
		func() (*protocol.Config, error) {
			return c.api.SignAndCreate(ctx, spec, signer)
		},
		func(cfg *protocol.Config, err error) {
			if !c.current(epoch) {
				return
			}
			if err == nil && cfg == nil {
				err = ErrEmptyConfig
			}
			if err == nil {
				err = c.Report.SetConfigSig(cfg.Sig)
			}
			if err != nil {
				c.Logger.Error().Err(err).Msg("Config creation failed")
				c.submit = callFailed
				c.submitErr = err
			} else {
				c.Logger.Info().Str("sig", cfg.Sig).Msg("Swap configuration created")
				c.submit = callDone
			}
			c.evaluate()
		},
	)
}

func (c *ConfigExecutor) spec() (protocol.ConfigSpec, error) {
	sc := c.sc
	if c.opts.Signer == nil {
		return protocol.ConfigSpec{}, ErrNoSigner
	}
	bps, err := units.SlippageBps(sc.Slippage)
	if err != nil {
		return protocol.ConfigSpec{}, err
	}
	if _, err := units.ParseUnits(sc.FromAmount, sc.FromToken.Decimals); err != nil {
		return protocol.ConfigSpec{}, err
	}

	cron, target := UTCCron(c.opts.Now(), c.opts.ScheduleOffset)
	return protocol.ConfigSpec{
		TaskCID:     c.opts.TaskCID,
		Description: c.opts.Description,
		Trigger: protocol.Trigger{
			Type:     protocol.TriggerCron,
			Schedule: cron,
			Delta:    c.opts.TriggerDelta,
			EndDate:  target.Add(c.opts.Validity).UnixMilli(),
		},
		Input: protocol.SwapInput{
			TokenIn:            sc.FromToken.Address,
			SourceChain:        sc.FromToken.ChainID,
			AmountIn:           sc.FromAmount,
			TokenOut:           sc.ToToken.Address,
			DestinationChain:   sc.ToToken.ChainID,
			DestinationAddress: *sc.UserAddress,
			SlippageBps:        bps,
		},
		Version:           c.opts.Version(),
		Manifest:          c.manifest,
		Signer:            *sc.UserAddress,
		ExecutionFeeLimit: c.opts.ExecutionFeeLimit,
		MinValidations:    c.opts.MinValidations,
		ChainID:           sc.FromToken.ChainID,
	}, nil
}

func (c *ConfigExecutor) report() {
	sc := c.sc
	if !sc.IsVisible {
		c.Report.Loading(false)
		c.pending("Creating swap configuration with Mimic Protocol")
		return
	}

	c.Report.Loading(c.manifestRun == callRunning || c.submit == callRunning)

	switch {
	case c.manifestRun == callFailed:
		c.fail("Manifest loading failed", "Failed to load required manifest")
	case c.manifestRun == callRunning:
		c.loading("Loading manifest...")
	case c.submit == callFailed:
		c.fail("Config creation failed", failure(c.submitErr))
	case c.submit == callRunning:
		c.loading("Creating swap configuration...")
	case c.submit == callDone:
		c.complete("Swap configuration created successfully")
	case sc.UserAddress == nil:
		c.fail("Wallet not connected", "Connect a wallet to create the configuration")
	default:
		c.pending("Ready to create swap configuration")
	}
}

func failure(err error) string {
	const msg = "Failed to create swap configuration"
	if err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, err)
}

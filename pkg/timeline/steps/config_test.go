package steps_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimic-swap/pkg/protocol"
	"mimic-swap/pkg/timeline"
	"mimic-swap/pkg/timeline/steps"
	"mimic-swap/pkg/timeline/timelinetest"
)

func newConfig(api *fakeCreator) (*steps.ConfigExecutor, *recorder, *timelinetest.ManualLoop) {
	loop := timelinetest.NewManualLoop()
	rec := &recorder{}
	c := steps.NewConfig(env(loop, rec), api, steps.ConfigOptions{
		Signer:  &fakeSigner{addr: user},
		Now:     loop.Now,
		Version: func() string { return "1.2.3" },
	})
	return c, rec, loop
}

func TestConfigManifestErrorNeverSubmits(t *testing.T) {
	api := &fakeCreator{manifestErr: errRemote}
	c, rec, loop := newConfig(api)
	sc := stepContext(0, usdc, nil)

	c.Evaluate(sc)
	loop.Drain()
	for range 3 {
		c.Evaluate(sc)
		loop.Drain()
	}

	assert.Equal(t, event{
		timeline.StatusError, "Manifest loading failed", "Failed to load required manifest",
	}, rec.last())
	assert.Zero(t, api.createCalls)
	assert.Equal(t, 1, api.manifestCalls)
	assert.False(t, rec.loading)
}

func TestConfigCreatesOnceAndPublishesSig(t *testing.T) {
	api := &fakeCreator{sig: "0xsig"}
	c, rec, loop := newConfig(api)
	sc := stepContext(0, usdc, nil)

	c.Evaluate(sc)
	assert.Equal(t, event{timeline.StatusLoading, "Loading manifest...", ""}, rec.last())
	assert.True(t, rec.loading)

	loop.Step()
	assert.Equal(t, event{timeline.StatusLoading, "Creating swap configuration...", ""}, rec.last())
	c.Evaluate(sc)
	c.Evaluate(sc)

	loop.Step()
	assert.Equal(t, event{
		timeline.StatusCompleted, "Swap configuration created successfully", "",
	}, rec.last())
	assert.Equal(t, "0xsig", rec.sig)
	assert.Equal(t, 1, rec.completes)

	c.Evaluate(sc)
	loop.Drain()
	assert.Equal(t, 1, api.createCalls)
	assert.Equal(t, 1, rec.completes)
}

func TestConfigSpecContents(t *testing.T) {
	api := &fakeCreator{}
	c, _, loop := newConfig(api)

	c.Evaluate(stepContext(0, usdc, nil))
	loop.Drain()
	require.Len(t, api.specs, 1)
	spec := api.specs[0]

	// the loop clock starts at 12:00:00 UTC
	assert.Equal(t, "0 1 12 * * *", spec.Trigger.Schedule)
	assert.Equal(t, protocol.TriggerCron, spec.Trigger.Type)
	assert.Equal(t, "5m", spec.Trigger.Delta)
	endDate := timelinetest.Epoch.Add(time.Minute + 10*time.Minute)
	assert.Equal(t, endDate.UnixMilli(), spec.Trigger.EndDate)

	assert.Equal(t, steps.DefaultTaskCID, spec.TaskCID)
	assert.Equal(t, "Swap tokens", spec.Description)
	assert.Equal(t, "1.2.3", spec.Version)
	assert.Equal(t, "0", spec.ExecutionFeeLimit)
	assert.Equal(t, protocol.DefaultMinValidations, spec.MinValidations)
	assert.Equal(t, user, spec.Signer)
	assert.Equal(t, int64(10), spec.ChainID)
	assert.JSONEq(t, `{"name":"swap"}`, string(spec.Manifest))

	assert.Equal(t, protocol.SwapInput{
		TokenIn:            usdc,
		SourceChain:        10,
		AmountIn:           "1.5",
		TokenOut:           weth,
		DestinationChain:   10,
		DestinationAddress: user,
		SlippageBps:        50,
	}, spec.Input)
}

func TestConfigSubmissionFailureRetries(t *testing.T) {
	api := &fakeCreator{createErr: errRemote}
	c, rec, loop := newConfig(api)
	sc := stepContext(0, usdc, nil)

	c.Evaluate(sc)
	loop.Drain()
	c.Evaluate(sc)
	loop.Drain()

	assert.Equal(t, timeline.StatusError, rec.last().Status)
	assert.Equal(t, "Config creation failed", rec.last().Description)
	assert.Contains(t, rec.last().Error, "Failed to create swap configuration")
	assert.Equal(t, 1, api.createCalls)
	assert.Empty(t, rec.sig)

	api.createErr = nil
	c.Retry()
	c.Evaluate(sc)
	loop.Drain()
	assert.Equal(t, 2, api.createCalls)
	assert.Equal(t, timeline.StatusCompleted, rec.last().Status)
}

func TestConfigRejectedSig(t *testing.T) {
	api := &fakeCreator{}
	c, rec, loop := newConfig(api)
	rec.sigErr = timeline.ErrSigAlreadySet

	c.Evaluate(stepContext(0, usdc, nil))
	loop.Drain()

	assert.Equal(t, "Config creation failed", rec.last().Description)
	assert.Zero(t, rec.completes)
}

func TestConfigInvalidSlippage(t *testing.T) {
	api := &fakeCreator{}
	c, rec, loop := newConfig(api)
	sc := stepContext(0, usdc, nil)
	sc.Slippage = "abc"

	c.Evaluate(sc)
	loop.Drain()

	assert.Equal(t, "Config creation failed", rec.last().Description)
	assert.Zero(t, api.createCalls)
}

func TestConfigNeedsSigner(t *testing.T) {
	loop := timelinetest.NewManualLoop()
	rec := &recorder{}
	api := &fakeCreator{}
	c := steps.NewConfig(env(loop, rec), api, steps.ConfigOptions{})

	c.Evaluate(stepContext(0, usdc, nil))
	loop.Drain()

	assert.Contains(t, rec.last().Error, steps.ErrNoSigner.Error())
	assert.Zero(t, api.createCalls)
}

func TestConfigWaitsForAmounts(t *testing.T) {
	api := &fakeCreator{}
	c, rec, loop := newConfig(api)
	sc := stepContext(0, usdc, nil)
	sc.ToAmount = ""

	c.Evaluate(sc)
	loop.Drain()

	assert.Equal(t, event{timeline.StatusPending, "Ready to create swap configuration", ""}, rec.last())
	assert.Zero(t, api.createCalls)
}

func TestConfigNewEpochSubmitsAgain(t *testing.T) {
	api := &fakeCreator{}
	c, rec, loop := newConfig(api)

	c.Evaluate(stepContext(0, usdc, nil))
	loop.Drain()
	c.Evaluate(stepContext(1, usdc, nil))
	loop.Drain()

	assert.Equal(t, 2, api.createCalls)
	assert.Equal(t, 2, api.manifestCalls)
	assert.Equal(t, 2, rec.completes)
}

func TestUTCCron(t *testing.T) {
	now := time.Date(2025, time.March, 3, 23, 59, 30, 0, time.FixedZone("X", 3600))
	cron, target := steps.UTCCron(now, 45*time.Second)

	assert.Equal(t, "15 0 23 * * *", cron)
	assert.Equal(t, now.Add(45*time.Second).UnixMilli(), target.UnixMilli())
	assert.Equal(t, time.UTC, target.Location())
}

func TestRandomVersion(t *testing.T) {
	assert.Regexp(t, `^\d+\.\d+\.\d+$`, steps.RandomVersion())
}

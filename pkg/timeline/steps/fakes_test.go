package steps_test

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"

	"mimic-swap/pkg/protocol"
	"mimic-swap/pkg/timeline"
	"mimic-swap/pkg/timeline/timelinetest"
)

type (
	event struct {
		Status      timeline.Status
		Description string
		Error       string
	}

	recorder struct {
		events    []event
		loading   bool
		completes int
		sig       string
		sigErr    error
	}

	sigSlot struct {
		value string
	}

	fakeApprover struct {
		allowance    *big.Int
		allowanceErr error
		approveErr   error
		waitErr      error

		allowanceCalls int
		approveCalls   int
		waitCalls      int
		approved       []*big.Int
		spenders       []common.Address
	}

	fakeCreator struct {
		manifestErr error
		createErr   error
		sig         string

		manifestCalls int
		createCalls   int
		specs         []protocol.ConfigSpec
	}

	fakeIntents struct {
		loop       *timelinetest.ManualLoop
		hashAfter  time.Duration
		noHash     bool
		execErrs   int
		intentErrs int
		statuses   []protocol.IntentStatus

		execCalls   int
		intentCalls int
		sigs        []string
	}

	fakeSigner struct {
		addr common.Address
	}
)

var (
	user      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	usdc      = common.HexToAddress("0x0b2c639c533813f4aa9d7837caf62653d097ff85")
	weth      = common.HexToAddress("0x4200000000000000000000000000000000000006")
	errRemote = errors.New("remote unavailable")
)

func (r *recorder) Status(status timeline.Status, description, errMsg string) {
	r.events = append(r.events, event{status, description, errMsg})
}

func (r *recorder) Loading(loading bool) {
	r.loading = loading
}

func (r *recorder) Complete() {
	r.completes++
}

func (r *recorder) SetConfigSig(sig string) error {
	if r.sigErr != nil {
		return r.sigErr
	}
	r.sig = sig
	return nil
}

func (r *recorder) last() event {
	if len(r.events) == 0 {
		return event{}
	}
	return r.events[len(r.events)-1]
}

// sequence collapses consecutive duplicate events
func (r *recorder) sequence() []event {
	var res []event
	for _, e := range r.events {
		if len(res) > 0 && res[len(res)-1] == e {
			continue
		}
		res = append(res, e)
	}
	return res
}

func (s *sigSlot) ConfigSig() (string, bool) {
	return s.value, s.value != ""
}

func (f *fakeApprover) Allowance(
	_ context.Context, _, _, spender common.Address,
) (*big.Int, error) {
	f.allowanceCalls++
	f.spenders = append(f.spenders, spender)
	if f.allowanceErr != nil {
		return nil, f.allowanceErr
	}
	if f.allowance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeApprover) Approve(
	_ context.Context, _, spender common.Address, amount *big.Int,
) (common.Hash, error) {
	f.approveCalls++
	f.spenders = append(f.spenders, spender)
	f.approved = append(f.approved, amount)
	if f.approveErr != nil {
		return common.Hash{}, f.approveErr
	}
	return common.HexToHash("0xabc"), nil
}

func (f *fakeApprover) WaitMined(context.Context, common.Hash) error {
	f.waitCalls++
	return f.waitErr
}

func (f *fakeCreator) Manifest(context.Context, string) (protocol.Manifest, error) {
	f.manifestCalls++
	if f.manifestErr != nil {
		return nil, f.manifestErr
	}
	return protocol.Manifest(`{"name":"swap"}`), nil
}

func (f *fakeCreator) SignAndCreate(
	_ context.Context, spec protocol.ConfigSpec, _ protocol.Signer,
) (*protocol.Config, error) {
	f.createCalls++
	f.specs = append(f.specs, spec)
	if f.createErr != nil {
		return nil, f.createErr
	}
	sig := f.sig
	if sig == "" {
		sig = "0xconfigsig"
	}
	return &protocol.Config{ConfigSpec: spec, Sig: sig}, nil
}

func (f *fakeIntents) Executions(_ context.Context, sig string) ([]protocol.Execution, error) {
	f.execCalls++
	f.sigs = append(f.sigs, sig)
	if f.execCalls <= f.execErrs {
		return nil, errRemote
	}
	if f.noHash || f.loop.Elapsed() < f.hashAfter {
		return []protocol.Execution{{ID: "exec-1", ConfigSig: sig}}, nil
	}
	return []protocol.Execution{{
		ID:        "exec-1",
		ConfigSig: sig,
		Outputs:   []protocol.Output{{Hash: "0xintent"}},
	}}, nil
}

func (f *fakeIntents) IntentByHash(_ context.Context, hash string) (*protocol.Intent, error) {
	f.intentCalls++
	if f.intentCalls <= f.intentErrs {
		return nil, errRemote
	}
	idx := f.intentCalls - f.intentErrs - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return &protocol.Intent{Hash: hash, Status: f.statuses[idx]}, nil
}

func (s *fakeSigner) Address() common.Address {
	return s.addr
}

func (s *fakeSigner) SignMessage(string) (string, error) {
	return "0xmsg", nil
}

func (s *fakeSigner) SignTypedData(apitypes.TypedData) (string, error) {
	return "0xtyped", nil
}

func env(loop timeline.Loop, rec *recorder) timeline.Env {
	return timeline.Env{Loop: loop, Report: rec, Logger: zerolog.Nop()}
}

func stepContext(key uint64, from common.Address, sig timeline.SigReader) timeline.StepContext {
	addr := user
	return timeline.StepContext{
		FromToken:   timeline.Token{Address: from, ChainID: 10, Decimals: 6},
		ToToken:     timeline.Token{Address: weth, ChainID: 10, Decimals: 18},
		FromAmount:  "1.5",
		ToAmount:    "0.0004",
		Slippage:    "0.5",
		UserAddress: &addr,
		IsVisible:   true,
		ResetKey:    key,
		ConfigSig:   sig,
	}
}

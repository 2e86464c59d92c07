package steps

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"mimic-swap/pkg/timeline"
	"mimic-swap/pkg/units"
)

// ApprovalPolicy selects the amount approved for the spender
type ApprovalPolicy string

const (
	// PolicyUnlimited approves max uint256 so later swaps skip approval
	PolicyUnlimited ApprovalPolicy = "unlimited"

	// PolicyExact approves only the amount being swapped
	PolicyExact ApprovalPolicy = "exact"
)

// ApprovalOptions configures the approval step
type ApprovalOptions struct {
	Spender common.Address
	Policy  ApprovalPolicy
}

type (
	// ApprovalExecutor makes sure the spender may move the input token,
	// sending one approval transaction per epoch when it may not
	ApprovalExecutor struct {
		base
		api  TokenApprover
		opts ApprovalOptions

		query     callState
		queryErr  error
		allowance *big.Int
		tx        txState
		hash      common.Hash
		executing bool
	}

	callState int
	txState   int
)

const (
	callIdle callState = iota
	callRunning
	callDone
	callFailed
)

const (
	txNone txState = iota
	txSending
	txConfirming
	txConfirmed
	txRejected
	txUnconfirmed
)

var ErrUnknownPolicy = errors.New("unknown approval policy")

// ParsePolicy validates a configured approval policy
func ParsePolicy(s string) (ApprovalPolicy, error) {
	switch p := ApprovalPolicy(s); p {
	case PolicyUnlimited, PolicyExact:
		return p, nil
	case "":
		return PolicyUnlimited, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Amount returns what to approve when required is needed
func (p ApprovalPolicy) Amount(required *big.Int) *big.Int {
	if p == PolicyExact {
		return new(big.Int).Set(required)
	}
	return new(big.Int).Set(math.MaxBig256)
}

// NewApproval creates the approval executor for a freshly mounted step
func NewApproval(
	env timeline.Env, api TokenApprover, opts ApprovalOptions,
) *ApprovalExecutor {
	if opts.Spender == (common.Address{}) {
		opts.Spender = DefaultSpender
	}
	if opts.Policy == "" {
		opts.Policy = PolicyUnlimited
	}
	return &ApprovalExecutor{
		base: base{Env: env},
		api:  api,
		opts: opts,
	}
}

// Evaluate implements timeline.Executor
func (a *ApprovalExecutor) Evaluate(sc timeline.StepContext) {
	if a.stopped {
		return
	}
	if a.enter(sc) {
		a.clear()
	}
	a.evaluate()
}

// Retry resubmits a failed approval or re-reads a failed allowance
func (a *ApprovalExecutor) Retry() {
	if a.stopped {
		return
	}
	switch {
	case a.tx == txRejected || a.tx == txUnconfirmed:
		a.tx = txNone
		a.executing = false
	case a.query == callFailed:
		a.query = callIdle
		a.queryErr = nil
	}
}

// Stop implements timeline.Executor
func (a *ApprovalExecutor) Stop() {
	a.halt()
}

func (a *ApprovalExecutor) clear() {
	a.query = callIdle
	a.queryErr = nil
	a.allowance = nil
	a.tx = txNone
	a.hash = common.Hash{}
	a.executing = false
}

func (a *ApprovalExecutor) evaluate() {
	a.trigger()
	a.report()
}

func (a *ApprovalExecutor) trigger() {
	sc := a.sc
	if !sc.IsVisible || sc.FromToken.IsNative() || sc.UserAddress == nil {
		return
	}
	required, err := a.required()
	if err != nil {
		return
	}

	if a.query == callIdle {
		a.readAllowance()
		return
	}
	if a.query != callDone || a.sufficient(required) {
		return
	}
	if a.tx != txNone || a.executing || a.completed {
		return
	}

	a.executing = true
	a.submit(a.opts.Policy.Amount(required))
}

func (a *ApprovalExecutor) readAllowance() {
	a.query = callRunning
	epoch, ctx := a.epoch, a.ctx
	token, owner := a.sc.FromToken.Address, *a.sc.UserAddress

	timeline.Call(a.Loop,
		func() (*big.Int, error) {
			return a.api.Allowance(ctx, token, owner, a.opts.Spender)
		},
		func(allowance *big.Int, err error) {
			if !a.current(epoch) {
				return
			}
			if err != nil {
				a.Logger.Warn().Err(err).Msg("Allowance check failed")
				a.query = callFailed
				a.queryErr = err
			} else {
				a.Logger.Debug().Str("allowance", allowance.String()).Msg("Allowance read")
				a.query = callDone
				a.allowance = allowance
			}
			a.evaluate()
		},
	)
}

func (a *ApprovalExecutor) submit(amount *big.Int) {
	a.tx = txSending
	epoch, ctx := a.epoch, a.ctx
	token := a.sc.FromToken.Address

	a.Logger.Info().
		Str("token", token.Hex()).
		Str("spender", a.opts.Spender.Hex()).
		Str("policy", string(a.opts.Policy)).
		Msg("Sending approval transaction")

	timeline.Call(a.Loop,
		func() (common.Hash, error) {
			return a.api.Approve(ctx, token, a.opts.Spender, amount)
		},
		func(hash common.Hash, err error) {
			if !a.current(epoch) {
				return
			}
			if err != nil {
				a.Logger.Error().Err(err).Msg("Approval transaction rejected")
				a.tx = txRejected
				a.executing = false
				a.evaluate()
				return
			}
			a.hash = hash
			a.tx = txConfirming
			a.wait(hash)
			a.evaluate()
		},
	)
}

func (a *ApprovalExecutor) wait(hash common.Hash) {
	epoch, ctx := a.epoch, a.ctx
	timeline.Call(a.Loop,
		func() (struct{}, error) {
			return struct{}{}, a.api.WaitMined(ctx, hash)
		},
		func(_ struct{}, err error) {
			if !a.current(epoch) {
				return
			}
			if err != nil {
				a.Logger.Error().Err(err).Str("tx", hash.Hex()).Msg("Approval confirmation failed")
				a.tx = txUnconfirmed
				a.executing = false
			} else {
				a.Logger.Info().Str("tx", hash.Hex()).Msg("Approval confirmed")
				a.tx = txConfirmed
			}
			a.evaluate()
		},
	)
}

func (a *ApprovalExecutor) report() {
	sc := a.sc
	if !sc.IsVisible {
		a.Report.Loading(false)
		a.pending("Verifying spend allowance for input token")
		return
	}

	a.Report.Loading(a.query == callRunning ||
		a.tx == txSending || a.tx == txConfirming)

	if sc.FromToken.IsNative() {
		a.complete("Native token - no approval needed")
		return
	}
	if sc.UserAddress == nil {
		a.fail("Wallet not connected", "Connect a wallet to check the allowance")
		return
	}
	required, err := a.required()
	if err != nil {
		a.fail("Invalid amount", err.Error())
		return
	}

	switch {
	case a.tx == txRejected:
		a.fail("Approval transaction failed", "Transaction was rejected or failed")
	case a.tx == txUnconfirmed:
		a.fail("Approval transaction failed", "Transaction confirmation failed")
	case a.query == callFailed:
		a.fail("Allowance check failed", a.queryErr.Error())
	case a.tx == txSending:
		a.loading("Sending approval transaction...")
	case a.tx == txConfirming:
		a.loading("Waiting for approval confirmation...")
	case a.query == callRunning || a.query == callIdle:
		a.loading("Checking allowance...")
	case a.tx == txConfirmed || a.sufficient(required):
		a.complete("Sufficient allowance found")
	default:
		a.pending("Approval required - sending transaction automatically...")
	}
}

func (a *ApprovalExecutor) required() (*big.Int, error) {
	return units.ParseUnits(a.sc.FromAmount, a.sc.FromToken.Decimals)
}

func (a *ApprovalExecutor) sufficient(required *big.Int) bool {
	return a.allowance != nil && a.allowance.Cmp(required) >= 0
}

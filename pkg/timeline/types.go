package timeline

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// StepID identifies a step definition and its runtime SwapStep
type StepID string

// Status is the lifecycle state of a single swap step
type Status string

const (
	StatusPending   Status = "pending"
	StatusLoading   Status = "loading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// NativeTokenAddress is the sentinel used for the chain's native currency
var NativeTokenAddress = common.Address{}

type (
	// Token is the slice of token metadata the steps need
	Token struct {
		Address  common.Address `json:"address"`
		ChainID  int64          `json:"chainId"`
		Decimals uint8          `json:"decimals"`
	}

	// Inputs fully determine one swap attempt. ResetKey must only grow
	Inputs struct {
		FromToken   Token
		ToToken     Token
		FromAmount  string
		ToAmount    string
		Slippage    string
		UserAddress *common.Address
		IsVisible   bool
		ResetKey    uint64
	}

	// StepContext is the per-attempt snapshot handed to every executor.
	// ConfigSig is the only slot that changes after creation
	StepContext struct {
		FromToken   Token
		ToToken     Token
		FromAmount  string
		ToAmount    string
		Slippage    string
		UserAddress *common.Address
		IsVisible   bool
		ResetKey    uint64
		ConfigSig   SigReader
	}

	// SwapStep is the runtime view of one step
	SwapStep struct {
		ID          StepID `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Status      Status `json:"status"`
		Error       string `json:"error,omitempty"`
	}

	// State is the aggregate timeline state exposed for rendering
	State struct {
		Steps            []SwapStep `json:"steps"`
		IsLoading        bool       `json:"isLoading"`
		CurrentStepIndex int        `json:"currentStepIndex"`
	}

	// Reporter is how an executor requests changes to shared state. All
	// calls must happen on the loop
	Reporter interface {
		Status(status Status, description, errMsg string)
		Loading(loading bool)
		Complete()
		SetConfigSig(sig string) error
	}

	// Executor is the logic unit behind a step. It is created when the
	// step is mounted and stopped when it is unmounted
	Executor interface {
		// Evaluate re-runs trigger and status evaluation for the context
		Evaluate(sc StepContext)

		// Stop cancels timers and in-flight work. No Reporter calls may
		// follow
		Stop()
	}

	// Retrier is implemented by executors that can resubmit a failed
	// operation on user request
	Retrier interface {
		Retry()
	}

	// Env is what a mounted executor receives from the timeline
	Env struct {
		Loop   Loop
		Report Reporter
		Logger zerolog.Logger
	}

	// Factory builds an executor for a freshly mounted step
	Factory func(env Env) Executor

	// StepDefinition is the static descriptor of a step
	StepDefinition struct {
		ID           StepID
		Title        string
		Description  string
		Dependencies []StepID
		New          Factory
	}
)

// IsNative reports whether the token is the native currency sentinel
func (t Token) IsNative() bool {
	return t.Address == NativeTokenAddress
}

// Step returns the step with the given id
func (s State) Step(id StepID) (SwapStep, bool) {
	for _, step := range s.Steps {
		if step.ID == id {
			return step, true
		}
	}
	return SwapStep{}, false
}

// Completed reports whether every step has completed
func (s State) Completed() bool {
	if len(s.Steps) == 0 {
		return false
	}
	for _, step := range s.Steps {
		if step.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Failed returns the first step in error, if any
func (s State) Failed() (SwapStep, bool) {
	for _, step := range s.Steps {
		if step.Status == StatusError {
			return step, true
		}
	}
	return SwapStep{}, false
}

func (s State) clone() State {
	res := s
	res.Steps = append([]SwapStep(nil), s.Steps...)
	return res
}

func (in Inputs) sameAttempt(other Inputs) bool {
	return in.FromToken == other.FromToken &&
		in.ToToken == other.ToToken &&
		in.FromAmount == other.FromAmount &&
		in.ToAmount == other.ToAmount &&
		in.Slippage == other.Slippage &&
		in.IsVisible == other.IsVisible &&
		sameAddress(in.UserAddress, other.UserAddress)
}

func sameAddress(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

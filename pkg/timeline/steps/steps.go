// Package steps implements the approval, config and intent executors of
// the swap timeline
package steps

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"mimic-swap/pkg/protocol"
	"mimic-swap/pkg/timeline"
)

const (
	Approval timeline.StepID = "approval"
	Config   timeline.StepID = "config"
	Intent   timeline.StepID = "intent"
)

const (
	DefaultScheduleOffset   = 60 * time.Second
	DefaultConfigValidity   = 10 * time.Minute
	DefaultTriggerDelta     = "5m"
	DefaultExecutionTimeout = 90 * time.Second
	DefaultPollInterval     = 2 * time.Second
	DefaultTaskCID          = "QmZom6ZKhE3GS1XfUF8MvhHqobrX14WUGSFUNru6vFoPEQ"
	DefaultDescription      = "Swap tokens"
)

// DefaultSpender is the protocol contract allowed to move the input token
var DefaultSpender = common.HexToAddress("0x609d831c0068844e11ef85a273c7f356212fd6d1")

type (
	// TokenApprover is the wallet capability the approval step needs
	TokenApprover interface {
		Allowance(
			ctx context.Context, token, owner, spender common.Address,
		) (*big.Int, error)
		Approve(
			ctx context.Context, token, spender common.Address, amount *big.Int,
		) (common.Hash, error)
		WaitMined(ctx context.Context, hash common.Hash) error
	}

	// ConfigCreator is the protocol capability the config step needs
	ConfigCreator interface {
		Manifest(ctx context.Context, cid string) (protocol.Manifest, error)
		SignAndCreate(
			ctx context.Context, spec protocol.ConfigSpec, signer protocol.Signer,
		) (*protocol.Config, error)
	}

	// IntentSource is the protocol capability the intent step needs
	IntentSource interface {
		Executions(ctx context.Context, configSig string) ([]protocol.Execution, error)
		IntentByHash(ctx context.Context, hash string) (*protocol.Intent, error)
	}

	// Deps wires the three executors to their collaborators
	Deps struct {
		Approver TokenApprover
		Approval ApprovalOptions
		Creator  ConfigCreator
		Config   ConfigOptions
		Intents  IntentSource
		Intent   IntentOptions
	}
)

// Definitions returns the swap timeline: approval, then config, then intent
func Definitions(deps Deps) []timeline.StepDefinition {
	return []timeline.StepDefinition{
		{
			ID:          Approval,
			Title:       "Check Approval",
			Description: "Verifying spend allowance for input token",
			New: func(env timeline.Env) timeline.Executor {
				return NewApproval(env, deps.Approver, deps.Approval)
			},
		},
		{
			ID:           Config,
			Title:        "Create Swap Config",
			Description:  "Creating swap configuration with Mimic Protocol",
			Dependencies: []timeline.StepID{Approval},
			New: func(env timeline.Env) timeline.Executor {
				return NewConfig(env, deps.Creator, deps.Config)
			},
		},
		{
			ID:           Intent,
			Title:        "Waiting for Intent",
			Description:  "Monitoring intent execution status",
			Dependencies: []timeline.StepID{Config},
			New: func(env timeline.Env) timeline.Executor {
				return NewIntent(env, deps.Intents, deps.Intent)
			},
		},
	}
}

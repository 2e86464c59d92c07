package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// IntentStatus is the lifecycle state of an intent as reported by the API
type IntentStatus string

const (
	IntentCreated   IntentStatus = "created"
	IntentEnqueued  IntentStatus = "enqueued"
	IntentSubmitted IntentStatus = "submitted"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
	IntentDiscarded IntentStatus = "discarded"
	IntentExpired   IntentStatus = "expired"
)

const (
	// TriggerCron schedules a config with a six-field cron expression
	TriggerCron = "cron"

	// DefaultMinValidations is the task's default validation quorum
	DefaultMinValidations = 1
)

type (
	// Manifest is the opaque task manifest blob
	Manifest json.RawMessage

	// Trigger describes when the protocol runs a config
	Trigger struct {
		Type     string `json:"type"`
		Schedule string `json:"schedule"`
		Delta    string `json:"delta"`
		EndDate  int64  `json:"endDate"`
	}

	// SwapInput carries the swap task's inputs
	SwapInput struct {
		TokenIn            common.Address `json:"tokenIn"`
		SourceChain        int64          `json:"sourceChain"`
		AmountIn           string         `json:"amountIn"`
		TokenOut           common.Address `json:"tokenOut"`
		DestinationChain   int64          `json:"destinationChain"`
		DestinationAddress common.Address `json:"destinationAddress"`
		SlippageBps        int            `json:"slippageBps"`
	}

	// ConfigSpec is everything needed to sign and create a config
	ConfigSpec struct {
		TaskCID           string         `json:"taskCid"`
		Description       string         `json:"description"`
		Trigger           Trigger        `json:"trigger"`
		Input             SwapInput      `json:"input"`
		Version           string         `json:"version"`
		Manifest          Manifest       `json:"manifest"`
		Signer            common.Address `json:"signer"`
		ExecutionFeeLimit string         `json:"executionFeeLimit"`
		MinValidations    int            `json:"minValidations"`
		ChainID           int64          `json:"chainId"`
	}

	// Config is a created config, identified by its signature
	Config struct {
		ConfigSpec
		Sig       string `json:"sig"`
		CreatedAt string `json:"createdAt,omitempty"`
	}

	// Output is an artifact produced by an execution
	Output struct {
		Hash string `json:"hash"`
	}

	// Execution is one run of a config by the protocol
	Execution struct {
		ID        string   `json:"id"`
		ConfigSig string   `json:"configSig"`
		Status    string   `json:"status"`
		Outputs   []Output `json:"outputs"`
	}

	// Intent is a settlement request tracked until terminal
	Intent struct {
		Hash     string       `json:"hash"`
		Status   IntentStatus `json:"status"`
		Settler  string       `json:"settler,omitempty"`
		Deadline int64        `json:"deadline,omitempty"`
	}

	// Signer produces wallet signatures for the signed API calls
	Signer interface {
		Address() common.Address
		SignMessage(message string) (string, error)
		SignTypedData(data apitypes.TypedData) (string, error)
	}

	// APIError is a non-2xx response from the protocol API
	APIError struct {
		StatusCode int
		Message    string
	}
)

// IsTerminal reports whether no further transitions can follow
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case IntentSucceeded, IntentFailed, IntentDiscarded, IntentExpired:
		return true
	default:
		return false
	}
}

// IntentHash returns the hash of the execution's first output
func (e Execution) IntentHash() (string, bool) {
	if len(e.Outputs) == 0 || e.Outputs[0].Hash == "" {
		return "", false
	}
	return e.Outputs[0].Hash, true
}

// MarshalJSON keeps the raw manifest bytes intact
func (m Manifest) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

// UnmarshalJSON stores a copy of the raw manifest bytes
func (m *Manifest) UnmarshalJSON(data []byte) error {
	*m = append((*m)[:0], data...)
	return nil
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Package history records swap attempts so they can be listed and
// followed after the CLI exits
package history

import (
	"time"

	"mimic-swap/pkg/timeline"
)

// AttemptStatus defines the current state of a swap attempt
type AttemptStatus string

const (
	StatusRunning   AttemptStatus = "running"   // Config created, intent not terminal
	StatusCompleted AttemptStatus = "completed" // Intent succeeded
	StatusFailed    AttemptStatus = "failed"    // A step ended in error
)

// Attempt is one submitted swap: a reset epoch that produced a config
type Attempt struct {
	ID          string         `json:"id"`
	Created     time.Time      `json:"created"`
	LastUpdated time.Time      `json:"last_updated"`
	FromSymbol  string         `json:"from_symbol"`
	ToSymbol    string         `json:"to_symbol"`
	FromToken   timeline.Token `json:"from_token"`
	ToToken     timeline.Token `json:"to_token"`
	FromAmount  string         `json:"from_amount"`
	ToAmount    string         `json:"to_amount"`
	Slippage    string         `json:"slippage"`
	User        string         `json:"user"`
	ConfigSig   string         `json:"config_sig"`
	IntentHash  string         `json:"intent_hash,omitempty"`
	Status      AttemptStatus  `json:"status"`
	Step        string         `json:"step,omitempty"` // step that failed
	Error       string         `json:"error,omitempty"`
}

// IsFinal reports whether the attempt can no longer change
func (a *Attempt) IsFinal() bool {
	return a.Status == StatusCompleted || a.Status == StatusFailed
}

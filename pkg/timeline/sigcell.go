package timeline

import (
	"errors"
	"sync"
)

type (
	// SigReader gives dependent steps read access to the config signature
	SigReader interface {
		ConfigSig() (string, bool)
	}

	// SigCell holds the config signature for one reset epoch. It has a
	// single writer (the config step, through its Reporter) and is cleared
	// only by the timeline when the epoch changes
	SigCell struct {
		mu    sync.RWMutex
		value string
		set   bool
	}
)

var (
	ErrSigAlreadySet = errors.New("config signature already set for this epoch")
	ErrEmptySig      = errors.New("config signature is empty")
)

// ConfigSig returns the signature and whether it has been set
func (c *SigCell) ConfigSig() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.set
}

func (c *SigCell) store(sig string) error {
	if sig == "" {
		return ErrEmptySig
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.set {
		return ErrSigAlreadySet
	}
	c.value = sig
	c.set = true
	return nil
}

func (c *SigCell) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = ""
	c.set = false
}

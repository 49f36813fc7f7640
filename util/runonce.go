package util

import (
	"sync/atomic"
)

// RunOnce is a function wrapper that calls the underlying function at most once
//
// This can be used to protect e.g. resource closing or cleanup, which should be called exactly once
type RunOnce struct {
	invoked atomic.Bool
	f       func()
}

// NewRunOnce creates a RunOnce that would call the given "f" at most once
func NewRunOnce(f func()) *RunOnce {
	return &RunOnce{f: f}
}

// Run calls the underlying function if it has never been called
//
// Returns true when the function is actually called. Concurrent callers do not wait for the first call to finish.
func (once *RunOnce) Run() bool {
	if once.invoked.CompareAndSwap(false, true) {
		once.f()
		return true
	}
	return false
}

// Invoked checks whether Run has been called
func (once *RunOnce) Invoked() bool {
	return once.invoked.Load()
}

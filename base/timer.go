package base

import (
	"time"
)

// Timer is a handle of periodical action
type Timer interface {
	// Dispose stops the timer. A running action is not interrupted. Dispose may be called more than once.
	Dispose()
}

// TimerFactory creates timers
type TimerFactory interface {
	// CreateFor runs the given action immediately in background and then every interval until disposed
	//
	// Runs never overlap; a slow run delays the next one
	CreateFor(action func(), interval time.Duration) Timer
}

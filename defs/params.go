package defs

import (
	"time"
)

var (
	// DispatchRetryInterval is the default interval between two sweeps of buffered records
	//
	// The first sweep happens immediately when an engine becomes active, in order to resend records left from
	// previous runs
	DispatchRetryInterval = 10 * time.Minute

	// DispatchMaxStore is the default max numbers of records to keep in buffer after each sweep
	//
	// Oldest records are discarded first, even if never delivered
	DispatchMaxStore = 1024

	// DispatchShutdownTimeout is how long to wait for scheduled send attempts to finish when an engine is closed
	//
	// The store is left open if attempts are still running after the timeout, since they may still remove records
	DispatchShutdownTimeout = 30 * time.Second

	// StoreBusyTimeout is how long a persistent store waits for a lock held by other processes on the same file
	StoreBusyTimeout = 5 * time.Second

	// InputMaxLineBytes is the default max length of a record read by line-based inputs
	InputMaxLineBytes = 1 * 1024 * 1024
)

var (
	// ForwarderConnectionTimeout is for establishing a TCP connection to upstream
	ForwarderConnectionTimeout = 30 * time.Second

	// ForwarderHandshakeTimeout is for fluentd handshake with upstream
	ForwarderHandshakeTimeout = ForwarderConnectionTimeout + ForwarderConnectionTimeout/2

	// ForwarderRequestTimeout is the default timeout of one HTTP request or one send + ACK round trip
	ForwarderRequestTimeout = 60 * time.Second
)

// For testing and experiments
const (
	TestReadTimeout = 5 * time.Second
)

// EnableTestMode turns on test mode with very short timeouts
func EnableTestMode() {
	DispatchShutdownTimeout = 3 * time.Second
	StoreBusyTimeout = 1 * time.Second
	ForwarderConnectionTimeout = 1 * time.Second
	ForwarderHandshakeTimeout = 2 * time.Second
	ForwarderRequestTimeout = 3 * time.Second
}

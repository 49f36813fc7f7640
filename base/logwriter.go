package base

import (
	"context"
)

// LogWriter sends serialized log records to one or more remote destinations
type LogWriter interface {
	// Write sends one record and returns nil if it has been accepted by the remote
	//
	// Write may block until the remote responds or ctx is done
	Write(ctx context.Context, payload string) error
}

// LogWriterFactory keeps registered destinations and creates LogWriter for them
type LogWriterFactory interface {
	// Register adds the given destination for appenders matching its AppenderName pattern
	Register(config DestinationConfig) error

	// CreateFor creates a LogWriter to send to all destinations registered for the named appender
	CreateFor(appenderName string) LogWriter
}

// Destination is a client of one remote destination
type Destination interface {
	// Send sends one record and returns nil if it has been accepted by the remote
	Send(ctx context.Context, payload string) error

	// Close releases connections. The destination must not be used afterwards.
	Close()
}

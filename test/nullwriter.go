package test

import (
	"context"
	"sync/atomic"

	"github.com/relex/slog-relay/base"
)

// nullWriterFactory creates writers which accept and abandon everything
type nullWriterFactory struct {
	numRegistered atomic.Int64
	numWritten    atomic.Int64
	numBytes      atomic.Int64
}

type nullWriter struct {
	factory *nullWriterFactory
}

func (factory *nullWriterFactory) Register(config base.DestinationConfig) error {
	factory.numRegistered.Add(1)
	return nil
}

func (factory *nullWriterFactory) CreateFor(appenderName string) base.LogWriter {
	return nullWriter{factory}
}

func (writer nullWriter) Write(ctx context.Context, payload string) error {
	writer.factory.numWritten.Add(1)
	writer.factory.numBytes.Add(int64(len(payload)))
	return nil
}

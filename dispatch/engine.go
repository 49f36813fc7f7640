// Package dispatch provides the store-and-forward engine which buffers each record before sending it asynchronously
// in strict order of submission, and periodically resends buffered records
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/util"
)

// ErrEngineClosed is returned by operations on a closed Engine
var ErrEngineClosed = errors.New("dispatch engine closed")

// Options defines the behavior of one Engine
type Options struct {
	Name          string                  // Name of engine, used as appender name to look up destinations
	StoreForward  bool                    // Buffer records before sending
	MaxStore      int                     // Max numbers of records to keep in buffer after each sweep
	RetryInterval time.Duration           // Interval between retry sweeps
	SendTimeout   time.Duration           // Timeout of one send attempt after which it's considered failed; 0 to wait indefinitely
	Destinations  []base.DestinationConfig // Destinations to register on activation
}

// DefaultOptions returns options with store-and-forward enabled and default limits
func DefaultOptions(name string) Options {
	return Options{
		Name:          name,
		StoreForward:  true,
		MaxStore:      defs.DispatchMaxStore,
		RetryInterval: defs.DispatchRetryInterval,
	}
}

// Engine is the front of store-and-forward dispatching for one appender
//
// An engine becomes active on the first submission, when it registers destinations and starts the retry sweep.
// All sends are executed by the sequencer in order of scheduling, which is the order of submissions and sweeps.
type Engine struct {
	logger        logger.Logger
	options       Options
	store         base.BufferStore
	writerFactory base.LogWriterFactory
	sequencer     Sequencer
	timerFactory  base.TimerFactory
	metrics       engineMetrics

	stateMutex sync.RWMutex // write-locked only to close; held for read by submissions and sweeps
	closed     bool

	activateMutex sync.Mutex
	active        bool
	timer         base.Timer

	closeOnce *util.RunOnce
}

// NewEngine creates an inactive Engine which takes ownership of the given store and sequencer
func NewEngine(parentLogger logger.Logger, options Options, store base.BufferStore, writerFactory base.LogWriterFactory,
	sequencer Sequencer, timerFactory base.TimerFactory, metricCreator promreg.MetricCreator) *Engine {

	engine := &Engine{
		logger:        parentLogger.WithFields(logger.Fields{defs.LabelComponent: "DispatchEngine", defs.LabelName: options.Name}),
		options:       options,
		store:         store,
		writerFactory: writerFactory,
		sequencer:     sequencer,
		timerFactory:  timerFactory,
		metrics:       newEngineMetrics(metricCreator, options.Name),
	}
	engine.closeOnce = util.NewRunOnce(engine.close)
	return engine
}

// Submit buffers the given record and schedules it for sending
//
// Submit returns without waiting for the send. Only local storage errors are returned, in which case the record is
// neither buffered nor sent.
func (engine *Engine) Submit(payload string) error {
	engine.stateMutex.RLock()
	defer engine.stateMutex.RUnlock()

	if engine.closed {
		return ErrEngineClosed
	}
	engine.activate()
	engine.metrics.submittedTotal.Inc()

	id := defs.NotBufferedID
	if engine.options.StoreForward {
		newID, err := engine.store.Append(payload)
		if err != nil {
			return fmt.Errorf("failed to buffer record: %w", err)
		}
		id = newID
	} else {
		engine.metrics.unbufferedTotal.Inc()
	}

	engine.scheduleSend(id, payload)
	return nil
}

// SendUnsent schedules all buffered records for resending and then trims the buffer to the max size
//
// Evicted records may still be sent by the attempts just scheduled
func (engine *Engine) SendUnsent() error {
	engine.stateMutex.RLock()
	defer engine.stateMutex.RUnlock()

	if engine.closed {
		return ErrEngineClosed
	}
	engine.metrics.sweepsTotal.Inc()

	records, lerr := engine.store.ListAll()
	if lerr != nil {
		return fmt.Errorf("failed to list buffered records: %w", lerr)
	}
	for _, record := range records {
		engine.scheduleSend(record.ID, record.Payload)
	}
	engine.metrics.resubmittedTotal.Add(uint64(len(records)))

	numTrimmed, terr := engine.store.Trim(engine.options.MaxStore)
	if terr != nil {
		return fmt.Errorf("failed to trim buffer: %w", terr)
	}
	engine.metrics.trimmedTotal.Add(uint64(numTrimmed))

	if len(records) > 0 || numTrimmed > 0 {
		engine.logger.Infof("swept buffer: resubmitted=%d trimmed=%d", len(records), numTrimmed)
	}
	return nil
}

// Close stops retry sweeps and waits for scheduled send attempts to finish, then closes the store
//
// Close never fails. If attempts are still running after defs.DispatchShutdownTimeout, the store is left open.
func (engine *Engine) Close() {
	engine.closeOnce.Run()
}

// Store returns the buffer of this engine
func (engine *Engine) Store() base.BufferStore {
	return engine.store
}

func (engine *Engine) close() {
	// wait for running submissions and sweeps
	engine.stateMutex.Lock()
	engine.closed = true
	engine.stateMutex.Unlock()

	engine.activateMutex.Lock()
	timer := engine.timer
	engine.activateMutex.Unlock()
	if timer != nil {
		timer.Dispose()
	}

	engine.sequencer.Close()
	if !engine.sequencer.Stopped().Wait(defs.DispatchShutdownTimeout) {
		engine.logger.Errorf("timeout waiting for send attempts to finish, queued=%d; buffer is left open",
			engine.metrics.queuedAttempts.Get())
		return
	}

	if err := engine.store.Close(); err != nil {
		engine.logger.Errorf("failed to close buffer: %s", err.Error())
	}
	engine.logger.Info("closed")
}

// activate registers destinations and starts retry sweeps on the first call
func (engine *Engine) activate() {
	engine.activateMutex.Lock()
	defer engine.activateMutex.Unlock()

	if engine.active {
		return
	}
	engine.active = true

	for _, dest := range engine.options.Destinations {
		if dest.AppenderName == "" {
			dest.AppenderName = engine.options.Name
		}
		if !dest.CanRegister() {
			engine.logger.Warnf("skip incomplete destination: %s", dest)
			continue
		}
		if err := engine.writerFactory.Register(dest); err != nil {
			engine.logger.Errorf("failed to register destination %s: %s", dest, err.Error())
			continue
		}
		engine.logger.Infof("registered destination %s", dest)
	}

	engine.timer = engine.timerFactory.CreateFor(engine.sweep, engine.options.RetryInterval)
	engine.logger.Infof("activated, storeForward=%t maxStore=%d retryInterval=%s",
		engine.options.StoreForward, engine.options.MaxStore, engine.options.RetryInterval)
}

func (engine *Engine) sweep() {
	err := engine.SendUnsent()
	switch {
	case err == nil:
	case errors.Is(err, ErrEngineClosed):
		engine.logger.Debug("skip sweep after close")
	default:
		engine.logger.Errorf("sweep failed: %s", err.Error())
	}
}

// scheduleSend appends a send attempt to the end of the chain
func (engine *Engine) scheduleSend(id int64, payload string) {
	engine.metrics.queuedAttempts.Inc()
	scheduled := engine.sequencer.Schedule(func() {
		defer engine.metrics.queuedAttempts.Dec()
		engine.complete(engine.attempt(id, payload))
	})
	if !scheduled {
		engine.metrics.queuedAttempts.Dec()
		engine.logger.Warnf("BUG: sequencer closed before engine, id=%d", id)
	}
}

func (engine *Engine) attempt(id int64, payload string) (result base.DispatchResult) {
	result.BufferID = id
	engine.metrics.attemptsTotal.Inc()

	defer func() {
		if r := recover(); r != nil {
			engine.logger.Errorf("panic in writer: %v. stack=%s", r, util.Stack())
			result.Succeeded = false
		}
	}()

	writer := engine.writerFactory.CreateFor(engine.options.Name)
	if err := engine.write(writer, payload); err != nil {
		engine.logger.Warnf("failed to send id=%d: %s", id, err.Error())
		return
	}
	result.Succeeded = true
	return
}

func (engine *Engine) write(writer base.LogWriter, payload string) error {
	if engine.options.SendTimeout <= 0 {
		return writer.Write(context.Background(), payload)
	}

	ctx, cancel := context.WithTimeout(context.Background(), engine.options.SendTimeout)
	defer cancel()

	// a writer may ignore ctx
	resultChan := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- fmt.Errorf("panic in writer: %v", r)
			}
		}()
		resultChan <- writer.Write(ctx, payload)
	}()
	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send timeout after %s: %w", engine.options.SendTimeout, ctx.Err())
	}
}

func (engine *Engine) complete(result base.DispatchResult) {
	if !result.Succeeded {
		engine.metrics.failuresTotal.Inc()
		return
	}
	engine.metrics.deliveredTotal.Inc()
	if result.BufferID <= 0 {
		return
	}
	if err := engine.store.Remove(result.BufferID); err != nil {
		engine.metrics.removeErrorsTotal.Inc()
		engine.logger.Errorf("failed to remove delivered record id=%d: %s", result.BufferID, err.Error())
		return
	}
	engine.logger.Debugf("delivered id=%d", result.BufferID)
}

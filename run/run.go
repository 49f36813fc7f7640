// Package run runs the actual log relay
package run

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/buffer"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/dispatch"
	"github.com/relex/slog-relay/hook"
	"github.com/relex/slog-relay/input/tcplistener"
	"github.com/relex/slog-relay/output"
	"github.com/relex/slog-relay/util"
)

// Relay holds the engine and its supporting components for one configuration
type Relay struct {
	logger        logger.Logger
	config        *Config
	writerFactory *output.WriterFactory
	engine        *dispatch.Engine
}

// NewRelay creates the buffer store, destinations and dispatch engine from config
//
// The engine is activated on the first record. Buffer resolution failures degrade to volatile buffer.
func NewRelay(parentLogger logger.Logger, config *Config, metricCreator promreg.MetricCreator) *Relay {
	rlogger := parentLogger.WithField(defs.LabelComponent, "Relay")
	store := buffer.NewStoreFactory(parentLogger, config.BufferOptions()).CreateStore()
	writerFactory := output.NewWriterFactory(parentLogger, metricCreator)
	engine := dispatch.NewEngine(parentLogger, config.DispatchOptions(), store, writerFactory,
		dispatch.NewQueueSequencer(parentLogger), util.NewTimerFactory(parentLogger), metricCreator)
	return &Relay{
		logger:        rlogger,
		config:        config,
		writerFactory: writerFactory,
		engine:        engine,
	}
}

// Engine returns the dispatch engine
func (relay *Relay) Engine() *dispatch.Engine {
	return relay.engine
}

// Consume submits each line from reader as one record until EOF
func (relay *Relay) Consume(reader io.Reader) error {
	writer := hook.NewLineWriter(relay.engine, relay.config.MaxLineLength())
	if _, err := io.Copy(writer, reader); err != nil {
		return err
	}
	return writer.Close()
}

// Close closes the engine, which drains scheduled attempts, and then all destination clients
func (relay *Relay) Close() {
	relay.engine.Close()
	relay.writerFactory.Close()
	relay.logger.Info("closed")
}

// Listen starts a TCP listener which submits each incoming line as one record until stopRequest is signaled
//
// Returns the listener and its actual address
func (relay *Relay) Listen(address string, stopRequest channels.Awaitable) (*tcplistener.TCPLineListener, string, error) {
	lsnr, boundAddr, err := tcplistener.NewTCPLineListener(relay.logger, address, relay.engine, relay.config.MaxLineLength(), stopRequest)
	if err != nil {
		return nil, "", fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	lsnr.Start()
	return lsnr, boundAddr, nil
}

// Run runs the relay until the input ends or stopped by signals
func Run(configFile string, metricCreator promreg.MetricCreator) {
	config, configErr := LoadConfigFile(configFile)
	if configErr != nil {
		logger.Fatal(configErr)
	}

	runLogger := logger.WithField(defs.LabelComponent, "Launcher")
	if dump, err := util.MarshalYaml(config.redacted()); err == nil {
		runLogger.Debugf("loaded %s:\n%s", configFile, dump)
	}
	relay := NewRelay(logger.Root(), config, metricCreator)
	stopRequest := channels.NewSignalAwaitable()

	var inputStopped channels.Awaitable
	if config.Input.Address != "" {
		lsnr, _, err := relay.Listen(config.Input.Address, stopRequest)
		if err != nil {
			logger.Fatal(err)
		}
		inputStopped = lsnr.Stopped()
	} else {
		inputStopped = launchReader(runLogger, relay, config.Input.Path, stopRequest)
	}

	// wait for end of input or shutdown signal
	{
		sigChan := make(chan os.Signal, 10)
		signal.Notify(sigChan, syscall.SIGINT)
		signal.Notify(sigChan, syscall.SIGTERM)
		select {
		case s := <-sigChan:
			runLogger.Infof("received %s, shutting down", s)
		case <-inputStopped.Channel():
			runLogger.Info("input ended, shutting down")
		}
	}

	stopRequest.Signal()
	if !inputStopped.Wait(defs.DispatchShutdownTimeout) {
		runLogger.Warn("timeout waiting for input to stop")
	}
	relay.Close()
	runLogger.Info("clean exit")
}

// launchReader reads records from the file or stdin in background
//
// The returned Awaitable is signaled at the end of input, or immediately on stop request since reads can't be
// interrupted
func launchReader(runLogger logger.Logger, relay *Relay, path string, stopRequest channels.Awaitable) channels.Awaitable {
	input, inputName, inputErr := openInput(path)
	if inputErr != nil {
		logger.Fatal(inputErr)
	}

	readerDone := channels.NewSignalAwaitable()
	go func() {
		defer readerDone.Signal()
		defer input.Close()
		runLogger.Infof("reading records from %s", inputName)
		err := relay.Consume(input)
		switch {
		case err == nil:
			runLogger.Infof("end of %s", inputName)
		case errors.Is(err, dispatch.ErrEngineClosed):
			runLogger.Info("engine closed")
		default:
			runLogger.Errorf("failed to read %s: %s", inputName, err.Error())
		}
	}()
	return channels.AnyAwaitables(readerDone, stopRequest)
}

func openInput(path string) (io.ReadCloser, string, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), "stdin", nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to open input: %w", err)
	}
	return file, path, nil
}

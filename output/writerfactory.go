package output

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/puzpuzpuz/xsync"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/defs"
	"golang.org/x/exp/slices"
)

// ErrNoDestination is returned by writers of appenders without any registered destination
var ErrNoDestination = errors.New("no destination registered")

type registration struct {
	config  base.DestinationConfig
	pattern glob.Glob
}

// WriterFactory keeps destination configs registered for appender name patterns, and creates writers which send
// records to all matching destinations
//
// Clients are shared by all writers of the same destination and created on first use.
type WriterFactory struct {
	logger         logger.Logger
	metricCreator  promreg.MetricCreator
	newDestination DestinationConstructor
	mutex          sync.RWMutex
	registrations  []registration
	clients        *xsync.MapOf[base.Destination] // by DestinationConfig.Key()
}

type fanoutWriter struct {
	factory      *WriterFactory
	appenderName string
	configs      []base.DestinationConfig
}

// NewWriterFactory creates a WriterFactory with destination kinds selected by URL schemes
func NewWriterFactory(parentLogger logger.Logger, metricCreator promreg.MetricCreator) *WriterFactory {
	return NewWriterFactoryWith(parentLogger, metricCreator, NewDestination)
}

// NewWriterFactoryWith creates a WriterFactory with custom constructor of destination clients
func NewWriterFactoryWith(parentLogger logger.Logger, metricCreator promreg.MetricCreator, newDestination DestinationConstructor) *WriterFactory {
	return &WriterFactory{
		logger:         parentLogger.WithField(defs.LabelComponent, "WriterFactory"),
		metricCreator:  metricCreator,
		newDestination: newDestination,
		clients:        xsync.NewMapOf[base.Destination](),
	}
}

// Register adds a destination for appenders matching config.AppenderName, which may contain wildcards
//
// Registering the same destination for the same pattern again is a no-op
func (factory *WriterFactory) Register(config base.DestinationConfig) error {
	if !config.CanRegister() {
		return fmt.Errorf("incomplete destination: %s", config)
	}
	pattern, err := glob.Compile(config.AppenderName)
	if err != nil {
		return fmt.Errorf("invalid appender name pattern '%s': %w", config.AppenderName, err)
	}

	factory.mutex.Lock()
	defer factory.mutex.Unlock()

	if slices.IndexFunc(factory.registrations, func(r registration) bool {
		return r.config.AppenderName == config.AppenderName && r.config.Key() == config.Key()
	}) >= 0 {
		return nil
	}
	factory.registrations = append(factory.registrations, registration{config: config, pattern: pattern})
	return nil
}

// RegisterConfigFor registers a destination with default options
func (factory *WriterFactory) RegisterConfigFor(appenderName, index, remoteURL, login, password string) error {
	return factory.Register(base.DestinationConfig{
		AppenderName: appenderName,
		Index:        index,
		RemoteURL:    remoteURL,
		Login:        login,
		Password:     password,
	})
}

// ForgetConfigurations removes all registered destinations and closes their clients
func (factory *WriterFactory) ForgetConfigurations() {
	factory.mutex.Lock()
	factory.registrations = nil
	factory.mutex.Unlock()

	factory.closeClients()
}

// GetConfigurationsFor returns destinations whose patterns match the given appender name, in order of registration
func (factory *WriterFactory) GetConfigurationsFor(appenderName string) []base.DestinationConfig {
	factory.mutex.RLock()
	defer factory.mutex.RUnlock()

	configs := make([]base.DestinationConfig, 0, len(factory.registrations))
	for _, r := range factory.registrations {
		if r.pattern.Match(appenderName) || strings.EqualFold(r.config.AppenderName, appenderName) {
			configs = append(configs, r.config)
		}
	}
	return configs
}

// CreateFor creates a writer for destinations currently registered for the given appender
func (factory *WriterFactory) CreateFor(appenderName string) base.LogWriter {
	return &fanoutWriter{
		factory:      factory,
		appenderName: appenderName,
		configs:      factory.GetConfigurationsFor(appenderName),
	}
}

// Close closes all clients. Registrations are kept and new clients may be created afterwards.
func (factory *WriterFactory) Close() {
	factory.closeClients()
}

func (factory *WriterFactory) getClient(config base.DestinationConfig) (base.Destination, error) {
	key := config.Key()
	if client, ok := factory.clients.Load(key); ok {
		return client, nil
	}

	client, err := factory.newDestination(factory.logger, config, factory.metricCreator)
	if err != nil {
		return nil, err
	}
	actual, loaded := factory.clients.LoadOrStore(key, client)
	if loaded {
		client.Close()
	}
	return actual, nil
}

func (factory *WriterFactory) closeClients() {
	factory.clients.Range(func(key string, client base.Destination) bool {
		factory.clients.Delete(key)
		client.Close()
		return true
	})
}

// Write sends the record to every destination in order and succeeds if any of them accepted it
func (writer *fanoutWriter) Write(ctx context.Context, payload string) error {
	if len(writer.configs) == 0 {
		return fmt.Errorf("%w for '%s'", ErrNoDestination, writer.appenderName)
	}

	var errs []error
	succeeded := false
	for _, config := range writer.configs {
		client, cerr := writer.factory.getClient(config)
		if cerr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", config, cerr))
			continue
		}
		if err := client.Send(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", config, err))
			continue
		}
		succeeded = true
	}
	if succeeded {
		if len(errs) > 0 {
			writer.factory.logger.Warnf("sent with partial failures: %s", errors.Join(errs...).Error())
		}
		return nil
	}
	return errors.Join(errs...)
}

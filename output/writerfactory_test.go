package output

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/stretchr/testify/assert"
)

type fakeDestination struct {
	mutex  sync.Mutex
	config base.DestinationConfig
	fail   bool
	sent   []string
	closed bool
}

func (dest *fakeDestination) Send(_ context.Context, payload string) error {
	dest.mutex.Lock()
	defer dest.mutex.Unlock()
	if dest.fail {
		return errors.New("unavailable")
	}
	dest.sent = append(dest.sent, payload)
	return nil
}

func (dest *fakeDestination) Close() {
	dest.mutex.Lock()
	defer dest.mutex.Unlock()
	dest.closed = true
}

type fakeDestinations struct {
	mutex     sync.Mutex
	byIndex   map[string]*fakeDestination
	failIndex map[string]bool
	numNew    int
}

func newFakeDestinations(failIndexes ...string) *fakeDestinations {
	fakes := &fakeDestinations{
		byIndex:   make(map[string]*fakeDestination),
		failIndex: make(map[string]bool),
	}
	for _, index := range failIndexes {
		fakes.failIndex[index] = true
	}
	return fakes
}

func (fakes *fakeDestinations) New(_ logger.Logger, config base.DestinationConfig, _ promreg.MetricCreator) (base.Destination, error) {
	fakes.mutex.Lock()
	defer fakes.mutex.Unlock()
	fakes.numNew++
	dest := &fakeDestination{config: config, fail: fakes.failIndex[config.Index]}
	fakes.byIndex[config.Index] = dest
	return dest, nil
}

func (fakes *fakeDestinations) Get(index string) *fakeDestination {
	fakes.mutex.Lock()
	defer fakes.mutex.Unlock()
	return fakes.byIndex[index]
}

func newTestFactory(fakes *fakeDestinations) *WriterFactory {
	return NewWriterFactoryWith(logger.Root(), promreg.NewMetricFactory("testoutput_", nil, nil), fakes.New)
}

func TestWriterFactoryMatching(t *testing.T) {
	factory := newTestFactory(newFakeDestinations())

	assert.Nil(t, factory.RegisterConfigFor("WebApp", "web", "https://splunk:8089", "admin", "p"))
	assert.Nil(t, factory.RegisterConfigFor("Web*", "allweb", "https://splunk:8089", "admin", "p"))
	assert.Nil(t, factory.RegisterConfigFor("*", "all", "https://splunk:8089", "", "token"))
	assert.Nil(t, factory.RegisterConfigFor("*", "all", "https://splunk:8089", "", "token")) // duplicate

	indexesOf := func(configs []base.DestinationConfig) []string {
		indexes := make([]string, 0, len(configs))
		for _, c := range configs {
			indexes = append(indexes, c.Index)
		}
		return indexes
	}
	assert.Equal(t, []string{"web", "allweb", "all"}, indexesOf(factory.GetConfigurationsFor("WebApp")))
	assert.Equal(t, []string{"web", "all"}, indexesOf(factory.GetConfigurationsFor("webapp")))
	assert.Equal(t, []string{"allweb", "all"}, indexesOf(factory.GetConfigurationsFor("WebService")))
	assert.Equal(t, []string{"all"}, indexesOf(factory.GetConfigurationsFor("Batch")))

	factory.ForgetConfigurations()
	assert.Empty(t, factory.GetConfigurationsFor("WebApp"))
}

func TestWriterFactoryRejectsIncomplete(t *testing.T) {
	factory := newTestFactory(newFakeDestinations())
	assert.NotNil(t, factory.RegisterConfigFor("app", "", "https://splunk:8089", "admin", "p"))
	assert.NotNil(t, factory.RegisterConfigFor("app", "main", "https://splunk:8089", "admin", ""))
	assert.NotNil(t, factory.RegisterConfigFor("[app", "main", "https://splunk:8089", "admin", "p"))
	assert.Empty(t, factory.GetConfigurationsFor("app"))
}

func TestFanoutWriter(t *testing.T) {
	fakes := newFakeDestinations("down")
	factory := newTestFactory(fakes)
	defer factory.Close()

	assert.Nil(t, factory.RegisterConfigFor("app", "down", "https://splunk1:8089", "admin", "p"))
	assert.Nil(t, factory.RegisterConfigFor("app", "up", "https://splunk2:8089", "admin", "p"))
	assert.Nil(t, factory.RegisterConfigFor("other", "down", "https://splunk1:8089", "admin", "p"))

	// any success counts
	writer := factory.CreateFor("app")
	assert.Nil(t, writer.Write(context.Background(), "r1"))
	assert.Nil(t, factory.CreateFor("app").Write(context.Background(), "r2"))
	assert.Equal(t, []string{"r1", "r2"}, fakes.Get("up").sent)
	assert.Equal(t, 2, fakes.numNew) // clients are reused

	// all failed
	err := factory.CreateFor("other").Write(context.Background(), "r3")
	assert.ErrorContains(t, err, "unavailable")

	// nothing registered
	err = factory.CreateFor("unknown").Write(context.Background(), "r4")
	assert.ErrorIs(t, err, ErrNoDestination)

	factory.ForgetConfigurations()
	assert.True(t, fakes.Get("up").closed)
	assert.ErrorIs(t, factory.CreateFor("app").Write(context.Background(), "r5"), ErrNoDestination)
}

func TestNewDestinationBySchemes(t *testing.T) {
	mfactory := promreg.NewMetricFactory("testoutput_", nil, nil)
	for _, remoteURL := range []string{"http://localhost:8088", "https://localhost:8089", "fluent://localhost:24224",
		"fluents://localhost:24224", "beats://localhost:5044", "datadog://http-intake.logs.datadoghq.eu",
		"datadog+http://localhost:8126"} {
		dest, err := NewDestination(logger.Root(), base.DestinationConfig{Index: "main", RemoteURL: remoteURL, Password: "p"}, mfactory)
		if assert.Nil(t, err, remoteURL) {
			dest.Close()
		}
	}

	assert.ErrorContains(t, ValidateRemoteURL("ftp://localhost"), "unsupported scheme 'ftp'")
	assert.Nil(t, ValidateRemoteURL("HTTPS://localhost:8089"))
}

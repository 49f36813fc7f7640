package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/buffer/memorybuffer"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/util"
	"github.com/stretchr/testify/assert"
)

type engineTestEnv struct {
	engine  *Engine
	store   *closeTrackingStore
	writers *fakeWriterFactory
	timers  *manualTimerFactory
}

func newTestEngine(t *testing.T, options Options, sendFunc func(ctx context.Context, payload string) error, queued bool) engineTestEnv {
	env := engineTestEnv{
		store:   &closeTrackingStore{BufferStore: memorybuffer.NewStore()},
		writers: newFakeWriterFactory(sendFunc),
		timers:  &manualTimerFactory{},
	}
	var seq Sequencer
	if queued {
		seq = NewQueueSequencer(logger.Root())
	} else {
		seq = NewImmediateSequencer(logger.Root())
	}
	mfactory := promreg.NewMetricFactory("testdispatch_", nil, nil)
	env.engine = NewEngine(logger.Root(), options, env.store, env.writers, seq, env.timers, mfactory)
	t.Cleanup(env.engine.Close)
	return env
}

func listPayloads(t *testing.T, store base.BufferStore) []string {
	records, err := store.ListAll()
	assert.Nil(t, err)
	payloads := make([]string, 0, len(records))
	for _, r := range records {
		payloads = append(payloads, r.Payload)
	}
	return payloads
}

func TestEngineSendInOrder(t *testing.T) {
	env := newTestEngine(t, DefaultOptions("order"), func(context.Context, string) error {
		time.Sleep(100 * time.Microsecond)
		return nil
	}, true)

	const numProducers = 8
	const numPerProducer = 100

	wg := sync.WaitGroup{}
	for p := 0; p < numProducers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < numPerProducer; i++ {
				assert.Nil(t, env.engine.Submit(fmt.Sprintf("p%d-%03d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return len(env.writers.Sent()) == numProducers*numPerProducer
	}, defs.TestReadTimeout, 10*time.Millisecond)

	// records of each producer are sent in the order of submission
	lastIndex := make(map[string]int)
	for _, payload := range env.writers.Sent() {
		var p, i int
		_, err := fmt.Sscanf(payload, "p%d-%d", &p, &i)
		assert.Nil(t, err)
		key := fmt.Sprint(p)
		if prev, ok := lastIndex[key]; ok {
			assert.Equal(t, prev+1, i, payload)
		} else {
			assert.Equal(t, 0, i, payload)
		}
		lastIndex[key] = i
	}
	assert.Len(t, lastIndex, numProducers)

	assert.Equal(t, int32(1), atomic.LoadInt32(&env.writers.maxFlight))
	assert.Eventually(t, func() bool {
		count, _ := env.store.Count()
		return count == 0
	}, defs.TestReadTimeout, 10*time.Millisecond)
}

func TestEngineNextSendWaitsForPrevious(t *testing.T) {
	releaseA := make(chan struct{})
	env := newTestEngine(t, DefaultOptions("chain"), func(_ context.Context, payload string) error {
		if payload == "A" {
			<-releaseA
		}
		return nil
	}, true)

	// neither call blocks on the pending send of A
	assert.Nil(t, env.engine.Submit("A"))
	assert.Nil(t, env.engine.Submit("B"))

	assert.Eventually(t, func() bool {
		return len(env.writers.Events()) == 1
	}, defs.TestReadTimeout, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"start A"}, env.writers.Events())
	assert.Equal(t, []string{"A", "B"}, listPayloads(t, env.store))

	close(releaseA)
	assert.Eventually(t, func() bool {
		return len(env.writers.Events()) == 4
	}, defs.TestReadTimeout, time.Millisecond)
	assert.Equal(t, []string{"start A", "end A", "start B", "end B"}, env.writers.Events())
	assert.Eventually(t, func() bool {
		return len(listPayloads(t, env.store)) == 0
	}, defs.TestReadTimeout, time.Millisecond)
}

func TestEngineRemoveOnlyOnSuccess(t *testing.T) {
	env := newTestEngine(t, DefaultOptions("remove"), func(_ context.Context, payload string) error {
		if strings.HasPrefix(payload, "bad") {
			return errSendRefused
		}
		return nil
	}, false)

	assert.Nil(t, env.engine.Submit("good1"))
	assert.Nil(t, env.engine.Submit("bad1"))
	assert.Nil(t, env.engine.Submit("good2"))
	assert.Nil(t, env.engine.Submit("bad2"))

	assert.Equal(t, []string{"good1", "bad1", "good2", "bad2"}, env.writers.Sent())
	assert.Equal(t, []string{"bad1", "bad2"}, listPayloads(t, env.store))
}

func TestEngineSweepResends(t *testing.T) {
	numCalls := 0
	env := newTestEngine(t, DefaultOptions("sweep"), func(_ context.Context, payload string) error {
		numCalls++
		if numCalls == 1 {
			return errSendRefused
		}
		return nil
	}, false)

	assert.Nil(t, env.engine.Submit("A"))
	assert.Equal(t, []string{"A"}, listPayloads(t, env.store))

	env.timers.Fire()
	assert.Equal(t, []string{"A", "A"}, env.writers.Sent())
	assert.Empty(t, listPayloads(t, env.store))

	// nothing left to resend
	env.timers.Fire()
	assert.Equal(t, []string{"A", "A"}, env.writers.Sent())
}

func TestEngineSweepEvictsWithZeroMaxStore(t *testing.T) {
	options := DefaultOptions("evict")
	options.MaxStore = 0
	env := newTestEngine(t, options, func(context.Context, string) error {
		return errSendRefused
	}, false)

	assert.Nil(t, env.engine.Submit("A"))
	assert.Equal(t, []string{"A"}, listPayloads(t, env.store))

	assert.Nil(t, env.engine.SendUnsent())
	assert.Equal(t, []string{"A", "A"}, env.writers.Sent())
	assert.Empty(t, listPayloads(t, env.store))
}

func TestEngineSweepTrimsOldest(t *testing.T) {
	options := DefaultOptions("trim")
	options.MaxStore = 2
	env := newTestEngine(t, options, func(context.Context, string) error {
		return errSendRefused
	}, false)

	for i := 1; i <= 5; i++ {
		assert.Nil(t, env.engine.Submit(fmt.Sprintf("r%d", i)))
	}
	env.timers.Fire()

	// all are resent in order before trimming
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5", "r1", "r2", "r3", "r4", "r5"}, env.writers.Sent())
	assert.Equal(t, []string{"r4", "r5"}, listPayloads(t, env.store))
}

func TestEngineWithoutStoreForward(t *testing.T) {
	options := DefaultOptions("direct")
	options.StoreForward = false
	env := newTestEngine(t, options, func(_ context.Context, payload string) error {
		if payload == "bad" {
			return errSendRefused
		}
		return nil
	}, false)

	assert.Nil(t, env.engine.Submit("good"))
	assert.Nil(t, env.engine.Submit("bad"))
	assert.Equal(t, []string{"good", "bad"}, env.writers.Sent())
	assert.Empty(t, listPayloads(t, env.store))

	// nothing buffered to resend
	env.timers.Fire()
	assert.Equal(t, []string{"good", "bad"}, env.writers.Sent())
}

func TestEngineActivation(t *testing.T) {
	options := DefaultOptions("app")
	options.RetryInterval = 3 * time.Minute
	options.Destinations = []base.DestinationConfig{
		{Index: "main", RemoteURL: "https://splunk:8089", Login: "admin", Password: "secret"},
		{AppenderName: "other*", Index: "audit", RemoteURL: "https://splunk:8089", Password: "token"},
		{Index: "main", RemoteURL: "https://splunk:8089", Login: "admin"}, // no password
		{Index: " ", RemoteURL: "https://splunk:8089", Password: "secret"}, // blank index
	}
	env := newTestEngine(t, options, nil, false)

	assert.Empty(t, env.timers.Created())
	assert.Empty(t, env.writers.Registered())

	assert.Nil(t, env.engine.Submit("1"))
	assert.Nil(t, env.engine.Submit("2"))

	registered := env.writers.Registered()
	if assert.Len(t, registered, 2) {
		assert.Equal(t, "app", registered[0].AppenderName)
		assert.Equal(t, "main", registered[0].Index)
		assert.Equal(t, "other*", registered[1].AppenderName)
	}
	timers := env.timers.Created()
	if assert.Len(t, timers, 1) {
		assert.Equal(t, 3*time.Minute, timers[0].interval)
	}
}

func TestEngineClose(t *testing.T) {
	env := newTestEngine(t, DefaultOptions("close"), nil, true)

	assert.Nil(t, env.engine.Submit("A"))
	env.engine.Close()
	env.engine.Close()

	assert.True(t, env.store.closed.Load())
	assert.True(t, env.timers.Created()[0].disposed.Load())
	assert.Equal(t, []string{"A"}, env.writers.Sent())

	assert.ErrorIs(t, env.engine.Submit("B"), ErrEngineClosed)
	assert.ErrorIs(t, env.engine.SendUnsent(), ErrEngineClosed)
	assert.Equal(t, []string{"A"}, env.writers.Sent())
}

func TestEngineCloseWithoutActivation(t *testing.T) {
	env := newTestEngine(t, DefaultOptions("idle"), nil, true)
	env.engine.Close()
	assert.True(t, env.store.closed.Load())
	assert.Empty(t, env.timers.Created())
}

func TestEngineSendTimeout(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)

	options := DefaultOptions("timeout")
	options.SendTimeout = 100 * time.Millisecond
	env := newTestEngine(t, options, func(_ context.Context, payload string) error {
		if payload == "hang" {
			<-hang // ignores ctx
		}
		return nil
	}, true)

	assert.Nil(t, env.engine.Submit("hang"))
	assert.Nil(t, env.engine.Submit("ok"))

	assert.Eventually(t, func() bool {
		return len(listPayloads(t, env.store)) == 1
	}, defs.TestReadTimeout, 10*time.Millisecond)
	assert.Equal(t, []string{"hang"}, listPayloads(t, env.store))
}

func TestEngineAppendError(t *testing.T) {
	env := newTestEngine(t, DefaultOptions("fail"), nil, false)
	env.store.failAppend = true

	err := env.engine.Submit("A")
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, env.writers.Sent())
}

func TestEngineWriterPanic(t *testing.T) {
	env := newTestEngine(t, DefaultOptions("panic"), func(_ context.Context, payload string) error {
		if payload == "boom" {
			panic("boom")
		}
		return nil
	}, false)

	assert.Nil(t, env.engine.Submit("boom"))
	assert.Nil(t, env.engine.Submit("fine"))
	assert.Equal(t, []string{"boom"}, listPayloads(t, env.store))
}

func TestEngineResendsPreviousRunOnActivation(t *testing.T) {
	store := memorybuffer.NewStore()
	_, _ = store.Append("left-over")

	writers := newFakeWriterFactory(nil)
	mfactory := promreg.NewMetricFactory("testdispatch_", nil, nil)
	engine := NewEngine(logger.Root(), DefaultOptions("restart"), store, writers,
		NewQueueSequencer(logger.Root()), util.NewTimerFactory(logger.Root()), mfactory)
	defer engine.Close()

	assert.Nil(t, engine.Submit("new"))
	assert.Eventually(t, func() bool {
		count, _ := store.Count()
		return count == 0
	}, defs.TestReadTimeout, 10*time.Millisecond)
	assert.Contains(t, writers.Sent(), "left-over")
	assert.Contains(t, writers.Sent(), "new")
}

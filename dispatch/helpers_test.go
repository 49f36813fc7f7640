package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relex/slog-relay/base"
)

var errSendRefused = errors.New("refused")

// fakeWriterFactory records registrations and sends, with per-payload behavior from sendFunc
type fakeWriterFactory struct {
	mutex      sync.Mutex
	registered []base.DestinationConfig
	sent       []string
	events     []string
	inFlight   int32
	maxFlight  int32
	sendFunc   func(ctx context.Context, payload string) error
}

func newFakeWriterFactory(sendFunc func(ctx context.Context, payload string) error) *fakeWriterFactory {
	if sendFunc == nil {
		sendFunc = func(context.Context, string) error { return nil }
	}
	return &fakeWriterFactory{sendFunc: sendFunc}
}

func (factory *fakeWriterFactory) Register(config base.DestinationConfig) error {
	factory.mutex.Lock()
	defer factory.mutex.Unlock()
	factory.registered = append(factory.registered, config)
	return nil
}

func (factory *fakeWriterFactory) CreateFor(string) base.LogWriter {
	return factory
}

func (factory *fakeWriterFactory) Write(ctx context.Context, payload string) error {
	current := atomic.AddInt32(&factory.inFlight, 1)
	defer atomic.AddInt32(&factory.inFlight, -1)
	for {
		prevMax := atomic.LoadInt32(&factory.maxFlight)
		if current <= prevMax || atomic.CompareAndSwapInt32(&factory.maxFlight, prevMax, current) {
			break
		}
	}

	factory.addEvent("start " + payload)
	err := factory.sendFunc(ctx, payload)
	factory.addEvent("end " + payload)

	factory.mutex.Lock()
	factory.sent = append(factory.sent, payload)
	factory.mutex.Unlock()
	return err
}

func (factory *fakeWriterFactory) addEvent(event string) {
	factory.mutex.Lock()
	defer factory.mutex.Unlock()
	factory.events = append(factory.events, event)
}

func (factory *fakeWriterFactory) Sent() []string {
	factory.mutex.Lock()
	defer factory.mutex.Unlock()
	return append([]string(nil), factory.sent...)
}

func (factory *fakeWriterFactory) Events() []string {
	factory.mutex.Lock()
	defer factory.mutex.Unlock()
	return append([]string(nil), factory.events...)
}

func (factory *fakeWriterFactory) Registered() []base.DestinationConfig {
	factory.mutex.Lock()
	defer factory.mutex.Unlock()
	return append([]base.DestinationConfig(nil), factory.registered...)
}

// manualTimerFactory creates timers which only run when fired by tests
type manualTimerFactory struct {
	mutex  sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	action   func()
	interval time.Duration
	disposed atomic.Bool
}

func (factory *manualTimerFactory) CreateFor(action func(), interval time.Duration) base.Timer {
	factory.mutex.Lock()
	defer factory.mutex.Unlock()
	timer := &manualTimer{action: action, interval: interval}
	factory.timers = append(factory.timers, timer)
	return timer
}

func (factory *manualTimerFactory) Created() []*manualTimer {
	factory.mutex.Lock()
	defer factory.mutex.Unlock()
	return append([]*manualTimer(nil), factory.timers...)
}

// Fire runs the actions of all timers not yet disposed
func (factory *manualTimerFactory) Fire() {
	for _, timer := range factory.Created() {
		if !timer.disposed.Load() {
			timer.action()
		}
	}
}

func (timer *manualTimer) Dispose() {
	timer.disposed.Store(true)
}

// closeTrackingStore wraps a store to record whether it's closed, and optionally fails appends
type closeTrackingStore struct {
	base.BufferStore
	closed     atomic.Bool
	failAppend bool
}

func (st *closeTrackingStore) Append(payload string) (int64, error) {
	if st.failAppend {
		return 0, errors.New("disk full")
	}
	return st.BufferStore.Append(payload)
}

func (st *closeTrackingStore) Close() error {
	st.closed.Store(true)
	return st.BufferStore.Close()
}

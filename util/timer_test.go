package util

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
)

func TestTimerFactory(t *testing.T) {
	numRuns := int64(0)
	factory := NewTimerFactory(logger.Root())

	timer := factory.CreateFor(func() {
		atomic.AddInt64(&numRuns, 1)
	}, 20*time.Millisecond)

	// first run is immediate
	assert.Eventually(t, func() bool { return atomic.LoadInt64(&numRuns) >= 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return atomic.LoadInt64(&numRuns) >= 3 }, 2*time.Second, 5*time.Millisecond)

	timer.Dispose()
	timer.Dispose()
	assert.True(t, timer.(*periodicTimer).Stopped().Wait(time.Second))

	afterDispose := atomic.LoadInt64(&numRuns)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, afterDispose, atomic.LoadInt64(&numRuns))
}

func TestTimerSurvivesPanic(t *testing.T) {
	numRuns := int64(0)
	timer := NewTimerFactory(logger.Root()).CreateFor(func() {
		if atomic.AddInt64(&numRuns, 1) == 1 {
			panic("first run")
		}
	}, 10*time.Millisecond)
	defer timer.Dispose()

	assert.Eventually(t, func() bool { return atomic.LoadInt64(&numRuns) >= 2 }, time.Second, 5*time.Millisecond)
}

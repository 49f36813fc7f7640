package util

import (
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/defs"
)

type timerFactory struct {
	logger logger.Logger
}

type periodicTimer struct {
	logger   logger.Logger
	action   func()
	interval time.Duration
	disposed *channels.SignalAwaitable
	stopped  *channels.SignalAwaitable
	dispose  *RunOnce
}

// NewTimerFactory creates a TimerFactory which runs each timer on its own goroutine
func NewTimerFactory(parentLogger logger.Logger) base.TimerFactory {
	return &timerFactory{
		logger: parentLogger.WithField(defs.LabelComponent, "Timer"),
	}
}

func (factory *timerFactory) CreateFor(action func(), interval time.Duration) base.Timer {
	timer := &periodicTimer{
		logger:   factory.logger,
		action:   action,
		interval: interval,
		disposed: channels.NewSignalAwaitable(),
		stopped:  channels.NewSignalAwaitable(),
	}
	timer.dispose = NewRunOnce(timer.disposed.Signal)
	go timer.run()
	return timer
}

// Dispose stops the timer without waiting for a running action
func (timer *periodicTimer) Dispose() {
	timer.dispose.Run()
}

// Stopped returns an Awaitable which is signaled when the timer goroutine exits
func (timer *periodicTimer) Stopped() channels.Awaitable {
	return timer.stopped
}

func (timer *periodicTimer) run() {
	defer timer.stopped.Signal()

	ticker := time.NewTicker(timer.interval)
	defer ticker.Stop()

	for {
		timer.runAction()
		select {
		case <-ticker.C:
		case <-timer.disposed.Channel():
			timer.logger.Debugf("disposed")
			return
		}
	}
}

func (timer *periodicTimer) runAction() {
	defer func() {
		if r := recover(); r != nil {
			timer.logger.Errorf("BUG: panic in timer action: %v. stack=%s", r, Stack())
		}
	}()
	timer.action()
}

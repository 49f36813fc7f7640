package dispatch

import (
	"sync"

	eapache "github.com/eapache/channels"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/util"
)

// Sequencer executes scheduled jobs one by one in the order of scheduling, never on the caller's goroutine
// (except the immediate sequencer for testing)
type Sequencer interface {
	// Schedule appends a job to the end of queue without blocking. It returns false if the sequencer has been closed.
	Schedule(job func()) bool

	// Close stops accepting new jobs. Queued jobs are still executed.
	Close()

	// Stopped is signaled after Close when all the queued jobs have finished
	Stopped() channels.Awaitable
}

// queueSequencer is an unbounded FIFO consumed by a single worker goroutine
type queueSequencer struct {
	logger  logger.Logger
	mutex   sync.Mutex
	closed  bool
	queue   *eapache.InfiniteChannel
	stopped *channels.SignalAwaitable
}

// NewQueueSequencer creates a Sequencer backed by an unbounded queue and a single worker goroutine
func NewQueueSequencer(parentLogger logger.Logger) Sequencer {
	seq := &queueSequencer{
		logger:  parentLogger.WithField(defs.LabelPart, "Sequencer"),
		queue:   eapache.NewInfiniteChannel(),
		stopped: channels.NewSignalAwaitable(),
	}
	go seq.run()
	return seq
}

func (seq *queueSequencer) Schedule(job func()) bool {
	seq.mutex.Lock()
	defer seq.mutex.Unlock()

	if seq.closed {
		return false
	}
	seq.queue.In() <- job
	return true
}

func (seq *queueSequencer) Close() {
	seq.mutex.Lock()
	defer seq.mutex.Unlock()

	if seq.closed {
		return
	}
	seq.closed = true
	seq.queue.Close()
}

func (seq *queueSequencer) Stopped() channels.Awaitable {
	return seq.stopped
}

// Len returns the numbers of jobs waiting in queue, excluding the running one
func (seq *queueSequencer) Len() int {
	return seq.queue.Len()
}

func (seq *queueSequencer) run() {
	defer seq.stopped.Signal()

	for item := range seq.queue.Out() {
		runJob(seq.logger, item.(func()))
	}
	seq.logger.Debug("stopped")
}

// immediateSequencer runs each job on the caller's goroutine, serialized by a mutex
type immediateSequencer struct {
	logger  logger.Logger
	mutex   sync.Mutex
	closed  bool
	stopped *channels.SignalAwaitable
}

// NewImmediateSequencer creates a Sequencer which executes jobs synchronously inside Schedule, for testing
func NewImmediateSequencer(parentLogger logger.Logger) Sequencer {
	return &immediateSequencer{
		logger:  parentLogger.WithField(defs.LabelPart, "Sequencer"),
		stopped: channels.NewSignalAwaitable(),
	}
}

func (seq *immediateSequencer) Schedule(job func()) bool {
	seq.mutex.Lock()
	defer seq.mutex.Unlock()

	if seq.closed {
		return false
	}
	runJob(seq.logger, job)
	return true
}

func (seq *immediateSequencer) Close() {
	seq.mutex.Lock()
	defer seq.mutex.Unlock()

	if seq.closed {
		return
	}
	seq.closed = true
	seq.stopped.Signal()
}

func (seq *immediateSequencer) Stopped() channels.Awaitable {
	return seq.stopped
}

func runJob(jobLogger logger.Logger, job func()) {
	defer func() {
		if r := recover(); r != nil {
			jobLogger.Errorf("BUG: panic in scheduled job: %v. stack=%s", r, util.Stack())
		}
	}()
	job()
}

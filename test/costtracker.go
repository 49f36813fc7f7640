// Package test provides self-benchmarks of dispatch engine and buffer stores
package test

import (
	"runtime"
	"syscall"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/util"
)

// CostTracker tracks CPU usage and memory allocations of the whole process
type CostTracker struct {
	start costSnapshot
}

// CostReport contains measurements since the creation of tracker
type CostReport struct {
	RealTime      time.Duration
	UserTime      time.Duration
	SystemTime    time.Duration
	NumHeapAllocs uint64
	GCCPUFraction float64
}

type costSnapshot struct {
	realTime      time.Time
	userTime      time.Time
	systemTime    time.Time
	numHeapAllocs uint64
	gcCPUFraction float64
}

// NewCostTracker creates a cost tracker and starts tracking
//
// GC is forced before taking each snapshot so that garbage from setup is not counted
func NewCostTracker() *CostTracker {
	return &CostTracker{start: takeCostSnapshot()}
}

// Report reports measurements since the tracker was created
func (ct *CostTracker) Report() CostReport {
	end := takeCostSnapshot()
	return CostReport{
		RealTime:      end.realTime.Sub(ct.start.realTime),
		UserTime:      end.userTime.Sub(ct.start.userTime),
		SystemTime:    end.systemTime.Sub(ct.start.systemTime),
		NumHeapAllocs: end.numHeapAllocs - ct.start.numHeapAllocs,
		GCCPUFraction: end.gcCPUFraction,
	}
}

func takeCostSnapshot() costSnapshot {
	runtime.GC()

	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		logger.Panic("failed to get resource usage: ", err)
	}
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return costSnapshot{
		realTime:      time.Now(),
		userTime:      util.TimeFromTimeval(rusage.Utime),
		systemTime:    util.TimeFromTimeval(rusage.Stime),
		numHeapAllocs: memStats.Mallocs,
		gcCPUFraction: memStats.GCCPUFraction,
	}
}

package test

import (
	"fmt"
	"math"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/buffer"
	"github.com/relex/slog-relay/buffer/sqlitebuffer"
	"github.com/relex/slog-relay/dispatch"
	"github.com/relex/slog-relay/util"
)

const benchmarkIdentity = "slog-relay-benchmark"

type benchmarkMetric struct {
	fmt string
	val float64
}

// BenchmarkResult is the summary of one benchmark run
type BenchmarkResult struct {
	NumRecords   int
	NumDelivered int
	NumBuffered  int   // numbers of records left in buffer after the run
	InputBytes   int64 // total length of submitted records
}

// RunBenchmarkDispatch benchmarks the dispatch engine with null output
//
// The buffer is created under bufferRoot, or in memory if volatile is true. Records left from previous runs are
// included in delivery counts.
func RunBenchmarkDispatch(inputPath string, repeat int, bufferRoot string, volatile bool) BenchmarkResult {
	mfactory := promreg.NewMetricFactory("benchdispatch_", nil, nil)
	inputRecords := loadInputRecords(inputPath)

	store := buffer.NewStoreFactory(logger.Root(), buffer.FactoryOptions{
		RootPath: bufferRoot,
		Identity: benchmarkIdentity,
		Volatile: volatile,
	}).CreateStore()
	location := store.Location()

	writerFactory := &nullWriterFactory{}
	options := dispatch.DefaultOptions("benchmark")
	options.MaxStore = math.MaxInt32
	options.Destinations = []base.DestinationConfig{{Index: "null", RemoteURL: "null://", Password: "null"}}
	engine := dispatch.NewEngine(logger.Root(), options, store, writerFactory,
		dispatch.NewQueueSequencer(logger.Root()), util.NewTimerFactory(logger.Root()), mfactory)

	result := BenchmarkResult{NumRecords: len(inputRecords) * repeat}
	costTracker := NewCostTracker()
	for i := 0; i < repeat; i++ {
		for _, record := range inputRecords {
			if err := engine.Submit(record); err != nil {
				logger.Fatal("failed to submit: ", err)
			}
			result.InputBytes += int64(len(record))
		}
	}
	engine.Close()
	report := costTracker.Report()

	result.NumDelivered = int(writerFactory.numWritten.Load())
	if location != "" {
		result.NumBuffered = countLeftovers(location)
	}
	if result.NumDelivered < result.NumRecords {
		logger.Errorf("numbers of delivered records don't match: %d, should be at least %d", result.NumDelivered, result.NumRecords)
	}
	reportBenchmarkResult("BenchmarkDispatch", result, report)
	return result
}

func countLeftovers(location string) int {
	store, err := sqlitebuffer.Open(logger.Root(), location)
	if err != nil {
		logger.Errorf("failed to open %s: %s", location, err.Error())
		return -1
	}
	defer store.Close()
	count, err := store.Count()
	if err != nil {
		logger.Errorf("failed to count leftovers in %s: %s", location, err.Error())
		return -1
	}
	return count
}

func reportBenchmarkResult(title string, result BenchmarkResult, report CostReport) {
	metrics := []benchmarkMetric{
		{fmt: "%.0f log/sec", val: float64(result.NumRecords) / report.RealTime.Seconds()},
		{fmt: "%.2f MB/sec", val: float64(result.InputBytes) / 1048576 / report.RealTime.Seconds()},
		{fmt: "%0.2f alloc/log", val: float64(report.NumHeapAllocs) / float64(result.NumRecords)},
		{fmt: "%0.2f%% user", val: 100.0 * report.UserTime.Seconds() / report.RealTime.Seconds()},
		{fmt: "%0.2f%% sys", val: 100.0 * report.SystemTime.Seconds() / report.RealTime.Seconds()},
		{fmt: "%0.2f%% gc", val: 100.0 * report.GCCPUFraction},
		{fmt: "%.02f sec", val: report.RealTime.Seconds()},
		{fmt: "%.0f delivered", val: float64(result.NumDelivered)},
		{fmt: "%.0f left", val: float64(result.NumBuffered)},
	}
	printBenchmarkMetrics(title, metrics)
}

func printBenchmarkMetrics(title string, metrics []benchmarkMetric) {
	sb := make([]byte, 0, 200)
	sb = append(sb, fmt.Sprintf("%s:", title)...)
	for _, m := range metrics {
		sb = append(sb, fmt.Sprintf("\t"+m.fmt, m.val)...)
	}
	fmt.Println(string(sb))
}

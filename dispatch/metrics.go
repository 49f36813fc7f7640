package dispatch

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

type engineMetrics struct {
	submittedTotal    promext.RWCounter
	unbufferedTotal   promext.RWCounter // submitted without buffering because store-and-forward is off
	attemptsTotal     promext.RWCounter
	failuresTotal     promext.RWCounter
	deliveredTotal    promext.RWCounter
	removeErrorsTotal promext.RWCounter
	sweepsTotal       promext.RWCounter
	resubmittedTotal  promext.RWCounter
	trimmedTotal      promext.RWCounter
	queuedAttempts    promext.RWGauge // scheduled and not yet finished
}

func newEngineMetrics(metricCreator promreg.MetricCreator, name string) engineMetrics {
	dispatchMetricCreator := metricCreator.AddOrGetPrefix("dispatch_", []string{"engine"}, []string{name})

	metrics := engineMetrics{
		submittedTotal:    dispatchMetricCreator.AddOrGetCounter("submitted_records_total", "Numbers of records submitted by producers", nil, nil),
		unbufferedTotal:   dispatchMetricCreator.AddOrGetCounter("unbuffered_records_total", "Numbers of records submitted without buffering", nil, nil),
		attemptsTotal:     dispatchMetricCreator.AddOrGetCounter("send_attempts_total", "Numbers of send attempts", nil, nil),
		failuresTotal:     dispatchMetricCreator.AddOrGetCounter("send_failures_total", "Numbers of failed send attempts", nil, nil),
		deliveredTotal:    dispatchMetricCreator.AddOrGetCounter("delivered_records_total", "Numbers of successful send attempts", nil, nil),
		removeErrorsTotal: dispatchMetricCreator.AddOrGetCounter("remove_errors_total", "Numbers of delivered records which could not be removed from buffer", nil, nil),
		sweepsTotal:       dispatchMetricCreator.AddOrGetCounter("sweeps_total", "Numbers of retry sweeps", nil, nil),
		resubmittedTotal:  dispatchMetricCreator.AddOrGetCounter("resubmitted_records_total", "Numbers of buffered records resubmitted by retry sweeps", nil, nil),
		trimmedTotal:      dispatchMetricCreator.AddOrGetCounter("trimmed_records_total", "Numbers of buffered records evicted by trimming", nil, nil),
		queuedAttempts:    dispatchMetricCreator.AddOrGetGauge("queued_attempts", "Numbers of scheduled and unfinished send attempts", nil, nil),
	}
	// reset in case metricCreator is reused by a new engine of the same name
	metrics.queuedAttempts.Set(0)
	return metrics
}

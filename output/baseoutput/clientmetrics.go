// Package baseoutput provides what's shared by all kinds of destination clients
package baseoutput

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/util"
)

// ClientMetrics tracks sends and errors of one destination client
type ClientMetrics struct {
	networkErrorsTotal    promext.RWCounter
	timeoutsTotal         promext.RWCounter
	nonNetworkErrorsTotal promext.RWCounter
	openedSessionsTotal   promext.RWCounter
	sendAttemptsTotal     promext.RWCounter
	sentRecordsTotal      promext.RWCounter
	sentBytesTotal        promext.RWCounter
}

// NewClientMetrics creates ClientMetrics labelled by kind and remote of destination
func NewClientMetrics(metricCreator promreg.MetricCreator, kind string, remote string) ClientMetrics {
	outputMetricCreator := metricCreator.AddOrGetPrefix("output_", []string{"kind", "remote"}, []string{kind, remote})

	return ClientMetrics{
		networkErrorsTotal:    outputMetricCreator.AddOrGetCounter("network_errors_total", "Numbers of network errors other than timeouts", nil, nil),
		timeoutsTotal:         outputMetricCreator.AddOrGetCounter("timeouts_total", "Numbers of sends aborted by network or send timeout", nil, nil),
		nonNetworkErrorsTotal: outputMetricCreator.AddOrGetCounter("nonnetwork_errors_total", "Numbers of non-network errors (auth, unexpected response, etc) from upstream", nil, nil),
		openedSessionsTotal:   outputMetricCreator.AddOrGetCounter("opened_sessions_total", "Numbers of opened sessions", nil, nil),
		sendAttemptsTotal:     outputMetricCreator.AddOrGetCounter("send_attempts_total", "Numbers of record sending attempts", nil, nil),
		sentRecordsTotal:      outputMetricCreator.AddOrGetCounter("sent_records_total", "Numbers of records accepted by upstream", nil, nil),
		sentBytesTotal:        outputMetricCreator.AddOrGetCounter("sent_record_bytes_total", "Total length in bytes of records accepted by upstream", nil, nil),
	}
}

// OnError counts the given error as timeout, network or non-network error
func (metrics *ClientMetrics) OnError(err error) {
	switch {
	case util.IsNetworkTimeout(err):
		metrics.timeoutsTotal.Inc()
	case util.IsNetworkError(err):
		metrics.networkErrorsTotal.Inc()
	default:
		metrics.nonNetworkErrorsTotal.Inc()
	}
}

// OnOpening counts a new connection or login
func (metrics *ClientMetrics) OnOpening() {
	metrics.openedSessionsTotal.Inc()
}

// OnSending counts an attempt to send the given record
func (metrics *ClientMetrics) OnSending() {
	metrics.sendAttemptsTotal.Inc()
}

// OnSent counts a record accepted by upstream
func (metrics *ClientMetrics) OnSent(payload string) {
	metrics.sentRecordsTotal.Inc()
	metrics.sentBytesTotal.Add(uint64(len(payload)))
}

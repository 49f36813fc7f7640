package main

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/cmd"
)

var version string

func main() {
	logger.WithFields(logger.Fields{
		"version":    version,
		"goVersion":  runtime.Version(),
		"GOMAXPROCS": runtime.GOMAXPROCS(0),
	}).Info("starting slog-relay")

	prometheus.MustRegister(newInfoMetric(version))

	cmd.Execute()
}

// newInfoMetric creates the constant info gauge labelled by versions
func newInfoMetric(version string) prometheus.Collector {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "slog_relay_info",
		Help: "slog-relay application information",
	}, []string{"version", "go_version"})
	gauge.WithLabelValues(version, runtime.Version()).Set(1)
	return gauge
}

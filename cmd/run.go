package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/run"
	"github.com/relex/slog-relay/util"
)

type runCommandState struct {
	Config      string `help:"Configuration file path"`
	MetricsAddr string `help:"The listener address to expose Prometheus metrics and debug information, empty to disable"`
	TestMode    bool   `help:"Use test mode config: short timeouts"`
}

var runCmd runCommandState = runCommandState{
	Config:      "config.yml",
	MetricsAddr: ":9336",
	TestMode:    false,
}

func (cmd *runCommandState) run(args []string) {
	if cmd.TestMode {
		defs.EnableTestMode()
	}

	mfactory := promreg.NewMetricFactory("slogrelay_", nil, nil)
	prometheus.MustRegister(mfactory)

	msrv := util.LaunchMetricsListener(cmd.MetricsAddr)

	run.Run(cmd.Config, mfactory)

	util.ShutdownMetricsListener(msrv, defs.DispatchShutdownTimeout)
}

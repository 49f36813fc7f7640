// Package cmd provides list of commands including self-benchmarks and buffer tools
package cmd

import (
	"github.com/relex/gotils/config"
)

func init() {
	config.AddParentCmdWithArgs("", "slog-relay buffers log records locally and forwards them in order to Splunk, fluentd or beats", &rootCmd, rootCmd.preRun, rootCmd.postRun)
	config.AddCmdWithArgs("benchmark <type> ...", "Run benchmark of specified type", &benchCmd, nil)
	config.AddCmdWithArgs("benchmark dispatch ...", "Benchmark dispatch engine with null output", nil, benchCmd.runBenchmarkDispatchCommand)
	config.AddCmdWithArgs("buffer <action> ...", "Inspect or maintain buffer files", &bufferCmd, nil)
	config.AddCmdWithArgs("buffer path", "Print the buffer path of application", nil, bufferCmd.runPathCommand)
	config.AddCmdWithArgs("buffer files", "List all buffer files under the root dir", nil, bufferCmd.runFilesCommand)
	config.AddCmdWithArgs("buffer list", "List records in the buffer of application", nil, bufferCmd.runListCommand)
	config.AddCmdWithArgs("buffer trim", "Trim the buffer of application to max records", nil, bufferCmd.runTrimCommand)
	config.AddCmdWithArgs("run ...", "Run relay", &runCmd, runCmd.run)
}

// Execute parses the command line and runs the specified command
func Execute() {
	// trigger init

	config.Execute()
}

package cmd

import (
	"github.com/relex/slog-relay/test"
)

type benchmarkCommandState struct {
	Input      string `help:"Input file path or wildcard pattern, one record per line"`
	Repeat     int    `help:"Repeat times"`
	BufferRoot string `help:"Root dir of benchmark buffer, empty for default location"`
	Volatile   bool   `help:"Use in-memory buffer"`
}

var benchCmd = benchmarkCommandState{
	Input:  "testdata/development/*-input.log",
	Repeat: 1000,
}

func (cmd *benchmarkCommandState) runBenchmarkDispatchCommand(_ []string) {
	test.RunBenchmarkDispatch(cmd.Input, cmd.Repeat, cmd.BufferRoot, cmd.Volatile)
}

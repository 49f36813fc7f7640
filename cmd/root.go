package cmd

import (
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/relex/gotils/logger"
)

type rootCommandState struct {
	CPUProfile string `name:"cpuprofile" help:"Write CPU profile to file."`
	MemProfile string `name:"memprofile" help:"Write memory profile to file."`
	Trace      string `help:"Write trace to file."`

	activeProfiles []*activeProfile
}

// activeProfile is a profile output opened before the command, finished after
type activeProfile struct {
	kind   string
	file   *os.File
	finish func(w io.Writer) error
}

var rootCmd rootCommandState

func (cmd *rootCommandState) preRun() {
	cmd.startProfile("CPU profile", cmd.CPUProfile, func(w io.Writer) error {
		return pprof.StartCPUProfile(w)
	}, func(_ io.Writer) error {
		pprof.StopCPUProfile()
		return nil
	})
	cmd.startProfile("memory profile", cmd.MemProfile, nil, func(w io.Writer) error {
		runtime.GC()
		return pprof.WriteHeapProfile(w)
	})
	cmd.startProfile("trace", cmd.Trace, trace.Start, func(_ io.Writer) error {
		trace.Stop()
		return nil
	})
}

func (cmd *rootCommandState) postRun() {
	for _, prof := range cmd.activeProfiles {
		if err := prof.finish(prof.file); err != nil {
			logger.Errorf("failed to write %s: %s", prof.kind, err.Error())
		}
		if err := prof.file.Close(); err != nil {
			logger.Errorf("failed to close %s: %s", prof.kind, err.Error())
		}
	}
	cmd.activeProfiles = nil
}

// startProfile creates the output file and starts profiling if path is not empty
//
// start may be nil for profiles which are only written at the end
func (cmd *rootCommandState) startProfile(kind string, path string, start func(w io.Writer) error, finish func(w io.Writer) error) {
	if path == "" {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		logger.Fatalf("failed to create %s %s: %s", kind, path, err.Error())
	}
	logger.Infof("start %s %s", kind, path)
	if start != nil {
		if err := start(f); err != nil {
			logger.Fatalf("failed to start %s: %s", kind, err.Error())
		}
	}
	cmd.activeProfiles = append(cmd.activeProfiles, &activeProfile{kind: kind, file: f, finish: finish})
}

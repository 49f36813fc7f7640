package hook

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogrusHook submits each logrus entry as one JSON record
type LogrusHook struct {
	submitter Submitter
	formatter logrus.Formatter
	levels    []logrus.Level
}

// NewLogrusHook creates a hook for entries of the given level or more severe
func NewLogrusHook(submitter Submitter, minLevel logrus.Level) *LogrusHook {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, lv := range logrus.AllLevels {
		if lv <= minLevel {
			levels = append(levels, lv)
		}
	}
	return &LogrusHook{
		submitter: submitter,
		formatter: &logrus.JSONFormatter{},
		levels:    levels,
	}
}

// Levels returns the levels of entries to be fired
func (hook *LogrusHook) Levels() []logrus.Level {
	return hook.levels
}

// Fire serializes and submits the entry. Only local buffering errors are returned.
func (hook *LogrusHook) Fire(entry *logrus.Entry) error {
	serialized, err := hook.formatter.Format(entry)
	if err != nil {
		return fmt.Errorf("failed to format log entry: %w", err)
	}
	return hook.submitter.Submit(string(bytes.TrimRight(serialized, "\n")))
}

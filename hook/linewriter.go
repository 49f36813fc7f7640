// Package hook connects logging frameworks and streams to the dispatch engine
package hook

import (
	"bytes"
	"sync"

	"github.com/relex/slog-relay/defs"
)

// Submitter accepts serialized records, e.g. dispatch.Engine
type Submitter interface {
	Submit(payload string) error
}

// LineWriter is an io.Writer which submits each line as one record
//
// Partial lines are kept until completed or flushed by Close. Empty lines are skipped. A line longer than the max
// length is split.
type LineWriter struct {
	submitter  Submitter
	maxLength  int
	mutex      sync.Mutex
	incomplete []byte
}

// NewLineWriter creates a LineWriter with lines of at most maxLength bytes, or defs.InputMaxLineBytes if zero
func NewLineWriter(submitter Submitter, maxLength int) *LineWriter {
	if maxLength <= 0 {
		maxLength = defs.InputMaxLineBytes
	}
	return &LineWriter{
		submitter: submitter,
		maxLength: maxLength,
	}
}

// Write submits all the complete lines in data. It stops at the first error from submitter.
func (writer *LineWriter) Write(data []byte) (int, error) {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()

	consumed := 0
	for consumed < len(data) {
		rest := data[consumed:]
		end := bytes.IndexByte(rest, '\n')
		if end < 0 {
			writer.incomplete = append(writer.incomplete, rest...)
			consumed = len(data)
			if err := writer.splitOversized(); err != nil {
				return consumed, err
			}
			break
		}
		writer.incomplete = append(writer.incomplete, rest[:end]...)
		consumed += end + 1
		if err := writer.splitOversized(); err != nil {
			return consumed, err
		}
		if err := writer.submitIncomplete(); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

// Close submits the last incomplete line if any
func (writer *LineWriter) Close() error {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	return writer.submitIncomplete()
}

func (writer *LineWriter) splitOversized() error {
	for len(writer.incomplete) > writer.maxLength {
		head := string(writer.incomplete[:writer.maxLength])
		writer.incomplete = append(writer.incomplete[:0], writer.incomplete[writer.maxLength:]...)
		if err := writer.submitter.Submit(head); err != nil {
			return err
		}
	}
	return nil
}

func (writer *LineWriter) submitIncomplete() error {
	line := bytes.TrimSuffix(writer.incomplete, []byte{'\r'})
	payload := string(line)
	writer.incomplete = writer.incomplete[:0]
	if len(payload) == 0 {
		return nil
	}
	return writer.submitter.Submit(payload)
}

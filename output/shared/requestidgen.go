// Package shared contains helpers for encoding requests to destinations
package shared

import (
	"fmt"
	"sync"
	"time"
)

// RequestIDGenerator generates unique IDs for requests which need to be acknowledged by upstream
type RequestIDGenerator struct {
	mutex     sync.Mutex
	epochNano int64
	sequence  int32
	suffix    string
}

// NewRequestIDGenerator creates a RequestIDGenerator with IDs ending in the given suffix
func NewRequestIDGenerator(suffix string) *RequestIDGenerator {
	return &RequestIDGenerator{
		suffix: suffix,
	}
}

// Generate returns the next ID, which consists of a nanosecond timestamp and a sequence number
//
// The sequence number is incremented by one every time until the time is changed
func (generator *RequestIDGenerator) Generate() string {
	generator.mutex.Lock()
	nextTimestamp := time.Now().UnixNano()
	if nextTimestamp > generator.epochNano {
		generator.epochNano = nextTimestamp
		generator.sequence = 0
	} else {
		nextTimestamp = generator.epochNano
		generator.sequence++
	}
	nextSequence := generator.sequence
	generator.mutex.Unlock()
	return fmt.Sprintf("%019d-%08d%s", nextTimestamp, nextSequence, generator.suffix)
}

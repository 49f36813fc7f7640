package base

import (
	"fmt"
	"time"
)

// BufferedRecord represents a log record which has been buffered but not yet confirmed as delivered
type BufferedRecord struct {
	ID         int64     // Unique ID assigned by the store, strictly increasing in order of insertion and never reused
	Payload    string    // Serialized record, opaque to the buffer and dispatch
	CreatedAt  time.Time // Time of insertion, non-decreasing in order of insertion
	RetryCount *int      // Reserved; never updated by current dispatch logic
}

func (record BufferedRecord) String() string {
	return fmt.Sprintf("id=%d len=%d created=%s", record.ID, len(record.Payload), record.CreatedAt.Format(time.RFC3339))
}

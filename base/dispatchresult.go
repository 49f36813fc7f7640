package base

// DispatchResult is the outcome of one send attempt of a record
type DispatchResult struct {
	BufferID  int64 // ID of the buffered record, or defs.NotBufferedID
	Succeeded bool
}

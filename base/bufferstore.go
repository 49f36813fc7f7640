package base

// BufferStore is an ordered queue of pending log records keyed by increasing IDs
//
// All methods are individually atomic and may be called concurrently, e.g. by producers and the retry sweep.
// Errors from any method indicate loss of durability and must be propagated to the caller.
type BufferStore interface {
	// Append records the given payload with a new ID and returns the ID
	//
	// It never returns a valid ID if the record could not be stored
	Append(payload string) (int64, error)

	// Remove deletes the record of given ID; removing an absent ID is a no-op
	Remove(id int64) error

	// ListAll returns a consistent snapshot of all records, ordered by ascending ID
	ListAll() ([]BufferedRecord, error)

	// Trim retains only the "maxRemaining" records with the highest IDs and returns the numbers of removed records
	//
	// Trim with maxRemaining >= current count is a no-op
	Trim(maxRemaining int) (int, error)

	// Count returns the numbers of currently stored records
	Count() (int, error)

	// Location returns the path of underlying storage, or empty string if the store is volatile
	Location() string

	// Close releases the underlying storage. The store must not be used afterwards.
	Close() error
}

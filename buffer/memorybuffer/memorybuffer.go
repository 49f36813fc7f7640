// Package memorybuffer provides a volatile BufferStore held in process memory
//
// It's used when no persistent location can be resolved. All records are lost on exit.
package memorybuffer

import (
	"sort"
	"sync"
	"time"

	"github.com/relex/slog-relay/base"
)

type store struct {
	mutex       sync.Mutex
	records     []base.BufferedRecord // ordered by ID
	lastID      int64
	lastCreated time.Time
}

// NewStore creates an empty volatile BufferStore
func NewStore() base.BufferStore {
	return &store{
		records: make([]base.BufferedRecord, 0, 64),
	}
}

func (st *store) Append(payload string) (int64, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	now := time.Now()
	if now.Before(st.lastCreated) {
		now = st.lastCreated
	}
	st.lastID++
	st.lastCreated = now
	st.records = append(st.records, base.BufferedRecord{
		ID:        st.lastID,
		Payload:   payload,
		CreatedAt: now,
	})
	return st.lastID, nil
}

func (st *store) Remove(id int64) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	i := sort.Search(len(st.records), func(i int) bool { return st.records[i].ID >= id })
	if i < len(st.records) && st.records[i].ID == id {
		st.records = append(st.records[:i], st.records[i+1:]...)
	}
	return nil
}

func (st *store) ListAll() ([]base.BufferedRecord, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	snapshot := make([]base.BufferedRecord, len(st.records))
	copy(snapshot, st.records)
	return snapshot, nil
}

func (st *store) Trim(maxRemaining int) (int, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if maxRemaining < 0 {
		maxRemaining = 0
	}
	numRemoved := len(st.records) - maxRemaining
	if numRemoved <= 0 {
		return 0, nil
	}
	remaining := make([]base.BufferedRecord, maxRemaining, maxRemaining+64)
	copy(remaining, st.records[numRemoved:])
	st.records = remaining
	return numRemoved, nil
}

func (st *store) Count() (int, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return len(st.records), nil
}

func (st *store) Location() string {
	return ""
}

func (st *store) Close() error {
	return nil
}

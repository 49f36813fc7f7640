// Package buffertest provides behavioral tests shared by all BufferStore implementations
package buffertest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/relex/slog-relay/base"
	"github.com/stretchr/testify/assert"
)

// NewStoreFunc creates a new and empty store for one test
type NewStoreFunc func(t *testing.T) base.BufferStore

// RunContractTests runs all the behavioral tests against stores created by newStore
func RunContractTests(t *testing.T, newStore NewStoreFunc) {
	t.Run("append and list", func(tt *testing.T) { testAppendAndList(tt, newStore(tt)) })
	t.Run("id is never reused", func(tt *testing.T) { testIDNotReused(tt, newStore(tt)) })
	t.Run("remove", func(tt *testing.T) { testRemove(tt, newStore(tt)) })
	t.Run("trim", func(tt *testing.T) { testTrim(tt, newStore(tt)) })
	t.Run("trim no-op", func(tt *testing.T) { testTrimNoop(tt, newStore(tt)) })
	t.Run("trim all", func(tt *testing.T) { testTrimAll(tt, newStore(tt)) })
	t.Run("special payloads", func(tt *testing.T) { testSpecialPayloads(tt, newStore(tt)) })
	t.Run("concurrent", func(tt *testing.T) { testConcurrent(tt, newStore(tt)) })
}

func testAppendAndList(t *testing.T, st base.BufferStore) {
	defer st.Close()

	id1, err1 := st.Append("data1")
	assert.Nil(t, err1)
	assert.Equal(t, int64(1), id1)

	id2, err2 := st.Append("data2")
	assert.Nil(t, err2)
	assert.Equal(t, int64(2), id2)

	records, lerr := st.ListAll()
	assert.Nil(t, lerr)
	if assert.Len(t, records, 2) {
		assert.Equal(t, int64(1), records[0].ID)
		assert.Equal(t, "data1", records[0].Payload)
		assert.Equal(t, int64(2), records[1].ID)
		assert.Equal(t, "data2", records[1].Payload)
		assert.False(t, records[0].CreatedAt.IsZero())
		assert.False(t, records[1].CreatedAt.Before(records[0].CreatedAt))
		assert.Nil(t, records[0].RetryCount)
	}

	count, cerr := st.Count()
	assert.Nil(t, cerr)
	assert.Equal(t, 2, count)
}

func testIDNotReused(t *testing.T, st base.BufferStore) {
	defer st.Close()

	id1, _ := st.Append("data1")
	assert.Equal(t, int64(1), id1)
	assert.Nil(t, st.Remove(id1))

	id2, err := st.Append("data2")
	assert.Nil(t, err)
	assert.Equal(t, int64(2), id2)
}

func testRemove(t *testing.T, st base.BufferStore) {
	defer st.Close()

	for i := 1; i <= 5; i++ {
		_, err := st.Append(fmt.Sprintf("data%d", i))
		assert.Nil(t, err)
	}
	assert.Nil(t, st.Remove(2))
	assert.Nil(t, st.Remove(4))
	assert.Nil(t, st.Remove(4))   // already removed
	assert.Nil(t, st.Remove(100)) // never existed

	assert.Equal(t, []int64{1, 3, 5}, listIDs(t, st))
}

func testTrim(t *testing.T, st base.BufferStore) {
	defer st.Close()

	for i := 1; i <= 10; i++ {
		_, err := st.Append(fmt.Sprintf("data%d", i))
		assert.Nil(t, err)
	}
	numRemoved, err := st.Trim(3)
	assert.Nil(t, err)
	assert.Equal(t, 7, numRemoved)
	assert.Equal(t, []int64{8, 9, 10}, listIDs(t, st))

	// IDs continue after trimming
	id, _ := st.Append("data11")
	assert.Equal(t, int64(11), id)
}

func testTrimNoop(t *testing.T, st base.BufferStore) {
	defer st.Close()

	for i := 1; i <= 4; i++ {
		_, err := st.Append(fmt.Sprintf("data%d", i))
		assert.Nil(t, err)
	}
	numRemoved, err := st.Trim(4)
	assert.Nil(t, err)
	assert.Zero(t, numRemoved)

	numRemoved, err = st.Trim(100)
	assert.Nil(t, err)
	assert.Zero(t, numRemoved)
	assert.Equal(t, []int64{1, 2, 3, 4}, listIDs(t, st))
}

func testTrimAll(t *testing.T, st base.BufferStore) {
	defer st.Close()

	for i := 1; i <= 4; i++ {
		_, err := st.Append(fmt.Sprintf("data%d", i))
		assert.Nil(t, err)
	}
	numRemoved, err := st.Trim(0)
	assert.Nil(t, err)
	assert.Equal(t, 4, numRemoved)
	assert.Empty(t, listIDs(t, st))

	_, err = st.Trim(-1)
	assert.Nil(t, err)
}

func testSpecialPayloads(t *testing.T, st base.BufferStore) {
	defer st.Close()

	payloads := []string{
		"",
		`{"message":"it's a \"quoted\" value"}`,
		"multi\nline\r\nrecord",
		"'; DROP TABLE log_buffer; --",
		"日本語のログ",
	}
	for _, p := range payloads {
		_, err := st.Append(p)
		assert.Nil(t, err)
	}
	records, err := st.ListAll()
	assert.Nil(t, err)
	if assert.Len(t, records, len(payloads)) {
		for i, p := range payloads {
			assert.Equal(t, p, records[i].Payload, i)
		}
	}
}

func testConcurrent(t *testing.T, st base.BufferStore) {
	defer st.Close()

	const numWriters = 8
	const numPerWriter = 50

	wg := sync.WaitGroup{}
	idSet := sync.Map{}
	for w := 0; w < numWriters; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < numPerWriter; i++ {
				id, err := st.Append(fmt.Sprintf("writer%d-%d", w, i))
				if !assert.Nil(t, err) {
					return
				}
				_, dup := idSet.LoadOrStore(id, true)
				assert.False(t, dup, id)
				if i%10 == 0 {
					_, lerr := st.ListAll()
					assert.Nil(t, lerr)
				}
			}
		}(w)
	}
	wg.Wait()

	ids := listIDs(t, st)
	assert.Len(t, ids, numWriters*numPerWriter)
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}

	_, err := st.Trim(10)
	assert.Nil(t, err)
	count, _ := st.Count()
	assert.Equal(t, 10, count)
}

func listIDs(t *testing.T, st base.BufferStore) []int64 {
	records, err := st.ListAll()
	assert.Nil(t, err)
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

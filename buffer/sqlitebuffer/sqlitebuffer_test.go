package sqlitebuffer

import (
	"path/filepath"
	"testing"

	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/buffer/buffertest"
	"github.com/stretchr/testify/assert"
)

func TestSqliteStore(t *testing.T) {
	buffertest.RunContractTests(t, func(tt *testing.T) base.BufferStore {
		st, err := Open(logger.Root(), filepath.Join(tt.TempDir(), "test.db"))
		if err != nil {
			tt.Fatal(err)
		}
		return st
	})
}

func TestSqliteStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dir", "persist.db")

	st1, err := Open(logger.Root(), path)
	assert.Nil(t, err)
	assert.Equal(t, path, st1.Location())
	for _, p := range []string{"a", "b", "c"} {
		_, aerr := st1.Append(p)
		assert.Nil(t, aerr)
	}
	assert.Nil(t, st1.Remove(3))
	before, _ := st1.ListAll()
	assert.Nil(t, st1.Close())

	st2, err := Open(logger.Root(), path)
	assert.Nil(t, err)
	defer st2.Close()

	after, lerr := st2.ListAll()
	assert.Nil(t, lerr)
	if assert.Len(t, after, 2) {
		assert.Equal(t, "a", after[0].Payload)
		assert.Equal(t, "b", after[1].Payload)
		assert.Equal(t, before[1].CreatedAt, after[1].CreatedAt)
	}

	// removed ID 3 is not reused after reopening
	id, aerr := st2.Append("d")
	assert.Nil(t, aerr)
	assert.Equal(t, int64(4), id)

	all, _ := st2.ListAll()
	assert.False(t, all[2].CreatedAt.Before(all[1].CreatedAt))
}

func TestSqliteStoreSharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")

	st1, err1 := Open(logger.Root(), path)
	assert.Nil(t, err1)
	defer st1.Close()
	st2, err2 := Open(logger.Root(), path)
	assert.Nil(t, err2)
	defer st2.Close()

	id1, _ := st1.Append("from1")
	id2, _ := st2.Append("from2")
	assert.Less(t, id1, id2)

	records, lerr := st1.ListAll()
	assert.Nil(t, lerr)
	assert.Len(t, records, 2)
}

func TestSqliteStoreBadPath(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(logger.Root(), dir) // a directory can't be opened as database
	assert.NotNil(t, err)
}

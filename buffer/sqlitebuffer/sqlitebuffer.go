// Package sqlitebuffer provides a persistent BufferStore in a single-file SQLite database
//
// Records survive restarts of the process. The same file may be opened by multiple processes of the same application,
// in which case SQLite file locks serialize access and each process may resend records appended by others.
package sqlitebuffer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/util"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS log_buffer (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	data TEXT NOT NULL,
	retries INT,
	created DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

type store struct {
	logger      logger.Logger
	path        string
	mutex       sync.Mutex
	conn        *sqlite.Conn
	lastCreated time.Time
}

// Open opens or creates the database at the given path, including missing parent directories
func Open(parentLogger logger.Logger, path string) (base.BufferStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("failed to open '%s': %w", path, err)
	}

	st := &store{
		logger: parentLogger.WithField(defs.LabelPath, path),
		path:   path,
		conn:   conn,
	}
	if err := st.prepare(); err != nil {
		conn.Close()
		return nil, err
	}
	st.logger.Debug("opened")
	return st, nil
}

func (st *store) prepare() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", defs.StoreBusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(st.conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := sqlitex.ExecuteScript(st.conn, schema, nil); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	err := sqlitex.Execute(st.conn, "SELECT MAX(created) FROM log_buffer", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if !stmt.ColumnIsNull(0) {
				st.lastCreated = parseCreated(stmt.ColumnText(0))
			}
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to query existing records: %w", err)
	}
	return nil
}

func (st *store) Append(payload string) (int64, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	now := time.Now().UTC()
	if now.Before(st.lastCreated) {
		now = st.lastCreated
	}

	err := sqlitex.Execute(st.conn, "INSERT INTO log_buffer (data, created) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{payload, util.FormatSQLTime(now)},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append: %w", err)
	}
	st.lastCreated = now
	return st.conn.LastInsertRowID(), nil
}

func (st *store) Remove(id int64) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	err := sqlitex.Execute(st.conn, "DELETE FROM log_buffer WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
	})
	if err != nil {
		return fmt.Errorf("failed to remove %d: %w", id, err)
	}
	return nil
}

func (st *store) ListAll() ([]base.BufferedRecord, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	records := make([]base.BufferedRecord, 0, 64)
	err := sqlitex.Execute(st.conn, "SELECT id, data, retries, created FROM log_buffer ORDER BY id", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record := base.BufferedRecord{
				ID:        stmt.ColumnInt64(0),
				Payload:   stmt.ColumnText(1),
				CreatedAt: parseCreated(stmt.ColumnText(3)),
			}
			if !stmt.ColumnIsNull(2) {
				retries := stmt.ColumnInt(2)
				record.RetryCount = &retries
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list: %w", err)
	}
	return records, nil
}

func (st *store) Trim(maxRemaining int) (numRemoved int, err error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	// negative LIMIT means unlimited in SQLite
	if maxRemaining < 0 {
		maxRemaining = 0
	}

	endTransaction, err := sqlitex.ImmediateTransaction(st.conn)
	if err != nil {
		return 0, fmt.Errorf("failed to begin trim: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(st.conn,
		"DELETE FROM log_buffer WHERE id NOT IN (SELECT id FROM log_buffer ORDER BY id DESC LIMIT ?)",
		&sqlitex.ExecOptions{
			Args: []any{maxRemaining},
		})
	if err != nil {
		return 0, fmt.Errorf("failed to trim: %w", err)
	}
	return st.conn.Changes(), nil
}

func (st *store) Count() (int, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	count := 0
	err := sqlitex.Execute(st.conn, "SELECT COUNT(*) FROM log_buffer", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return count, nil
}

func (st *store) Location() string {
	return st.path
}

func (st *store) Close() error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if err := st.conn.Close(); err != nil {
		return fmt.Errorf("failed to close '%s': %w", st.path, err)
	}
	st.logger.Debug("closed")
	return nil
}

func parseCreated(text string) time.Time {
	tm, err := util.ParseSQLTime(text)
	if err != nil {
		return time.Time{}
	}
	return tm
}

// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logstream

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists log entries in the same SQLite database family as
// the record store, keyed by execution ID with a monotonic per-execution
// sequence counter held in memory (invariant I4: sequence is assigned
// before the entry is persisted or broadcast).
type SQLiteStore struct {
	db *sql.DB

	mu        sync.Mutex
	sequences map[string]uint64
}

// OpenSQLiteStore opens (creating if absent) the log stream table at dsn.
// It shares no connection pool with the record store; each SQLite-backed
// collaborator owns its own *sql.DB, matching the one-writer-per-file
// discipline modernc.org/sqlite expects.
func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("logstream: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("logstream: connect %s: %w", dsn, err)
	}

	schema := `
		PRAGMA busy_timeout=5000;
		CREATE TABLE IF NOT EXISTS log_entries (
			execution_log_id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			row_key TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			source TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_log_entries_exec_row ON log_entries(execution_id, row_key);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("logstream: create schema: %w", err)
	}

	return &SQLiteStore{db: db, sequences: make(map[string]uint64)}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) nextSequence(executionID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.sequences[executionID] + 1
	s.sequences[executionID] = next
	return next
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, entry execution.LogEntry) error {
	if entry.Sequence == 0 {
		entry.Sequence = s.nextSequence(entry.ExecutionID)
	}
	if entry.ExecutionLogID == "" {
		entry.ExecutionLogID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO log_entries (execution_log_id, execution_id, row_key, timestamp, sequence, level, message, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ExecutionLogID, entry.ExecutionID, rowKey(entry.Timestamp, entry.Sequence),
		entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.Sequence, string(entry.Level), entry.Message, string(entry.Source),
	)
	if err != nil {
		return fmt.Errorf("logstream: append for %s: %w", entry.ExecutionID, err)
	}
	return nil
}

// SinceTimestamp implements Store.
func (s *SQLiteStore) SinceTimestamp(ctx context.Context, executionID string, since time.Time) ([]execution.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_log_id, execution_id, timestamp, sequence, level, message, source
		FROM log_entries WHERE execution_id = ? AND timestamp >= ? ORDER BY row_key ASC`,
		executionID, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("logstream: since_timestamp for %s: %w", executionID, err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, executionID string, n int) ([]execution.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_log_id, execution_id, timestamp, sequence, level, message, source
		FROM log_entries WHERE execution_id = ? ORDER BY row_key DESC LIMIT ?`, executionID, n)
	if err != nil {
		return nil, fmt.Errorf("logstream: latest for %s: %w", executionID, err)
	}
	defer rows.Close()

	entries, err := scanLogEntries(rows)
	if err != nil {
		return nil, err
	}
	// Latest returns chronological order (oldest of the n first); the query
	// above fetched newest-first to bound the scan, so reverse in place.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, executionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_entries WHERE execution_id = ?`, executionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("logstream: count for %s: %w", executionID, err)
	}
	return count, nil
}

func scanLogEntries(rows *sql.Rows) ([]execution.LogEntry, error) {
	var entries []execution.LogEntry
	for rows.Next() {
		var e execution.LogEntry
		var ts string
		if err := rows.Scan(&e.ExecutionLogID, &e.ExecutionID, &ts, &e.Sequence, &e.Level, &e.Message, &e.Source); err != nil {
			return nil, fmt.Errorf("logstream: scan entry: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("logstream: parse timestamp: %w", err)
		}
		e.Timestamp = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

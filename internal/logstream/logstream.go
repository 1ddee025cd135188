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

// Package logstream is the append-only per-execution log store. Every
// write is synchronous from the user-code logging shim; row keys
// are "{iso_ts}-{sequence:04d}" so chronological order and per-millisecond
// stability both come for free from a lexicographic scan. The core never
// mutates or deletes a log entry once written.
package logstream

import (
	"context"
	"fmt"
	"time"

	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

// Store is the log stream contract.
type Store interface {
	// Append writes one log entry. Row key construction and sequencing
	// happen inside Append so callers never race each other's sequence
	// numbers for the same execution.
	Append(ctx context.Context, entry execution.LogEntry) error

	// SinceTimestamp returns every entry for executionID recorded at or
	// after since, in chronological order — the incremental-tail read.
	SinceTimestamp(ctx context.Context, executionID string, since time.Time) ([]execution.LogEntry, error)

	// Latest returns the most recent n entries for executionID in
	// chronological order (oldest of the n first).
	Latest(ctx context.Context, executionID string, n int) ([]execution.LogEntry, error)

	// Count returns the total number of entries recorded for executionID.
	Count(ctx context.Context, executionID string) (int, error)
}

func rowKey(ts time.Time, sequence uint64) string {
	return fmt.Sprintf("%s-%04d", ts.UTC().Format(time.RFC3339Nano), sequence)
}

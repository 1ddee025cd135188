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

package record

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"
	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), Config{DSN: "file:" + dbPath, WAL: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestExecution(id string) *execution.Execution {
	return &execution.Execution{
		ExecutionID:  id,
		Scope:        execution.GlobalScope,
		WorkflowName: "deploy-service",
		Caller:       execution.Caller{UserID: "user-1", Email: "user1@example.com", DisplayName: "User One"},
		Parameters:   map[string]any{"env": "staging"},
		Status:       execution.StatusPending,
	}
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newTestExecution("exec-1")
	if err := s.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.ETag == "" {
		t.Fatal("expected Create to populate an ETag")
	}

	got, err := s.Get(ctx, "exec-1", execution.GlobalScope)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.WorkflowName != "deploy-service" {
		t.Errorf("workflow_name = %q, want deploy-service", got.WorkflowName)
	}
	if got.Parameters["env"] != "staging" {
		t.Errorf("parameters[env] = %v, want staging", got.Parameters["env"])
	}
	if got.Status != execution.StatusPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "missing", execution.GlobalScope)
	var nfe *bifrosterrors.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSQLiteStore_Update_TransitionsAndIndexes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newTestExecution("exec-2")
	if err := s.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.Update(ctx, "exec-2", execution.GlobalScope, func(e *execution.Execution) error {
		e.Status = execution.StatusRunning
		return nil
	})
	if err != nil {
		t.Fatalf("update to RUNNING: %v", err)
	}

	now := time.Now().UTC()
	err = s.Update(ctx, "exec-2", execution.GlobalScope, func(e *execution.Execution) error {
		e.Status = execution.StatusSuccess
		e.CompletedAt = &now
		e.DurationMs = 1234
		e.Result = map[string]any{"ok": true}
		return nil
	})
	if err != nil {
		t.Fatalf("update to SUCCESS: %v", err)
	}

	got, err := s.Get(ctx, "exec-2", execution.GlobalScope)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != execution.StatusSuccess {
		t.Errorf("status = %s, want SUCCESS", got.Status)
	}
	if got.DurationMs != 1234 {
		t.Errorf("duration_ms = %d, want 1234", got.DurationMs)
	}

	// A terminal status must not leave a row in the status index.
	stuck, err := s.GetStuck(ctx, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("get stuck: %v", err)
	}
	for _, se := range stuck {
		if se.ExecutionID == "exec-2" {
			t.Fatalf("terminal execution exec-2 still present in status index")
		}
	}
}

// TestSQLiteStore_UpdateCompareAndSwap_RejectsStaleETag exercises the
// compare-and-swap primitive Update relies on directly: a write carrying an
// etag that no longer matches the stored row affects zero rows, which is
// exactly what turns into a ConcurrencyError in Update.
func TestSQLiteStore_UpdateCompareAndSwap_RejectsStaleETag(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newTestExecution("exec-3")
	if err := s.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Update(ctx, "exec-3", execution.GlobalScope, func(e *execution.Execution) error {
		e.Status = execution.StatusRunning
		return nil
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE executions SET status = ? WHERE execution_id = ? AND etag = ?`,
		string(execution.StatusFailed), "exec-3", "stale-etag-that-will-never-match")
	if err != nil {
		t.Fatalf("forced stale update: %v", err)
	}
	rows, _ := res.RowsAffected()
	if rows != 0 {
		t.Fatalf("expected the stale etag write to affect 0 rows, affected %d", rows)
	}
}

// TestSQLiteStore_Update_ConcurrencyError replays a write carrying the etag
// from Create after the record has already advanced, against the same
// compare-and-swap statement Update issues, and checks that it affects zero
// rows — the condition Update reports as a ConcurrencyError. It does not
// call Update itself.
func TestSQLiteStore_Update_ConcurrencyError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newTestExecution("exec-4")
	if err := s.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Advance the record once so its etag changes underneath any reader
	// still holding the etag from Create.
	if err := s.Update(ctx, "exec-4", execution.GlobalScope, func(e *execution.Execution) error {
		e.Status = execution.StatusRunning
		return nil
	}); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// A second writer that read the record before the advance above would
	// hold e.ETag from Create. Replay that write directly against the
	// compare-and-swap statement to confirm it is rejected.
	res, err := s.db.ExecContext(ctx, `UPDATE executions SET status = ? WHERE execution_id = ? AND etag = ?`,
		string(execution.StatusFailed), "exec-4", e.ETag)
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	rows, _ := res.RowsAffected()
	if rows != 0 {
		t.Fatal("stale writer's etag should no longer match after the concurrent advance")
	}
}

func TestSQLiteStore_ListByUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := newTestExecution("exec-list-" + string(rune('a'+i)))
		if err := s.Create(ctx, e); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	page, err := s.ListByUser(ctx, "user-1", Page{Limit: 2})
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items on first page, got %d", len(page.Items))
	}
	if page.NextToken == "" {
		t.Fatal("expected a continuation token for a partial first page")
	}

	rest, err := s.ListByUser(ctx, "user-1", Page{Limit: 2, Token: page.NextToken})
	if err != nil {
		t.Fatalf("list by user (page 2): %v", err)
	}
	if len(rest.Items) != 1 {
		t.Fatalf("expected 1 remaining item, got %d", len(rest.Items))
	}
	if rest.NextToken != "" {
		t.Fatal("expected no continuation token on the last page")
	}
}

func TestSQLiteStore_GetStuck(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	e := newTestExecution("exec-stuck")
	e.StartedAt = &old
	if err := s.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	stuck, err := s.GetStuck(ctx, 10*time.Minute, 30*time.Minute)
	if err != nil {
		t.Fatalf("get stuck: %v", err)
	}
	found := false
	for _, se := range stuck {
		if se.ExecutionID == "exec-stuck" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected exec-stuck to be reported as stuck")
	}
}

func TestSQLiteStore_GetStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newTestExecution("exec-status")
	if err := s.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	status, err := s.GetStatus(ctx, "exec-status", execution.GlobalScope)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status != execution.StatusPending {
		t.Errorf("status = %s, want PENDING", status)
	}
}

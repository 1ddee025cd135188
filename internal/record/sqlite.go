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
	"database/sql"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"
	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	_ Core        = (*SQLiteStore)(nil)
	_ Lister      = (*SQLiteStore)(nil)
	_ StuckFinder = (*SQLiteStore)(nil)
	_ Store       = (*SQLiteStore)(nil)
)

// Config configures a SQLite-backed Store.
type Config struct {
	// DSN is the modernc.org/sqlite data source, e.g. "file:bifrost.db".
	DSN string
	// WAL enables write-ahead logging for concurrent reads.
	WAL bool
}

// SQLiteStore is the single-node Store backend: the primary executions
// table plus the four derived index tables, all in one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates the executions database, configures pragmas, and runs
// pending migrations.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("record: open %s: %w", cfg.DSN, err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("record: connect %s: %w", cfg.DSN, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) configurePragmas(ctx context.Context, wal bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if wal {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("record: %s: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	goose.SetBaseFS(migrationFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("record: set migration dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("record: run migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create implements Core.
func (s *SQLiteStore) Create(ctx context.Context, e *execution.Execution) error {
	now := time.Now().UTC()
	if e.StartedAt == nil {
		e.StartedAt = &now
	}
	e.ETag = uuid.NewString()

	rowKey := executionRowKey(*e.StartedAt, e.ExecutionID)
	paramsJSON, err := json.Marshal(e.Parameters)
	if err != nil {
		return fmt.Errorf("record: marshal parameters: %w", err)
	}
	resultJSON, err := marshalResult(e.Result)
	if err != nil {
		return fmt.Errorf("record: marshal result: %w", err)
	}
	metricsJSON, err := json.Marshal(e.ResourceMetrics)
	if err != nil {
		return fmt.Errorf("record: marshal resource metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (
			row_key, execution_id, scope, workflow_name, inline_code,
			caller_user_id, caller_email, caller_display_name,
			parameters, form_id, status, started_at, completed_at, duration_ms,
			result, result_in_object_store, result_type, error_message, error_type,
			resource_metrics, etag, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rowKey, e.ExecutionID, e.Scope, nullString(e.WorkflowName), nullBytes(e.InlineCode),
		e.Caller.UserID, nullString(e.Caller.Email), nullString(e.Caller.DisplayName),
		string(paramsJSON), nullString(e.FormID), string(e.Status),
		formatTimePtr(e.StartedAt), formatTimePtr(e.CompletedAt), e.DurationMs,
		string(resultJSON), boolToInt(e.ResultInObjectStore), nullString(e.ResultType),
		nullString(e.ErrorMessage), nullString(e.ErrorType),
		string(metricsJSON), e.ETag, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record: create execution %s: %w", e.ExecutionID, err)
	}

	// Index writes are best-effort: the error from writeIndexes is
	// discarded, not logged. Get and GetStatus read the primary table and
	// never need an index row; the index-backed list reads simply omit an
	// execution whose index row is missing. Create only fails the caller if
	// the E write itself failed.
	proj := execution.ProjectionOf(e)
	_ = s.writeIndexes(ctx, e.ExecutionID, e.Scope, e.Caller.UserID, e.WorkflowName, e.FormID, proj, string(e.Status))
	return nil
}

// writeIndexes writes Iu, Iw, Is, and (if formID is set) If, overwriting any
// existing rows for this execution. Each statement is independent; the
// first error is returned but earlier writes in the batch are not rolled
// back (invariant: "best-effort eventual consistency under normal
// operation").
func (s *SQLiteStore) writeIndexes(ctx context.Context, executionID, scope, userID, workflowName, formID string, proj execution.DisplayProjection, status string) error {
	startedAt := formatTimePtr(proj.StartedAt)
	completedAt := formatTimePtr(proj.CompletedAt)

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO idx_user (row_key, user_id, execution_id, workflow_name, status, started_at, completed_at, duration_ms, error_message, executed_by_name, executed_by_email)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (row_key) DO UPDATE SET
			workflow_name=excluded.workflow_name, status=excluded.status, started_at=excluded.started_at,
			completed_at=excluded.completed_at, duration_ms=excluded.duration_ms, error_message=excluded.error_message,
			executed_by_name=excluded.executed_by_name, executed_by_email=excluded.executed_by_email`,
		userIndexRowKey(userID, executionID), userID, executionID, nullString(workflowName), status,
		startedAt, completedAt, proj.DurationMs, nullString(proj.ErrorMessage), nullString(proj.ExecutedByName), nullString(proj.ExecutedByEmail),
	); err != nil {
		return fmt.Errorf("record: write user index: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO idx_workflow (row_key, workflow_name, scope, execution_id, status, started_at, completed_at, duration_ms, error_message, executed_by_name, executed_by_email)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (row_key) DO UPDATE SET
			status=excluded.status, started_at=excluded.started_at, completed_at=excluded.completed_at,
			duration_ms=excluded.duration_ms, error_message=excluded.error_message,
			executed_by_name=excluded.executed_by_name, executed_by_email=excluded.executed_by_email`,
		workflowIndexRowKey(workflowName, scope, executionID), nullString(workflowName), scope, executionID, status,
		startedAt, completedAt, proj.DurationMs, nullString(proj.ErrorMessage), nullString(proj.ExecutedByName), nullString(proj.ExecutedByEmail),
	); err != nil {
		return fmt.Errorf("record: write workflow index: %w", err)
	}

	if formID != "" {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO idx_form (row_key, form_id, execution_id, workflow_name, status, started_at, completed_at, duration_ms, error_message, executed_by_name, executed_by_email)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (row_key) DO UPDATE SET
				status=excluded.status, started_at=excluded.started_at, completed_at=excluded.completed_at,
				duration_ms=excluded.duration_ms, error_message=excluded.error_message,
				executed_by_name=excluded.executed_by_name, executed_by_email=excluded.executed_by_email`,
			formIndexRowKey(formID, executionID), formID, executionID, nullString(workflowName), status,
			startedAt, completedAt, proj.DurationMs, nullString(proj.ErrorMessage), nullString(proj.ExecutedByName), nullString(proj.ExecutedByEmail),
		); err != nil {
			return fmt.Errorf("record: write form index: %w", err)
		}
	}

	return s.syncStatusIndex(ctx, executionID, scope, "", status, proj.StartedAt)
}

// syncStatusIndex deletes the old status index row (if oldStatus was active)
// and inserts the new one (if newStatus is active), per invariant I2.
func (s *SQLiteStore) syncStatusIndex(ctx context.Context, executionID, scope, oldStatus, newStatus string, startedAt *time.Time) error {
	if execution.Status(oldStatus).IsActive() {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM idx_status WHERE row_key = ?`, statusIndexRowKey(oldStatus, executionID)); err != nil {
			return fmt.Errorf("record: delete status index: %w", err)
		}
	}
	if execution.Status(newStatus).IsActive() {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO idx_status (row_key, status, execution_id, scope, started_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (row_key) DO UPDATE SET started_at = excluded.started_at`,
			statusIndexRowKey(newStatus, executionID), newStatus, executionID, scope, formatTimePtr(startedAt),
		); err != nil {
			return fmt.Errorf("record: insert status index: %w", err)
		}
	}
	return nil
}

// Update implements Core: re-read, mutate, write back under the etag read
// in this call, rewriting the index rows with refreshed display fields.
func (s *SQLiteStore) Update(ctx context.Context, executionID, scope string, mutator func(*execution.Execution) error) error {
	e, err := s.Get(ctx, executionID, scope)
	if err != nil {
		return err
	}
	oldStatus := string(e.Status)
	expectedETag := e.ETag

	if err := mutator(e); err != nil {
		return fmt.Errorf("record: mutate execution %s: %w", executionID, err)
	}

	now := time.Now().UTC()
	e.ETag = uuid.NewString()
	paramsJSON, err := json.Marshal(e.Parameters)
	if err != nil {
		return fmt.Errorf("record: marshal parameters: %w", err)
	}
	resultJSON, err := marshalResult(e.Result)
	if err != nil {
		return fmt.Errorf("record: marshal result: %w", err)
	}
	metricsJSON, err := json.Marshal(e.ResourceMetrics)
	if err != nil {
		return fmt.Errorf("record: marshal resource metrics: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE executions SET
			workflow_name=?, status=?, started_at=?, completed_at=?, duration_ms=?,
			parameters=?, result=?, result_in_object_store=?, result_type=?,
			error_message=?, error_type=?, resource_metrics=?, etag=?, updated_at=?
		WHERE execution_id = ? AND scope = ? AND etag = ?`,
		nullString(e.WorkflowName), string(e.Status), formatTimePtr(e.StartedAt), formatTimePtr(e.CompletedAt), e.DurationMs,
		string(paramsJSON), string(resultJSON), boolToInt(e.ResultInObjectStore), nullString(e.ResultType),
		nullString(e.ErrorMessage), nullString(e.ErrorType), string(metricsJSON), e.ETag, now.Format(time.RFC3339Nano),
		executionID, scope, expectedETag,
	)
	if err != nil {
		return fmt.Errorf("record: update execution %s: %w", executionID, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return &bifrosterrors.ConcurrencyError{ID: executionID, Expected: expectedETag, Actual: "unknown"}
	}

	proj := execution.ProjectionOf(e)
	if err := s.writeIndexesOnUpdate(ctx, executionID, scope, e.Caller.UserID, e.WorkflowName, e.FormID, proj, oldStatus, string(e.Status)); err != nil {
		return nil // index drift is tolerated; the primary write already succeeded
	}
	return nil
}

func (s *SQLiteStore) writeIndexesOnUpdate(ctx context.Context, executionID, scope, userID, workflowName, formID string, proj execution.DisplayProjection, oldStatus, newStatus string) error {
	if err := s.refreshIndexRow(ctx, "idx_user", userIndexRowKey(userID, executionID), proj); err != nil {
		return err
	}
	if err := s.refreshIndexRow(ctx, "idx_workflow", workflowIndexRowKey(workflowName, scope, executionID), proj); err != nil {
		return err
	}
	if formID != "" {
		if err := s.refreshIndexRow(ctx, "idx_form", formIndexRowKey(formID, executionID), proj); err != nil {
			return err
		}
	}
	return s.syncStatusIndex(ctx, executionID, scope, oldStatus, newStatus, proj.StartedAt)
}

func (s *SQLiteStore) refreshIndexRow(ctx context.Context, table, rowKey string, proj execution.DisplayProjection) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status=?, started_at=?, completed_at=?, duration_ms=?, error_message=?, executed_by_name=?, executed_by_email=?
		WHERE row_key = ?`, table),
		string(proj.Status), formatTimePtr(proj.StartedAt), formatTimePtr(proj.CompletedAt), proj.DurationMs,
		nullString(proj.ErrorMessage), nullString(proj.ExecutedByName), nullString(proj.ExecutedByEmail), rowKey,
	)
	if err != nil {
		return fmt.Errorf("record: refresh %s: %w", table, err)
	}
	return nil
}

// Get implements Core.
func (s *SQLiteStore) Get(ctx context.Context, executionID, scope string) (*execution.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, scope, workflow_name, inline_code, caller_user_id, caller_email, caller_display_name,
			parameters, form_id, status, started_at, completed_at, duration_ms, result, result_in_object_store,
			result_type, error_message, error_type, resource_metrics, etag
		FROM executions WHERE execution_id = ? AND scope = ?`, executionID, scope)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, &bifrosterrors.NotFoundError{Resource: "execution", ID: executionID}
	}
	if err != nil {
		return nil, fmt.Errorf("record: get execution %s: %w", executionID, err)
	}
	return e, nil
}

// GetStatus implements Core.
func (s *SQLiteStore) GetStatus(ctx context.Context, executionID, scope string) (execution.Status, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM executions WHERE execution_id = ? AND scope = ?`, executionID, scope).Scan(&status)
	if err == sql.ErrNoRows {
		return "", &bifrosterrors.NotFoundError{Resource: "execution", ID: executionID}
	}
	if err != nil {
		return "", fmt.Errorf("record: get status %s: %w", executionID, err)
	}
	return execution.Status(status), nil
}

// ListByUser implements Lister.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, page Page) (PageResult, error) {
	return s.listIndex(ctx, "idx_user", "user_id = ?", userID, page)
}

// ListByWorkflow implements Lister.
func (s *SQLiteStore) ListByWorkflow(ctx context.Context, workflowName, scope string, page Page) (PageResult, error) {
	return s.queryIndex(ctx, "idx_workflow", "workflow_name = ? AND scope = ?", []any{workflowName, scope}, page)
}

// ListByForm implements Lister.
func (s *SQLiteStore) ListByForm(ctx context.Context, formID string, page Page) (PageResult, error) {
	return s.listIndex(ctx, "idx_form", "form_id = ?", formID, page)
}

// ListByScope implements Lister. The primary table's partition key is
// scope, so this reads executions directly (newest first by row_key)
// instead of going through an index.
func (s *SQLiteStore) ListByScope(ctx context.Context, scope string, page Page) (PageResult, error) {
	limit, offset := pageWindow(page)
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, workflow_name, status, started_at, completed_at, duration_ms, error_message, caller_display_name, caller_email
		FROM executions WHERE scope = ? ORDER BY row_key ASC LIMIT ? OFFSET ?`, scope, limit+1, offset)
	if err != nil {
		return PageResult{}, fmt.Errorf("record: list by scope: %w", err)
	}
	defer rows.Close()

	var items []execution.DisplayProjection
	for rows.Next() {
		var p execution.DisplayProjection
		var workflowName, errorMessage, executedByName, executedByEmail, startedAt, completedAt sql.NullString
		if err := rows.Scan(&p.ExecutionID, &workflowName, &p.Status, &startedAt, &completedAt, &p.DurationMs, &errorMessage, &executedByName, &executedByEmail); err != nil {
			return PageResult{}, fmt.Errorf("record: scan scope row: %w", err)
		}
		p.WorkflowName = workflowName.String
		p.ErrorMessage = errorMessage.String
		p.ExecutedByName = executedByName.String
		p.ExecutedByEmail = executedByEmail.String
		p.StartedAt = parseTimePtr(startedAt)
		p.CompletedAt = parseTimePtr(completedAt)
		items = append(items, p)
	}
	return finishPage(items, limit, offset), nil
}

func (s *SQLiteStore) listIndex(ctx context.Context, table, where, arg string, page Page) (PageResult, error) {
	return s.queryIndex(ctx, table, where, []any{arg}, page)
}

func (s *SQLiteStore) queryIndex(ctx context.Context, table, where string, args []any, page Page) (PageResult, error) {
	limit, offset := pageWindow(page)
	args = append(args, limit+1, offset)
	query := fmt.Sprintf(`
		SELECT execution_id, workflow_name, status, started_at, completed_at, duration_ms, error_message, executed_by_name, executed_by_email
		FROM %s WHERE %s ORDER BY started_at DESC LIMIT ? OFFSET ?`, table, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return PageResult{}, fmt.Errorf("record: list %s: %w", table, err)
	}
	defer rows.Close()

	var items []execution.DisplayProjection
	for rows.Next() {
		var p execution.DisplayProjection
		var workflowName, errorMessage, executedByName, executedByEmail, startedAt, completedAt sql.NullString
		if err := rows.Scan(&p.ExecutionID, &workflowName, &p.Status, &startedAt, &completedAt, &p.DurationMs, &errorMessage, &executedByName, &executedByEmail); err != nil {
			return PageResult{}, fmt.Errorf("record: scan %s row: %w", table, err)
		}
		p.WorkflowName = workflowName.String
		p.ErrorMessage = errorMessage.String
		p.ExecutedByName = executedByName.String
		p.ExecutedByEmail = executedByEmail.String
		p.StartedAt = parseTimePtr(startedAt)
		p.CompletedAt = parseTimePtr(completedAt)
		items = append(items, p)
	}
	return finishPage(items, limit, offset), nil
}

// GetStuck implements StuckFinder: scans idx_status for PENDING and RUNNING
// rows older than their respective timeout, never touching the primary
// table.
func (s *SQLiteStore) GetStuck(ctx context.Context, pendingTimeout, runningTimeout time.Duration) ([]StuckExecution, error) {
	var out []StuckExecution
	sweeps := []struct {
		status  execution.Status
		timeout time.Duration
	}{
		{execution.StatusPending, pendingTimeout},
		{execution.StatusRunning, runningTimeout},
	}
	cutoffBase := time.Now().UTC()
	for _, sweep := range sweeps {
		cutoff := cutoffBase.Add(-sweep.timeout).Format(time.RFC3339Nano)
		rows, err := s.db.QueryContext(ctx, `
			SELECT execution_id, scope, started_at FROM idx_status
			WHERE status = ? AND started_at < ?`, string(sweep.status), cutoff)
		if err != nil {
			return nil, fmt.Errorf("record: get stuck (%s): %w", sweep.status, err)
		}
		for rows.Next() {
			var id, scope, startedAt string
			if err := rows.Scan(&id, &scope, &startedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("record: scan stuck row: %w", err)
			}
			t, _ := time.Parse(time.RFC3339Nano, startedAt)
			out = append(out, StuckExecution{ExecutionID: id, Scope: scope, Status: sweep.status, StartedAt: t})
		}
		rows.Close()
	}
	return out, nil
}

// scanExecution reads one row into an *execution.Execution. row must expose
// the column order used by Get.
func scanExecution(row *sql.Row) (*execution.Execution, error) {
	var e execution.Execution
	var workflowName, callerEmail, callerDisplayName, formID, startedAt, completedAt, resultType, errorMessage, errorType sql.NullString
	var inlineCode []byte
	var paramsJSON, resultJSON, metricsJSON sql.NullString
	var resultInObjectStore int

	err := row.Scan(
		&e.ExecutionID, &e.Scope, &workflowName, &inlineCode, &e.Caller.UserID, &callerEmail, &callerDisplayName,
		&paramsJSON, &formID, &e.Status, &startedAt, &completedAt, &e.DurationMs, &resultJSON, &resultInObjectStore,
		&resultType, &errorMessage, &errorType, &metricsJSON, &e.ETag,
	)
	if err != nil {
		return nil, err
	}

	e.WorkflowName = workflowName.String
	e.Caller.Email = callerEmail.String
	e.Caller.DisplayName = callerDisplayName.String
	e.FormID = formID.String
	e.ResultType = resultType.String
	e.ErrorMessage = errorMessage.String
	e.ErrorType = errorType.String
	e.InlineCode = inlineCode
	e.ResultInObjectStore = resultInObjectStore != 0
	e.StartedAt = parseTimePtr(startedAt)
	e.CompletedAt = parseTimePtr(completedAt)

	if paramsJSON.Valid && paramsJSON.String != "" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &e.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" && resultJSON.String != "null" {
		if err := json.Unmarshal([]byte(resultJSON.String), &e.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if metricsJSON.Valid && metricsJSON.String != "" && metricsJSON.String != "null" {
		var m execution.ResourceMetrics
		if err := json.Unmarshal([]byte(metricsJSON.String), &m); err == nil {
			e.ResourceMetrics = &m
		}
	}

	return &e, nil
}

func marshalResult(result any) ([]byte, error) {
	if result == nil {
		return []byte("null"), nil
	}
	return json.Marshal(result)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// pageWindow decodes an opaque page token (a base64'd row offset) into a
// limit/offset pair for the underlying SQL query.
func pageWindow(page Page) (limit, offset int) {
	limit = page.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if page.Token != "" {
		if raw, err := base64.RawURLEncoding.DecodeString(page.Token); err == nil {
			if n, err := strconv.Atoi(string(raw)); err == nil && n > 0 {
				offset = n
			}
		}
	}
	return limit, offset
}

// finishPage trims the lookahead row (fetched as limit+1) and, if present,
// encodes the next offset as the continuation token.
func finishPage(items []execution.DisplayProjection, limit, offset int) PageResult {
	result := PageResult{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		result.NextToken = base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset + limit)))
	}
	return result
}

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

// Package execution defines the shared domain types for the workflow
// execution engine: the Execution record, its derived index projections,
// log entries, callers, and resource metrics. These types are imported by
// every other package in the module (record store, queue consumer, process
// pool, worker runtime, broadcaster) so they live at the top of the import
// graph with no dependencies of their own beyond the standard library.
package execution

import "time"

// GlobalScope is the literal scope used for executions not owned by a
// specific organization.
const GlobalScope = "GLOBAL"

// Caller identifies the user on whose behalf an execution runs.
type Caller struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// ResourceMetrics captures the worker process's resource usage for one
// execution, reported even on failure.
type ResourceMetrics struct {
	PeakRSSBytes    int64   `json:"peak_rss_bytes"`
	CPUUserSeconds  float64 `json:"cpu_user_seconds"`
	CPUSystemSeconds float64 `json:"cpu_system_seconds"`
}

// CPUTotalSeconds is a convenience accessor; not stored separately.
func (m ResourceMetrics) CPUTotalSeconds() float64 {
	return m.CPUUserSeconds + m.CPUSystemSeconds
}

// Execution is the primary record (E) described in the data model. Large
// fields (logs, captured variables, state snapshots, oversized results) are
// never populated inline when ResultInObjectStore is true — see invariant
// I3 and the objectstore package.
type Execution struct {
	ExecutionID  string `json:"execution_id"`
	Scope        string `json:"scope"`
	WorkflowName string `json:"workflow_name,omitempty"`
	InlineCode   []byte `json:"inline_code,omitempty"`

	Caller     Caller         `json:"caller"`
	Parameters map[string]any `json:"parameters,omitempty"`
	FormID     string         `json:"form_id,omitempty"`

	Status Status `json:"status"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`

	// Result holds a JSON value, an HTML string, or plain text. Exactly one
	// of Result/ResultInObjectStore is authoritative for the result; when
	// ResultInObjectStore is true, Result is nil and the object store holds
	// "{id}/result.{json|html|txt}".
	Result              any    `json:"result,omitempty"`
	ResultInObjectStore bool   `json:"result_in_object_store"`
	ResultType          string `json:"result_type,omitempty"` // json|html|txt

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`

	ResourceMetrics *ResourceMetrics `json:"resource_metrics,omitempty"`

	// ETag supports optimistic concurrency on Update (see ConcurrencyError).
	ETag string `json:"etag,omitempty"`
}

// IsTerminal reports whether Status is one of the immutable terminal states
// (invariant I5).
func (e *Execution) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// DisplayProjection is the denormalized subset of an Execution carried by
// every index row (Iu, Iw, If, Is) so list views never join back to the
// primary record.
type DisplayProjection struct {
	ExecutionID     string     `json:"execution_id"`
	WorkflowName    string     `json:"workflow_name,omitempty"`
	Status          Status     `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationMs      int64      `json:"duration_ms,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ExecutedByName  string     `json:"executed_by_name,omitempty"`
	ExecutedByEmail string     `json:"executed_by_email,omitempty"`
}

// ProjectionOf builds the denormalized display projection carried on every
// index row.
func ProjectionOf(e *Execution) DisplayProjection {
	return DisplayProjection{
		ExecutionID:     e.ExecutionID,
		WorkflowName:    e.WorkflowName,
		Status:          e.Status,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
		DurationMs:      e.DurationMs,
		ErrorMessage:    e.ErrorMessage,
		ExecutedByName:  e.Caller.DisplayName,
		ExecutedByEmail: e.Caller.Email,
	}
}

// LogLevel enumerates the log levels the worker's log capture recognizes.
type LogLevel string

const (
	LogLevelDebug      LogLevel = "DEBUG"
	LogLevelInfo       LogLevel = "INFO"
	LogLevelWarning    LogLevel = "WARNING"
	LogLevelError      LogLevel = "ERROR"
	LogLevelTraceback  LogLevel = "TRACEBACK"
)

// LogSource identifies where a log entry originated.
type LogSource string

const (
	LogSourceWorkflow LogSource = "workflow"
	LogSourceScript   LogSource = "script"
	LogSourceSystem   LogSource = "system"
)

// LogEntry is one append-only log record (L) for an execution.
type LogEntry struct {
	ExecutionLogID string    `json:"execution_log_id"`
	ExecutionID    string    `json:"execution_id"`
	Timestamp      time.Time `json:"timestamp"`
	Sequence       uint64    `json:"sequence"`
	Level          LogLevel  `json:"level"`
	Message        string    `json:"message"`
	Source         LogSource `json:"source"`
}

// Visible reports whether a non-admin caller is allowed to see this log
// entry: non-admins never see DEBUG or TRACEBACK.
func (l LogEntry) Visible(isPlatformAdmin bool) bool {
	if isPlatformAdmin {
		return true
	}
	return l.Level != LogLevelDebug && l.Level != LogLevelTraceback
}

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

// Package broadcast is the real-time log/status fan-out. Every
// execution gets a detail group ("execution:{id}") carrying per-log
// executionUpdate events, and every scope gets a history group
// ("history:{scope}") carrying per-status-change executionHistoryUpdate
// events. A Broadcaster is optional infrastructure: when unconfigured, the
// Nop implementation swallows every event, matching the source system's
// "disabled by default, never fails the execution" posture.
package broadcast

import (
	"context"
	"time"
)

// DetailGroup is the per-execution channel name for executionUpdate events.
func DetailGroup(executionID string) string { return "execution:" + executionID }

// HistoryGroup is the per-scope channel name for executionHistoryUpdate
// events.
func HistoryGroup(scope string) string { return "history:" + scope }

// ExecutionUpdate is the detail-group event payload.
type ExecutionUpdate struct {
	ExecutionID string    `json:"executionId"`
	Status      string    `json:"status"`
	IsComplete  bool      `json:"isComplete"`
	Timestamp   time.Time `json:"timestamp"`
	// LatestLogs carries at most 50 recent log lines; nil when this update
	// is a pure status change with nothing new to show.
	LatestLogs []LogLine `json:"latestLogs,omitempty"`
}

// LogLine is one entry in an ExecutionUpdate's LatestLogs, capped at 50 per
// event.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

const maxLatestLogs = 50

// TrimLatestLogs enforces the ≤50 cap, keeping the most recent entries.
func TrimLatestLogs(lines []LogLine) []LogLine {
	if len(lines) <= maxLatestLogs {
		return lines
	}
	return lines[len(lines)-maxLatestLogs:]
}

// ExecutionHistoryUpdate is the history-group event payload.
type ExecutionHistoryUpdate struct {
	ExecutionID     string     `json:"executionId"`
	WorkflowName    string     `json:"workflowName,omitempty"`
	Status          string     `json:"status"`
	ExecutedBy      string     `json:"executedBy,omitempty"`
	ExecutedByName  string     `json:"executedByName,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	DurationMs      int64      `json:"durationMs,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// Broadcaster is the C8 contract. Every method is best-effort: callers log
// and swallow errors rather than failing the execution.
type Broadcaster interface {
	PublishExecutionUpdate(ctx context.Context, executionID string, event ExecutionUpdate) error
	PublishHistoryUpdate(ctx context.Context, scope string, event ExecutionHistoryUpdate) error

	// SubscriberCount reports how many listeners are attached to group,
	// feeding internal/tracing's SubscriberCounter metric.
	SubscriberCount(group string) int
}

// Nop is the zero-configuration Broadcaster: every publish succeeds
// instantly and reaches nobody. This is the default when
// internal/config.BroadcastConfig.Enabled is false.
type Nop struct{}

func (Nop) PublishExecutionUpdate(ctx context.Context, executionID string, event ExecutionUpdate) error {
	return nil
}

func (Nop) PublishHistoryUpdate(ctx context.Context, scope string, event ExecutionHistoryUpdate) error {
	return nil
}

func (Nop) SubscriberCount(group string) int { return 0 }

var _ Broadcaster = Nop{}

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
	"time"

	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

// Page requests one page of a list operation. An empty Token requests the
// first page. Limit <= 0 falls back to DefaultPageSize.
type Page struct {
	Token string
	Limit int
}

// DefaultPageSize is used when a caller leaves Page.Limit unset.
const DefaultPageSize = 50

// PageResult carries one page of display projections plus the opaque token
// for the next page. NextToken is empty when there are no more results.
type PageResult struct {
	Items     []execution.DisplayProjection
	NextToken string
}

// StuckExecution is one row returned by GetStuck: just enough to let the
// caller (the consumer's sweep) mark it FAILED/TIMEOUT without a full Get.
type StuckExecution struct {
	ExecutionID string
	Scope       string
	Status      execution.Status
	StartedAt   time.Time
}

// Core is the minimal contract every record store backend must implement.
type Core interface {
	// Create writes a newly-dispatched execution at PENDING or RUNNING.
	// It populates e.ETag on success.
	Create(ctx context.Context, e *execution.Execution) error

	// Update re-reads the stored row, applies mutator, and writes it back
	// under optimistic concurrency: if e.ETag (the value mutator was handed)
	// no longer matches the stored row, Update returns
	// *bifrosterrors.ConcurrencyError without retrying.
	Update(ctx context.Context, executionID, scope string, mutator func(*execution.Execution) error) error

	// Get retrieves the full execution record, falling back to the primary
	// table directly — it never depends on index rows being present.
	Get(ctx context.Context, executionID, scope string) (*execution.Execution, error)

	// GetStatus is a narrow read used by the consumer's pre-check and by
	// status polling; it never requires the caller to load the full record.
	GetStatus(ctx context.Context, executionID, scope string) (execution.Status, error)
}

// Lister is the optional capability for index-backed list reads.
type Lister interface {
	ListByUser(ctx context.Context, userID string, page Page) (PageResult, error)
	ListByWorkflow(ctx context.Context, workflowName, scope string, page Page) (PageResult, error)
	ListByForm(ctx context.Context, formID string, page Page) (PageResult, error)
	ListByScope(ctx context.Context, scope string, page Page) (PageResult, error)
}

// StuckFinder is the optional capability backing the consumer's dead-runner
// sweep.
type StuckFinder interface {
	GetStuck(ctx context.Context, pendingTimeout, runningTimeout time.Duration) ([]StuckExecution, error)
}

// Store composes every capability; the SQLite backend implements all of
// them.
type Store interface {
	Core
	Lister
	StuckFinder
}

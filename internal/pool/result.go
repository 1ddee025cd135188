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

package pool

import (
	"encoding/json"
	"fmt"
	"time"

	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"
	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

// WorkerResult is the JSON shape written to H.result by the worker runtime
// and read back here. It is the wire contract between internal/worker and
// internal/pool.
type WorkerResult struct {
	Result           any                        `json:"result,omitempty"`
	ResultType       string                     `json:"result_type,omitempty"`
	Cached           bool                       `json:"cached,omitempty"`
	CacheExpiresAt   *time.Time                 `json:"cache_expires_at,omitempty"`
	IntegrationCalls int                        `json:"integration_calls,omitempty"`
	ErrorType        string                     `json:"error_type,omitempty"`
	ErrorMessage     string                     `json:"error_message,omitempty"`
	Variables        map[string]any             `json:"variables,omitempty"`
	Logs             []execution.LogEntry       `json:"logs,omitempty"`
	ResourceMetrics  *execution.ResourceMetrics `json:"resource_metrics,omitempty"`
}

// Failed reports whether the worker reported an error outcome rather than a
// usable result.
func (r *WorkerResult) Failed() bool {
	return r != nil && r.ErrorType != ""
}

func decodeWorkerResult(data []byte) (*WorkerResult, error) {
	var r WorkerResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("pool: decode worker result: %w", err)
	}
	return &r, nil
}

// workerCrashResult synthesizes the result step 4 of the process pool
// algorithm calls for when the worker exited non-zero without writing
// H.result.
func workerCrashResult(exitCode int) *WorkerResult {
	err := &bifrosterrors.WorkerCrashError{ExitCode: exitCode}
	return &WorkerResult{
		ErrorType:    err.ErrorType(),
		ErrorMessage: err.Error(),
	}
}

// noResultResult synthesizes the result for a worker that exited zero
// without ever writing H.result.
func noResultResult() *WorkerResult {
	err := &bifrosterrors.NoResultError{}
	return &WorkerResult{
		ErrorType:    err.ErrorType(),
		ErrorMessage: err.Error(),
	}
}

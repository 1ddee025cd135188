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

package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/tombee-labs/bifrost-engine/internal/broadcast"
	"github.com/tombee-labs/bifrost-engine/internal/cache"
	"github.com/tombee-labs/bifrost-engine/internal/discovery"
	"github.com/tombee-labs/bifrost-engine/internal/logstream"
	"github.com/tombee-labs/bifrost-engine/internal/pool"
	"github.com/tombee-labs/bifrost-engine/internal/script"
	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"
	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

// Deps are the collaborators Run needs. Every field is required except
// Cache, Logs, and Broadcast, which are safe to leave nil: a nil Cache
// skips the data-provider short-circuit, a nil Logs store skips
// persistence, and a nil Broadcast skips fan-out — Run never fails an
// execution because one of these is unconfigured.
type Deps struct {
	Registry  *discovery.Registry
	Scripts   *script.Engine
	Cache     *cache.Cache
	Logs      logstream.Store
	Broadcast broadcast.Broadcaster
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Run executes req to completion and returns the wire result written to
// H.result (or returned directly to an in-process sync caller). It never
// returns a Go error: every failure mode becomes a populated ErrorType on
// the result, mapped to a FAILED/<type> outcome. Status
// classification (SUCCESS vs COMPLETED_WITH_ERRORS vs FAILED) is left to
// the caller via pkg/execution.ClassifyResult, which needs the final
// record's context (transient, retry count) that Run does not have.
func Run(ctx context.Context, deps Deps, req *Request) *pool.WorkerResult {
	start := readResourceSnapshot()

	result := runOnce(ctx, deps, req)

	end := readResourceSnapshot()
	result.ResourceMetrics = deltaMetrics(start, end)
	return result
}

func runOnce(ctx context.Context, deps Deps, req *Request) *pool.WorkerResult {
	scope := req.scope()

	if req.isScript() {
		return runScript(deps, req)
	}

	kind := discovery.KindWorkflow
	if req.isDataProvider() {
		kind = discovery.KindDataProvider
	}

	entry, err := deps.Registry.Lookup(kind, req.Name)
	if err != nil {
		return errorResult(err)
	}

	coerced := discovery.CoerceParameters(entry.Metadata.Parameters, req.Parameters, deps.logger())
	if err := discovery.ValidateParameters(entry.Metadata.Parameters, coerced, deps.Scripts); err != nil {
		return errorResult(err)
	}

	if kind == discovery.KindDataProvider && !req.NoCache && deps.Cache != nil {
		key, err := cache.Key(scope, req.Name, coerced)
		if err == nil {
			if cached, expiresAt, ok := deps.Cache.GetWithExpiry(key); ok {
				return &pool.WorkerResult{Result: cached, ResultType: "json", Cached: true, CacheExpiresAt: &expiresAt}
			}
		}
	}

	declared, extra := splitParameters(entry.Metadata.Parameters, coerced)

	workerCtx := newContext(req)
	workerCtx.Extra = extra
	if len(extra) > 0 {
		workerCtx.Capture("extra_parameters", extra)
	}

	value, callErr := entry.Func(workerCtx, declared)
	flushLogs(ctx, deps, req.ExecutionID, workerCtx, callErr)

	if callErr != nil {
		res := errorResult(callErr)
		res.Variables = workerCtx.snapshot()
		return res
	}

	result := &pool.WorkerResult{
		Result:     value,
		ResultType: "json",
		Variables:  workerCtx.snapshot(),
	}
	if kind == discovery.KindDataProvider && deps.Cache != nil {
		key, err := cache.Key(scope, req.Name, coerced)
		if err == nil {
			expiresAt := deps.Cache.Set(key, value, cacheTTL(req))
			result.CacheExpiresAt = &expiresAt
		}
	}

	return result
}

func runScript(deps Deps, req *Request) *pool.WorkerResult {
	out, err := deps.Scripts.RunScript(req.Code, req.Parameters)
	if err != nil {
		return errorResult(err)
	}
	return &pool.WorkerResult{
		Result:     out.Result,
		ResultType: "json",
		Variables:  out.Variables,
	}
}

// splitParameters divides coerced values into the ones the function's
// manifest declares and everything else. Extras are never
// merged back into the map passed to the function.
func splitParameters(declaredMeta []discovery.Parameter, coerced map[string]any) (declared, extra map[string]any) {
	names := make(map[string]bool, len(declaredMeta))
	for _, p := range declaredMeta {
		names[p.Name] = true
	}
	declared = make(map[string]any, len(coerced))
	extra = make(map[string]any)
	for k, v := range coerced {
		if names[k] {
			declared[k] = v
		} else {
			extra[k] = v
		}
	}
	return declared, extra
}

func cacheTTL(req *Request) time.Duration {
	if req.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(req.CacheTTLSeconds) * time.Second
}

// errorResult classifies err into a pool.WorkerResult's ErrorType/
// ErrorMessage. A bifrosterrors.ErrorClassifier reports its own type name;
// anything else is an InternalError.
func errorResult(err error) *pool.WorkerResult {
	var validation *bifrosterrors.ValidationError
	if bifrosterrors.As(err, &validation) {
		return &pool.WorkerResult{ErrorType: bifrosterrors.ErrorTypeValidationError, ErrorMessage: err.Error()}
	}
	var classifier bifrosterrors.ErrorClassifier
	if bifrosterrors.As(err, &classifier) {
		return &pool.WorkerResult{ErrorType: classifier.ErrorType(), ErrorMessage: err.Error()}
	}
	return &pool.WorkerResult{ErrorType: bifrosterrors.ErrorTypeInternalError, ErrorMessage: err.Error()}
}

// flushLogs assigns persistence and broadcast to every entry the execution
// captured via ctx.Log, then appends the error-visibility entries called
// for on a non-nil callErr: a UserError is logged verbatim at ERROR,
// anything else additionally gets a TRACEBACK entry carrying err.Error() in
// place of a language traceback Go cannot reconstruct after the fact.
func flushLogs(ctx context.Context, deps Deps, executionID string, workerCtx *Context, callErr error) {
	entries := workerCtx.takeLogs()
	if callErr != nil {
		var userVisible bifrosterrors.UserVisibleError
		if bifrosterrors.As(callErr, &userVisible) {
			entries = append(entries, logEntry(executionID, execution.LogLevelError, userVisible.UserMessage()))
		} else {
			entries = append(entries, logEntry(executionID, execution.LogLevelError, "execution failed"))
			entries = append(entries, logEntry(executionID, execution.LogLevelTraceback, callErr.Error()))
		}
	}
	if len(entries) == 0 {
		return
	}

	lines := make([]broadcast.LogLine, 0, len(entries))
	for _, entry := range entries {
		if deps.Logs != nil {
			if err := deps.Logs.Append(ctx, entry); err != nil {
				deps.logger().Warn("worker: failed to persist log entry", "execution_id", executionID, "error", err)
			}
		}
		lines = append(lines, broadcast.LogLine{Timestamp: entry.Timestamp, Level: string(entry.Level), Message: entry.Message})
	}

	if deps.Broadcast == nil {
		return
	}
	if err := deps.Broadcast.PublishExecutionUpdate(ctx, executionID, broadcast.ExecutionUpdate{
		ExecutionID: executionID,
		Status:      string(execution.StatusRunning),
		IsComplete:  false,
		Timestamp:   time.Now(),
		LatestLogs:  broadcast.TrimLatestLogs(lines),
	}); err != nil {
		deps.logger().Warn("worker: failed to broadcast log update", "execution_id", executionID, "error", err)
	}
}

func logEntry(executionID string, level execution.LogLevel, message string) execution.LogEntry {
	return execution.LogEntry{
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Message:     message,
		Source:      execution.LogSourceWorkflow,
	}
}

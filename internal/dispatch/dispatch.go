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

package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tombee-labs/bifrost-engine/internal/broadcast"
	"github.com/tombee-labs/bifrost-engine/internal/config"
	"github.com/tombee-labs/bifrost-engine/internal/discovery"
	applog "github.com/tombee-labs/bifrost-engine/internal/log"
	"github.com/tombee-labs/bifrost-engine/internal/objectstore"
	"github.com/tombee-labs/bifrost-engine/internal/pool"
	"github.com/tombee-labs/bifrost-engine/internal/queue"
	"github.com/tombee-labs/bifrost-engine/internal/record"
	"github.com/tombee-labs/bifrost-engine/internal/tracing"
	"github.com/tombee-labs/bifrost-engine/internal/worker"
	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"
	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

// Deps are the collaborators Dispatch needs. Worker is the same worker.Deps
// internal/worker.Run takes, reused verbatim for the sync path's in-process
// call — including its own Broadcast handle, which is unavailable to a
// spawned async worker process (see cmd/bifrost-worker).
type Deps struct {
	Registry    *discovery.Registry
	Records     record.Store
	Queue       queue.Queue
	Worker      worker.Deps
	ObjectStore objectstore.Store
	Broadcast   broadcast.Broadcaster
	Metrics     *tracing.MetricsCollector
	Logger      *slog.Logger
}

// Config narrows config.Config to what Dispatch reads: the sync/async
// decision surface plus the async path's default worker timeout, the same
// narrowing internal/pool and internal/consumer apply to their own Deps.
type Config struct {
	Dispatch    config.DispatchConfig
	Pool        config.PoolConfig
	ObjectStore config.ObjectStoreConfig
}

// Dispatcher routes an inbound execution request to the sync or async path.
type Dispatcher struct {
	deps       Deps
	cfg        Config
	requestLog *applog.DispatchMiddleware
}

// New creates a Dispatcher.
func New(deps Deps, cfg Config) *Dispatcher {
	d := &Dispatcher{deps: deps, cfg: cfg}
	d.requestLog = applog.NewDispatchMiddleware(d.log())
	return d
}

// Request is the inbound execution request, source-agnostic (HTTP handler,
// CLI, scheduled trigger).
type Request struct {
	WorkflowName    string // empty when Code is set
	Code            []byte // inline script source; empty for a named workflow
	Caller          execution.Caller
	Scope           string
	Parameters      map[string]any
	FormID          string
	IsPlatformAdmin bool
}

func (r Request) isScript() bool { return len(r.Code) > 0 }

// Response is what the Dispatcher hands back to its caller. For the async
// path Status is always PENDING and Result/ErrorMessage are always zero;
// for the sync path it carries the execution's terminal outcome.
type Response struct {
	ExecutionID  string
	Status       execution.Status
	Result       any
	ResultType   string
	ErrorType    string
	ErrorMessage string
	DurationMs   int64
	CompletedAt  *time.Time
}

// Dispatch runs the sync/async decision: scripts are always async; a named
// workflow is async iff its manifest declares execution_mode == "async".
// A validation or lookup failure returns before any record exists. The
// request and its outcome are logged through internal/log's dispatch
// middleware, tagged with the inbound correlation ID so a caller's logs can
// be joined with the execution they triggered.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Response, error) {
	messageType := req.WorkflowName
	if req.isScript() {
		messageType = "inline_script"
	}
	logReq := &applog.DispatchRequest{
		MessageType:   messageType,
		CorrelationID: string(tracing.FromContextOrEmpty(ctx)),
		RemoteAddr:    req.Caller.UserID,
	}

	var resp *Response
	_, err := d.requestLog.HandlerWithMetadata(logReq, func() (map[string]interface{}, error) {
		var innerErr error
		resp, innerErr = d.dispatch(ctx, req)
		if resp == nil {
			return nil, innerErr
		}
		return map[string]interface{}{"execution_id": resp.ExecutionID, "status": string(resp.Status)}, innerErr
	})
	return resp, err
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (*Response, error) {
	scope := req.Scope
	if scope == "" {
		scope = execution.GlobalScope
	}

	var meta *discovery.Metadata
	if !req.isScript() {
		entry, err := d.deps.Registry.Lookup(discovery.KindWorkflow, req.WorkflowName)
		if err != nil {
			return nil, err
		}
		coerced := discovery.CoerceParameters(entry.Metadata.Parameters, req.Parameters, d.log())
		if err := discovery.ValidateParameters(entry.Metadata.Parameters, coerced, d.deps.Worker.Scripts); err != nil {
			return nil, err
		}
		req.Parameters = coerced
		meta = &entry.Metadata
	}

	executionID := uuid.NewString()
	async := req.isScript() || meta.ExecutionMode == "async"
	if async {
		return d.dispatchAsync(ctx, executionID, scope, req, meta)
	}
	return d.dispatchSync(ctx, executionID, scope, req, meta)
}

func (d *Dispatcher) dispatchAsync(ctx context.Context, executionID, scope string, req Request, meta *discovery.Metadata) (*Response, error) {
	e := &execution.Execution{
		ExecutionID:  executionID,
		Scope:        scope,
		WorkflowName: req.WorkflowName,
		InlineCode:   req.Code,
		Caller:       req.Caller,
		Parameters:   req.Parameters,
		FormID:       req.FormID,
		Status:       execution.StatusPending,
	}
	if err := d.deps.Records.Create(ctx, e); err != nil {
		return nil, err
	}

	msg := queue.Message{
		ExecutionID:     executionID,
		WorkflowName:    req.WorkflowName,
		Scope:           scope,
		UserID:          req.Caller.UserID,
		UserName:        req.Caller.DisplayName,
		UserEmail:       req.Caller.Email,
		Parameters:      req.Parameters,
		FormID:          req.FormID,
		Code:            req.Code,
		TimeoutSeconds:  timeoutSeconds(meta, d.cfg.Pool.DefaultTimeout),
		IsPlatformAdmin: req.IsPlatformAdmin,
	}
	if err := d.deps.Queue.Enqueue(ctx, msg); err != nil {
		d.markEnqueueFailure(ctx, executionID, scope, err)
		return nil, err
	}
	if d.deps.Metrics != nil {
		d.deps.Metrics.IncrementQueueDepth()
	}
	d.broadcastStatus(ctx, executionID, scope, req.WorkflowName, req.Caller, execution.StatusPending, false)

	return &Response{ExecutionID: executionID, Status: execution.StatusPending}, nil
}

// markEnqueueFailure moves a just-created record straight to FAILED when
// the broker rejects the message: nothing will ever pick this execution up
// otherwise, and leaving it at PENDING forever would make it
// indistinguishable from one merely waiting for a worker.
func (d *Dispatcher) markEnqueueFailure(ctx context.Context, executionID, scope string, cause error) {
	now := time.Now().UTC()
	err := d.deps.Records.Update(ctx, executionID, scope, func(e *execution.Execution) error {
		if !execution.CanTransition(e.Status, execution.StatusFailed) {
			return nil
		}
		e.Status = execution.StatusFailed
		e.CompletedAt = &now
		if e.StartedAt != nil {
			e.DurationMs = now.Sub(*e.StartedAt).Milliseconds()
		}
		e.ErrorType = bifrosterrors.ErrorTypeInternalError
		e.ErrorMessage = "failed to enqueue execution: " + cause.Error()
		return nil
	})
	if err != nil {
		d.log().Error("dispatch: failed to mark enqueue failure", applog.ExecutionIDKey, executionID, "error", err)
	}
}

// dispatchSync runs the workflow in-process and blocks until it finishes or
// the sync timeout elapses. Go has no way to forcibly preempt a running
// goroutine the way the async path's process pool can SIGKILL a subprocess,
// so a timeout here means the caller gets a TimeoutError response while the
// goroutine keeps running in the background. Its eventual result lands in a
// buffered channel nobody reads any more and is dropped; only dispatchSync
// writes the record, and the record keeps TIMEOUT.
func (d *Dispatcher) dispatchSync(ctx context.Context, executionID, scope string, req Request, meta *discovery.Metadata) (*Response, error) {
	started := time.Now().UTC()
	e := &execution.Execution{
		ExecutionID:  executionID,
		Scope:        scope,
		WorkflowName: req.WorkflowName,
		Caller:       req.Caller,
		Parameters:   req.Parameters,
		FormID:       req.FormID,
		Status:       execution.StatusRunning,
		StartedAt:    &started,
	}
	if err := d.deps.Records.Create(ctx, e); err != nil {
		return nil, err
	}
	if d.deps.Metrics != nil {
		d.deps.Metrics.RecordExecutionStart(ctx, executionID, req.WorkflowName)
	}
	d.broadcastStatus(ctx, executionID, scope, req.WorkflowName, req.Caller, execution.StatusRunning, false)

	timeout := d.cfg.Dispatch.SyncTimeout
	if metaTimeout := timeoutSeconds(meta, 0); metaTimeout > 0 {
		if candidate := time.Duration(metaTimeout) * time.Second; timeout <= 0 || candidate < timeout {
			timeout = candidate
		}
	}

	workerReq := &worker.Request{
		ExecutionID:     executionID,
		Caller:          req.Caller,
		Parameters:      req.Parameters,
		TimeoutSeconds:  timeoutSeconds(meta, 0),
		IsPlatformAdmin: req.IsPlatformAdmin,
	}
	if scope != execution.GlobalScope {
		workerReq.Organization = scope
	}
	workerReq.Name = req.WorkflowName

	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	resultCh := make(chan *pool.WorkerResult, 1)
	go func() { resultCh <- worker.Run(runCtx, d.deps.Worker, workerReq) }()

	var status execution.Status
	var errType, errMsg string
	var resultValue any
	resultType := "json"
	var resourceMetrics *execution.ResourceMetrics

	select {
	case result := <-resultCh:
		switch {
		case result.Failed():
			status, errType, errMsg = execution.StatusFailed, result.ErrorType, result.ErrorMessage
		default:
			status = execution.ClassifyResult(result.Result)
			resultValue = result.Result
			if result.ResultType != "" {
				resultType = result.ResultType
			}
		}
		resourceMetrics = result.ResourceMetrics
	case <-runCtx.Done():
		status, errType, errMsg = execution.StatusTimeout, bifrosterrors.ErrorTypeTimeoutError, "execution exceeded its timeout"
	}

	if d.deps.Metrics != nil {
		d.deps.Metrics.RecordExecutionComplete(ctx, executionID, req.WorkflowName, string(status), time.Since(started))
	}

	inObjectStore := false
	if d.deps.ObjectStore != nil && resultValue != nil {
		decision, err := objectstore.SpillResult(ctx, d.deps.ObjectStore, executionID, resultValue, resultType, d.cfg.ObjectStore.InlineSizeLimitBytes, false)
		switch {
		case err != nil:
			d.log().Warn("dispatch: result spill failed, keeping result inline", applog.ExecutionIDKey, executionID, "error", err)
		case decision.Spilled:
			inObjectStore, resultValue = true, nil
		}
	}

	now := time.Now().UTC()
	commitErr := d.deps.Records.Update(ctx, executionID, scope, func(e *execution.Execution) error {
		if !execution.CanTransition(e.Status, status) {
			return nil
		}
		e.Status = status
		e.CompletedAt = &now
		e.DurationMs = now.Sub(started).Milliseconds()
		e.Result = resultValue
		e.ResultInObjectStore = inObjectStore
		e.ResultType = resultType
		e.ErrorType = errType
		e.ErrorMessage = errMsg
		e.ResourceMetrics = resourceMetrics
		return nil
	})
	if commitErr != nil {
		d.log().Error("dispatch: failed to commit sync terminal status", applog.ExecutionIDKey, executionID, "error", commitErr)
	}
	d.broadcastStatus(ctx, executionID, scope, req.WorkflowName, req.Caller, status, true)

	return &Response{
		ExecutionID:  executionID,
		Status:       status,
		Result:       resultValue,
		ResultType:   resultType,
		ErrorType:    errType,
		ErrorMessage: shapeErrorMessage(errType, errMsg, req.IsPlatformAdmin),
		DurationMs:   now.Sub(started).Milliseconds(),
		CompletedAt:  &now,
	}, nil
}

// shapeErrorMessage implements the response visibility rule: admins
// see the raw message; everyone else sees it only for a UserError, and a
// generic message otherwise. The stored record always keeps the raw
// message regardless of who is looking at the API response.
func shapeErrorMessage(errType, errMsg string, isPlatformAdmin bool) string {
	if errMsg == "" {
		return ""
	}
	if isPlatformAdmin || errType == bifrosterrors.ErrorTypeUserError {
		return errMsg
	}
	return "An error occurred during execution"
}

// timeoutSeconds resolves a workflow's manifest timeout, falling back to
// def (seconds are converted from def, a time.Duration, when meta is a
// script or declares none).
func timeoutSeconds(meta *discovery.Metadata, def time.Duration) int {
	if meta != nil && meta.TimeoutSeconds > 0 {
		return meta.TimeoutSeconds
	}
	return int(def / time.Second)
}

func (d *Dispatcher) broadcastStatus(ctx context.Context, executionID, scope, workflowName string, caller execution.Caller, status execution.Status, isComplete bool) {
	if d.deps.Broadcast == nil {
		return
	}
	if err := d.deps.Broadcast.PublishExecutionUpdate(ctx, executionID, broadcast.ExecutionUpdate{
		ExecutionID: executionID,
		Status:      string(status),
		IsComplete:  isComplete,
		Timestamp:   time.Now(),
	}); err != nil {
		d.log().Warn("dispatch: failed to broadcast execution update", applog.ExecutionIDKey, executionID, "error", err)
	}
	if err := d.deps.Broadcast.PublishHistoryUpdate(ctx, scope, broadcast.ExecutionHistoryUpdate{
		ExecutionID:    executionID,
		WorkflowName:   workflowName,
		Status:         string(status),
		ExecutedBy:     caller.UserID,
		ExecutedByName: caller.DisplayName,
		Timestamp:      time.Now(),
	}); err != nil {
		d.log().Warn("dispatch: failed to broadcast history update", applog.ExecutionIDKey, executionID, "error", err)
	}
}

func (d *Dispatcher) log() *slog.Logger {
	if d.deps.Logger != nil {
		return d.deps.Logger
	}
	return slog.Default()
}

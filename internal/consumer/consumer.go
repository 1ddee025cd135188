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

package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tombee-labs/bifrost-engine/internal/broadcast"
	"github.com/tombee-labs/bifrost-engine/internal/config"
	"github.com/tombee-labs/bifrost-engine/internal/kv"
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

// Deps are the collaborators the Consumer needs. ObjectStore, Broadcast,
// and Metrics may be nil: a nil ObjectStore keeps every result inline
// regardless of size, a nil Broadcast skips fan-out, a nil Metrics skips
// instrumentation.
type Deps struct {
	Queue       queue.Queue
	Pool        *pool.Pool
	Records     record.Store
	KV          kv.Store
	ObjectStore objectstore.Store
	Broadcast   broadcast.Broadcaster
	Metrics     *tracing.MetricsCollector
	Logger      *slog.Logger
}

// Config bundles the sub-configs the Consumer reads from. It composes
// config.QueueConfig (for the dead-letter sweep) and config.ConsumerConfig
// (for cancellation polling and the default timeouts get_stuck callers
// feed it) rather than taking the whole config.Config, the same narrowing
// internal/pool and internal/worker apply to their own Deps.
type Config struct {
	Queue       config.QueueConfig
	Consumer    config.ConsumerConfig
	ObjectStore config.ObjectStoreConfig
	// MaxInFlight caps concurrently processed deliveries. Default: 16.
	MaxInFlight int
}

// Consumer drains the execution-request queue and drives each message
// through the process pool to a terminal status.
type Consumer struct {
	deps Deps
	cfg  Config
	sem  chan struct{}
}

// New creates a Consumer. cfg.MaxInFlight <= 0 falls back to 16.
func New(deps Deps, cfg Config) *Consumer {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}
	return &Consumer{deps: deps, cfg: cfg, sem: make(chan struct{}, cfg.MaxInFlight)}
}

func (c *Consumer) log() *slog.Logger {
	if c.deps.Logger != nil {
		return c.deps.Logger
	}
	return slog.Default()
}

// Observe reports whether executionID has an outstanding cancellation
// request — the Go stand-in for the CANCELLING control flag described in
// pkg/execution's state machine, which lives in the handshake KV rather
// than as a status stored on the record (see pkg/execution/state.go).
// pool.Execute's onCancelCheck and a future synchronous dispatch wait loop
// both call this the same way.
func Observe(ctx context.Context, store kv.Store, executionID string) bool {
	cancelled, err := store.IsCancelled(ctx, executionID)
	return err == nil && cancelled
}

// Run drains the queue until ctx is cancelled or the queue is closed. It
// blocks; callers run it in its own goroutine.
func (c *Consumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.receiveLoop(ctx) }()
	go func() { defer wg.Done(); c.poisonLoop(ctx) }()
	wg.Wait()
	return nil
}

func (c *Consumer) receiveLoop(ctx context.Context) {
	for {
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		delivery, err := c.deps.Queue.Receive(ctx)
		if err != nil {
			<-c.sem
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			c.log().Warn("consumer: receive failed", "error", err)
			continue
		}

		go func() {
			defer func() { <-c.sem }()
			c.process(ctx, delivery)
		}()
	}
}

// process drives one delivery from pre-check through terminal status. It
// never lets a panic in downstream code escape, since a crashed goroutine
// here would silently leak a permit from the in-flight semaphore.
func (c *Consumer) process(ctx context.Context, d queue.Delivery) {
	msg := d.Message()
	log := c.log().With(applog.ExecutionIDKey, msg.ExecutionID, applog.WorkflowKey, msg.WorkflowName)
	defer func() {
		if r := recover(); r != nil {
			log.Error("consumer: panic while processing delivery", "panic", r)
			c.nack(ctx, d, log)
		}
	}()

	if c.deps.Metrics != nil {
		c.deps.Metrics.DecrementQueueDepth()
	}

	status, err := c.deps.Records.GetStatus(ctx, msg.ExecutionID, msg.Scope)
	if err != nil {
		log.Error("consumer: failed to read execution status", "error", err)
		c.nack(ctx, d, log)
		return
	}
	if status.IsTerminal() {
		log.Info("consumer: execution already terminal, dropping redelivered message", "status", status)
		c.ack(ctx, d, log)
		return
	}
	if status == execution.StatusRunning {
		log.Warn("consumer: execution already running, dropping duplicate delivery")
		c.ack(ctx, d, log)
		return
	}

	if status == execution.StatusPending && Observe(ctx, c.deps.KV, msg.ExecutionID) {
		log.Info("consumer: execution cancelled before start")
		c.finalize(ctx, msg, time.Now(), execution.StatusCancelled, nil, "", "")
		c.ack(ctx, d, log)
		return
	}

	if err := c.markRunning(ctx, msg); err != nil {
		log.Error("consumer: failed to transition to RUNNING", "error", err)
		c.nack(ctx, d, log)
		return
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordExecutionStart(ctx, msg.ExecutionID, msg.WorkflowName)
	}
	c.broadcastStatus(ctx, msg.ExecutionID, msg.Scope, execution.StatusRunning, false)

	started := time.Now()
	c.execute(ctx, msg, started, log)
	c.ack(ctx, d, log)
}

func (c *Consumer) execute(ctx context.Context, msg queue.Message, started time.Time, log *slog.Logger) {
	req := requestFrom(msg)
	reqData, err := worker.EncodeRequest(req)
	if err != nil {
		c.finalize(ctx, msg, started, execution.StatusFailed, nil, bifrosterrors.ErrorTypeInternalError, err.Error())
		return
	}

	timeout := time.Duration(msg.TimeoutSeconds) * time.Second
	onCancel := func() bool { return Observe(ctx, c.deps.KV, msg.ExecutionID) }
	result, execErr := c.deps.Pool.Execute(ctx, msg.ExecutionID, msg.WorkflowName, reqData, timeout, onCancel)

	var status execution.Status
	var errType, errMsg string
	switch {
	case errors.Is(execErr, pool.ErrCancelled):
		status = execution.StatusCancelled
	case errors.Is(execErr, pool.ErrTimeout):
		status, errType, errMsg = execution.StatusTimeout, bifrosterrors.ErrorTypeTimeoutError, "execution exceeded its timeout"
		result = nil
	case execErr != nil:
		log.Error("consumer: pool execution failed", "error", execErr)
		status, errType, errMsg = execution.StatusFailed, bifrosterrors.ErrorTypeInternalError, execErr.Error()
		result = nil
	case result.Failed():
		status, errType, errMsg = execution.StatusFailed, result.ErrorType, result.ErrorMessage
	default:
		status = execution.ClassifyResult(result.Result)
	}

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordExecutionComplete(ctx, msg.ExecutionID, msg.WorkflowName, string(status), time.Since(started))
	}
	c.finalize(ctx, msg, started, status, result, errType, errMsg)
}

// finalize commits the terminal status and (for a usable result) spills it
// to the object store when it crosses the inline size limit (invariant
// I3), then broadcasts the completion.
func (c *Consumer) finalize(ctx context.Context, msg queue.Message, started time.Time, status execution.Status, result *pool.WorkerResult, errType, errMsg string) {
	now := time.Now().UTC()

	var resultValue any
	resultType := "json"
	var resourceMetrics *execution.ResourceMetrics
	if result != nil {
		resultValue = result.Result
		if result.ResultType != "" {
			resultType = result.ResultType
		}
		resourceMetrics = result.ResourceMetrics
	}

	inObjectStore := false
	if c.deps.ObjectStore != nil {
		if resultValue != nil {
			limit := c.cfg.ObjectStore.InlineSizeLimitBytes
			decision, err := objectstore.SpillResult(ctx, c.deps.ObjectStore, msg.ExecutionID, resultValue, resultType, limit, false)
			switch {
			case err != nil:
				c.log().Warn("consumer: result spill failed, keeping result inline", applog.ExecutionIDKey, msg.ExecutionID, "error", err)
			case decision.Spilled:
				inObjectStore, resultValue = true, nil
			}
		}
		// Captured variables always spill once they exist at all (I3); the
		// record carries no inline field for them, only the object store key.
		if result != nil && len(result.Variables) > 0 {
			if err := objectstore.SpillJSON(ctx, c.deps.ObjectStore, msg.ExecutionID, objectstore.KindVariables, result.Variables); err != nil {
				c.log().Warn("consumer: variables spill failed", applog.ExecutionIDKey, msg.ExecutionID, "error", err)
			}
		}
	}

	err := c.deps.Records.Update(ctx, msg.ExecutionID, msg.Scope, func(e *execution.Execution) error {
		if !execution.CanTransition(e.Status, status) {
			return fmt.Errorf("consumer: cannot transition %s -> %s", e.Status, status)
		}
		if e.StartedAt == nil {
			e.StartedAt = &started
		}
		e.Status = status
		e.CompletedAt = &now
		e.DurationMs = now.Sub(*e.StartedAt).Milliseconds()
		e.Result = resultValue
		e.ResultInObjectStore = inObjectStore
		e.ResultType = resultType
		e.ErrorType = errType
		e.ErrorMessage = errMsg
		e.ResourceMetrics = resourceMetrics
		return nil
	})
	if err != nil {
		c.log().Error("consumer: failed to commit terminal status", applog.ExecutionIDKey, msg.ExecutionID, "status", status, "error", err)
		return
	}
	c.broadcastStatus(ctx, msg.ExecutionID, msg.Scope, status, true)
}

func (c *Consumer) markRunning(ctx context.Context, msg queue.Message) error {
	now := time.Now().UTC()
	return c.deps.Records.Update(ctx, msg.ExecutionID, msg.Scope, func(e *execution.Execution) error {
		if !execution.CanTransition(e.Status, execution.StatusRunning) {
			return fmt.Errorf("consumer: cannot transition %s -> RUNNING", e.Status)
		}
		e.Status = execution.StatusRunning
		e.StartedAt = &now
		return nil
	})
}

func (c *Consumer) broadcastStatus(ctx context.Context, executionID, scope string, status execution.Status, isComplete bool) {
	if c.deps.Broadcast == nil {
		return
	}
	if err := c.deps.Broadcast.PublishExecutionUpdate(ctx, executionID, broadcast.ExecutionUpdate{
		ExecutionID: executionID,
		Status:      string(status),
		IsComplete:  isComplete,
		Timestamp:   time.Now(),
	}); err != nil {
		c.log().Warn("consumer: failed to broadcast execution update", applog.ExecutionIDKey, executionID, "error", err)
	}
	if !isComplete {
		return
	}
	if err := c.deps.Broadcast.PublishHistoryUpdate(ctx, scope, broadcast.ExecutionHistoryUpdate{
		ExecutionID: executionID,
		Status:      string(status),
		Timestamp:   time.Now(),
	}); err != nil {
		c.log().Warn("consumer: failed to broadcast history update", applog.ExecutionIDKey, executionID, "error", err)
	}
}

func (c *Consumer) ack(ctx context.Context, d queue.Delivery, log *slog.Logger) {
	if err := d.Ack(ctx); err != nil {
		log.Warn("consumer: ack failed", "error", err)
	}
}

// nack returns the message for redelivery and immediately sweeps for dead
// letters, since a Nack is exactly the event that can push a message's
// dequeue count over the poison threshold.
func (c *Consumer) nack(ctx context.Context, d queue.Delivery, log *slog.Logger) {
	if err := d.Nack(ctx); err != nil {
		log.Warn("consumer: nack failed", "error", err)
	}
	c.sweepDeadLetters(ctx)
}

func requestFrom(msg queue.Message) *worker.Request {
	req := &worker.Request{
		ExecutionID: msg.ExecutionID,
		Caller: execution.Caller{
			UserID:      msg.UserID,
			Email:       msg.UserEmail,
			DisplayName: msg.UserName,
		},
		Parameters:      msg.Parameters,
		TimeoutSeconds:  msg.TimeoutSeconds,
		IsPlatformAdmin: msg.IsPlatformAdmin,
	}
	if msg.Scope != execution.GlobalScope {
		req.Organization = msg.Scope
	}
	if len(msg.Code) > 0 {
		req.Code = msg.Code
	} else {
		req.Name = msg.WorkflowName
	}
	return req
}

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
	"time"

	applog "github.com/tombee-labs/bifrost-engine/internal/log"
	"github.com/tombee-labs/bifrost-engine/internal/queue"
	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"
	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

// poisonLoop sweeps for dead letters on a fixed timer, as a backstop for
// the sweep triggered by every Nack (see Consumer.nack). A message stuck at
// PENDING because the record store keeps losing the RUNNING transition race
// would otherwise never get another sweep trigger, since nothing ever Nacks
// it again once redelivery itself stops happening.
func (c *Consumer) poisonLoop(ctx context.Context) {
	interval := c.cfg.Queue.DeadLetterInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepDeadLetters(ctx)
		}
	}
}

func (c *Consumer) sweepDeadLetters(ctx context.Context) {
	maxAttempts := c.cfg.Queue.MaxDeliveryAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	limit := c.cfg.Queue.DeadLetterBatchSize
	if limit <= 0 {
		limit = 32
	}

	dead, err := c.deps.Queue.DeadLetters(ctx, maxAttempts, limit)
	if err != nil {
		c.log().Warn("consumer: dead-letter sweep failed", "error", err)
		return
	}
	for _, dl := range dead {
		c.poison(ctx, dl)
	}
}

// poison marks a dead-lettered execution FAILED with a PoisonQueueError.
// An execution that somehow already reached RUNNING or a terminal status
// through a different delivery is left untouched: only a PENDING record is
// written, and the execution's real outcome stands.
func (c *Consumer) poison(ctx context.Context, dl queue.DeadLetter) {
	msg := dl.Message
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordPoisonMessage(ctx, msg.WorkflowName)
	}

	perr := &bifrosterrors.PoisonQueueError{DequeueCount: dl.DequeueCount}
	now := time.Now().UTC()
	err := c.deps.Records.Update(ctx, msg.ExecutionID, msg.Scope, func(e *execution.Execution) error {
		if e.Status != execution.StatusPending || !execution.CanTransition(e.Status, execution.StatusFailed) {
			return errSkipPoison
		}
		if e.StartedAt == nil {
			e.StartedAt = &now
		}
		e.Status = execution.StatusFailed
		e.CompletedAt = &now
		e.DurationMs = now.Sub(*e.StartedAt).Milliseconds()
		e.ErrorType = perr.ErrorType()
		e.ErrorMessage = perr.Error()
		return nil
	})
	if errors.Is(err, errSkipPoison) {
		return
	}
	if err != nil {
		c.log().Error("consumer: failed to mark poisoned execution FAILED", applog.ExecutionIDKey, msg.ExecutionID, "error", err)
		return
	}
	c.broadcastStatus(ctx, msg.ExecutionID, msg.Scope, execution.StatusFailed, true)
}

// errSkipPoison is a mutator-internal sentinel, never returned from poison
// itself: it tells the Update call this execution already resolved through
// another path and the poison write should be silently dropped rather than
// logged as a failure.
var errSkipPoison = bifrosterrors.New("consumer: execution already resolved, skipping poison write")

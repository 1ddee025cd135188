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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tombee-labs/bifrost-engine/internal/broadcast"
	"github.com/tombee-labs/bifrost-engine/internal/config"
	"github.com/tombee-labs/bifrost-engine/internal/kv"
	"github.com/tombee-labs/bifrost-engine/internal/pool"
	"github.com/tombee-labs/bifrost-engine/internal/queue"
	"github.com/tombee-labs/bifrost-engine/internal/record"
	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

// fakeStore is a minimal record.Store: Create/Get/GetStatus/Update back a
// single in-memory row; Lister and StuckFinder are never exercised here.
type fakeStore struct {
	mu  sync.Mutex
	row *execution.Execution
}

func newFakeStore(e execution.Execution) *fakeStore {
	e.ETag = "etag-0"
	return &fakeStore{row: &e}
}

func (s *fakeStore) Create(ctx context.Context, e *execution.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ETag = "etag-0"
	cp := *e
	s.row = &cp
	return nil
}

func (s *fakeStore) Update(ctx context.Context, executionID, scope string, mutator func(*execution.Execution) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.row
	if err := mutator(&cp); err != nil {
		return err
	}
	s.row = &cp
	return nil
}

func (s *fakeStore) Get(ctx context.Context, executionID, scope string) (*execution.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.row
	return &cp, nil
}

func (s *fakeStore) GetStatus(ctx context.Context, executionID, scope string) (execution.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row.Status, nil
}

func (s *fakeStore) status() execution.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row.Status
}

func (s *fakeStore) snapshot() execution.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.row
}

// Lister and StuckFinder are never exercised by the Consumer; these panic
// loudly rather than silently returning zero values if that ever changes.
func (s *fakeStore) ListByUser(ctx context.Context, userID string, page record.Page) (record.PageResult, error) {
	panic("fakeStore: ListByUser not implemented")
}
func (s *fakeStore) ListByWorkflow(ctx context.Context, workflowName, scope string, page record.Page) (record.PageResult, error) {
	panic("fakeStore: ListByWorkflow not implemented")
}
func (s *fakeStore) ListByForm(ctx context.Context, formID string, page record.Page) (record.PageResult, error) {
	panic("fakeStore: ListByForm not implemented")
}
func (s *fakeStore) ListByScope(ctx context.Context, scope string, page record.Page) (record.PageResult, error) {
	panic("fakeStore: ListByScope not implemented")
}
func (s *fakeStore) GetStuck(ctx context.Context, pendingTimeout, runningTimeout time.Duration) ([]record.StuckExecution, error) {
	panic("fakeStore: GetStuck not implemented")
}

// fakeQueue delivers exactly the messages it is seeded with and records
// every Ack/Nack against them.
type fakeQueue struct {
	mu        sync.Mutex
	pending   []*fakeDelivery
	acked     []string
	nacked    []string
}

type fakeDelivery struct {
	q            *fakeQueue
	msg          queue.Message
	dequeueCount int
}

func (d *fakeDelivery) Message() queue.Message { return d.msg }
func (d *fakeDelivery) DequeueCount() int      { return d.dequeueCount }
func (d *fakeDelivery) Ack(ctx context.Context) error {
	d.q.mu.Lock()
	defer d.q.mu.Unlock()
	d.q.acked = append(d.q.acked, d.msg.ExecutionID)
	return nil
}
func (d *fakeDelivery) Nack(ctx context.Context) error {
	d.q.mu.Lock()
	defer d.q.mu.Unlock()
	d.q.nacked = append(d.q.nacked, d.msg.ExecutionID)
	return nil
}

func newFakeQueue(msgs ...queue.Message) *fakeQueue {
	q := &fakeQueue{}
	for _, m := range msgs {
		q.pending = append(q.pending, &fakeDelivery{q: q, msg: m, dequeueCount: 1})
	}
	return q
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, &fakeDelivery{q: q, msg: msg, dequeueCount: 1})
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context) (queue.Delivery, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			d := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return d, nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (q *fakeQueue) DeadLetters(ctx context.Context, maxAttempts, limit int) ([]queue.DeadLetter, error) {
	return nil, nil
}
func (q *fakeQueue) Close() error { return nil }

// fakeBroadcaster records every publish for assertions.
type fakeBroadcaster struct {
	mu      sync.Mutex
	updates []broadcast.ExecutionUpdate
}

func (b *fakeBroadcaster) PublishExecutionUpdate(ctx context.Context, executionID string, event broadcast.ExecutionUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, event)
	return nil
}
func (b *fakeBroadcaster) PublishHistoryUpdate(ctx context.Context, scope string, event broadcast.ExecutionHistoryUpdate) error {
	return nil
}
func (b *fakeBroadcaster) SubscriberCount(group string) int { return 0 }

func newTestPool(t *testing.T, workerBinary string) (*pool.Pool, kv.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	store := kv.NewRedisStore(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { store.Close() })

	cfg := config.PoolConfig{
		WorkerBinary:        workerBinary,
		CancelCheckInterval: 10 * time.Millisecond,
		GracefulShutdown:    200 * time.Millisecond,
		DefaultTimeout:      5 * time.Second,
	}
	return pool.New(cfg, store, nil, nil), store
}

func skipOnSpawnError(t *testing.T, msg string) {
	t.Helper()
	if strings.Contains(msg, "operation not permitted") {
		t.Skip("spawn not permitted in this environment")
	}
}

func TestConsumer_SkipsAlreadyTerminalDelivery(t *testing.T) {
	p, kvStore := newTestPool(t, "true")
	store := newFakeStore(execution.Execution{ExecutionID: "exec-1", Scope: "GLOBAL", Status: execution.StatusSuccess})
	q := newFakeQueue(queue.Message{ExecutionID: "exec-1", Scope: "GLOBAL", WorkflowName: "noop"})

	c := New(Deps{Queue: q, Pool: p, Records: store, KV: kvStore, Broadcast: &fakeBroadcaster{}}, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	c.process(ctx, d)

	if store.status() != execution.StatusSuccess {
		t.Errorf("status = %s, want unchanged SUCCESS", store.status())
	}
	if len(q.acked) != 1 {
		t.Errorf("acked = %v, want exactly one ack", q.acked)
	}
}

func TestConsumer_SkipsAlreadyRunningDelivery(t *testing.T) {
	p, kvStore := newTestPool(t, "true")
	store := newFakeStore(execution.Execution{ExecutionID: "exec-2", Scope: "GLOBAL", Status: execution.StatusRunning})
	q := newFakeQueue(queue.Message{ExecutionID: "exec-2", Scope: "GLOBAL", WorkflowName: "noop"})

	c := New(Deps{Queue: q, Pool: p, Records: store, KV: kvStore, Broadcast: &fakeBroadcaster{}}, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	c.process(ctx, d)

	if len(q.acked) != 1 {
		t.Errorf("acked = %v, want exactly one ack", q.acked)
	}
}

func TestConsumer_RunsToTerminalAndBroadcasts(t *testing.T) {
	p, kvStore := newTestPool(t, "true")
	store := newFakeStore(execution.Execution{ExecutionID: "exec-3", Scope: "GLOBAL", Status: execution.StatusPending})
	q := newFakeQueue(queue.Message{ExecutionID: "exec-3", Scope: "GLOBAL", WorkflowName: "noop", TimeoutSeconds: 5})
	bc := &fakeBroadcaster{}

	c := New(Deps{Queue: q, Pool: p, Records: store, KV: kvStore, Broadcast: bc}, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	c.process(ctx, d)

	final := store.snapshot()
	skipOnSpawnError(t, final.ErrorMessage)
	if !final.Status.IsTerminal() {
		t.Fatalf("status = %s, want a terminal status", final.Status)
	}
	// "true" exits zero without ever writing H.result, so the pool
	// synthesizes NoResult and the consumer classifies that as FAILED.
	if final.Status != execution.StatusFailed || final.ErrorType != "NoResult" {
		t.Errorf("status/errorType = %s/%s, want FAILED/NoResult", final.Status, final.ErrorType)
	}
	if len(q.acked) != 1 {
		t.Errorf("acked = %v, want exactly one ack", q.acked)
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if len(bc.updates) < 2 {
		t.Errorf("broadcast updates = %d, want at least RUNNING and a terminal update", len(bc.updates))
	}
}

func TestConsumer_CancelledBeforeStartNeverRuns(t *testing.T) {
	p, kvStore := newTestPool(t, "true")
	store := newFakeStore(execution.Execution{ExecutionID: "exec-5", Scope: "GLOBAL", Status: execution.StatusPending})
	q := newFakeQueue(queue.Message{ExecutionID: "exec-5", Scope: "GLOBAL", WorkflowName: "noop", TimeoutSeconds: 5})
	bc := &fakeBroadcaster{}

	if err := kvStore.SetCancel(context.Background(), "exec-5", time.Minute); err != nil {
		t.Fatalf("SetCancel: %v", err)
	}

	c := New(Deps{Queue: q, Pool: p, Records: store, KV: kvStore, Broadcast: bc}, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	c.process(ctx, d)

	final := store.snapshot()
	if final.Status != execution.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED without ever running", final.Status)
	}
	if len(q.acked) != 1 {
		t.Errorf("acked = %v, want exactly one ack", q.acked)
	}
}

func TestObserve_ReflectsCancelFlag(t *testing.T) {
	_, kvStore := newTestPool(t, "true")
	ctx := context.Background()

	if Observe(ctx, kvStore, "exec-4") {
		t.Error("Observe() = true before SetCancel, want false")
	}
	if err := kvStore.SetCancel(ctx, "exec-4", time.Minute); err != nil {
		t.Fatalf("SetCancel: %v", err)
	}
	if !Observe(ctx, kvStore, "exec-4") {
		t.Error("Observe() = false after SetCancel, want true")
	}
}

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

package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestRedisQueue_EnqueueReceive(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Message{ExecutionID: "e1", Scope: "GLOBAL"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if d.Message().ExecutionID != "e1" {
		t.Errorf("execution id = %q, want e1", d.Message().ExecutionID)
	}
	if d.DequeueCount() != 1 {
		t.Errorf("dequeue count = %d, want 1", d.DequeueCount())
	}
}

func TestRedisQueue_NackRedelivers(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Message{ExecutionID: "e2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d1, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive 1: %v", err)
	}
	if err := d1.Nack(ctx); err != nil {
		t.Fatalf("nack: %v", err)
	}
	d2, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive 2: %v", err)
	}
	if d2.DequeueCount() != 2 {
		t.Errorf("dequeue count = %d, want 2", d2.DequeueCount())
	}
}

func TestRedisQueue_DeadLetters(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Message{ExecutionID: "poison"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	for i := 0; i < 5; i++ {
		d, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		if err := d.Nack(ctx); err != nil {
			t.Fatalf("nack %d: %v", i, err)
		}
	}
	if err := q.Enqueue(ctx, Message{ExecutionID: "healthy"}); err != nil {
		t.Fatalf("enqueue healthy: %v", err)
	}

	dead, err := q.DeadLetters(ctx, 5, 32)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(dead) != 1 || dead[0].Message.ExecutionID != "poison" {
		t.Fatalf("dead letters = %+v, want exactly [poison]", dead)
	}

	d, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive after sweep: %v", err)
	}
	if d.Message().ExecutionID != "healthy" {
		t.Errorf("remaining message = %q, want healthy", d.Message().ExecutionID)
	}
}

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
	"sync"
)

const memoryQueueCapacity = 4096

var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is the in-process queue backend, the default for a
// single-node deployment or for tests. Capacity is bounded but generous;
// Enqueue blocks (respecting ctx) if the queue is momentarily full rather
// than dropping a message.
type MemoryQueue struct {
	ch chan *memoryItem

	mu     sync.Mutex
	closed bool
}

type memoryItem struct {
	msg          Message
	dequeueCount int
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{ch: make(chan *memoryItem, memoryQueueCapacity)}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	item := &memoryItem{msg: msg, dequeueCount: 0}
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements Queue.
func (q *MemoryQueue) Receive(ctx context.Context) (Delivery, error) {
	select {
	case item, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		item.dequeueCount++
		return &memoryDelivery{queue: q, item: item}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DeadLetters implements Queue. It drains every message currently queued,
// splits off the ones at or past maxAttempts (up to limit of them), and
// requeues everything else including any dead messages beyond limit.
func (q *MemoryQueue) DeadLetters(ctx context.Context, maxAttempts, limit int) ([]DeadLetter, error) {
	var drained []*memoryItem
draining:
	for {
		select {
		case item := <-q.ch:
			drained = append(drained, item)
		default:
			break draining
		}
	}

	var dead []DeadLetter
	var keep []*memoryItem
	for _, item := range drained {
		if item.dequeueCount >= maxAttempts && len(dead) < limit {
			dead = append(dead, DeadLetter{Message: item.msg, DequeueCount: item.dequeueCount})
			continue
		}
		keep = append(keep, item)
	}

	for _, item := range keep {
		select {
		case q.ch <- item:
		case <-ctx.Done():
			return dead, ctx.Err()
		}
	}
	return dead, nil
}

// Close implements Queue.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}

type memoryDelivery struct {
	queue *MemoryQueue
	item  *memoryItem
}

func (d *memoryDelivery) Message() Message   { return d.item.msg }
func (d *memoryDelivery) DequeueCount() int  { return d.item.dequeueCount }
func (d *memoryDelivery) Ack(ctx context.Context) error { return nil }

func (d *memoryDelivery) Nack(ctx context.Context) error {
	select {
	case d.queue.ch <- d.item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

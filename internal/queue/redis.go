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
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisQueueKey = "bifrost:queue:executions"

var _ Queue = (*RedisQueue)(nil)

// envelope carries the redelivery count alongside the message itself,
// since a Redis list has no notion of delivery attempts on its own.
type envelope struct {
	Message      Message `json:"message"`
	DequeueCount int     `json:"dequeue_count"`
}

// RedisQueue backs the execution-request queue with a Redis list: RPUSH to
// enqueue, BLPOP to receive. Acking is implicit in the pop (at-least-once,
// not exactly-once — a crash between pop and commit loses nothing because
// the Consumer's idempotency covers redelivery, but a crash mid-processing
// with no Nack does mean the message is not retried by this backend,
// since BLPOP already removes the element; an explicit Nack pushes it
// back onto the list).
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue wraps an already-constructed client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	return q.push(ctx, envelope{Message: msg, DequeueCount: 0})
}

func (q *RedisQueue) push(ctx context.Context, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("queue: encode message: %w", err)
	}
	if err := q.client.RPush(ctx, redisQueueKey, data).Err(); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

// Receive implements Queue. It blocks until a message arrives or ctx is
// cancelled.
func (q *RedisQueue) Receive(ctx context.Context) (Delivery, error) {
	res, err := q.client.BLPop(ctx, 0, redisQueueKey).Result()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("queue: receive: %w", err)
	}
	// BLPop returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("queue: receive: unexpected reply shape %v", res)
	}
	var env envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("queue: decode message: %w", err)
	}
	env.DequeueCount++
	return &redisDelivery{queue: q, env: env}, nil
}

// DeadLetters implements Queue. It scans the whole list (LRANGE), which is
// fine at the sizes this queue is expected to hold, splits off messages at
// or past maxAttempts, and rewrites the list without them.
func (q *RedisQueue) DeadLetters(ctx context.Context, maxAttempts, limit int) ([]DeadLetter, error) {
	raw, err := q.client.LRange(ctx, redisQueueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: scan for dead letters: %w", err)
	}

	var dead []DeadLetter
	var keep []string
	for _, entry := range raw {
		var env envelope
		if err := json.Unmarshal([]byte(entry), &env); err != nil {
			keep = append(keep, entry)
			continue
		}
		if env.DequeueCount >= maxAttempts && len(dead) < limit {
			dead = append(dead, DeadLetter{Message: env.Message, DequeueCount: env.DequeueCount})
			continue
		}
		keep = append(keep, entry)
	}
	if len(dead) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	pipe.Del(ctx, redisQueueKey)
	if len(keep) > 0 {
		args := make([]any, len(keep))
		for i, k := range keep {
			args[i] = k
		}
		pipe.RPush(ctx, redisQueueKey, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue: rewrite after dead-letter sweep: %w", err)
	}
	return dead, nil
}

// Close implements Queue.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

type redisDelivery struct {
	queue *RedisQueue
	env   envelope
}

func (d *redisDelivery) Message() Message  { return d.env.Message }
func (d *redisDelivery) DequeueCount() int { return d.env.DequeueCount }

// Ack implements Delivery. BLPop already removed the element, so Ack is a
// no-op for this backend.
func (d *redisDelivery) Ack(ctx context.Context) error { return nil }

// Nack implements Delivery by pushing the envelope back with its
// incremented dequeue count, making it eligible for redelivery.
func (d *redisDelivery) Nack(ctx context.Context) error {
	return d.queue.push(ctx, d.env)
}

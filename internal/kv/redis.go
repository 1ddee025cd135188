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

package kv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore backs the handshake with a Redis server. Connection is lazy:
// the client is constructed in NewRedisStore but the first real network
// round trip happens on the first call that needs it, guarded by
// ensureConnection's double-checked locking so concurrent callers during
// startup don't all dial at once.
type RedisStore struct {
	client *redis.Client

	connectOnce sync.Mutex
	connected   atomic.Bool
}

// NewRedisStore builds a store against opts without connecting yet.
func NewRedisStore(opts *redis.Options) *RedisStore {
	return &RedisStore{client: redis.NewClient(opts)}
}

// Client exposes the underlying client for callers that need it directly
// (health checks, metrics).
func (s *RedisStore) Client() *redis.Client { return s.client }

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) ensureConnection(ctx context.Context) error {
	if s.connected.Load() {
		return nil
	}
	s.connectOnce.Lock()
	defer s.connectOnce.Unlock()
	if s.connected.Load() {
		return nil
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kv: redis unavailable: %w", err)
	}
	s.connected.Store(true)
	return nil
}

func (s *RedisStore) put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := s.ensureConnection(ctx); err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string) ([]byte, error) {
	if err := s.ensureConnection(ctx); err != nil {
		return nil, err
	}
	v, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, nil
}

// PutContext implements Store.
func (s *RedisStore) PutContext(ctx context.Context, executionID string, data []byte, ttl time.Duration) error {
	return s.put(ctx, contextKey(executionID), data, ttl)
}

// GetContext implements Store.
func (s *RedisStore) GetContext(ctx context.Context, executionID string) ([]byte, error) {
	return s.get(ctx, contextKey(executionID))
}

// PutResult implements Store.
func (s *RedisStore) PutResult(ctx context.Context, executionID string, data []byte, ttl time.Duration) error {
	return s.put(ctx, resultKey(executionID), data, ttl)
}

// GetResult implements Store.
func (s *RedisStore) GetResult(ctx context.Context, executionID string) ([]byte, error) {
	return s.get(ctx, resultKey(executionID))
}

// SetCancel implements Store.
func (s *RedisStore) SetCancel(ctx context.Context, executionID string, ttl time.Duration) error {
	return s.put(ctx, cancelKey(executionID), []byte("1"), ttl)
}

// IsCancelled implements Store.
func (s *RedisStore) IsCancelled(ctx context.Context, executionID string) (bool, error) {
	_, err := s.get(ctx, cancelKey(executionID))
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, executionID string) error {
	if err := s.ensureConnection(ctx); err != nil {
		return err
	}
	keys := []string{contextKey(executionID), resultKey(executionID), cancelKey(executionID)}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("kv: clear %s: %w", executionID, err)
	}
	return nil
}

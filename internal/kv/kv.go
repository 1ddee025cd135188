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

// Package kv is the worker-to-pool handshake store (H): the transient
// channel a spawned worker process and the pool that spawned it use to pass
// the execution context in, and the result and cancellation flag back out.
// Every key carries a TTL bounded at one hour; none of it survives a
// restart and none of it is meant to. This is not the record store — it
// never holds anything the core needs for audit or listing.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a handshake key has not been written yet or
// has already expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is the handshake contract. Keys are scoped to one execution ID;
// callers never need the literal "bifrost:exec:{id}:*" shape themselves.
type Store interface {
	// PutContext writes the execution context a worker reads on startup.
	// It is written once, by the pool, before the worker is spawned.
	PutContext(ctx context.Context, executionID string, data []byte, ttl time.Duration) error

	// GetContext reads back the context written by PutContext.
	GetContext(ctx context.Context, executionID string) ([]byte, error)

	// PutResult writes the worker's outcome. It is written at most once, by
	// the worker, as the last thing it does before exiting.
	PutResult(ctx context.Context, executionID string, data []byte, ttl time.Duration) error

	// GetResult reads back the result written by PutResult. Returns
	// ErrNotFound if the worker has not written one yet (or never will,
	// e.g. it crashed).
	GetResult(ctx context.Context, executionID string) ([]byte, error)

	// SetCancel raises the cancellation flag a running worker polls.
	SetCancel(ctx context.Context, executionID string, ttl time.Duration) error

	// IsCancelled reports whether SetCancel has been called for executionID
	// and the flag has not yet expired.
	IsCancelled(ctx context.Context, executionID string) (bool, error)

	// Clear removes every handshake key for executionID. Callers invoke
	// this once the pool has consumed the result; it is an optimization,
	// not a correctness requirement, since every key already carries a TTL.
	Clear(ctx context.Context, executionID string) error
}

func contextKey(executionID string) string { return "bifrost:exec:" + executionID + ":context" }
func resultKey(executionID string) string  { return "bifrost:exec:" + executionID + ":result" }
func cancelKey(executionID string) string  { return "bifrost:exec:" + executionID + ":cancel" }

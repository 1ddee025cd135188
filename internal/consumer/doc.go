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

// Package consumer is the queue consumer: it drains internal/queue,
// drives each delivery through internal/pool, and is the only writer of an
// execution's terminal status. Every delivery is idempotent under
// redelivery — a status already RUNNING or terminal is acknowledged and
// dropped rather than re-executed — which is what makes the queue's
// at-least-once guarantee safe.
//
// The consumer also owns the poison-queue sweep: messages that exceed their
// delivery-attempt budget are pulled off the queue, marked FAILED, and
// reported to internal/tracing, on both a fixed timer and immediately after
// any Nack that might have pushed a message over the limit.
package consumer

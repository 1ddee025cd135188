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

// Package record stores the execution primary record (E) and its four
// derived indexes (Iu, Iw, If, Is) and exposes the Store contract that the
// queue consumer, dispatcher, and any read-side callers use to create,
// mutate, and list executions.
//
// # Interface Hierarchy
//
// Mirrors the interface-segregation shape used elsewhere in the module: a
// minimal Core interface that any backend must implement, plus optional
// capability interfaces a caller can detect with a type assertion. Today
// SQLite is the only backend and implements every interface, but a future
// backend (e.g. a hosted key-range store closer to the one this design was
// modeled on) only needs Core to participate.
//
//   - Core (required): Create, Update, Get, GetStatus
//   - Lister (optional): ListByUser, ListByWorkflow, ListByForm, ListByScope
//   - StuckFinder (optional): GetStuck
//
// # Row keys
//
// The primary table's row key is "execution:{reverse_ms}_{uuid}", where
// reverse_ms = 9_999_999_999_999 - unix_ms(started_at or created_at). Lower
// values sort first, so an ascending scan of the key naturally returns the
// newest executions first. Index rows use the flat key shapes from the data
// model ("userexec:{user_id}:{execution_id}" and so on); because those keys
// carry no time component, list reads order by the denormalized started_at
// column instead of the key itself — see ListByUser and friends.
package record

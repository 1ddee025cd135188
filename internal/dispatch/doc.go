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

// Package dispatch is the entry point: it decides sync-inline vs.
// async-queued execution, writes the initial execution record, and — for
// the sync path only — drives the execution to completion itself rather
// than handing it to internal/consumer. Scripts are always async; a named
// workflow is sync unless its manifest declares execution_mode == "async".
//
// Parameter validation happens here, before any record is created: a
// caller that fails validation never gets an execution id, matching the
// rule that a 4xx validation failure leaves no trace in the record store.
package dispatch

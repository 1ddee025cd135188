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

// Package api is the thin HTTP surface cmd/bifrostd exposes over
// internal/dispatch, internal/record, internal/kv, and internal/worker.
// callerFromRequest reads caller identity and platform-admin status from
// plain headers rather than verifying a session or token, the same
// "trust the edge" posture a real deployment would put an API gateway or
// reverse proxy in front of.
package api

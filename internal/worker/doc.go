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

/*
Package worker is the execution engine that runs inside a spawned
bifrost-worker process (the async path) or directly inside the daemon (the
sync dispatch path and every data-provider call, neither of which gets its
own OS process). Run is the single entry point both callers share: resolve
the named function or inline script, coerce and validate parameters,
execute under variable capture and log routing, and classify the outcome.

A registered Go function's signature (discovery.Func) always receives the
full execution Context and the declared parameter map — Go has no runtime
signature inspection to replicate the source ecosystem's "does the first
parameter look like a context" convention, so every function gets the
context unconditionally and ignores it if it doesn't need it.
*/
package worker

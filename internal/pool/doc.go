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
Package pool spawns and supervises one OS process per execution.

Execute writes the execution context to the handshake store, spawns a
fresh bifrost-worker process, and runs a monitor loop that polls for
cancellation and enforces the timeout until the worker exits or is forced
to. It then reads the worker's result back out of the handshake store,
synthesizing one when the worker crashed or vanished without writing one.

Cancellation is cooperative inside the worker and forcible between
processes: SIGTERM first, SIGKILL only after the configured grace window.
*/
package pool

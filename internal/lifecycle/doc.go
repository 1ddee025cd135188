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
Package lifecycle manages OS-process lifecycle for isolated execution workers.

The process pool (internal/pool) spawns one bifrost-worker process per
execution and must be able to signal it without racing a stale or reused PID:

	spawner := lifecycle.NewSpawner()
	pid, err := spawner.SpawnDetached(workerBinary, args, logPath)
	if err != nil {
	    // handle error
	}

	if lifecycle.IsWorkerProcess(pid) {
	    if err := lifecycle.GracefulShutdown(pid, 3*time.Second, true); err != nil {
	        // SIGTERM timed out and SIGKILL also failed
	    }
	}

GracefulShutdown sends SIGTERM, polls for exit, and escalates to SIGKILL once
the grace window elapses — the mandatory cancellation/timeout path described
for the process pool, since cooperative-only cancellation cannot bound how
long blocking user code runs.
*/
package lifecycle

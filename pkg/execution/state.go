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

package execution

// Status is the execution lifecycle state.
type Status string

const (
	StatusPending               Status = "PENDING"
	StatusRunning               Status = "RUNNING"
	StatusCancelling            Status = "CANCELLING" // control flag, not a stored terminal/non-terminal state
	StatusSuccess               Status = "SUCCESS"
	StatusCompletedWithErrors   Status = "COMPLETED_WITH_ERRORS"
	StatusFailed                Status = "FAILED"
	StatusTimeout               Status = "TIMEOUT"
	StatusCancelled             Status = "CANCELLED"
)

// terminalStatuses backs IsTerminal; once reached a status never changes
// (invariant I5).
var terminalStatuses = map[Status]bool{
	StatusSuccess:             true,
	StatusCompletedWithErrors: true,
	StatusFailed:              true,
	StatusTimeout:             true,
	StatusCancelled:           true,
}

// IsTerminal reports whether s is one of the five terminal statuses.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsActive reports whether s is PENDING or RUNNING — the only statuses that
// get a status-index row (Is), per invariant I2.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// validTransitions enumerates the state machine edges. CANCELLING
// is a request flag observed by the Consumer rather than a status stored on
// the record, so it is not a "from" state here — see consumer.Observe.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusCancelled: true,
		// A message that never reaches RUNNING — malformed beyond repair, or
		// a record store that keeps losing the race to mark it running —
		// still needs a way out once the queue gives up on redelivering it.
		StatusFailed: true,
	},
	StatusRunning: {
		StatusCancelled:           true,
		StatusTimeout:             true,
		StatusSuccess:             true,
		StatusCompletedWithErrors: true,
		StatusFailed:              true,
	},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge
// in the state machine. Terminal states accept no outgoing transition.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ClassifyResult implements the COMPLETED_WITH_ERRORS rule: a
// worker result is COMPLETED_WITH_ERRORS iff it is a JSON object containing
// an explicit `success: false`; otherwise a non-error result is SUCCESS.
func ClassifyResult(result any) Status {
	m, ok := result.(map[string]any)
	if !ok {
		return StatusSuccess
	}
	success, present := m["success"]
	if !present {
		return StatusSuccess
	}
	b, ok := success.(bool)
	if ok && !b {
		return StatusCompletedWithErrors
	}
	return StatusSuccess
}

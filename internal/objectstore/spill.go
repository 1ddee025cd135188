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

package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// SpillDecision is the outcome of evaluating invariant I3 against one
// execution's result.
type SpillDecision struct {
	// Inline holds the value as-is when it fits under the limit.
	Inline any
	// Spilled is true when the value was written to the store instead.
	Spilled bool
}

// SpillResult JSON-encodes result, and if it exceeds limitBytes (or if
// logs/variables were already recorded, forcing a spill regardless of
// size — the caller decides that precondition), writes it under
// ResultKind(resultType) and returns a decision with Inline == nil.
func SpillResult(ctx context.Context, store Store, executionID string, result any, resultType string, limitBytes int, forceSpill bool) (SpillDecision, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return SpillDecision{}, fmt.Errorf("objectstore: marshal result for spill check: %w", err)
	}
	if !forceSpill && len(encoded) <= limitBytes {
		return SpillDecision{Inline: result}, nil
	}
	if err := store.Put(ctx, executionID, ResultKind(resultType), encoded); err != nil {
		return SpillDecision{}, err
	}
	return SpillDecision{Spilled: true}, nil
}

// SpillJSON marshals v and writes it under kind unconditionally; used for
// logs.json, variables.json, and snapshot.json, which invariant I3 always
// routes to the object store once they exist at all (the inline size
// threshold only gates the result field).
func SpillJSON(ctx context.Context, store Store, executionID string, kind Kind, v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("objectstore: marshal %s: %w", kind, err)
	}
	return store.Put(ctx, executionID, kind, encoded)
}

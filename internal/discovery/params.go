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

package discovery

import (
	"fmt"

	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"

	"github.com/tombee-labs/bifrost-engine/internal/script"
)

// ValidateParameters checks request-time parameter values against declared
// metadata: required fields must be present, and any Validation expression
// must evaluate truthy. Extras not declared in metadata are left alone —
// the dispatcher carries them on the execution context rather than
// rejecting them.
func ValidateParameters(params []Parameter, values map[string]any, engine *script.Engine) error {
	for _, p := range params {
		value, present := values[p.Name]
		if p.Required && (!present || value == nil) {
			return &bifrosterrors.ValidationError{
				Field:   p.Name,
				Message: "required parameter is missing",
			}
		}
		if !present || p.Validation == "" {
			continue
		}
		ok, err := engine.EvaluateCondition(p.Validation, values)
		if err != nil {
			return &bifrosterrors.ValidationError{
				Field:   p.Name,
				Message: fmt.Sprintf("validation expression error: %v", err),
			}
		}
		if !ok {
			return &bifrosterrors.ValidationError{
				Field:   p.Name,
				Message: "value failed parameter validation",
			}
		}
	}
	return nil
}

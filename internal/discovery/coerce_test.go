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

import "testing"

func TestCoerceParameters_IntAndBool(t *testing.T) {
	params := []Parameter{
		{Name: "count", Type: "int"},
		{Name: "enabled", Type: "bool"},
	}
	out := CoerceParameters(params, map[string]any{"count": "42", "enabled": "yes"}, nil)
	if out["count"] != 42 {
		t.Errorf("count = %v, want 42", out["count"])
	}
	if out["enabled"] != true {
		t.Errorf("enabled = %v, want true", out["enabled"])
	}
}

func TestCoerceParameters_BoolFalseForUnrecognizedString(t *testing.T) {
	params := []Parameter{{Name: "enabled", Type: "bool"}}
	out := CoerceParameters(params, map[string]any{"enabled": "nope"}, nil)
	if out["enabled"] != false {
		t.Errorf("enabled = %v, want false", out["enabled"])
	}
}

func TestCoerceParameters_FailedNumericKeepsRawValue(t *testing.T) {
	params := []Parameter{{Name: "count", Type: "int"}}
	out := CoerceParameters(params, map[string]any{"count": "not-a-number"}, nil)
	if out["count"] != "not-a-number" {
		t.Errorf("count = %v, want original string preserved", out["count"])
	}
}

func TestCoerceParameters_UndeclaredParameterPassesThrough(t *testing.T) {
	out := CoerceParameters(nil, map[string]any{"extra": "value"}, nil)
	if out["extra"] != "value" {
		t.Errorf("extra = %v, want value", out["extra"])
	}
}

func TestCoerceParameters_NonStringValuesPassThrough(t *testing.T) {
	params := []Parameter{{Name: "count", Type: "int"}}
	out := CoerceParameters(params, map[string]any{"count": 7}, nil)
	if out["count"] != 7 {
		t.Errorf("count = %v, want 7 unchanged", out["count"])
	}
}

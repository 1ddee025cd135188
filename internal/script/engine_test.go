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

package script

import "testing"

func TestEngine_EvaluateCondition_EmptyAlwaysPasses(t *testing.T) {
	e := New()
	ok, err := e.EvaluateCondition("", map[string]any{"x": 1})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want true/nil", ok, err)
	}
}

func TestEngine_EvaluateCondition_ReferencesParams(t *testing.T) {
	e := New()
	ok, err := e.EvaluateCondition("params.count > 10", map[string]any{"count": 42})
	if err != nil {
		t.Fatalf("EvaluateCondition() error = %v", err)
	}
	if !ok {
		t.Error("expected condition to pass for count=42")
	}

	ok, err = e.EvaluateCondition("params.count > 10", map[string]any{"count": 1})
	if err != nil {
		t.Fatalf("EvaluateCondition() error = %v", err)
	}
	if ok {
		t.Error("expected condition to fail for count=1")
	}
}

func TestEngine_EvaluateCondition_NonBoolIsError(t *testing.T) {
	e := New()
	_, err := e.EvaluateCondition("params.count + 1", map[string]any{"count": 1})
	if err == nil {
		t.Fatal("expected an error for a non-bool expression")
	}
}

func TestEngine_RunScript_EmptyIsSilentSuccess(t *testing.T) {
	e := New()
	out, err := e.RunScript(nil, nil)
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if out.Result.(map[string]any)["status"] != "completed" {
		t.Errorf("result = %+v, want canned success", out.Result)
	}
}

func TestEngine_RunScript_ReturnsValue(t *testing.T) {
	e := New()
	out, err := e.RunScript([]byte("params.x + params.y"), map[string]any{"x": 10, "y": 32})
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if out.Result != 42 {
		t.Errorf("result = %v, want 42", out.Result)
	}
}

func TestEngine_RunScript_CapturesVariables(t *testing.T) {
	e := New()
	out, err := e.RunScript([]byte(`ctx.capture("sum", params.x + params.y)`), map[string]any{"x": 1, "y": 2})
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if out.Variables["sum"] != 3 {
		t.Errorf("captured sum = %v, want 3", out.Variables["sum"])
	}
}

func TestEngine_RunScript_CompileErrorSurfaces(t *testing.T) {
	e := New()
	_, err := e.RunScript([]byte("params. +"), nil)
	if err == nil {
		t.Fatal("expected a compile error for malformed source")
	}
}

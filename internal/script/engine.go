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

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Outcome is the result of running an inline script.
type Outcome struct {
	Result    any
	Variables map[string]any
}

// Engine compiles and runs expressions, caching compiled programs the same
// way across repeated calls with the same source text. Conditions and
// scripts are cached separately since they compile under different type
// constraints (AsBool for conditions, none for scripts).
type Engine struct {
	mu             sync.RWMutex
	conditionCache map[string]*vm.Program
	scriptCache    map[string]*vm.Program
}

// New creates an Engine with empty caches.
func New() *Engine {
	return &Engine{
		conditionCache: make(map[string]*vm.Program),
		scriptCache:    make(map[string]*vm.Program),
	}
}

// conditionEnv is the compile-time type template for parameter.validation
// expressions: just the parameter values, nothing else in scope.
var conditionEnv = map[string]any{
	"params": map[string]any{},
}

// EvaluateCondition runs a parameter's validation expression against the
// coerced parameter values and reports whether it passed. An empty
// expression always passes.
func (e *Engine) EvaluateCondition(expression string, params map[string]any) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return true, nil
	}

	e.mu.RLock()
	program, ok := e.conditionCache[expression]
	e.mu.RUnlock()
	if !ok {
		compiled, err := expr.Compile(expression, expr.Env(conditionEnv), expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("script: compile validation expression: %w", err)
		}
		e.mu.Lock()
		e.conditionCache[expression] = compiled
		e.mu.Unlock()
		program = compiled
	}

	result, err := expr.Run(program, map[string]any{"params": params})
	if err != nil {
		return false, fmt.Errorf("script: run validation expression: %w", err)
	}
	passed, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("script: validation expression returned %T, want bool", result)
	}
	return passed, nil
}

// scriptEnv is the compile-time type template for inline scripts: the
// caller's parameters plus the cooperative capture context.
var scriptEnv = map[string]any{
	"params": map[string]any{},
	"ctx":    &Context{},
}

// RunScript evaluates an already base64-decoded inline script. The
// decoded source is the expression itself; the worker runtime is
// responsible for the base64 decode since Execution.InlineCode already
// carries decoded bytes (see the data model). An empty or purely
// side-effecting script (one whose final expression evaluates to nil)
// defaults to the canned silent-success outcome.
func (e *Engine) RunScript(source []byte, params map[string]any) (*Outcome, error) {
	expression := strings.TrimSpace(string(source))
	if expression == "" {
		return &Outcome{Result: defaultSuccessResult()}, nil
	}

	e.mu.RLock()
	program, ok := e.scriptCache[expression]
	e.mu.RUnlock()
	if !ok {
		compiled, err := expr.Compile(expression, expr.Env(scriptEnv), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("script: compile: %w", err)
		}
		e.mu.Lock()
		e.scriptCache[expression] = compiled
		e.mu.Unlock()
		program = compiled
	}

	ctx := newContext()
	result, err := expr.Run(program, map[string]any{"params": params, "ctx": ctx})
	if err != nil {
		return nil, fmt.Errorf("script: run: %w", err)
	}
	if result == nil {
		result = defaultSuccessResult()
	}
	return &Outcome{Result: result, Variables: ctx.snapshot()}, nil
}

func defaultSuccessResult() map[string]any {
	return map[string]any{"status": "completed", "message": "Script executed successfully"}
}

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

import "sync"

// Context is the cooperative capture API a running script calls instead of
// relying on frame introspection: ctx.capture("name", value). Capture
// returns its value argument so a script can capture and use a value in the
// same expression.
type Context struct {
	mu        sync.Mutex
	variables map[string]any
}

func newContext() *Context {
	return &Context{variables: make(map[string]any)}
}

// Capture records name/value as a captured variable and returns value
// unchanged.
func (c *Context) Capture(name string, value any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[name] = value
	return value
}

func (c *Context) snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

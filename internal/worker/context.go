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

package worker

import (
	"sync"

	"github.com/tombee-labs/bifrost-engine/pkg/execution"
)

// Context is the ctx argument every registered discovery.Func receives. It
// carries everything the execution request fields describe beyond the
// declared parameters themselves, plus the cooperative Capture API that
// stands in for frame inspection.
type Context struct {
	ExecutionID     string
	Scope           string
	Caller          execution.Caller
	OrganizationID  string
	Config          map[string]any
	IsPlatformAdmin bool
	Transient       bool

	// Extra holds request parameters not declared in the function's
	// metadata. They are never merged into Parameters passed to the
	// function and never touch any process-wide state — only this one
	// execution's Context exposes them.
	Extra map[string]any

	mu        sync.Mutex
	variables map[string]any
	logs      []execution.LogEntry
}

func newContext(req *Request) *Context {
	return &Context{
		ExecutionID:     req.ExecutionID,
		Scope:           req.scope(),
		Caller:          req.Caller,
		OrganizationID:  req.Organization,
		Config:          req.Config,
		IsPlatformAdmin: req.IsPlatformAdmin,
		Transient:       req.Transient,
		Extra:           map[string]any{},
		variables:       map[string]any{},
	}
}

// Capture records name/value as a captured variable, mirroring
// internal/script.Context's cooperative capture API, and returns value
// unchanged so a caller can capture and use it in one expression.
func (c *Context) Capture(name string, value any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[name] = value
	return value
}

// Log is the cooperative logging API user code calls in place of the
// frame-attached logging-sink interception would need: Go has no
// process-wide hook to intercept arbitrary log calls by source file, so a
// registered function logs by calling ctx.Log directly and the entry is
// captured here for the runtime to sequence, persist, and broadcast once
// the function returns.
func (c *Context) Log(level execution.LogLevel, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, execution.LogEntry{
		ExecutionID: c.ExecutionID,
		Level:       level,
		Message:     message,
		Source:      execution.LogSourceWorkflow,
	})
}

func (c *Context) takeLogs() []execution.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.logs
	c.logs = nil
	return out
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

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
	"sync"

	bifrosterrors "github.com/tombee-labs/bifrost-engine/pkg/errors"
)

// Func is the signature every registered workflow or data-provider
// function implements. ctx carries the execution context (caller,
// organization config, "extra" undeclared parameters — see
// internal/worker); params carries the declared, coerced parameters.
type Func func(ctx any, params map[string]any) (any, error)

// Entry pairs a manifest with the Go function it was resolved to at
// registration time.
type Entry struct {
	Metadata Metadata
	Func     Func
}

// Registry holds every workflow and data-provider discovered in the
// workspace, keyed by name within its Kind. Registration happens once at
// startup (building binaries can't load code at runtime the way the
// source ecosystem does); re-scans only refresh Metadata, never Func.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*Entry
	providers map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string]*Entry),
		providers: make(map[string]*Entry),
	}
}

func (r *Registry) table(kind Kind) map[string]*Entry {
	if kind == KindDataProvider {
		return r.providers
	}
	return r.workflows
}

// Register binds fn to the manifest-declared name. Called once per
// compiled-in function at process startup.
func (r *Registry) Register(meta Metadata, fn Func) error {
	if meta.Name == "" {
		return fmt.Errorf("discovery: cannot register a function with an empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table(meta.Kind)[meta.Name] = &Entry{Metadata: meta, Func: fn}
	return nil
}

// Lookup resolves name within kind. Returns WorkflowNotFoundError (wrapped
// as the standard error interface) when absent.
func (r *Registry) Lookup(kind Kind, name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.table(kind)[name]
	if !ok {
		return nil, &bifrosterrors.WorkflowNotFoundError{Name: name, Kind: string(kind)}
	}
	return e, nil
}

// RefreshMetadata replaces the Metadata half of every already-registered
// entry whose name appears in discovered, leaving Func untouched. Entries
// discovered by manifest scan with no matching registered function are
// dropped silently — they describe workspace files not yet wired to a
// compiled handler.
func (r *Registry) RefreshMetadata(discovered []Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, meta := range discovered {
		if e, ok := r.table(meta.Kind)[meta.Name]; ok {
			e.Metadata = meta
		}
	}
}

// Workflows returns every registered workflow's metadata.
func (r *Registry) Workflows() []Metadata {
	return r.list(r.workflows)
}

// DataProviders returns every registered data provider's metadata.
func (r *Registry) DataProviders() []Metadata {
	return r.list(r.providers)
}

func (r *Registry) list(table map[string]*Entry) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(table))
	for _, e := range table {
		out = append(out, e.Metadata)
	}
	return out
}

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

// Package discovery scans a workspace tree for workflow and data-provider
// manifests. A compiled target cannot reflect decorated functions the
// way a dynamic runtime does, so the marker this package looks for is a
// YAML manifest file declaring one workflow or data provider per document,
// with the registered Go function resolved by name at startup
// registration time (see Registry.Register).
package discovery

import "fmt"

// Kind distinguishes a workflow manifest from a data-provider manifest.
type Kind string

const (
	KindWorkflow     Kind = "workflow"
	KindDataProvider Kind = "data_provider"
)

// allowedParameterTypes is the fixed set parameter types are checked
// against.
var allowedParameterTypes = map[string]bool{
	"string": true, "int": true, "float": true, "bool": true,
	"email": true, "url": true, "date": true, "json": true,
}

// Parameter describes one declared workflow/data-provider parameter.
type Parameter struct {
	Name         string `yaml:"name" json:"name" validate:"required"`
	Type         string `yaml:"type" json:"type" validate:"required"`
	Required     bool   `yaml:"required" json:"required"`
	DefaultValue any    `yaml:"default_value,omitempty" json:"default_value,omitempty"`
	HelpText     string `yaml:"help_text,omitempty" json:"help_text,omitempty"`
	// Validation is an expr-lang expression evaluated against all the
	// coerced parameter values, exposed as params (e.g. "params.count > 0");
	// a falsy result rejects the parameter.
	Validation string `yaml:"validation,omitempty" json:"validation,omitempty"`
}

// Metadata is the manifest document for one workflow or data provider.
type Metadata struct {
	Kind            Kind        `yaml:"kind" json:"kind" validate:"required"`
	Name            string      `yaml:"name" json:"name" validate:"required"`
	Description     string      `yaml:"description" json:"description" validate:"required"`
	Category        string      `yaml:"category,omitempty" json:"category,omitempty"`
	Tags            []string    `yaml:"tags,omitempty" json:"tags,omitempty"`
	ExecutionMode   string      `yaml:"execution_mode,omitempty" json:"execution_mode,omitempty"`
	TimeoutSeconds  int         `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Parameters      []Parameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	EndpointEnabled bool        `yaml:"endpoint_enabled,omitempty" json:"endpoint_enabled,omitempty"`
	AllowedMethods  []string    `yaml:"allowed_methods,omitempty" json:"allowed_methods,omitempty"`

	// SourcePath is the manifest file this metadata was loaded from; set by
	// the scanner, never present in the YAML itself.
	SourcePath string `yaml:"-" json:"-"`
}

// Severity enumerates how serious a validation issue is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one problem found validating a manifest.
type Issue struct {
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the structured validation outcome.
type Result struct {
	Valid    bool      `json:"valid"`
	Issues   []Issue   `json:"issues,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s (line %d)", i.Severity, i.Message, i.Line)
}

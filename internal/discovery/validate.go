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
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var nameRegexp = regexp.MustCompile(`^[a-z0-9_]+$`)

var structValidator = validator.New()

// ValidateManifest runs the full validation pipeline against raw manifest bytes,
// read fresh from disk by the caller (no cached copy is ever reused,
// mirroring the source system's "no stale module cache" requirement).
func ValidateManifest(raw []byte, sourcePath string) Result {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Result{Valid: false, Issues: []Issue{{Message: fmt.Sprintf("syntax error: %v", err), Severity: SeverityError}}}
	}

	var meta Metadata
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return Result{Valid: false, Issues: []Issue{{Message: fmt.Sprintf("failed to parse manifest: %v", err), Severity: SeverityError}}}
	}
	meta.SourcePath = sourcePath

	if meta.Kind != KindWorkflow && meta.Kind != KindDataProvider {
		return Result{Valid: false, Issues: []Issue{{
			Message:  fmt.Sprintf("missing or unrecognized kind marker %q; expected %q or %q", meta.Kind, KindWorkflow, KindDataProvider),
			Severity: SeverityError,
		}}}
	}

	var issues []Issue
	if !nameRegexp.MatchString(meta.Name) {
		issues = append(issues, Issue{Message: fmt.Sprintf("name %q must match ^[a-z0-9_]+$", meta.Name), Severity: SeverityError})
	}
	if meta.Description == "" {
		issues = append(issues, Issue{Message: "description is required", Severity: SeverityError})
	}

	if meta.Kind == KindWorkflow {
		switch meta.ExecutionMode {
		case "", "sync", "async":
		default:
			issues = append(issues, Issue{Message: fmt.Sprintf("execution_mode %q must be sync or async", meta.ExecutionMode), Severity: SeverityError})
		}
		if meta.TimeoutSeconds != 0 && (meta.TimeoutSeconds < 1 || meta.TimeoutSeconds > 7200) {
			issues = append(issues, Issue{Message: fmt.Sprintf("timeout_seconds %d must be in [1, 7200]", meta.TimeoutSeconds), Severity: SeverityError})
		}
	}

	for _, p := range meta.Parameters {
		if p.Name == "" {
			issues = append(issues, Issue{Message: "parameter missing name", Severity: SeverityError})
			continue
		}
		if !allowedParameterTypes[p.Type] {
			issues = append(issues, Issue{Message: fmt.Sprintf("parameter %q has unsupported type %q", p.Name, p.Type), Severity: SeverityError})
		}
	}

	if err := structValidator.Struct(&meta); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			issues = append(issues, Issue{Message: fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()), Severity: SeverityError})
		}
	}

	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return Result{Valid: false, Issues: issues}
		}
	}
	return Result{Valid: true, Issues: issues, Metadata: &meta}
}

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
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Scanner walks a set of workspace roots looking for files matching
// Patterns, reading each one fresh off disk (no cache) and validating it
// as a manifest.
type Scanner struct {
	WorkspaceDirs []string
	Patterns      []string
}

// ScanIssue pairs a validation issue with the file it came from.
type ScanIssue struct {
	Path  string
	Issue Issue
}

// Scan walks every workspace directory, matches files against Patterns,
// and validates each match. Matched-but-invalid files contribute to
// issues rather than aborting the scan, so one bad manifest does not hide
// the rest of the workspace.
func (s *Scanner) Scan() (valid []Metadata, issues []ScanIssue, err error) {
	for _, root := range s.WorkspaceDirs {
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			if !s.matches(rel, path) {
				return nil
			}

			raw, readErr := os.ReadFile(path)
			if readErr != nil {
				issues = append(issues, ScanIssue{Path: path, Issue: Issue{Message: fmt.Sprintf("read failed: %v", readErr), Severity: SeverityError}})
				return nil
			}
			result := ValidateManifest(raw, path)
			if !result.Valid {
				for _, iss := range result.Issues {
					issues = append(issues, ScanIssue{Path: path, Issue: iss})
				}
				return nil
			}
			valid = append(valid, *result.Metadata)
			return nil
		})
		if walkErr != nil && !os.IsNotExist(walkErr) {
			return valid, issues, fmt.Errorf("discovery: walk %s: %w", root, walkErr)
		}
	}
	return valid, issues, nil
}

func (s *Scanner) matches(relPath, fullPath string) bool {
	for _, pattern := range s.Patterns {
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, filepath.Base(fullPath)); matched {
			return true
		}
	}
	return false
}

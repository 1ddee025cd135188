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
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write manifest %s: %v", name, err)
	}
}

func TestScanner_Scan_FindsValidManifestsAndCollectsIssues(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "sum.workflow.yaml", "kind: workflow\nname: sum_two\ndescription: adds\n")
	writeManifest(t, dir, "broken.workflow.yaml", "kind: workflow\nname: Bad-Name\ndescription: x\n")
	writeManifest(t, dir, "notes.txt", "not a manifest")

	s := &Scanner{WorkspaceDirs: []string{dir}, Patterns: []string{"**/*.workflow.yaml"}}
	valid, issues, err := s.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(valid) != 1 || valid[0].Name != "sum_two" {
		t.Fatalf("valid = %+v, want exactly sum_two", valid)
	}
	if len(issues) == 0 {
		t.Fatal("expected at least one issue from broken.workflow.yaml")
	}
}

func TestScanner_Scan_MissingDirectoryIsNotFatal(t *testing.T) {
	s := &Scanner{WorkspaceDirs: []string{"/nonexistent/path/does/not/exist"}, Patterns: []string{"**/*.yaml"}}
	valid, issues, err := s.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(valid) != 0 || len(issues) != 0 {
		t.Fatalf("expected empty results for missing directory, got valid=%v issues=%v", valid, issues)
	}
}

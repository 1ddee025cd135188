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

package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestFSStore_PutGet(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "exec-1", KindLogs, []byte(`[{"message":"hi"}]`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	data, err := s.Get(ctx, "exec-1", KindLogs)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `[{"message":"hi"}]` {
		t.Errorf("data = %s", data)
	}

	exists, err := s.Exists(ctx, "exec-1", KindLogs)
	if err != nil || !exists {
		t.Errorf("exists = %v, %v, want true, nil", exists, err)
	}
}

func TestFSStore_Get_NotExist(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	_, err := s.Get(context.Background(), "exec-missing", KindVariables)
	if !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestFSStore_GetReader(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	ctx := context.Background()
	if err := s.Put(ctx, "exec-2", KindSnapshot, []byte("snapshot-data")); err != nil {
		t.Fatalf("put: %v", err)
	}

	r, err := s.GetReader(ctx, "exec-2", KindSnapshot)
	if err != nil {
		t.Fatalf("get reader: %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if !bytes.Equal(data, []byte("snapshot-data")) {
		t.Errorf("data = %s", data)
	}
}

func TestSpillResult_InlineUnderLimit(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	decision, err := SpillResult(context.Background(), s, "exec-3", map[string]any{"ok": true}, "json", 1024, false)
	if err != nil {
		t.Fatalf("spill result: %v", err)
	}
	if decision.Spilled {
		t.Fatal("expected a small result to stay inline")
	}
}

func TestSpillResult_SpillsOverLimit(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	big := make(map[string]any, 200)
	for i := 0; i < 200; i++ {
		big[string(rune('a'+i%26))+string(rune(i))] = "padding-value-to-exceed-the-inline-limit"
	}

	decision, err := SpillResult(context.Background(), s, "exec-4", big, "json", 64, false)
	if err != nil {
		t.Fatalf("spill result: %v", err)
	}
	if !decision.Spilled {
		t.Fatal("expected an oversized result to spill")
	}

	exists, err := s.Exists(context.Background(), "exec-4", ResultKind("json"))
	if err != nil || !exists {
		t.Errorf("exists = %v, %v, want true, nil", exists, err)
	}
}

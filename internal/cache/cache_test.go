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

package cache

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestKey_EmptyParametersCollapse(t *testing.T) {
	key, err := Key("GLOBAL", "list-regions", nil)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if key != "GLOBAL:list-regions" {
		t.Errorf("key = %q, want GLOBAL:list-regions", key)
	}
}

func TestKey_StableAcrossMapOrdering(t *testing.T) {
	a, err := Key("GLOBAL", "lookup", map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("key a: %v", err)
	}
	b, err := Key("GLOBAL", "lookup", map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("key b: %v", err)
	}
	if a != b {
		t.Errorf("keys differ by map construction order: %q vs %q", a, b)
	}
}

func TestCache_GetSet_TTLExpiry(t *testing.T) {
	c := New()
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	c.Set("k", "v", time.Second)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("get = %v, %v, want v, true", v, ok)
	}

	fakeNow = fakeNow.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to be expired")
	}
}

func TestCache_GetWithExpiry_ReturnsExpiryFromSet(t *testing.T) {
	c := New()
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	wantExpiry := c.Set("k", "v", time.Minute)
	v, expiresAt, ok := c.GetWithExpiry("k")
	if !ok || v != "v" {
		t.Fatalf("get = %v, %v, want v, true", v, ok)
	}
	if !expiresAt.Equal(wantExpiry) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, wantExpiry)
	}
}

func TestCache_GetOrLoad_CollapsesConcurrentLoads(t *testing.T) {
	c := New()
	var calls int32

	load := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return "computed", nil
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			c.GetOrLoad("shared-key", time.Minute, load)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("load ran %d times, want exactly 1", got)
	}
	v, ok := c.Get("shared-key")
	if !ok || v != "computed" {
		t.Fatalf("get = %v, %v, want computed, true", v, ok)
	}
}

func TestCache_Purge(t *testing.T) {
	c := New()
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	c.Set("expired", "v", time.Millisecond)
	c.Set("fresh", "v", time.Hour)
	fakeNow = fakeNow.Add(time.Second)

	removed := c.Purge()
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

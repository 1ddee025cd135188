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

// Package cache is the in-process result cache for data providers: a
// TTL map keyed by (scope, provider, input hash) that never survives a
// process restart. The worker runtime computes the key and calls
// this package to check and populate it; there is no core-mandated eviction
// policy beyond TTL expiry.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is one cached data-provider result.
type Entry struct {
	Data      any
	ExpiresAt time.Time
}

// Cache is a TTL map guarded by singleflight so concurrent lookups for the
// same key collapse into one computation instead of stampeding whatever
// backs Load.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	group   singleflight.Group
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry), now: time.Now}
}

// Key builds the cache key for a (scope, provider, parameters) triple:
// sha256 of the JSON-sorted parameters, truncated to 16 hex chars.
// Empty parameters collapse the key to "{scope}:{provider}" with no hash
// suffix.
func Key(scope, provider string, parameters map[string]any) (string, error) {
	if len(parameters) == 0 {
		return fmt.Sprintf("%s:%s", scope, provider), nil
	}
	sorted, err := sortedJSON(parameters)
	if err != nil {
		return "", fmt.Errorf("cache: encode parameters: %w", err)
	}
	sum := sha256.Sum256(sorted)
	return fmt.Sprintf("%s:%s:%s", scope, provider, hex.EncodeToString(sum[:])[:16]), nil
}

// sortedJSON marshals m with keys in sorted order so the hash is stable
// across calls with the same logical parameters but different map
// iteration order.
func sortedJSON(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].Key = k
		ordered[i].Value = m[k]
	}
	return json.Marshal(ordered)
}

// Get returns the cached value for key if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	data, _, ok := c.GetWithExpiry(key)
	return data, ok
}

// GetWithExpiry returns the cached value for key along with the time it
// expires at, if present and not expired.
func (c *Cache) GetWithExpiry(key string) (any, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.ExpiresAt) {
		return nil, time.Time{}, false
	}
	return e.Data, e.ExpiresAt, true
}

// Set stores data under key with the given TTL and returns the computed
// expiry time.
func (c *Cache) Set(key string, data any, ttl time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiresAt := c.now().Add(ttl)
	c.entries[key] = Entry{Data: data, ExpiresAt: expiresAt}
	return expiresAt
}

// GetOrLoad returns the cached value for key, or calls load exactly once
// across any concurrent callers sharing the same key, caching its result
// for ttl on success. load's error is never cached.
func (c *Cache) GetOrLoad(key string, ttl time.Duration, load func() (any, error)) (any, error, bool) {
	if v, ok := c.Get(key); ok {
		return v, nil, true
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if cached, ok := c.Get(key); ok {
			return cached, nil
		}
		data, err := load()
		if err != nil {
			return nil, err
		}
		c.Set(key, data, ttl)
		return data, nil
	})
	if err != nil {
		return nil, err, false
	}
	return v, nil, false
}

// Purge removes every expired entry. Callers may run this periodically;
// nothing in the core requires it since Get already treats expired entries
// as absent.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.ExpiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

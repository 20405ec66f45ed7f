// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultUsageStoreSize bounds the per-session usage cache.
const DefaultUsageStoreSize = 1000

// Usage is the last known token-usage statistics for a session, written by
// the response-completion path after each turn and read before the next
// request's own token count is known.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// Sum returns the combined usage relevant for long-context routing.
func (u Usage) Sum() int {
	return u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// UsageStore is a bounded LRU cache of per-session usage. Safe for
// concurrent use; each turn overwrites the previous entry.
type UsageStore struct {
	entries *lru.Cache[string, Usage]
}

// NewUsageStore creates a store bounded at size entries.
func NewUsageStore(size int) *UsageStore {
	if size < 1 {
		size = DefaultUsageStoreSize
	}
	entries, _ := lru.New[string, Usage](size)
	return &UsageStore{entries: entries}
}

// Get returns the last recorded usage for a session.
func (s *UsageStore) Get(sessionID string) (Usage, bool) {
	return s.entries.Get(sessionID)
}

// Set overwrites the usage for a session.
func (s *UsageStore) Set(sessionID string, usage Usage) {
	s.entries.Add(sessionID, usage)
}

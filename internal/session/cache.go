// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package session resolves session identifiers to projects and tracks
// per-session token usage across turns.
package session

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultProjectCacheSize bounds the session-to-project cache.
const DefaultProjectCacheSize = 1000

// projectEntry is a cached resolution result. Found=false is the negative
// marker: the session was probed and no project matched. Caching negatives
// avoids repeating an expensive directory scan for sessions with no project.
type projectEntry struct {
	Project string
	Found   bool
}

// ProjectCache is a bounded least-recently-used map from session identifier
// to resolved project name or negative marker. Safe for concurrent use;
// population races are tolerated (last writer wins, results are idempotent).
type ProjectCache struct {
	entries *lru.Cache[string, projectEntry]
}

// NewProjectCache creates a cache bounded at size entries. Size values
// below 1 fall back to DefaultProjectCacheSize.
func NewProjectCache(size int) *ProjectCache {
	if size < 1 {
		size = DefaultProjectCacheSize
	}
	entries, _ := lru.New[string, projectEntry](size)
	return &ProjectCache{entries: entries}
}

// Get returns the cached resolution for a session id.
// cached=false means the session has not been probed yet; found=false with
// cached=true is a cached negative result.
func (c *ProjectCache) Get(sessionID string) (project string, found, cached bool) {
	entry, ok := c.entries.Get(sessionID)
	if !ok {
		return "", false, false
	}
	return entry.Project, entry.Found, true
}

// Put records a positive resolution.
func (c *ProjectCache) Put(sessionID, project string) {
	c.entries.Add(sessionID, projectEntry{Project: project, Found: true})
}

// PutNegative records that the session was probed and no project matched.
func (c *ProjectCache) PutNegative(sessionID string) {
	c.entries.Add(sessionID, projectEntry{})
}

// Len returns the number of cached resolutions.
func (c *ProjectCache) Len() int {
	return c.entries.Len()
}

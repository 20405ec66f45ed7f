// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Resolver maps a session identifier to the project whose directory contains
// the session artifact <sessionID>.jsonl. Results, positive and negative,
// are cached; a miss triggers a concurrent probe of every project directory.
//
// Concurrent resolutions of the same unresolved session each perform a full
// scan; the probe is read-only and idempotent, so the duplicated work is
// accepted instead of coalescing in-flight requests.
type Resolver struct {
	projectsDir string
	cache       *ProjectCache
}

// NewResolver creates a resolver over the projects root directory.
func NewResolver(projectsDir string, cache *ProjectCache) *Resolver {
	if cache == nil {
		cache = NewProjectCache(DefaultProjectCacheSize)
	}
	return &Resolver{projectsDir: projectsDir, cache: cache}
}

// Resolve returns the project associated with the session id, if any.
// Resolution failure is never fatal: listing errors are logged and cached as
// negative so a persistent failure does not hot-loop the scan.
func (r *Resolver) Resolve(ctx context.Context, sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}
	// The id comes from client metadata; never let it traverse paths.
	if strings.ContainsAny(sessionID, `/\`) || strings.Contains(sessionID, "..") {
		log.Warnf("refusing to probe suspicious session id %q", sessionID)
		return "", false
	}

	if project, found, cached := r.cache.Get(sessionID); cached {
		return project, found
	}

	names, err := r.listProjects()
	if err != nil {
		log.Warnf("failed to list projects directory %s: %v", r.projectsDir, err)
		r.cache.PutNegative(sessionID)
		return "", false
	}

	// Probe every project directory concurrently. Each check is a pure
	// read; results land in per-index slots, so no lock is needed.
	matches := make([]bool, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			artifact := filepath.Join(r.projectsDir, name, sessionID+".jsonl")
			if info, err := os.Stat(artifact); err == nil && !info.IsDir() {
				matches[i] = true
			}
		}(i, name)
	}
	wg.Wait()

	// First directory in scan order wins.
	for i, matched := range matches {
		if matched {
			r.cache.Put(sessionID, names[i])
			log.Debugf("session %s resolved to project %s", sessionID, names[i])
			return names[i], true
		}
	}

	r.cache.PutNegative(sessionID)
	return "", false
}

// listProjects returns the project directory names in scan order.
func (r *Resolver) listProjects() ([]string, error) {
	entries, err := os.ReadDir(r.projectsDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Policy scope names, reported alongside the effective policy for logging.
const (
	ScopeSession = "session"
	ScopeProject = "project"
	ScopeGlobal  = "global"
)

// overrideFile is the on-disk shape of a project or session policy override.
// Only the router block participates in layering.
type overrideFile struct {
	Router RouterPolicy `yaml:"router"`
}

// PolicyResolver layers per-session and per-project policy override files on
// top of the global router policy. Override files live under the home config
// root at projects/<project>/<sessionID>.yaml and projects/<project>/config.yaml.
type PolicyResolver struct {
	homeDir string
}

// NewPolicyResolver creates a resolver rooted at the home config directory.
func NewPolicyResolver(homeDir string) *PolicyResolver {
	return &PolicyResolver{homeDir: homeDir}
}

// Effective returns the router policy for the given project and session,
// together with the scope it came from.
//
// Sources are tried in order: session override file, project override file,
// global policy. The first source that exists, parses, and carries a
// non-empty router block wins wholesale; there is no field-level merge
// across scopes. Missing or unparseable override files fall through
// silently, since overrides are optional.
//
// Callers that need the background/title-summary targets must keep using the
// global policy regardless of what this returns; those scenarios are
// operational concerns and are never overridden per project or session.
func (r *PolicyResolver) Effective(global RouterPolicy, project, sessionID string) (RouterPolicy, string) {
	if project != "" {
		if sessionID != "" {
			if p, ok := r.readOverride(filepath.Join(r.homeDir, "projects", project, sessionID+".yaml")); ok {
				return p, ScopeSession
			}
		}
		if p, ok := r.readOverride(filepath.Join(r.homeDir, "projects", project, "config.yaml")); ok {
			return p, ScopeProject
		}
	}
	return global, ScopeGlobal
}

// readOverride loads one override file. Every failure mode (missing file,
// read error, parse error, empty router block) is reported as "no override".
func (r *PolicyResolver) readOverride(path string) (RouterPolicy, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RouterPolicy{}, false
	}
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return RouterPolicy{}, false
	}
	if f.Router.IsZero() {
		return RouterPolicy{}, false
	}
	return f.Router, true
}

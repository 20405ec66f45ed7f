// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the switchRoute server.
// It handles loading and parsing YAML configuration files and provides structured
// access to providers, the scenario router policy, and the layered per-project
// and per-session policy overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultLongContextThreshold is the token count above which a request is
// routed to the long-context target when no threshold is configured.
const DefaultLongContextThreshold = 60000

// Provider describes one upstream backend and the models it declares.
// Name and model comparisons are case-insensitive everywhere; the declared
// casing here is the canonical one.
type Provider struct {
	// Name identifies the provider in "provider,model" routing targets.
	Name string `yaml:"name" json:"name"`

	// APIBaseURL is the upstream endpoint requests are forwarded to.
	APIBaseURL string `yaml:"api-base-url" json:"api-base-url"`

	// APIKey is the credential attached to forwarded requests, if any.
	APIKey string `yaml:"api-key,omitempty" json:"-"`

	// Models lists the model identifiers this provider declares.
	Models []string `yaml:"models" json:"models"`
}

// RouterPolicy maps each routing scenario to an optional "provider,model"
// target. An empty target means the scenario is not configured and the
// decision chain falls through to the next rule.
type RouterPolicy struct {
	Default      string `yaml:"default" json:"default"`
	Background   string `yaml:"background" json:"background"`
	TitleSummary string `yaml:"title-summary" json:"title-summary"`
	Think        string `yaml:"think" json:"think"`
	LongContext  string `yaml:"long-context" json:"long-context"`
	WebSearch    string `yaml:"web-search" json:"web-search"`

	// LongContextThreshold is the token count above which the long-context
	// target applies. Zero means DefaultLongContextThreshold.
	LongContextThreshold int `yaml:"long-context-threshold" json:"long-context-threshold"`
}

// IsZero reports whether no scenario target is configured at all. A policy
// override file with a zero router block is ignored during layering.
func (p RouterPolicy) IsZero() bool {
	return p.Default == "" && p.Background == "" && p.TitleSummary == "" &&
		p.Think == "" && p.LongContext == "" && p.WebSearch == ""
}

// Threshold returns the effective long-context threshold.
func (p RouterPolicy) Threshold() int {
	if p.LongContextThreshold > 0 {
		return p.LongContextThreshold
	}
	return DefaultLongContextThreshold
}

// ExprRule is an administrator-supplied routing rule evaluated before the
// built-in decision chain. Condition is an expr-lang expression over the
// routing environment; Target is the "provider,model" pair applied when the
// condition holds.
type ExprRule struct {
	Condition string `yaml:"condition" json:"condition"`
	Target    string `yaml:"target" json:"target"`
}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	Host string `yaml:"host" json:"-"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"-"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether logs go to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// Providers declares the upstream backends available for routing.
	Providers []Provider `yaml:"providers" json:"providers"`

	// Router is the global scenario routing policy. Project and session
	// override files may replace it wholesale for a request, but the
	// background and title-summary scenarios always consult this one.
	Router RouterPolicy `yaml:"router" json:"router"`

	// CustomRouterPath points at a Lua script that is offered every request
	// before the built-in decision chain runs.
	CustomRouterPath string `yaml:"custom-router" json:"custom-router"`

	// RouterRules are expression-based routing overrides, evaluated in order
	// before the built-in chain when no Lua router is configured.
	RouterRules []ExprRule `yaml:"router-rules" json:"router-rules"`

	// HomeConfigDir is the root holding per-project and per-session policy
	// override files. Default: ~/.switchroute.
	HomeConfigDir string `yaml:"home-config-dir" json:"-"`

	// ProjectsDir is the root scanned for session artifacts
	// (<sessionID>.jsonl) when resolving a session to a project.
	// Default: ~/.claude/projects, matching the client's layout.
	ProjectsDir string `yaml:"projects-dir" json:"-"`

	// CustomSystemPrompt, when set, replaces the text of a system entry
	// carrying the environment-context marker before forwarding.
	CustomSystemPrompt string `yaml:"custom-system-prompt" json:"-"`
}

// LoadConfig reads and parses the YAML configuration file at the given path,
// filling directory defaults relative to the user's home directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadConfigOptional behaves like LoadConfig but treats a missing file as an
// empty configuration rather than an error.
func LoadConfigOptional(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = &Config{}
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 3456
	}
	home, err := os.UserHomeDir()
	if err != nil {
		wd, _ := os.Getwd()
		home = wd
	}
	if c.HomeConfigDir == "" {
		c.HomeConfigDir = filepath.Join(home, ".switchroute")
	}
	if c.ProjectsDir == "" {
		c.ProjectsDir = filepath.Join(home, ".claude", "projects")
	}
}

// FindProvider returns the provider with the given name, matched
// case-insensitively against the declared providers.
func (c *Config) FindProvider(name string) (*Provider, bool) {
	for i := range c.Providers {
		if strings.EqualFold(c.Providers[i].Name, name) {
			return &c.Providers[i], true
		}
	}
	return nil, false
}

// CanonicalTarget resolves a "provider,model" pair case-insensitively against
// the declared providers and models. When both halves are known it returns
// the pair in the declared casing and true; otherwise it returns the input
// unchanged and false.
func (c *Config) CanonicalTarget(pair string) (string, bool) {
	providerName, modelName, ok := SplitTarget(pair)
	if !ok {
		return pair, false
	}
	provider, found := c.FindProvider(providerName)
	if !found {
		return pair, false
	}
	for _, m := range provider.Models {
		if strings.EqualFold(m, modelName) {
			return provider.Name + "," + m, true
		}
	}
	return pair, false
}

// SplitTarget splits a "provider,model" pair at the first comma. The model
// half keeps any further commas.
func SplitTarget(pair string) (provider, model string, ok bool) {
	idx := strings.Index(pair, ",")
	if idx <= 0 || idx == len(pair)-1 {
		return "", "", false
	}
	return strings.TrimSpace(pair[:idx]), strings.TrimSpace(pair[idx+1:]), true
}

// Service provides concurrent read access to the live configuration and
// atomic replacement on reload. Construct it once at startup and pass it by
// reference; there is no hidden global.
type Service struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewService wraps an already loaded configuration.
func NewService(cfg *Config) *Service {
	return &Service{cfg: cfg}
}

// Config returns the current configuration snapshot pointer. Callers must
// treat the returned value as read-only.
func (s *Service) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Replace swaps in a newly loaded configuration.
func (s *Service) Replace(cfg *Config) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchRoute/internal/config"
	"github.com/traylinx/switchRoute/internal/session"
)

// envContextMarker tags the system entry whose text is replaced by the
// administrator-supplied system prompt before forwarding.
const envContextMarker = "<env>"

// TokenCounter estimates the token footprint of a request. Implementations
// must never panic outward; a failed estimate is reported as 0.
type TokenCounter interface {
	Count(req *Request) int
}

// CustomRouter is administrator-supplied routing logic consulted before the
// built-in decision chain. A non-empty model return is used verbatim; an
// empty return or an error falls back to the built-in chain.
type CustomRouter interface {
	Name() string
	Route(ctx context.Context, req *Request, cfg *config.Config) (string, error)
}

// Engine is the scenario routing engine. Construct it once at startup and
// share it across requests; all per-request state lives on the Request.
type Engine struct {
	service  *config.Service
	policies *config.PolicyResolver
	sessions *session.Resolver
	usage    *session.UsageStore
	counter  TokenCounter
	custom   []CustomRouter
}

// Options collects the engine's collaborators. Sessions, Usage, Counter,
// and Custom are optional; a nil collaborator disables its concern without
// affecting the rest of the chain.
type Options struct {
	Service  *config.Service
	Policies *config.PolicyResolver
	Sessions *session.Resolver
	Usage    *session.UsageStore
	Counter  TokenCounter
	Custom   []CustomRouter
}

// NewEngine creates the routing engine.
func NewEngine(opts Options) *Engine {
	policies := opts.Policies
	if policies == nil {
		policies = config.NewPolicyResolver(opts.Service.Config().HomeConfigDir)
	}
	return &Engine{
		service:  opts.Service,
		policies: policies,
		sessions: opts.Sessions,
		usage:    opts.Usage,
		counter:  opts.Counter,
		custom:   opts.Custom,
	}
}

// Route makes the routing decision for one request, mutating Model,
// Scenario, and TokenCount in place. It never fails the request: any
// uncaught error degrades to the default scenario and the global default
// model, and every outcome leaves a non-empty Scenario behind.
func (e *Engine) Route(ctx context.Context, req *Request) {
	cfg := e.service.Config()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("routing failed, falling back to default: %v", r)
			req.Scenario = ScenarioDefault
			if cfg.Router.Default != "" {
				req.Model = cfg.Router.Default
			}
		}
	}()

	if req.SessionID == "" {
		req.SessionID = SessionIDFromMetadata(req.Metadata.UserID)
	}

	var lastUsage session.Usage
	if e.usage != nil && req.SessionID != "" {
		lastUsage, _ = e.usage.Get(req.SessionID)
	}

	e.rewriteEnvContext(req, cfg)

	req.TokenCount = e.countTokens(req)

	if model, ok := e.tryCustomRouters(ctx, req, cfg); ok {
		req.Model = model
		req.Scenario = ScenarioDefault
		log.Infof("custom router selected %s for session %s", model, req.SessionID)
		return
	}

	project := ""
	if e.sessions != nil && req.SessionID != "" {
		project, _ = e.sessions.Resolve(ctx, req.SessionID)
	}
	effective, scope := e.policies.Effective(cfg.Router, project, req.SessionID)

	subagentModel, subagentOK := extractSubagentTarget(req, cfg)

	model, scenario, ruleName := decide(&decision{
		req:           req,
		cfg:           cfg,
		effective:     effective,
		global:        cfg.Router,
		tokenCount:    req.TokenCount,
		lastUsage:     lastUsage,
		subagentModel: subagentModel,
		subagentOK:    subagentOK,
	})

	req.Model = model
	req.Scenario = scenario
	log.WithFields(log.Fields{
		"scenario": scenario,
		"rule":     ruleName,
		"scope":    scope,
		"tokens":   req.TokenCount,
	}).Infof("routed to %s", model)
}

// countTokens isolates the token estimate: counting is an optimization
// input, not a correctness dependency, so any failure yields 0.
func (e *Engine) countTokens(req *Request) (count int) {
	if e.counter == nil {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("token counting failed, continuing with 0: %v", r)
			count = 0
		}
	}()
	return e.counter.Count(req)
}

// tryCustomRouters offers the request to each configured custom router in
// order. Failures are logged and skipped; they never reach the caller.
func (e *Engine) tryCustomRouters(ctx context.Context, req *Request, cfg *config.Config) (string, bool) {
	for _, cr := range e.custom {
		model, err := e.runCustomRouter(ctx, cr, req, cfg)
		if err != nil {
			log.Warnf("custom router %s failed, continuing: %v", cr.Name(), err)
			continue
		}
		if model != "" {
			return model, true
		}
	}
	return "", false
}

// runCustomRouter shields the engine from a panicking router implementation.
func (e *Engine) runCustomRouter(ctx context.Context, cr CustomRouter, req *Request, cfg *config.Config) (model string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("custom router %s panicked: %v", cr.Name(), r)
			model, err = "", nil
		}
	}()
	return cr.Route(ctx, req, cfg)
}

// rewriteEnvContext substitutes the administrator-supplied system prompt
// into the system entry carrying the environment-context marker. A routing
// side effect only; it must not block or fail the decision.
func (e *Engine) rewriteEnvContext(req *Request, cfg *config.Config) {
	if cfg.CustomSystemPrompt == "" {
		return
	}
	for i := range req.System {
		if strings.Contains(req.System[i].Text, envContextMarker) {
			req.System[i].Text = cfg.CustomSystemPrompt
			return
		}
	}
}

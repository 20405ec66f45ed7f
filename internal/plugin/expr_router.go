// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchRoute/internal/config"
	"github.com/traylinx/switchRoute/internal/router"
)

// RouteEnv is the expression environment a rule condition evaluates against.
type RouteEnv struct {
	Model      string `expr:"model"`
	SessionID  string `expr:"session_id"`
	TokenCount int    `expr:"token_count"`
	ToolCount  int    `expr:"tool_count"`
	Thinking   bool   `expr:"thinking"`
}

// ExprRouter routes with declarative condition rules from the config file.
// Rules are evaluated in declaration order; the first true condition wins.
type ExprRouter struct {
	mu sync.RWMutex
	// Precompiled programs for better performance
	programs map[string]*vm.Program
}

// NewExprRouter creates a rule-based router.
func NewExprRouter() *ExprRouter {
	return &ExprRouter{
		programs: make(map[string]*vm.Program),
	}
}

// Name implements router.CustomRouter.
func (e *ExprRouter) Name() string { return "expr" }

// Route implements router.CustomRouter. A rule whose condition fails to
// compile or run is skipped, not fatal; an empty result declines routing.
func (e *ExprRouter) Route(_ context.Context, req *router.Request, cfg *config.Config) (string, error) {
	if len(cfg.RouterRules) == 0 {
		return "", nil
	}

	env := RouteEnv{
		Model:      req.Model,
		SessionID:  req.SessionID,
		TokenCount: req.TokenCount,
		ToolCount:  len(req.Tools),
		Thinking:   req.Thinking != nil,
	}

	for _, rule := range cfg.RouterRules {
		matched, err := e.evaluate(rule.Condition, env)
		if err != nil {
			log.Warnf("skipping router rule '%s': %v", rule.Condition, err)
			continue
		}
		if matched {
			return rule.Target, nil
		}
	}
	return "", nil
}

func (e *ExprRouter) evaluate(condition string, env RouteEnv) (bool, error) {
	if condition == "" || condition == "true" {
		return true, nil
	}

	e.mu.RLock()
	program, exists := e.programs[condition]
	e.mu.RUnlock()

	if !exists {
		var err error
		program, err = expr.Compile(condition, expr.Env(env), expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("failed to compile condition '%s': %w", condition, err)
		}
		e.mu.Lock()
		e.programs[condition] = program
		e.mu.Unlock()
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to run condition '%s': %w", condition, err)
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition '%s' did not return a boolean", condition)
	}
	return result, nil
}

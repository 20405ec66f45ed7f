// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"strings"

	"github.com/traylinx/switchRoute/internal/config"
	"github.com/traylinx/switchRoute/internal/session"
)

// webSearchToolPrefix tags the tool type of server-side web search tools.
const webSearchToolPrefix = "web_search"

// decision is the input to one pass of the rule chain.
type decision struct {
	req *Request

	// cfg is the full configuration, used for provider lookups.
	cfg *config.Config

	// effective is the layered policy (session/project override or global).
	effective config.RouterPolicy

	// global is always the global policy. The background and title-summary
	// rules consult it even when an override is active; overrides affect
	// default, think, long-context, and web-search only.
	global config.RouterPolicy

	tokenCount int
	lastUsage  session.Usage

	subagentModel string
	subagentOK    bool
}

// scenarioRule is one entry of the ordered decision chain. apply returns
// ok=false when the rule does not match and the chain continues.
type scenarioRule struct {
	name  string
	apply func(*decision) (model string, scenario Scenario, ok bool)
}

// scenarioRules is the decision chain, evaluated top to bottom; the first
// matching rule wins. The order is a hard invariant: web search must run
// before the haiku rule because web-search requests arrive tagged with a
// background-like model name and would otherwise be misrouted.
var scenarioRules = []scenarioRule{
	{name: "subagent", apply: ruleSubagent},
	{name: "webSearch", apply: ruleWebSearch},
	{name: "longContext", apply: ruleLongContext},
	{name: "haiku", apply: ruleHaiku},
	{name: "think", apply: ruleThink},
	{name: "explicit", apply: ruleExplicit},
}

// decide runs the chain and returns the selected model and scenario.
// Exactly one scenario is always produced; the trailing default applies
// when no rule matches.
func decide(d *decision) (string, Scenario, string) {
	for _, rule := range scenarioRules {
		if model, scenario, ok := rule.apply(d); ok {
			return model, scenario, rule.name
		}
	}
	model := d.req.Model
	if d.effective.Default != "" {
		model = d.effective.Default
	}
	return model, ScenarioDefault, "default"
}

// ruleSubagent honors an accepted embedded directive. Highest priority:
// it bypasses every other scenario check.
func ruleSubagent(d *decision) (string, Scenario, bool) {
	if !d.subagentOK {
		return "", "", false
	}
	return d.subagentModel, ScenarioDefault, true
}

// ruleWebSearch routes requests that declare a web-search tool.
func ruleWebSearch(d *decision) (string, Scenario, bool) {
	if d.effective.WebSearch == "" {
		return "", "", false
	}
	for _, tool := range d.req.Tools {
		if strings.HasPrefix(tool.Type, webSearchToolPrefix) {
			return d.effective.WebSearch, ScenarioWebSearch, true
		}
	}
	return "", "", false
}

// ruleLongContext routes oversized conversations. Either the current
// estimate or the prior turn's recorded usage can trip the threshold, so a
// session that grew large keeps its long-context target even when the
// current request alone counts small.
func ruleLongContext(d *decision) (string, Scenario, bool) {
	if d.effective.LongContext == "" {
		return "", "", false
	}
	size := d.tokenCount
	if prior := d.lastUsage.Sum(); prior > size {
		size = prior
	}
	if size > d.effective.Threshold() {
		return d.effective.LongContext, ScenarioLongContext, true
	}
	return "", "", false
}

// ruleHaiku redirects the client's lightweight-model requests: title and
// summary generation when no tools are attached, background tasks otherwise.
// Both targets come from the global policy regardless of any active
// override; this asymmetry is deliberate.
func ruleHaiku(d *decision) (string, Scenario, bool) {
	if !strings.Contains(d.req.Model, "claude") || !strings.Contains(d.req.Model, "haiku") {
		return "", "", false
	}
	if len(d.req.Tools) == 0 && d.global.TitleSummary != "" {
		return d.global.TitleSummary, ScenarioTitleSummary, true
	}
	if d.global.Background != "" {
		return d.global.Background, ScenarioBackground, true
	}
	return "", "", false
}

// ruleThink routes requests carrying an extended-thinking directive.
func ruleThink(d *decision) (string, Scenario, bool) {
	if d.req.Thinking == nil || d.effective.Think == "" {
		return "", "", false
	}
	return d.effective.Think, ScenarioThink, true
}

// ruleExplicit handles the explicit "provider,model" form. Known pairs are
// canonicalized to their declared casing; unknown pairs pass through
// unchanged rather than being rejected.
func ruleExplicit(d *decision) (string, Scenario, bool) {
	if !strings.Contains(d.req.Model, ",") {
		return "", "", false
	}
	canonical, _ := d.cfg.CanonicalTarget(d.req.Model)
	return canonical, ScenarioDefault, true
}

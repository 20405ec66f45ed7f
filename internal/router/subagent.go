// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchRoute/internal/config"
)

const (
	// directiveOpen and directiveClose delimit an embedded routing
	// directive in system-prompt text. Only server-issued directives in
	// system position are trusted.
	directiveOpen  = "<switchroute-model>"
	directiveClose = "</switchroute-model>"

	// teamLeadSentinel marks user content relayed from a multi-agent
	// team-lead conversation. A directive seen in the same request did not
	// originate from this server and must not be honored.
	teamLeadSentinel = "<teammate-message>"
)

// directivePattern tolerates newlines inside the payload.
var directivePattern = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(directiveOpen) + `(.*?)` + regexp.QuoteMeta(directiveClose))

// extractSubagentTarget scans the request's system entries for an embedded
// routing directive and validates it. Only the first match of the first
// matching entry is considered; the raw directive text is removed from the
// entry in place whether or not the payload is accepted, so the marker never
// reaches a downstream provider.
//
// The payload is rejected when it is empty, contains a backtick or backslash,
// appears alongside a relayed team-lead payload in user content, or names an
// unknown provider/model pair. Rejection is not an error: the decision chain
// simply continues.
func extractSubagentTarget(req *Request, cfg *config.Config) (string, bool) {
	for i := range req.System {
		text := req.System[i].Text
		loc := directivePattern.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}

		payload := strings.TrimSpace(text[loc[2]:loc[3]])
		req.System[i].Text = text[:loc[0]] + text[loc[1]:]

		if payload == "" {
			log.Warn("subagent directive rejected: empty payload")
			return "", false
		}
		if strings.ContainsAny(payload, "`\\") {
			log.Warnf("subagent directive rejected: payload contains forbidden characters: %q", payload)
			return "", false
		}
		if hasTeamLeadRelay(req) {
			log.Warnf("subagent directive rejected: request carries relayed team-lead content, directive %q not trusted", payload)
			return "", false
		}
		if _, known := cfg.CanonicalTarget(payload); !known {
			log.Warnf("subagent directive rejected: unknown provider/model pair %q", payload)
			return "", false
		}

		log.Infof("subagent directive accepted: %s", payload)
		return payload, true
	}
	return "", false
}

// hasTeamLeadRelay reports whether any user-role message carries the
// team-lead relay sentinel. Directives can leak into user content when a
// multi-agent conversation is replayed through the gateway.
func hasTeamLeadRelay(req *Request) bool {
	for _, msg := range req.Messages {
		if msg.Role != "user" {
			continue
		}
		if msg.Content.IsText {
			if strings.Contains(msg.Content.Text, teamLeadSentinel) {
				return true
			}
			continue
		}
		for _, block := range msg.Content.Blocks {
			if block.Type == "text" && strings.Contains(block.Text, teamLeadSentinel) {
				return true
			}
		}
	}
	return false
}

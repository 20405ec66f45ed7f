// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router implements the scenario routing engine: the prioritized,
// short-circuiting decision chain that selects which provider and model
// serve an inbound chat-completion request.
package router

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Scenario is the routing rule category attached to a request for
// downstream observability. Exactly one value is assigned per request.
type Scenario string

const (
	ScenarioDefault      Scenario = "default"
	ScenarioBackground   Scenario = "background"
	ScenarioTitleSummary Scenario = "titleSummary"
	ScenarioThink        Scenario = "think"
	ScenarioLongContext  Scenario = "longContext"
	ScenarioWebSearch    Scenario = "webSearch"
)

// sessionIDMarker separates the session identifier from the rest of the
// client's metadata user id ("<prefix>_session_<id>").
const sessionIDMarker = "_session_"

// SessionIDFromMetadata derives the session identifier from the metadata
// user id convention. Returns "" when the marker is absent.
func SessionIDFromMetadata(userID string) string {
	idx := strings.Index(userID, sessionIDMarker)
	if idx < 0 {
		return ""
	}
	return userID[idx+len(sessionIDMarker):]
}

// ContentBlock is one structured element of a message body.
type ContentBlock struct {
	// Type is the block kind: text, thinking, tool_use, tool_result, ...
	Type string `json:"type"`

	// Text carries the payload of text blocks.
	Text string `json:"text,omitempty"`

	// Thinking carries the payload of thinking blocks.
	Thinking string `json:"thinking,omitempty"`

	// ID and Name identify a tool_use invocation.
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`

	// Input is the raw tool_use input object.
	Input json.RawMessage `json:"input,omitempty"`

	// ToolUseID links a tool_result back to its invocation.
	ToolUseID string `json:"tool_use_id,omitempty"`

	// Content carries tool_result output, either a plain string or blocks.
	Content *MessageContent `json:"content,omitempty"`
}

// MessageContent is a message body that arrives on the wire either as a
// plain string or as an array of content blocks.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock

	// IsText distinguishes an empty string body from an empty block list.
	IsText bool
}

// UnmarshalJSON accepts both wire shapes.
func (mc *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		mc.IsText = true
		return json.Unmarshal(data, &mc.Text)
	}
	mc.IsText = false
	return json.Unmarshal(data, &mc.Blocks)
}

// MarshalJSON writes the original wire shape back out.
func (mc MessageContent) MarshalJSON() ([]byte, error) {
	if mc.IsText {
		return json.Marshal(mc.Text)
	}
	return json.Marshal(mc.Blocks)
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// SystemEntry is one element of the request's system prompt. A plain-string
// system prompt is shaped into a single text entry at the transport boundary.
type SystemEntry struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SystemPrompt accepts both a plain string and an entry array on the wire.
type SystemPrompt []SystemEntry

// UnmarshalJSON shapes either wire form into the entry list.
func (sp *SystemPrompt) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*sp = SystemPrompt{{Type: "text", Text: text}}
		return nil
	}
	var entries []SystemEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*sp = SystemPrompt(entries)
	return nil
}

// Tool is a declared tool schema attached to the request.
type Tool struct {
	Type        string          `json:"type,omitempty"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Thinking is the extended-thinking directive. A nil pointer means the
// request carries no thinking directive.
type Thinking struct {
	Type         string `json:"type,omitempty"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Metadata is the request metadata relevant to routing.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Request is the request-scoped routing context. It is owned by a single
// request's processing lifecycle: the engine mutates Model, Scenario, and
// TokenCount in place and the transport layer acts on them afterwards.
type Request struct {
	// Model is the raw requested model string, rewritten in place to the
	// resolved routing target.
	Model string `json:"model"`

	Messages []Message    `json:"messages"`
	System   SystemPrompt `json:"system,omitempty"`
	Tools    []Tool       `json:"tools,omitempty"`
	Thinking *Thinking    `json:"thinking,omitempty"`
	Metadata Metadata     `json:"metadata,omitempty"`

	// SessionID is derived from Metadata.UserID; empty when underivable.
	SessionID string `json:"-"`

	// Scenario is the matched routing rule category, set exactly once.
	Scenario Scenario `json:"-"`

	// TokenCount is the best-effort token estimate; 0 when counting failed.
	TokenCount int `json:"-"`
}

// ParseRequest shapes a raw request body into the routing context.
// Unknown fields are ignored; they belong to the transport layer.
func ParseRequest(body []byte) (*Request, error) {
	req := &Request{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("router: failed to parse request body: %w", err)
	}
	req.SessionID = SessionIDFromMetadata(req.Metadata.UserID)
	return req, nil
}

// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tokenizer estimates the token footprint of a routing request.
// Counting feeds the long-context threshold comparison only, so the
// estimate has to be stable and monotonic with text length, not exact.
package tokenizer

import (
	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"

	"github.com/traylinx/switchRoute/internal/router"
)

// Codec counts tokens in a text fragment.
type Codec interface {
	Count(text string) int
}

// CodecForModel supplies a model-specific codec, when one is registered.
// Returning ok=false falls back to the built-in encoder.
type CodecForModel func(provider, model string) (Codec, bool)

// Counter estimates request token counts with a tiktoken encoder.
// Failure anywhere in the estimate yields 0 and never propagates; the
// router treats counting as a best-effort input.
type Counter struct {
	codec    tokenizer.Codec
	forModel CodecForModel
}

// NewCounter creates a counter with the built-in cl100k_base encoder.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, err
	}
	return &Counter{codec: codec}, nil
}

// WithCodecForModel registers a per-model codec source.
func (c *Counter) WithCodecForModel(fn CodecForModel) *Counter {
	c.forModel = fn
	return c
}

// Count implements router.TokenCounter.
func (c *Counter) Count(req *router.Request) (total int) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("token estimation panicked, reporting 0: %v", r)
			total = 0
		}
	}()

	count := c.counterFor(req.Model)
	for _, msg := range req.Messages {
		total += c.countContent(count, msg.Content)
	}
	for _, entry := range req.System {
		total += count(entry.Text)
	}
	for _, tool := range req.Tools {
		total += count(tool.Name)
		total += count(tool.Description)
		if len(tool.InputSchema) > 0 {
			total += count(string(tool.InputSchema))
		}
	}
	return total
}

// counterFor picks the codec for the requested model. The raw model may be
// in "provider,model" form; a registered per-model codec wins over the
// built-in encoder.
func (c *Counter) counterFor(model string) func(string) int {
	if c.forModel != nil {
		if provider, name, ok := splitTarget(model); ok {
			if codec, found := c.forModel(provider, name); found {
				return codec.Count
			}
		}
	}
	return func(text string) int {
		if text == "" {
			return 0
		}
		ids, _, err := c.codec.Encode(text)
		if err != nil {
			return 0
		}
		return len(ids)
	}
}

// countContent handles both plain-string bodies and structured blocks.
func (c *Counter) countContent(count func(string) int, content router.MessageContent) int {
	if content.IsText {
		return count(content.Text)
	}
	total := 0
	for _, block := range content.Blocks {
		switch block.Type {
		case "text":
			total += count(block.Text)
		case "thinking":
			total += count(block.Thinking)
		case "tool_use":
			if len(block.Input) > 0 {
				total += count(string(block.Input))
			}
		case "tool_result":
			if block.Content != nil {
				if block.Content.IsText {
					total += count(block.Content.Text)
				} else if serialized, err := json.Marshal(block.Content.Blocks); err == nil {
					total += count(string(serialized))
				}
			}
		}
	}
	return total
}

func splitTarget(pair string) (provider, model string, ok bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == ',' {
			if i == 0 || i == len(pair)-1 {
				return "", "", false
			}
			return pair[:i], pair[i+1:], true
		}
	}
	return "", "", false
}

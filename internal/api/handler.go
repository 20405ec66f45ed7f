// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the routing engine over an Anthropic-compatible
// messages endpoint. The handler is a thin shim: parse, route, patch the
// model field back into the raw body, forward, record usage.
package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/traylinx/switchRoute/internal/config"
	"github.com/traylinx/switchRoute/internal/router"
	"github.com/traylinx/switchRoute/internal/session"
)

// Handler serves the messages endpoint.
type Handler struct {
	engine    *router.Engine
	service   *config.Service
	usage     *session.UsageStore
	forwarder Forwarder
}

// NewHandler wires the routing engine to the HTTP surface.
func NewHandler(engine *router.Engine, service *config.Service, usage *session.UsageStore, forwarder Forwarder) *Handler {
	return &Handler{
		engine:    engine,
		service:   service,
		usage:     usage,
		forwarder: forwarder,
	}
}

// Register mounts the routes on the given engine.
func (h *Handler) Register(r *gin.Engine) {
	r.Use(RequestID(), Recovery())
	r.POST("/v1/messages", h.Messages)
	r.GET("/health", h.Health)
}

// Health reports liveness and the active provider count.
func (h *Handler) Health(c *gin.Context) {
	cfg := h.service.Config()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": len(cfg.Providers),
	})
}

// Messages routes a request and forwards it upstream. Routing works on a
// parsed view of the request; the forwarded payload is the original raw
// body with only the model field rewritten, so fields the router does not
// model pass through untouched.
func (h *Handler) Messages(c *gin.Context) {
	logger := requestLogger(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request_error", "failed to read request body"))
		return
	}

	req, err := router.ParseRequest(body)
	if err != nil {
		logger.Warnf("rejecting unparseable request: %v", err)
		c.JSON(http.StatusBadRequest, errorBody("invalid_request_error", "request body is not a valid messages request"))
		return
	}

	h.engine.Route(c.Request.Context(), req)

	cfg := h.service.Config()
	provider, model, ok := resolveUpstream(cfg, req.Model)
	if !ok {
		logger.Errorf("routed target %q has no configured provider", req.Model)
		c.JSON(http.StatusBadGateway, errorBody("routing_error", "no provider configured for routed model"))
		return
	}

	// The router may have stripped a directive out of the system prompt;
	// re-serialize only the fields it rewrites.
	patched, err := sjson.SetBytes(body, "model", model)
	if err != nil {
		logger.Errorf("failed to patch model into body: %v", err)
		c.JSON(http.StatusInternalServerError, errorBody("internal_error", "failed to prepare upstream request"))
		return
	}
	if patched, err = patchSystem(patched, req); err != nil {
		logger.Warnf("failed to patch system prompt, forwarding original: %v", err)
	}

	resp, err := h.forwarder.Forward(c.Request.Context(), provider, patched)
	if err != nil {
		logger.Errorf("upstream forward failed: %v", err)
		c.JSON(http.StatusBadGateway, errorBody("upstream_error", "provider request failed"))
		return
	}

	h.recordUsage(req.SessionID, resp)

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

// resolveUpstream maps a routed target onto a configured provider. A bare
// model name (no comma) goes to the first configured provider unchanged.
func resolveUpstream(cfg *config.Config, target string) (*config.Provider, string, bool) {
	if providerName, model, ok := config.SplitTarget(target); ok {
		if provider, found := cfg.FindProvider(providerName); found {
			return provider, model, true
		}
		return nil, "", false
	}
	if len(cfg.Providers) > 0 {
		return &cfg.Providers[0], target, true
	}
	return nil, "", false
}

// patchSystem writes the router's (possibly directive-stripped) system
// prompt back into the raw body.
func patchSystem(body []byte, req *router.Request) ([]byte, error) {
	if len(req.System) == 0 {
		return body, nil
	}
	sys := gjson.GetBytes(body, "system")
	if !sys.Exists() {
		return body, nil
	}
	if sys.Type == gjson.String {
		return sjson.SetBytes(body, "system", req.System[0].Text)
	}
	patched := body
	var err error
	for i, entry := range req.System {
		patched, err = sjson.SetBytes(patched, "system."+strconv.Itoa(i)+".text", entry.Text)
		if err != nil {
			return body, err
		}
	}
	return patched, nil
}

// recordUsage captures upstream token usage keyed by session, feeding the
// long-context comparison on the next turn.
func (h *Handler) recordUsage(sessionID string, resp *UpstreamResponse) {
	if h.usage == nil || sessionID == "" || resp.StatusCode >= 300 {
		return
	}
	usage := gjson.GetBytes(resp.Body, "usage")
	if !usage.Exists() {
		return
	}
	h.usage.Set(sessionID, session.Usage{
		InputTokens:              int(usage.Get("input_tokens").Int()),
		CacheCreationInputTokens: int(usage.Get("cache_creation_input_tokens").Int()),
		CacheReadInputTokens:     int(usage.Get("cache_read_input_tokens").Int()),
	})
}

func errorBody(errType, message string) gin.H {
	return gin.H{"error": gin.H{"type": errType, "message": message}}
}

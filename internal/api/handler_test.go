// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/traylinx/switchRoute/internal/config"
	"github.com/traylinx/switchRoute/internal/router"
	"github.com/traylinx/switchRoute/internal/session"
)

type fakeForwarder struct {
	lastProvider *config.Provider
	lastBody     []byte
	response     *UpstreamResponse
	err          error
}

func (f *fakeForwarder) Forward(_ context.Context, provider *config.Provider, body []byte) (*UpstreamResponse, error) {
	f.lastProvider = provider
	f.lastBody = body
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func testSetup(t *testing.T, cfg *config.Config, fwd *fakeForwarder) (*gin.Engine, *session.UsageStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service := config.NewService(cfg)
	usage := session.NewUsageStore(8)
	engine := router.NewEngine(router.Options{
		Service:  service,
		Policies: config.NewPolicyResolver(t.TempDir()),
		Usage:    usage,
	})

	r := gin.New()
	NewHandler(engine, service, usage, fwd).Register(r)
	return r, usage
}

func serverConfig() *config.Config {
	return &config.Config{
		Providers: []config.Provider{
			{Name: "p1", APIBaseURL: "https://p1.example.com", Models: []string{"m1", "m2"}},
			{Name: "p2", APIBaseURL: "https://p2.example.com", Models: []string{"m3"}},
		},
		Router: config.RouterPolicy{Default: "p1,m1"},
	}
}

func postMessages(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMessages_RoutesAndPatchesModel(t *testing.T) {
	fwd := &fakeForwarder{response: &UpstreamResponse{
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"id":"msg_1","usage":{"input_tokens":42}}`),
	}}
	r, _ := testSetup(t, serverConfig(), fwd)

	w := postMessages(r, `{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, 200, w.Code)
	require.NotNil(t, fwd.lastProvider)
	assert.Equal(t, "p1", fwd.lastProvider.Name)
	assert.Equal(t, "m1", gjson.GetBytes(fwd.lastBody, "model").String(),
		"upstream sees the bare model, not the provider,model pair")
	assert.Equal(t, "hi", gjson.GetBytes(fwd.lastBody, "messages.0.content").String(),
		"untouched fields pass through verbatim")
}

func TestMessages_RecordsUsageForSession(t *testing.T) {
	fwd := &fakeForwarder{response: &UpstreamResponse{
		StatusCode: 200,
		Body:       []byte(`{"usage":{"input_tokens":100,"cache_read_input_tokens":50}}`),
	}}
	r, usage := testSetup(t, serverConfig(), fwd)

	w := postMessages(r, `{
		"model": "claude-sonnet-4",
		"messages": [{"role":"user","content":"hi"}],
		"metadata": {"user_id": "u_session_sess-1"}
	}`)
	require.Equal(t, 200, w.Code)

	recorded, ok := usage.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, 150, recorded.Sum())
}

func TestMessages_DirectiveStrippedBeforeForward(t *testing.T) {
	fwd := &fakeForwarder{response: &UpstreamResponse{StatusCode: 200, Body: []byte(`{}`)}}
	r, _ := testSetup(t, serverConfig(), fwd)

	w := postMessages(r, `{
		"model": "claude-sonnet-4",
		"system": [{"type":"text","text":"agent <switchroute-model>p2,m3</switchroute-model> prompt"}],
		"messages": [{"role":"user","content":"hi"}]
	}`)
	require.Equal(t, 200, w.Code)

	assert.Equal(t, "p2", fwd.lastProvider.Name, "directive decides the upstream")
	assert.Equal(t, "m3", gjson.GetBytes(fwd.lastBody, "model").String())
	assert.Equal(t, "agent  prompt", gjson.GetBytes(fwd.lastBody, "system.0.text").String(),
		"directive text must not reach the provider")
}

func TestMessages_BadJSONRejected(t *testing.T) {
	r, _ := testSetup(t, serverConfig(), &fakeForwarder{})

	w := postMessages(r, "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessages_UnknownProviderIs502(t *testing.T) {
	cfg := serverConfig()
	cfg.Router.Default = "ghost,model"
	r, _ := testSetup(t, cfg, &fakeForwarder{})

	w := postMessages(r, `{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestMessages_UpstreamFailureIs502(t *testing.T) {
	fwd := &fakeForwarder{err: assert.AnError}
	r, _ := testSetup(t, serverConfig(), fwd)

	w := postMessages(r, `{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestMessages_UpstreamErrorStatusPassedThrough(t *testing.T) {
	fwd := &fakeForwarder{response: &UpstreamResponse{
		StatusCode: 429,
		Body:       []byte(`{"error":{"type":"rate_limit_error"}}`),
	}}
	r, usage := testSetup(t, serverConfig(), fwd)

	w := postMessages(r, `{
		"model": "claude-sonnet-4",
		"messages": [{"role":"user","content":"hi"}],
		"metadata": {"user_id": "u_session_sess-9"}
	}`)
	assert.Equal(t, 429, w.Code)

	_, ok := usage.Get("sess-9")
	assert.False(t, ok, "failed turns must not record usage")
}

func TestHealth(t *testing.T) {
	r, _ := testSetup(t, serverConfig(), &fakeForwarder{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	assert.Equal(t, int64(2), gjson.GetBytes(w.Body.Bytes(), "providers").Int())
}

func TestRequestID_Propagated(t *testing.T) {
	r, _ := testSetup(t, serverConfig(), &fakeForwarder{response: &UpstreamResponse{StatusCode: 200, Body: []byte(`{}`)}})

	w := postMessages(r, `{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hi"}]}`)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/switchRoute/internal/config"
	"github.com/traylinx/switchRoute/internal/router"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router.lua")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLuaRouter_RoutesByTokenCount(t *testing.T) {
	path := writeScript(t, `
function route(request, policy)
    if request.token_count > 1000 then
        return "p2,big"
    end
    return nil
end
`)
	r := NewLuaRouter(path)

	target, err := r.Route(context.Background(), &router.Request{TokenCount: 2000}, &config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "p2,big", target)

	target, err = r.Route(context.Background(), &router.Request{TokenCount: 10}, &config.Config{})
	require.NoError(t, err)
	assert.Empty(t, target)
}

func TestLuaRouter_SeesPolicyAndTools(t *testing.T) {
	path := writeScript(t, `
function route(request, policy)
    if request.tool_count > 0 and policy.background ~= "" then
        return policy.background
    end
    return nil
end
`)
	r := NewLuaRouter(path)

	cfg := &config.Config{Router: config.RouterPolicy{Background: "p1,bg"}}
	req := &router.Request{Tools: []router.Tool{{Name: "bash"}}}

	target, err := r.Route(context.Background(), req, cfg)
	require.NoError(t, err)
	assert.Equal(t, "p1,bg", target)
}

func TestLuaRouter_ScriptErrorSurfaces(t *testing.T) {
	path := writeScript(t, `
function route(request, policy)
    error("deliberate failure")
end
`)
	r := NewLuaRouter(path)

	_, err := r.Route(context.Background(), &router.Request{}, &config.Config{})
	assert.Error(t, err)
}

func TestLuaRouter_MissingRouteFunction(t *testing.T) {
	path := writeScript(t, `local x = 1`)
	r := NewLuaRouter(path)

	_, err := r.Route(context.Background(), &router.Request{}, &config.Config{})
	assert.Error(t, err)
}

func TestLuaRouter_MissingScriptDeclines(t *testing.T) {
	r := NewLuaRouter(filepath.Join(t.TempDir(), "absent.lua"))

	target, err := r.Route(context.Background(), &router.Request{}, &config.Config{})
	require.NoError(t, err)
	assert.Empty(t, target)
}

func TestLuaRouter_SandboxBlocksIO(t *testing.T) {
	path := writeScript(t, `
function route(request, policy)
    if io ~= nil or dofile ~= nil then
        return "p1,escaped"
    end
    return nil
end
`)
	r := NewLuaRouter(path)

	target, err := r.Route(context.Background(), &router.Request{}, &config.Config{})
	require.NoError(t, err)
	assert.Empty(t, target, "io and dofile must not be exposed to scripts")
}

func TestLuaRouter_ReloadDropsStaleGlobals(t *testing.T) {
	path := writeScript(t, `
leftover = "from the old script"
function route(request, policy)
    return nil
end
`)
	r := NewLuaRouter(path)

	// Run once so a state that executed the old script sits in the pool.
	_, err := r.Route(context.Background(), &router.Request{}, &config.Config{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`
function route(request, policy)
    if leftover ~= nil then
        return "p1,stale"
    end
    return "p1,clean"
end
`), 0o644))
	require.NoError(t, r.Reload())

	target, err := r.Route(context.Background(), &router.Request{}, &config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "p1,clean", target, "states recycled across a reload must not expose old globals")
}

func TestLuaRouter_Reload(t *testing.T) {
	path := writeScript(t, `
function route(request, policy)
    return "p1,v1"
end
`)
	r := NewLuaRouter(path)

	target, err := r.Route(context.Background(), &router.Request{}, &config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "p1,v1", target)

	require.NoError(t, os.WriteFile(path, []byte(`
function route(request, policy)
    return "p1,v2"
end
`), 0o644))
	require.NoError(t, r.Reload())

	target, err = r.Route(context.Background(), &router.Request{}, &config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "p1,v2", target)
}

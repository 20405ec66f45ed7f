// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package plugin provides user-extensible routing strategies: a LUA script
// router and an expression-rule router. Both run before the built-in
// scenario chain and any failure inside them falls through to it.
package plugin

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/traylinx/switchRoute/internal/config"
	"github.com/traylinx/switchRoute/internal/router"
)

// LuaRouter executes a user-supplied LUA script to pick a model. The script
// must define a global function route(request, config) returning either a
// "provider,model" string or nil to decline.
type LuaRouter struct {
	scriptPath string

	// protoMu guards proto and pool together: a reload swaps both so
	// recycled states never leak the previous script's globals.
	protoMu sync.RWMutex
	proto   *lua.FunctionProto
	pool    *sync.Pool
}

// NewLuaRouter compiles the script at path. A missing or broken script is
// not fatal: the router loads as a permanent decline and logs why.
func NewLuaRouter(path string) *LuaRouter {
	r := &LuaRouter{scriptPath: path, pool: newStatePool()}

	if path != "" {
		if err := r.Reload(); err != nil {
			log.Warnf("custom router script %s unavailable: %v", path, err)
		}
	}
	return r
}

// newStatePool builds a pool of sandboxed Lua states.
func newStatePool() *sync.Pool {
	return &sync.Pool{
		New: func() interface{} {
			// SECURITY: Restrict standard libraries to prevent RCE
			L := lua.NewState(lua.Options{
				SkipOpenLibs: true,
			})

			// Manually load ONLY safe libraries
			lua.OpenBase(L)
			lua.OpenTable(L)
			lua.OpenString(L)
			lua.OpenMath(L)
			// lua.OpenOS(L)    <-- EXPLICITLY DISABLED (unsafe)

			// Provide a safe subset of the os library (time only)
			osTbl := L.NewTable()
			L.SetField(osTbl, "time", L.NewFunction(func(L *lua.LState) int {
				L.Push(lua.LNumber(time.Now().Unix()))
				return 1
			}))
			L.SetGlobal("os", osTbl)

			L.SetGlobal("dofile", lua.LNil)
			L.SetGlobal("loadfile", lua.LNil)

			registerLogModule(L)

			return L
		},
	}
}

// Name implements router.CustomRouter.
func (r *LuaRouter) Name() string { return "lua" }

// Reload recompiles the script from disk. Used by the config watcher when
// the script file changes. The state pool is replaced alongside the proto;
// states in flight drain into the abandoned pool and get collected.
func (r *LuaRouter) Reload() error {
	content, err := os.ReadFile(r.scriptPath)
	if err != nil {
		return fmt.Errorf("failed to read router script: %w", err)
	}

	pool := newStatePool()
	L := pool.Get().(*lua.LState)
	fn, err := L.LoadString(string(content))
	if err != nil {
		L.Close()
		return fmt.Errorf("failed to compile router script: %w", err)
	}
	L.SetTop(0)
	pool.Put(L)

	r.protoMu.Lock()
	r.proto = fn.Proto
	r.pool = pool
	r.protoMu.Unlock()
	return nil
}

// Route implements router.CustomRouter. It runs the compiled script's
// route() function against the request. An empty string means the script
// declined and the built-in chain should run.
func (r *LuaRouter) Route(ctx context.Context, req *router.Request, cfg *config.Config) (string, error) {
	r.protoMu.RLock()
	proto, pool := r.proto, r.pool
	r.protoMu.RUnlock()
	if proto == nil {
		return "", nil
	}

	// Return the state to the pool it came from; after a reload the old
	// pool is unreferenced and its states are garbage.
	L := pool.Get().(*lua.LState)
	defer func() {
		L.SetTop(0)
		pool.Put(L)
	}()
	L.SetContext(ctx)

	// Run the main chunk so the script's globals (route) are defined.
	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 0, nil); err != nil {
		return "", fmt.Errorf("router script load failed: %w", err)
	}

	routeFn := L.GetGlobal("route")
	if routeFn.Type() != lua.LTFunction {
		return "", fmt.Errorf("router script defines no route function")
	}

	L.Push(routeFn)
	L.Push(r.requestToLua(L, req))
	L.Push(r.configToLua(L, cfg))
	if err := L.PCall(2, 1, nil); err != nil {
		return "", fmt.Errorf("route() failed: %w", err)
	}

	result := L.Get(-1)
	L.Pop(1)

	if str, ok := result.(lua.LString); ok {
		return string(str), nil
	}
	return "", nil
}

// requestToLua exposes the routing-relevant view of a request. Message
// bodies are passed as serialized JSON so scripts can inspect them without
// the host committing to a table schema.
func (r *LuaRouter) requestToLua(L *lua.LState, req *router.Request) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "model", lua.LString(req.Model))
	L.SetField(tbl, "session_id", lua.LString(req.SessionID))
	L.SetField(tbl, "token_count", lua.LNumber(req.TokenCount))
	L.SetField(tbl, "tool_count", lua.LNumber(len(req.Tools)))
	L.SetField(tbl, "thinking", lua.LBool(req.Thinking != nil))

	if body, err := json.Marshal(req.Messages); err == nil {
		L.SetField(tbl, "messages_json", lua.LString(body))
	}
	if len(req.System) > 0 {
		sys := L.NewTable()
		for i, entry := range req.System {
			L.RawSetInt(sys, i+1, lua.LString(entry.Text))
		}
		L.SetField(tbl, "system", sys)
	}

	tools := L.NewTable()
	for i, tool := range req.Tools {
		L.RawSetInt(tools, i+1, lua.LString(tool.Name))
	}
	L.SetField(tbl, "tools", tools)
	return tbl
}

// configToLua snapshots the router policy and provider catalog for the
// script. API keys are deliberately withheld.
func (r *LuaRouter) configToLua(L *lua.LState, cfg *config.Config) *lua.LTable {
	policy := cfg.Router
	tbl := L.NewTable()
	L.SetField(tbl, "default", lua.LString(policy.Default))
	L.SetField(tbl, "background", lua.LString(policy.Background))
	L.SetField(tbl, "title_summary", lua.LString(policy.TitleSummary))
	L.SetField(tbl, "think", lua.LString(policy.Think))
	L.SetField(tbl, "long_context", lua.LString(policy.LongContext))
	L.SetField(tbl, "web_search", lua.LString(policy.WebSearch))
	L.SetField(tbl, "long_context_threshold", lua.LNumber(policy.Threshold()))

	providers := L.NewTable()
	for i, p := range cfg.Providers {
		entry := L.NewTable()
		L.SetField(entry, "name", lua.LString(p.Name))
		models := L.NewTable()
		for j, m := range p.Models {
			L.RawSetInt(models, j+1, lua.LString(m))
		}
		L.SetField(entry, "models", models)
		L.RawSetInt(providers, i+1, entry)
	}
	L.SetField(tbl, "providers", providers)
	return tbl
}

// registerLogModule registers the 'switchroute' global table with host functions.
func registerLogModule(L *lua.LState) {
	mod := L.NewTable()

	// switchroute.log(message)
	L.SetField(mod, "log", L.NewFunction(func(L *lua.LState) int {
		msg := L.CheckString(1)
		log.Infof("[LUA] %s", msg)
		return 0
	}))

	L.SetGlobal("switchroute", mod)
}

// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the switchRoute server.
// The server sits in front of Anthropic-compatible providers and picks a
// (provider, model) pair for every messages request before forwarding it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchRoute/internal/api"
	"github.com/traylinx/switchRoute/internal/config"
	"github.com/traylinx/switchRoute/internal/logging"
	"github.com/traylinx/switchRoute/internal/plugin"
	"github.com/traylinx/switchRoute/internal/router"
	"github.com/traylinx/switchRoute/internal/session"
	"github.com/traylinx/switchRoute/internal/tokenizer"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
}

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	port := flag.Int("port", 0, "listen port, overrides the config file")
	flag.Parse()

	// A .env beside the binary can carry provider keys referenced from the
	// config file. Missing is fine.
	_ = godotenv.Load()

	if *configPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			*configPath = filepath.Join(home, ".switchroute", "config.yaml")
		}
	}

	cfg, err := config.LoadConfigOptional(*configPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", *configPath, err)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.HomeConfigDir); err != nil {
		log.Warnf("failed to configure log output, continuing on stdout: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Infof("switchRoute %s (%s, built %s) starting", Version, Commit, BuildDate)

	service := config.NewService(cfg)

	var custom []router.CustomRouter
	var luaRouter *plugin.LuaRouter
	if cfg.CustomRouterPath != "" {
		luaRouter = plugin.NewLuaRouter(cfg.CustomRouterPath)
		custom = append(custom, luaRouter)
	}
	custom = append(custom, plugin.NewExprRouter())

	counter, err := tokenizer.NewCounter()
	if err != nil {
		log.Fatalf("failed to initialize token counter: %v", err)
	}

	usage := session.NewUsageStore(session.DefaultUsageStoreSize)
	engine := router.NewEngine(router.Options{
		Service:  service,
		Policies: config.NewPolicyResolver(cfg.HomeConfigDir),
		Sessions: session.NewResolver(cfg.ProjectsDir, nil),
		Usage:    usage,
		Counter:  counter,
		Custom:   custom,
	})

	handler := api.NewHandler(engine, service, usage, api.NewHTTPForwarder())
	r := gin.New()
	r.Use(gin.Recovery())
	handler.Register(r)

	watcher := config.NewWatcher(*configPath, service, func(next *config.Config) {
		if luaRouter != nil && next.CustomRouterPath != "" {
			if err := luaRouter.Reload(); err != nil {
				log.Warnf("custom router reload failed, keeping previous script: %v", err)
			}
		}
	})
	if err := watcher.Start(); err != nil {
		log.Warnf("config watcher unavailable, hot reload disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("forced shutdown: %v", err)
	}
}

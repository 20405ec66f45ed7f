// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "port: 1111\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	service := NewService(cfg)

	var calls atomic.Int32
	w := NewWatcher(path, service, func(*Config) { calls.Add(1) })
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, path, "port: 2222\n")

	require.Eventually(t, func() bool {
		return service.Config().Port == 2222
	}, 3*time.Second, 50*time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestWatcher_BrokenReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "port: 1111\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	service := NewService(cfg)

	w := NewWatcher(path, service, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, path, "port: [broken")

	// Give the watcher time to see the event and fail the reload.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 1111, service.Config().Port)
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "port: 1111\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	service := NewService(cfg)

	var calls atomic.Int32
	w := NewWatcher(path, service, func(*Config) { calls.Add(1) })
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "other.yaml"), "port: 9999\n")

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 1111, service.Config().Port)
	assert.Equal(t, int32(0), calls.Load())
}

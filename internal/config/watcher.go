// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher hot-reloads the global configuration file when it changes on disk.
type Watcher struct {
	path     string
	service  *Service
	onReload func(*Config)

	fsw  *fsnotify.Watcher
	stop chan struct{}
}

// NewWatcher creates a watcher for the configuration file at path. onReload,
// if non-nil, is invoked with each successfully reloaded configuration after
// the service has been updated.
func NewWatcher(path string, service *Service, onReload func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		service:  service,
		onReload: onReload,
		stop:     make(chan struct{}),
	}
}

// Start begins watching in a background goroutine. A reload that fails to
// parse keeps the previous configuration active.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace the file, which drops a watch
	// registered on the file itself.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// Debounce bursts from editors that write in several steps.
				time.Sleep(100 * time.Millisecond)
				cfg, err := LoadConfig(w.path)
				if err != nil {
					log.Errorf("config reload failed, keeping previous configuration: %v", err)
					continue
				}
				w.service.Replace(cfg)
				log.Infof("configuration reloaded from %s", w.path)
				if w.onReload != nil {
					w.onReload(cfg)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Errorf("config watcher error: %v", err)
			case <-w.stop:
				return
			}
		}
	}()
	return nil
}

// Stop halts the watcher.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of fsnotify events editors emit
// for a single save.
const reloadDebounce = 250 * time.Millisecond

// Watcher hot-reloads a configuration file.
//
// # Description
//
// Watches the file's parent directory (editors replace files rather
// than writing them in place, which drops inode-level watches) and on
// change reloads, validates, and atomically swaps the current
// configuration. A file that fails to parse or validate is logged and
// ignored; the previous configuration stays live.
//
// Only operational limits are safe to change at runtime. Settings read
// once at startup (port, storage paths, exporters) take effect on the
// next restart, which the reload log line points out.
//
// Thread Safety: Current is safe for concurrent use; Close must be
// called at most once.
type Watcher struct {
	path    string
	current atomic.Pointer[ServiceConfig]
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	onSwap  func(*ServiceConfig)
	done    chan struct{}
}

// NewWatcher starts watching path. initial becomes the current
// configuration; onSwap (optional) is invoked after every successful
// reload with the new configuration.
func NewWatcher(path string, initial *ServiceConfig, onSwap func(*ServiceConfig), logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher: path is empty")
	}
	if initial == nil {
		return nil, fmt.Errorf("config watcher: initial config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config watcher: watching %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:    path,
		watcher: fsw,
		logger:  logger,
		onSwap:  onSwap,
		done:    make(chan struct{}),
	}
	w.current.Store(initial)
	go w.loop()
	return w, nil
}

// Current returns the live configuration snapshot.
func (w *Watcher) Current() *ServiceConfig {
	return w.current.Load()
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", slog.String("error", err.Error()))
		case <-reload:
			w.reload()
		}
	}
}

// reload loads and swaps the configuration, keeping the old one on any
// failure.
func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("Config reload rejected, keeping previous configuration",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}

	old := w.current.Swap(cfg)
	Set(cfg)
	w.logger.Info("Config reloaded (listener, storage, and exporter changes apply on restart)",
		slog.String("path", w.path),
		slog.Duration("run_timeout", cfg.Engine.RunTimeout.Std()),
		slog.Int("context_budget", cfg.Engine.ContextBudget),
		slog.Duration("search_cache_ttl", cfg.Search.CacheTTL.Std()))
	if old != nil && old.Server.Port != cfg.Server.Port {
		w.logger.Warn("Config changed server.port; restart required for it to take effect")
	}
	if w.onSwap != nil {
		w.onSwap(cfg)
	}
}

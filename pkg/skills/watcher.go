// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher polls the skills directory for changes and triggers a registry
// rescan. Hot-swapping skills is an explicit re-scan operation, never
// per-call dynamic loading.
type Watcher struct {
	mu          sync.Mutex
	registry    *Registry
	interval    time.Duration
	lastModTime map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval for directory changes.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher for the registry's skills directory.
func NewWatcher(registry *Registry, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		registry:    registry,
		interval:    2 * time.Second,
		lastModTime: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.snapshot()
	return w
}

// Start begins polling in a background goroutine.
func (w *Watcher) Start() {
	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
				if w.changed() {
					if err := w.registry.Rescan(); err != nil {
						w.logger.Warn("skills.watcher.rescan.error",
							slog.String("error", err.Error()),
						)
						continue
					}
					w.logger.Info("skills.watcher.rescan")
				}
			}
		}
	}()
}

// Stop halts polling and waits for the goroutine to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	<-w.doneCh
}

func (w *Watcher) snapshot() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastModTime = w.scan()
}

func (w *Watcher) changed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	current := w.scan()
	changed := len(current) != len(w.lastModTime)
	if !changed {
		for path, mod := range current {
			if prev, ok := w.lastModTime[path]; !ok || !prev.Equal(mod) {
				changed = true
				break
			}
		}
	}
	w.lastModTime = current
	return changed
}

func (w *Watcher) scan() map[string]time.Time {
	out := make(map[string]time.Time)
	entries, err := os.ReadDir(w.registry.dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(w.registry.dir, entry.Name(), "SKILL.md")
		if info, err := os.Stat(path); err == nil {
			out[path] = info.ModTime()
		}
	}
	return out
}

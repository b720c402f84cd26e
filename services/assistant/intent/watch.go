// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultReloadDebounce coalesces the burst of events an editor save emits.
const DefaultReloadDebounce = 200 * time.Millisecond

var rulesReloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "projectassist",
		Subsystem: "intent",
		Name:      "rules_reloads_total",
		Help:      "Rules file reloads by outcome.",
	},
	[]string{"outcome"},
)

// RulesWatcher reloads a rules file into a Classifier when it changes.
//
// Description:
//
//	The parent directory is watched rather than the file, so editors that
//	save by rename-and-replace are seen. A file that fails to load leaves
//	the previous rules in place.
//
// Thread Safety: Close may be called from any goroutine.
type RulesWatcher struct {
	classifier *Classifier
	path       string
	fsw        *fsnotify.Watcher
	debounce   time.Duration
	logger     *slog.Logger
	onReload   func(error)

	closeOnce sync.Once
}

// WatchOption configures a RulesWatcher.
type WatchOption func(*RulesWatcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *RulesWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *RulesWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithReloadHook is called after every reload attempt with its error.
func WithReloadHook(fn func(error)) WatchOption {
	return func(w *RulesWatcher) { w.onReload = fn }
}

// NewRulesWatcher starts watching path's directory.
//
// Inputs:
//   - c: Classifier whose rules are replaced. Must not be nil.
//   - path: Rules file, as given to LoadRulesFile.
//
// Outputs:
//   - *RulesWatcher: Call Run to process events and Close to stop.
//   - error: Non-nil if the watch cannot be established.
func NewRulesWatcher(c *Classifier, path string, opts ...WatchOption) (*RulesWatcher, error) {
	if c == nil {
		return nil, fmt.Errorf("NewRulesWatcher: classifier must not be nil")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("NewRulesWatcher: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("NewRulesWatcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("NewRulesWatcher: watching %s: %w", filepath.Dir(abs), err)
	}
	w := &RulesWatcher{
		classifier: c,
		path:       abs,
		fsw:        fsw,
		debounce:   DefaultReloadDebounce,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *RulesWatcher) Run(ctx context.Context) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload(ctx)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rules watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *RulesWatcher) reload(ctx context.Context) {
	rules, err := LoadRulesFile(ctx, w.path)
	if err == nil {
		err = w.classifier.SetRules(rules)
	}
	if err != nil {
		rulesReloadsTotal.WithLabelValues("error").Inc()
		w.logger.Warn("rules reload failed; keeping previous rules",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
	} else {
		rulesReloadsTotal.WithLabelValues("success").Inc()
		w.logger.Info("rules reloaded",
			slog.String("path", w.path),
			slog.Int("categories", len(rules.Categories)))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// Close stops the watch. Run returns once its event channel closes.
func (w *RulesWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() { err = w.fsw.Close() })
	return err
}

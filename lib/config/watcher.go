// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xivforays/forays-agent/lib/clock"
)

// DefaultDebounce is how long the watcher waits after the last change
// event before reloading.
const DefaultDebounce = 500 * time.Millisecond

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Clock    clock.Clock
	Logger   *slog.Logger
	Debounce time.Duration

	// OnReload receives each configuration that loads and validates.
	OnReload func(*Config)

	// OnError receives load and validation failures. The previous
	// configuration stays in effect.
	OnError func(error)
}

// Watcher reloads a config file when it changes.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	options WatcherOptions
}

// NewWatcher watches path's directory. Editors often replace a file
// rather than writing it in place, which a watch on the file itself
// would miss.
func NewWatcher(path string, options WatcherOptions) (*Watcher, error) {
	if options.OnReload == nil {
		return nil, errors.New("config watcher: OnReload is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Debounce <= 0 {
		options.Debounce = DefaultDebounce
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(absPath), err)
	}

	return &Watcher{path: absPath, watcher: fsWatcher, options: options}, nil
}

// Run delivers reloads until ctx is cancelled, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *clock.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			eventPath, err := filepath.Abs(event.Name)
			if err != nil || eventPath != w.path {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = w.options.Clock.NewTimer(w.options.Debounce)
			fire = debounce.C

		case <-fire:
			debounce, fire = nil, nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.report(fmt.Errorf("watching %s: %w", w.path, err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.report(fmt.Errorf("reloading %s: %w", w.path, err))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.report(fmt.Errorf("reloading %s: %w", w.path, err))
		return
	}
	w.options.Logger.Info("configuration reloaded", "path", w.path)
	w.options.OnReload(cfg)
}

func (w *Watcher) report(err error) {
	if w.options.OnError != nil {
		w.options.OnError(err)
		return
	}
	w.options.Logger.Warn("configuration reload failed", "error", err)
}

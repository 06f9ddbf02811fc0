// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package propagate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
)

// WatcherOptions configures a SnapshotWatcher.
type WatcherOptions struct {
	// Debounce is how long to wait for writes to settle before reloading.
	// Default: 200ms
	Debounce time.Duration

	// OnRefresh is called after each successful reload.
	OnRefresh func(RefreshStats)

	Logger *slog.Logger
}

// DefaultWatcherOptions returns a 200ms debounce.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{Debounce: 200 * time.Millisecond}
}

// SnapshotWatcher reloads a Graph whenever its snapshot file changes.
//
// # Description
//
// Watches the snapshot's directory, since editors and exporters often
// replace files by rename. Events for other names are ignored. Bursts of
// events within the debounce window trigger one reload.
//
// # Thread Safety
//
// Safe for concurrent use. OnRefresh is called from a single goroutine.
type SnapshotWatcher struct {
	path     string
	graph    *Graph
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onFresh  func(RefreshStats)
	logger   *slog.Logger

	events   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	watching bool
}

// NewSnapshotWatcher creates a watcher for the snapshot at path. Call
// Start to begin watching.
func NewSnapshotWatcher(path string, g *Graph, opts *WatcherOptions) (*SnapshotWatcher, error) {
	if opts == nil {
		def := DefaultWatcherOptions()
		opts = &def
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultWatcherOptions().Debounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &SnapshotWatcher{
		path:     abs,
		graph:    g,
		watcher:  fw,
		debounce: opts.Debounce,
		onFresh:  opts.OnRefresh,
		logger:   logging.OrDefault(opts.Logger),
		events:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start loads the snapshot once, then watches for changes until Stop is
// called or ctx is cancelled.
func (w *SnapshotWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	if err := w.reload(ctx); err != nil {
		w.logger.Warn("initial snapshot load failed", slog.String("path", w.path), slog.String("error", err.Error()))
	}

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops watching and waits for the goroutines to exit.
func (w *SnapshotWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
		w.wg.Wait()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

func (w *SnapshotWatcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.events <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("snapshot watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *SnapshotWatcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.events:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			if err := w.reload(ctx); err != nil {
				recordRefresh(ctx, false)
				w.logger.Warn("snapshot reload failed", slog.String("path", w.path), slog.String("error", err.Error()))
			}
		}
	}
}

func (w *SnapshotWatcher) reload(ctx context.Context) error {
	snap, err := LoadSnapshotFile(w.path)
	if err != nil {
		return err
	}
	st := w.graph.Refresh(ctx, snap)
	if w.onFresh != nil {
		w.onFresh(st)
	}
	return nil
}

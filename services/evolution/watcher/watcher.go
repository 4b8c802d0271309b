// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watcher turns filesystem activity on watched interface
// definitions into repository change records.
//
// # Description
//
// Each watched source is a contract file or directory (OpenAPI specs,
// proto files, schema definitions). Filesystem events are debounced so
// a burst of writes produces one change record carrying before/after
// content snapshots, ready for semantic analysis.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is invoked from a single
// goroutine.
package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianEvolve/pkg/validation"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/pipeline"
)

// ErrWatcherClosed indicates Watch was called after Stop.
var ErrWatcherClosed = errors.New("source watcher closed")

// DefaultDebounce is the quiet period before a burst of events becomes
// one change record.
const DefaultDebounce = 250 * time.Millisecond

// ChangeHandler receives one change record per debounced burst.
type ChangeHandler func(change datatypes.RepositoryChange)

// Options configures the SourceWatcher.
type Options struct {
	// Debounce is the quiet window after the last event. Default: 250ms
	Debounce time.Duration

	// BufferSize is the internal event channel capacity. Default: 256
	BufferSize int

	Logger *slog.Logger
}

// source is one registered watch root with its content snapshots.
type source struct {
	cfg       pipeline.WatchedSource
	snapshots map[string]string
}

// SourceWatcher watches registered sources and emits change records.
type SourceWatcher struct {
	fs       *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration
	logger   *slog.Logger

	events   chan fsnotify.Event
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	sources map[string]*source
	roots   []string
	closed  bool
}

// New creates a SourceWatcher delivering change records to handler.
func New(handler ChangeHandler, opts Options) (*SourceWatcher, error) {
	if handler == nil {
		return nil, errors.New("watcher: handler is required")
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &SourceWatcher{
		fs:       fs,
		handler:  handler,
		debounce: opts.Debounce,
		logger:   logger.With("component", "watcher"),
		events:   make(chan fsnotify.Event, opts.BufferSize),
		done:     make(chan struct{}),
		sources:  make(map[string]*source),
	}

	w.wg.Add(2)
	go w.forwardLoop()
	go w.debounceLoop()
	return w, nil
}

// Watch registers a source and takes its initial content snapshot.
func (w *SourceWatcher) Watch(src pipeline.WatchedSource) error {
	if src.ID == "" || src.Path == "" {
		return errors.New("watcher: source needs an ID and a path")
	}
	if err := validation.ValidateSourceID(src.ID); err != nil {
		return fmt.Errorf("watcher: %w", err)
	}

	abs, err := filepath.Abs(src.Path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}

	s := &source{cfg: src, snapshots: make(map[string]string)}
	if err := w.snapshot(abs, s); err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	watchPath := abs
	if !info.IsDir() {
		// fsnotify on a single file misses editor rename-replace
		// cycles; watch the parent directory instead.
		watchPath = filepath.Dir(abs)
	}
	if err := w.fs.Add(watchPath); err != nil {
		return err
	}

	w.sources[abs] = s
	w.roots = append(w.roots, abs)
	sort.Sort(sort.Reverse(sort.StringSlice(w.roots)))
	w.logger.Info("watching source", "source_id", src.ID, "path", abs)
	return nil
}

// Stop shuts the watcher down. Pending debounced changes are dropped.
func (w *SourceWatcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.done)
		_ = w.fs.Close()
		w.wg.Wait()
	})
}

// forwardLoop moves raw fsnotify events onto the buffered channel.
func (w *SourceWatcher) forwardLoop() {
	defer w.wg.Done()
	for {
		select {
		case evt, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.events <- evt:
			default:
				w.logger.Warn("event buffer full, dropping", "path", evt.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

// debounceLoop batches events per source and emits change records
// after the quiet window.
func (w *SourceWatcher) debounceLoop() {
	defer w.wg.Done()

	dirty := make(map[string]map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case evt := <-w.events:
			root := w.rootFor(evt.Name)
			if root == "" {
				continue
			}
			if dirty[root] == nil {
				dirty[root] = make(map[string]bool)
			}
			dirty[root][evt.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			for root, paths := range dirty {
				w.emit(root, paths)
			}
			dirty = make(map[string]map[string]bool)
			fire = nil

		case <-w.done:
			return
		}
	}
}

// rootFor maps an event path to its registered source root. Roots are
// kept longest-first so nested sources resolve to the deepest match.
func (w *SourceWatcher) rootFor(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	// A file source watches its parent dir; sibling events carry paths
	// that match no root and are ignored here.
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root
		}
	}
	return ""
}

// emit builds and delivers one change record for a source's dirty
// paths.
func (w *SourceWatcher) emit(root string, paths map[string]bool) {
	w.mu.Lock()
	s, ok := w.sources[root]
	if !ok {
		w.mu.Unlock()
		return
	}

	previous := make(map[string]string, len(s.snapshots))
	for k, v := range s.snapshots {
		previous[k] = v
	}
	if err := w.snapshot(root, s); err != nil {
		w.logger.Error("failed to refresh snapshot", "path", root, "error", err)
		w.mu.Unlock()
		return
	}
	current := make(map[string]string, len(s.snapshots))
	for k, v := range s.snapshots {
		current[k] = v
	}
	cfg := s.cfg
	w.mu.Unlock()

	changed := make([]string, 0, len(paths))
	for p := range paths {
		if rel, err := filepath.Rel(root, p); err == nil && rel != "." {
			changed = append(changed, rel)
		} else {
			changed = append(changed, filepath.Base(p))
		}
	}
	sort.Strings(changed)

	change := datatypes.RepositoryChange{
		SourceID:     cfg.ID,
		Type:         inferChangeType(changed),
		ChangedPaths: changed,
		Previous:     &datatypes.InterfaceSurface{Content: joinSnapshots(previous)},
		Current:      &datatypes.InterfaceSurface{Content: joinSnapshots(current)},
		Status:       datatypes.ChangeStatusDetected,
		DetectedAt:   time.Now(),
	}

	w.logger.Info("change detected", "source_id", cfg.ID, "paths", len(changed))
	w.handler(change)
}

// snapshot reads the source's current content into s.snapshots.
func (w *SourceWatcher) snapshot(root string, s *source) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}

	s.snapshots = make(map[string]string)
	if !info.IsDir() {
		data, err := os.ReadFile(root)
		if err != nil {
			return err
		}
		s.snapshots[root] = string(data)
		return nil
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		s.snapshots[path] = string(data)
		return nil
	})
}

// joinSnapshots concatenates file contents in path order, for the
// behavioral heuristics that scan raw content.
func joinSnapshots(snapshots map[string]string) string {
	paths := make([]string, 0, len(snapshots))
	for p := range snapshots {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(snapshots[p])
		b.WriteString("\n")
	}
	return b.String()
}

// inferChangeType guesses the change category from the touched file
// extensions.
func inferChangeType(paths []string) datatypes.ChangeType {
	for _, p := range paths {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".proto", ".graphql", ".wsdl":
			return datatypes.ChangeTypeAPIChange
		case ".json", ".yaml", ".yml", ".sql", ".avsc":
			return datatypes.ChangeTypeSchemaChange
		}
	}
	return datatypes.ChangeTypeBehaviorChange
}

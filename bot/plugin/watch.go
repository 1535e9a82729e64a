package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// ConfigSource re-reads the persisted configuration and returns the per-unit
// records found in it. The watcher polls it to detect changes.
type ConfigSource func() (map[string]UnitConfig, error)

// Watcher detects changes to the persisted unit configuration and funnels
// them into the manager's reload operation. Change detection is a per-unit
// content fingerprint compared on every trigger; triggers come from a timer
// tick and, when the config file path is known, from filesystem
// notifications. The watcher itself never mutates the registry directly.
type Watcher struct {
	manager *Manager
	source  ConfigSource
	log     *slog.Logger

	path     string
	interval time.Duration

	mu           sync.Mutex
	fingerprints map[string]uint64
	pending      bool
	pendingSince time.Time
	running      bool
	stats        WatcherStats

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	doneCh chan struct{}
}

// WatcherStats tracks watcher activity for status commands and tests.
type WatcherStats struct {
	Polls      int
	Changes    int
	Reloads    int
	Errors     int
	LastChange time.Time
	LastUnit   string
}

const watchDebounce = 500 * time.Millisecond

// NewWatcher constructs a Watcher for the provided manager. path may be empty
// when the configuration does not live in a file; the watcher then relies on
// timer polling alone.
func NewWatcher(manager *Manager, source ConfigSource, path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		manager:      manager,
		source:       source,
		log:          manager.log.With("subsystem", "plugin.watch"),
		path:         filepath.Clean(path),
		interval:     interval,
		fingerprints: make(map[string]uint64),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start establishes the fingerprint baseline and begins watching. It is
// non-blocking; the watch loop runs on its own goroutine until Stop is called
// or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if cfgs, err := w.source(); err == nil {
		w.mu.Lock()
		for name, cfg := range cfgs {
			w.fingerprints[name] = fingerprint(cfg)
		}
		w.mu.Unlock()
	} else {
		w.log.Warn("Watcher baseline read failed.", "error", err)
	}

	if w.path != "" && w.path != "." {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create config watcher: %w", err)
		}
		dir := filepath.Dir(w.path)
		if err := fsw.Add(dir); err != nil {
			w.log.Warn("Watch config directory.", "dir", dir, "error", err)
		}
		w.fsw = fsw
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the watch loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
}

// Stats returns a snapshot of the watcher's activity counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	debounce := time.NewTicker(100 * time.Millisecond)
	defer debounce.Stop()

	var events <-chan fsnotify.Event
	var errors <-chan error
	if w.fsw != nil {
		events = w.fsw.Events
		errors = w.fsw.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sync(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = true
			w.pendingSince = time.Now()
			w.mu.Unlock()
		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			w.log.Error("Config watcher error.", "error", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-debounce.C:
			w.mu.Lock()
			ready := w.pending && time.Since(w.pendingSince) >= watchDebounce
			if ready {
				w.pending = false
			}
			w.mu.Unlock()
			if ready {
				w.Sync(ctx)
			}
		}
	}
}

// Sync compares the current per-unit fingerprints against the persisted
// configuration and applies changed records through the manager. Units whose
// record did not change keep any runtime enable/disable overrides.
func (w *Watcher) Sync(ctx context.Context) {
	cfgs, err := w.source()

	w.mu.Lock()
	w.stats.Polls++
	w.mu.Unlock()

	if err != nil {
		w.log.Error("Re-read unit configuration.", "error", err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	for _, name := range sortedNames(cfgs) {
		cfg := cfgs[name]
		print := fingerprint(cfg)

		w.mu.Lock()
		previous, known := w.fingerprints[name]
		w.fingerprints[name] = print
		w.mu.Unlock()

		if known && previous == print {
			continue
		}

		w.mu.Lock()
		w.stats.Changes++
		w.stats.LastChange = time.Now()
		w.stats.LastUnit = name
		w.mu.Unlock()

		if _, err := w.manager.ApplyConfig(ctx, name, cfg); err != nil {
			w.log.Warn("Apply changed unit configuration.", "unit", name, "error", err)
			continue
		}
		w.mu.Lock()
		w.stats.Reloads++
		w.mu.Unlock()
		w.log.Info("Unit configuration change applied.", "unit", name)
	}
}

// fingerprint produces a stable content hash for a unit configuration record.
func fingerprint(cfg UnitConfig) uint64 {
	digest := xxhash.New()
	fmt.Fprintf(digest, "enabled=%t\n", cfg.Enabled)
	fmt.Fprintf(digest, "timeout=%s\n", cfg.Timeout)
	keys := make([]string, 0, len(cfg.Options))
	for key := range cfg.Options {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(digest, "%s=%v\n", key, cfg.Options[key])
	}
	return digest.Sum64()
}

func sortedNames(cfgs map[string]UnitConfig) []string {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

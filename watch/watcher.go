// Package watch reloads a directory-loaded rule pack when its files change.
//
// Filesystem events are debounced so an editor's write-then-rename burst
// triggers a single reload. Each reload invalidates the result cache and
// re-runs the pipeline for the directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/liamcoop/rulepack/rules"
)

// defaultDebounce is the quiet period after the last event before reloading
const defaultDebounce = 500 * time.Millisecond

// ignoredSuffixes are editor swap and backup files that never trigger a reload
var ignoredSuffixes = []string{".swp", ".swo", "~"}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Dir is the rule directory to watch. It is also the identifier
		// passed to the pipeline with rules.LoadTypeDirectory.
		Dir string

		// Pipeline runs each reload. Required.
		Pipeline *rules.Pipeline

		// Mode is the processing mode for reloads. Zero means rules.ModeSummarize.
		Mode rules.ProcessMode

		// Cache holds the last good result. nil uses an in-memory cache without expiry.
		Cache rules.ResultCache

		// Debounce is the quiet period after the last event before reloading.
		// Zero or negative values fall back to defaultDebounce.
		Debounce time.Duration

		// OnReload is called after every reload with its outcome. A nil callback is a no-op.
		OnReload func(ctx context.Context, result *rules.ProcessedResult, err error)

		// Logger defaults to slog.Default()
		Logger *slog.Logger
	}

	// Watcher monitors one rule directory. Run must be called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		cache    rules.ResultCache
		mode     rules.ProcessMode
		debounce time.Duration
		logger   *slog.Logger
		started  atomic.Bool
		reloads  atomic.Int64
		reloadMu sync.Mutex
	}
)

// New creates a Watcher and registers Dir with fsnotify
func New(cfg Config) (*Watcher, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("watch: pipeline is required")
	}
	if err := rules.ValidateIdentifier(cfg.Dir); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch: stat rule directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", cfg.Dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch: add directory %q: %w", cfg.Dir, err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		cache:    cfg.Cache,
		mode:     cfg.Mode,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
	if w.cache == nil {
		w.cache = rules.NewInMemoryResultCache(rules.DefaultCacheConfig())
	}
	if w.mode == 0 {
		w.mode = rules.ModeSummarize
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("dir", cfg.Dir)

	return w, nil
}

// Run loads the pack once, then reloads it after each debounced burst of
// changes until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = w.Reload(ctx)
	}

	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer == nil {
			timer = time.AfterFunc(w.debounce, fire)
		} else {
			timer.Reset(w.debounce)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close fsnotify watcher", "error", err)
		}
	}()

	// a failed initial load is reported through OnReload; the next change retries
	_, _ = w.Reload(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if !relevant(evt) {
				continue
			}
			w.logger.Debug("rule file changed", "file", filepath.Base(evt.Name), "op", evt.Op.String())
			schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// events were dropped, so reload unconditionally
				w.logger.Warn("fsnotify event overflow", "error", err)
				schedule()
				continue
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// Reload invalidates the cache and re-runs the pipeline for the directory.
// Reloads never overlap.
func (w *Watcher) Reload(ctx context.Context) (*rules.ProcessedResult, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	w.cache.Invalidate()

	start := time.Now()
	result, err := w.cfg.Pipeline.Run(ctx, rules.Request{
		Identifier: w.cfg.Dir,
		LoadType:   rules.LoadTypeDirectory,
		Mode:       w.mode,
	})
	n := w.reloads.Add(1)

	if err != nil {
		w.logger.Warn("rule pack reload failed", "reload", n, "error", err)
	} else {
		w.cache.Set(result)
		w.logger.Info("rule pack reloaded", "reload", n, "duration", time.Since(start))
	}

	if w.cfg.OnReload != nil {
		w.cfg.OnReload(ctx, result, err)
	}
	return result, err
}

// Current returns the cached result, reloading on a miss
func (w *Watcher) Current(ctx context.Context) (*rules.ProcessedResult, error) {
	if result := w.cache.Get(); result != nil {
		return result, nil
	}
	return w.Reload(ctx)
}

// Reloads returns the number of reloads performed so far
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// relevant reports whether evt can change the directory's rule content
func relevant(evt fsnotify.Event) bool {
	if evt.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(evt.Name)
	for _, suffix := range ignoredSuffixes {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}

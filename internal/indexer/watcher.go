package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer/segment"
)

// DefaultDebounce groups the burst of events one flush produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a Directory when segment or deletes files change. A
// periodic reload covers filesystems that drop notifications.
type Watcher struct {
	dir      *Directory
	debounce time.Duration
	interval time.Duration
	onReload func(*index.Snapshot)
	logger   *slog.Logger
}

// NewWatcher returns a watcher over dir. interval <= 0 disables the
// periodic reload; onReload, if set, sees every snapshot that changed.
func NewWatcher(dir *Directory, debounce, interval time.Duration, onReload func(*index.Snapshot)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		interval: interval,
		onReload: onReload,
		logger:   slog.Default().With("component", "index-watcher", "dir", dir.DataDir()),
	}
}

// relevant reports whether a change to path can alter the snapshot.
func relevant(path string) bool {
	name := filepath.Base(path)
	if strings.HasSuffix(name, ".tmp") {
		return false
	}
	return strings.HasSuffix(name, segment.FileExt) || strings.HasSuffix(name, segment.DeletesExt)
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir.DataDir()); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir.DataDir(), err)
	}

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.logger.Info("index watcher started", "debounce", w.debounce, "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("index watcher stopping")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) && relevant(ev.Name) {
				debounce.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		case <-debounce.C:
			w.reload("notify")
		case <-tick:
			w.reload("interval")
		}
	}
}

func (w *Watcher) reload(trigger string) {
	before := w.dir.Snapshot().Generation()
	added, err := w.dir.Reload()
	if err != nil {
		w.logger.Error("reload failed", "trigger", trigger, "error", err)
		return
	}
	snap := w.dir.Snapshot()
	if snap.Generation() == before {
		return
	}
	w.logger.Info("index reloaded",
		"trigger", trigger,
		"new_segments", added,
		"generation", snap.Generation(),
		"live_docs", snap.NumDocs(),
	)
	if w.onReload != nil {
		w.onReload(snap)
	}
}

package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called after a debounced burst of changes to the
// backing files.
type ChangeCallback func()

// debounce collapses bursts of write events (tmp+rename, WAL checkpoints).
const debounce = 200 * time.Millisecond

// WatchTarget describes what to watch for a backend: a directory and a
// predicate over base names inside it.
type WatchTarget struct {
	Dir   string
	Match func(name string) bool
}

// TargetFor returns the watch target for b, or false when b has no files
// on disk.
func TargetFor(b Backend) (WatchTarget, bool) {
	switch v := b.(type) {
	case *Quota:
		return TargetFor(v.Backend)
	case *FS:
		return WatchTarget{
			Dir:   v.Root(),
			Match: func(name string) bool { return strings.HasSuffix(name, fsSuffix) },
		}, true
	case *SQLite:
		base := filepath.Base(v.Path())
		return WatchTarget{
			Dir:   filepath.Dir(v.Path()),
			Match: func(name string) bool { return strings.HasPrefix(name, base) },
		}, true
	default:
		return WatchTarget{}, false
	}
}

// Watch starts an fsnotify watcher on target.Dir and calls cb after each
// debounced burst of matching events until ctx is cancelled.
func Watch(ctx context.Context, target WatchTarget, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(target.Dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("dir", target.Dir))

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			if cb != nil {
				cb()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if target.Match != nil && !target.Match(name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("watcher: change", slog.String("name", name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

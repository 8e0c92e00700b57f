// Package watch detects out-of-band edits to the on-disk project store
// and triggers a reload so the in-memory session does not go stale.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/sync/autosave"
	"github.com/fsnotify/fsnotify"
)

// ChangeEvent represents a filesystem change to a store file.
type ChangeEvent struct {
	Path       string
	ChangeType string // "create", "write", "remove", "rename"
}

// StoreWatcher watches a project store directory using fsnotify and
// reports debounced changes to the store files.
type StoreWatcher struct {
	watcher  *fsnotify.Watcher
	filter   *PatternFilter
	debounce time.Duration
	onChange func(ChangeEvent)
}

// NewStoreWatcher creates a watcher. onChange fires at most once per
// debounce window, with the last observed change.
func NewStoreWatcher(debounce time.Duration, onChange func(ChangeEvent)) (*StoreWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	return &StoreWatcher{
		watcher:  w,
		filter:   DefaultStoreFilter(),
		debounce: debounce,
		onChange: onChange,
	}, nil
}

// SetFilter replaces the default store-file filter.
func (w *StoreWatcher) SetFilter(f *PatternFilter) {
	w.filter = f
}

// WatchStore adds the store directory and its project subdirectories
// to the watcher.
func (w *StoreWatcher) WatchStore(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}

// Run starts the event loop. It blocks until the context is cancelled.
func (w *StoreWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var lastEvent ChangeEvent
	debouncer := autosave.NewDebouncer(w.debounce, func() {
		if w.onChange != nil {
			w.onChange(lastEvent)
		}
	})
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			changeType := opToChangeType(event.Op)
			if changeType == "" {
				continue
			}

			// A new project directory needs its own watch.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.WatchStore(event.Name)
				}
			}

			if w.filter != nil && !w.filter.Matches(event.Name) {
				continue
			}

			lastEvent = ChangeEvent{Path: event.Name, ChangeType: changeType}
			debouncer.Trigger()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func opToChangeType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}

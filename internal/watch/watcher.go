// Package watch turns raw filesystem notifications into coalesced
// change batches for the incremental build loop.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Kind classifies a change event.
type Kind string

const (
	Created  Kind = "created"
	Modified Kind = "modified"
	Removed  Kind = "removed"
)

// Event is one coalesced filesystem change.
type Event struct {
	Path string // absolute path
	Kind Kind
	Time time.Time
}

// Watcher watches a set of root directories recursively and emits
// batches of events coalesced over a debounce window. Consumers read
// Batches from a single loop; while the consumer is busy new events
// keep merging into the next batch, so at most one batch is queued.
type Watcher struct {
	roots    []string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	batches  chan []Event

	mu      sync.Mutex
	pending map[string]Event
	timer   *time.Timer
}

// New creates a watcher over roots. Roots that do not exist are
// skipped. debounce is the coalescing window.
func New(roots []string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &Watcher{
		roots:    roots,
		debounce: debounce,
		fsw:      fsw,
		batches:  make(chan []Event, 1),
		pending:  map[string]Event{},
	}
	for _, root := range roots {
		if st, err := os.Stat(root); err != nil || !st.IsDir() {
			continue
		}
		if err := addDirsRecursive(fsw, root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Batches returns the channel of coalesced event batches. It is closed
// when Run returns.
func (w *Watcher) Batches() <-chan []Event { return w.batches }

// Run consumes filesystem notifications until ctx is canceled or the
// underlying watcher closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.batches)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", logfields.Error(err))
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

func (w *Watcher) handle(ev fsnotify.Event) {
	if ignorePath(ev.Name) {
		return
	}

	// New directories must be watched before files appear in them.
	if ev.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(w.fsw, ev.Name)
		}
	}

	kind, ok := kindOf(ev.Op)
	if !ok {
		return
	}
	slog.Debug("file change detected", logfields.Path(ev.Name), logfields.Kind(string(kind)))
	w.record(Event{Path: ev.Name, Kind: kind, Time: time.Now()})
}

// record coalesces the event into the pending batch and (re)arms the
// debounce timer.
func (w *Watcher) record(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.pending[ev.Path]; ok {
		// A file created inside the window stays "created" through
		// subsequent writes; removal wins over everything.
		if prev.Kind == Created && ev.Kind == Modified {
			ev.Kind = Created
		}
	}
	w.pending[ev.Path] = ev
	w.armLocked()
}

func (w *Watcher) armLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush emits the pending batch. When the consumer still holds the
// previous batch, the events stay pending and another window is armed.
func (w *Watcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return
	}

	batch := make([]Event, 0, len(w.pending))
	for _, ev := range w.pending {
		batch = append(batch, ev)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	select {
	case w.batches <- batch:
		w.pending = map[string]Event{}
	default:
		w.armLocked()
	}
}

func kindOf(op fsnotify.Op) (Kind, bool) {
	switch {
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return Removed, true
	case op&fsnotify.Create != 0:
		return Created, true
	case op&fsnotify.Write != 0:
		return Modified, true
	}
	return "", false
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				slog.Warn("watch add failed", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}

// ignorePath filters hidden files and editor temp/swap artifacts.
func ignorePath(p string) bool {
	base := filepath.Base(p)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return false
}

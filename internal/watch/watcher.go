// Package watch reruns a callback when pipeline inputs change on disk.
package watch

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/lucasnoah/rvstage/internal/fileset"
)

// DefaultDebounce is how long the inputs must be quiet before a change fires.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc receives the sorted set of paths that changed since the last call.
type ChangeFunc func(ctx context.Context, changed []string)

// Watcher watches the directories of a set of input patterns. Only direct
// children matching a pattern's glob count as changes.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	patterns []fileset.Pattern
	onChange ChangeFunc
	debounce time.Duration
	log      *zap.Logger
	pending  map[string]struct{}
	lastSeen time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// New creates a Watcher. Pattern dirs must be absolute.
func New(patterns []fileset.Pattern, onChange ChangeFunc, opts ...Option) (*Watcher, error) {
	for _, p := range patterns {
		if !filepath.IsAbs(p.Dir) {
			return nil, fmt.Errorf("watch %s: directory must be absolute", p)
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fw,
		patterns: patterns,
		onChange: onChange,
		debounce: DefaultDebounce,
		log:      zap.NewNop(),
		pending:  make(map[string]struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. Every pattern directory must exist.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	seen := map[string]bool{}
	for _, p := range w.patterns {
		dir := filepath.Clean(p.Dir)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Unlock()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.log.Debug("watching directory", zap.String("dir", dir))
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit. It is safe to
// call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.log.Error("closing watcher", zap.Error(err))
	}
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-ticker.C:
			if changed := w.due(); len(changed) > 0 {
				w.onChange(ctx, changed)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.matches(event.Name) {
		return
	}
	w.log.Debug("input changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))

	w.mu.Lock()
	w.pending[event.Name] = struct{}{}
	w.lastSeen = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) matches(name string) bool {
	dir, base := filepath.Dir(name), filepath.Base(name)
	for _, p := range w.patterns {
		if filepath.Clean(p.Dir) != dir {
			continue
		}
		if ok, _ := path.Match(p.Glob, base); ok {
			return true
		}
	}
	return false
}

// due drains the pending set once the inputs have been quiet long enough.
func (w *Watcher) due() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 || time.Since(w.lastSeen) < w.debounce {
		return nil
	}
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	sort.Strings(changed)
	w.pending = make(map[string]struct{})
	return changed
}

package registry

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// StalenessWatcher watches the registry layers for on-disk changes. It never
// mutates a live registry cache: profile edits apply at the next session
// start, so all the watcher does is raise a flag and log once, letting the
// session surface "profiles changed, restart to pick them up".
type StalenessWatcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	stale    atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
}

// NewStalenessWatcher creates a watcher over the registry's layer dirs.
// Missing directories are skipped.
func NewStalenessWatcher(dirs []string, logger zerolog.Logger) (*StalenessWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &StalenessWatcher{
		watcher:        fw,
		logger:         logger.With().Str("component", "registry-watcher").Logger(),
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}

	watched := 0
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, sub := range []string{"agents", "skills"} {
			if err := fw.Add(filepath.Join(dir, sub)); err == nil {
				watched++
			}
		}
	}
	if watched == 0 {
		fw.Close()
		return nil, fmt.Errorf("no registry directories to watch")
	}

	go w.eventLoop()
	return w, nil
}

// Stale reports whether any profile or skill file changed since the watcher
// started.
func (w *StalenessWatcher) Stale() bool {
	return w.stale.Load()
}

// Stop stops the watcher.
func (w *StalenessWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.debounceMu.Lock()
		for _, timer := range w.debounceTimers {
			timer.Stop()
		}
		clear(w.debounceTimers)
		w.debounceMu.Unlock()
	})
}

func (w *StalenessWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.debounce(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

// debounce coalesces rapid events on the same file before flagging.
func (w *StalenessWatcher) debounce(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[path]; exists {
		timer.Stop()
	}
	w.debounceTimers[path] = time.AfterFunc(100*time.Millisecond, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}

		if w.stale.CompareAndSwap(false, true) {
			w.logger.Info().
				Str("path", path).
				Msg("Agent profiles changed on disk; changes apply at next session start")
		}
	})
}

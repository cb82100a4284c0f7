package taskspec

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/snap-telemetry/snapharness/internal/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before reporting it. Editors often write a file several times per save.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reports changes to task files in a directory. Each value received
// from Changes is the sorted set of task file names touched by one burst.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	logger   *logging.Logger

	changes  chan []string
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher watches dir. A nil logger discards log output.
func NewWatcher(dir string, debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Watcher{
		watcher:  watcher,
		dir:      dir,
		debounce: debounce,
		logger:   logger.WithPhase("watch"),
		changes:  make(chan []string, 1),
		stopCh:   make(chan struct{}),
	}, nil
}

// Changes returns the channel of debounced change sets. It is closed by Stop.
func (w *Watcher) Changes() <-chan []string {
	return w.changes
}

// Start begins watching for file changes
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops the watcher and cleans up resources. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

// watchLoop processes filesystem events
func (w *Watcher) watchLoop() {
	defer close(w.changes)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	pending := make(map[string]struct{})

	for {
		select {
		case <-w.stopCh:
			debounceTimer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !IsTaskFile(name) {
				continue
			}
			pending[name] = struct{}{}
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			if len(pending) == 0 {
				continue
			}
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			sort.Strings(names)
			pending = make(map[string]struct{})

			w.logger.Debug("task files changed", "files", names)
			select {
			case w.changes <- names:
			case <-w.stopCh:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
)

// DefaultDebounce collapses the burst of events editors emit for one save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a directory dataset whenever one of its files changes.
type Watcher struct {
	source   *DirectorySource
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   logging.Logger
	names    map[string]struct{}

	onReload func(*dataset.Dataset)
	onError  func(error)

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher watches the directory of src. onReload receives every
// successfully reloaded dataset; onError receives load and watch failures.
func NewWatcher(src *DirectorySource, debounce time.Duration, logger logging.Logger,
	onReload func(*dataset.Dataset), onError func(error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(src.Dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	names := make(map[string]struct{})
	for _, n := range src.Files.Names() {
		names[filepath.Clean(n)] = struct{}{}
	}
	return &Watcher{
		source:   src,
		watcher:  fw,
		debounce: debounce,
		logger:   logger.Named("ingest.watcher"),
		names:    names,
		onReload: onReload,
		onError:  onError,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs the watch loop until Stop is called.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop ends the loop and releases the underlying watcher. Safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
		<-w.doneCh
	})
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	rel, err := filepath.Rel(w.source.Dir, ev.Name)
	if err != nil {
		return false
	}
	_, ok := w.names[filepath.Clean(rel)]
	return ok
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	timer := time.NewTimer(0)
	<-timer.C
	pending := false

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("Dataset file changed", logging.String("file", ev.Name), logging.String("op", ev.Op.String()))
			pending = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Dataset watch error", logging.Err(err))
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) reload() {
	d, err := w.source.Load(context.Background())
	if err != nil {
		w.logger.Error("Dataset reload failed", logging.String("dir", w.source.Dir), logging.Err(err))
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	if w.onReload != nil {
		w.onReload(d)
	}
}

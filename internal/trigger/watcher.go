package trigger

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ryco/config/storage"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DirWatcher feeds the files of a directory tree to a Detector. New files
// are picked up as they appear; writes count as input.
type DirWatcher struct {
	root     string
	exts     []string
	detector *Detector
	backups  *storage.BackupManager
	debounce time.Duration
	log      logrus.FieldLogger

	mu      sync.Mutex
	fields  map[string]*FileField
	pending map[string]struct{}
	timer   *time.Timer
}

// NewDirWatcher creates a DirWatcher for root
func NewDirWatcher(root string, detector *Detector, backups *storage.BackupManager, log logrus.FieldLogger) *DirWatcher {
	return &DirWatcher{
		root:     root,
		exts:     DefaultExtensions,
		detector: detector,
		backups:  backups,
		debounce: detector.debounce,
		log:      log,
		fields:   make(map[string]*FileField),
		pending:  make(map[string]struct{}),
	}
}

// Field returns the tracked field for path, or nil
func (w *DirWatcher) Field(path string) *FileField {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fields[path]
}

// Run watches until ctx is cancelled
func (w *DirWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		if IsEditable(fileKind(path, w.exts)) {
			w.detector.Observe(w.track(path))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	w.log.WithField("root", w.root).Info("watching for triggers")

	defer w.stopTimer()
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *DirWatcher) handle(watcher *fsnotify.Watcher, event fsnotify.Event) {
	path := event.Name

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.mu.Lock()
		delete(w.fields, path)
		w.mu.Unlock()
		w.detector.Forget(path)

	case event.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !strings.HasPrefix(info.Name(), ".") {
				if err := watcher.Add(path); err != nil {
					w.log.WithError(err).WithField("dir", path).Warn("failed to watch directory")
				}
			}
			return
		}
		if !IsEditable(fileKind(path, w.exts)) {
			return
		}
		if field := w.Field(path); field != nil {
			// replaced through rename, as AtomicFileUpdate does
			w.detector.Notify(field)
			return
		}
		w.schedule(path)

	case event.Has(fsnotify.Write):
		if !IsEditable(fileKind(path, w.exts)) {
			return
		}
		if field := w.Field(path); field != nil {
			w.detector.Notify(field)
			return
		}
		w.schedule(path)
	}
}

// schedule batches newly seen files so bursts of creations are registered
// together
func (w *DirWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *DirWatcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, p := range paths {
		field := w.track(p)
		w.detector.Observe(field)
		w.detector.Notify(field)
	}
	if len(paths) > 0 {
		w.log.WithField("files", len(paths)).Debug("registered new files")
	}
}

func (w *DirWatcher) track(path string) *FileField {
	w.mu.Lock()
	defer w.mu.Unlock()
	if f, ok := w.fields[path]; ok {
		return f
	}
	f := NewFileField(path, w.backups)
	f.kind = fileKind(path, w.exts)
	w.fields[path] = f
	return f
}

func (w *DirWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

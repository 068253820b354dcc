package watch

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher invokes a callback after media files below root are added,
// changed or removed. Directories created later are watched as they appear.
type DirWatcher struct {
	root     string
	allowed  map[string]struct{}
	logger   *log.Logger
	watcher  *fsnotify.Watcher
	debounce *debouncer

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewDirWatcher watches root recursively. Writes and creations only count for
// files whose extension is in allowed; removals and renames always count.
func NewDirWatcher(root string, allowed []string, debounce time.Duration, onChange func(), logger *log.Logger) (*DirWatcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "watch", Path: root, Err: os.ErrInvalid}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.Default()
	}

	done := make(chan struct{})
	w := &DirWatcher{
		root:     root,
		allowed:  make(map[string]struct{}, len(allowed)),
		logger:   logger,
		watcher:  watcher,
		debounce: &debouncer{delay: debounce, fn: onChange, done: done},
		done:     done,
	}
	for _, ext := range allowed {
		w.allowed[strings.ToLower(ext)] = struct{}{}
	}

	w.addWatchRecursive(root)

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Close stops the watcher and cancels any pending callback.
func (w *DirWatcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.debounce.stop()
		w.closeErr = w.watcher.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *DirWatcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *DirWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addWatchRecursive(event.Name)
			w.debounce.schedule()
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		if w.isAllowed(event.Name) || event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.debounce.schedule()
		}
	}
}

func (w *DirWatcher) addWatchRecursive(path string) {
	filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Printf("walk error for %s: %v", p, err)
			return nil
		}

		if d.IsDir() {
			if p != w.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(p); err != nil {
				w.logger.Printf("watcher add failure for %s: %v", p, err)
			}
		}
		return nil
	})
}

func (w *DirWatcher) isAllowed(path string) bool {
	if len(w.allowed) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := w.allowed[ext]
	return ok
}

// Package watch reports settled changes to a file or a directory tree.
package watch

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher invokes a callback once a watched file has settled after a burst
// of create, write, remove or rename events.
type FileWatcher struct {
	file     string
	logger   *log.Logger
	watcher  *fsnotify.Watcher
	debounce *debouncer

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewFileWatcher starts watching filePath. The parent directory is watched as
// well so that editors which replace the file by renaming are noticed.
func NewFileWatcher(filePath string, debounce time.Duration, onChange func(), logger *log.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.Default()
	}

	done := make(chan struct{})
	w := &FileWatcher{
		file:     filepath.Clean(filePath),
		logger:   logger,
		watcher:  watcher,
		debounce: &debouncer{delay: debounce, fn: onChange, done: done},
		done:     done,
	}

	if err := watcher.Add(filepath.Dir(w.file)); err != nil {
		watcher.Close()
		return nil, err
	}

	if err := watcher.Add(w.file); err != nil {
		w.logger.Printf("watcher could not watch %s directly: %v", w.file, err)
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Close stops the watcher and cancels any pending callback.
func (w *FileWatcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.debounce.stop()
		w.closeErr = w.watcher.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *FileWatcher) run() {
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
			w.logger.Printf("watcher error for %s: %v", w.file, err)
		case <-w.done:
			return
		}
	}
}

func (w *FileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.file {
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		w.debounce.schedule()
	}
}

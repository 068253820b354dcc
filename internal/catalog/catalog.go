// Package catalog holds the read-only list of playable media entries.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"media-player/internal/metrics"
	"media-player/internal/models"
	"media-player/internal/watch"
)

// ErrLoad wraps every failure to obtain the catalog from its source.
var ErrLoad = errors.New("catalog load failed")

// loadTimeout bounds a single reload triggered by a file change.
const loadTimeout = 30 * time.Second

// Catalog keeps the most recently loaded entries in memory.
type Catalog struct {
	source Source
	logger *log.Logger

	mu      sync.RWMutex
	entries []models.CatalogEntry
	index   map[string]int
	lastErr error

	watcher io.Closer
}

// New creates an empty catalog backed by source. Call Reload to populate it.
func New(source Source, logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.Default()
	}
	return &Catalog{
		source:  source,
		logger:  logger,
		entries: []models.CatalogEntry{},
		index:   map[string]int{},
	}
}

// Reload fetches the entries from the source. On failure the catalog becomes
// empty and the error is kept for LastError; the returned error wraps ErrLoad.
func (c *Catalog) Reload(ctx context.Context) error {
	entries, err := c.source.Load(ctx)
	if err != nil {
		loadErr := fmt.Errorf("%w: %w", ErrLoad, err)
		c.set([]models.CatalogEntry{}, loadErr)
		metrics.CatalogLoadsTotal.WithLabelValues("error").Inc()
		c.logger.Printf("catalog load error: %v", err)
		return loadErr
	}

	c.set(entries, nil)
	metrics.CatalogLoadsTotal.WithLabelValues("ok").Inc()
	c.logger.Printf("catalog loaded with %d entries", len(entries))
	return nil
}

// WatchFile reloads the catalog whenever path changes on disk.
func (c *Catalog) WatchFile(path string, debounce time.Duration) error {
	w, err := watch.NewFileWatcher(path, debounce, c.reloadInBackground, c.logger)
	if err != nil {
		return err
	}
	c.setWatcher(w)
	return nil
}

// WatchDir reloads the catalog whenever media files below root change.
func (c *Catalog) WatchDir(root string, allowed []string, debounce time.Duration) error {
	w, err := watch.NewDirWatcher(root, allowed, debounce, c.reloadInBackground, c.logger)
	if err != nil {
		return err
	}
	c.setWatcher(w)
	return nil
}

func (c *Catalog) reloadInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	_ = c.Reload(ctx)
}

func (c *Catalog) setWatcher(w io.Closer) {
	c.mu.Lock()
	previous := c.watcher
	c.watcher = w
	c.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
}

// Close stops watching the manifest file or media root, if any.
func (c *Catalog) Close() error {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Close()
}

// Entries returns a copy of the catalog in manifest order.
func (c *Catalog) Entries() []models.CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]models.CatalogEntry, len(c.entries))
	copy(result, c.entries)
	return result
}

// Lookup returns the first entry whose File equals file.
func (c *Catalog) Lookup(file string) (models.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[file]
	if !ok {
		return models.CatalogEntry{}, false
	}
	return c.entries[i], true
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LastError returns the error from the most recent Reload, or nil.
func (c *Catalog) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Query returns the entries matching q in the order it requests.
func (c *Catalog) Query(q Query) []models.CatalogEntry {
	return q.Apply(c.Entries())
}

func (c *Catalog) set(entries []models.CatalogEntry, err error) {
	index := make(map[string]int, len(entries))
	for i, entry := range entries {
		if _, exists := index[entry.File]; !exists {
			index[entry.File] = i
		}
	}

	c.mu.Lock()
	c.entries = entries
	c.index = index
	c.lastErr = err
	c.mu.Unlock()

	metrics.CatalogEntries.Set(float64(len(entries)))
}

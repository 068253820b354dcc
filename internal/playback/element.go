// Package playback provides a headless media element: it tracks the playing
// position of the loaded file against the wall clock and reports metadata,
// time updates and the end of the track through callbacks.
package playback

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"media-player/internal/models"
)

var (
	// ErrNoSource is returned by Play when nothing has been loaded.
	ErrNoSource = errors.New("no media source loaded")
	// ErrUnsupported is returned by Load for files this element cannot play.
	ErrUnsupported = errors.New("unsupported media")
)

const defaultTickInterval = 250 * time.Millisecond

// Callbacks are invoked from the element's own goroutines, never while the
// caller of an Element method is blocked inside it.
type Callbacks struct {
	OnMetadataReady func(duration float64)
	OnTimeUpdate    func(position float64)
	OnEnded         func()
}

// ProbeFunc returns the duration in seconds of the catalog file stored at path.
type ProbeFunc func(file, path string) (float64, error)

// Options configures an Element.
type Options struct {
	Kind         models.MediaKind
	Root         string
	Probe        ProbeFunc
	TickInterval time.Duration
	Logger       *log.Logger
}

// Element plays one file at a time.
type Element struct {
	kind   models.MediaKind
	root   string
	probe  ProbeFunc
	tick   time.Duration
	logger *log.Logger

	mu          sync.Mutex
	callbacks   Callbacks
	src         string
	gen         uint64
	paused      bool
	position    float64
	startedAt   time.Time
	duration    float64
	hasDuration bool
	volume      float64
	stop        chan struct{}
}

// NewElement creates a paused element with nothing loaded.
func NewElement(opts Options) *Element {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	return &Element{
		kind:   opts.Kind,
		root:   opts.Root,
		probe:  opts.Probe,
		tick:   opts.TickInterval,
		logger: opts.Logger,
		paused: true,
		volume: 1,
	}
}

// SetCallbacks replaces the notification callbacks.
func (e *Element) SetCallbacks(cb Callbacks) {
	e.mu.Lock()
	e.callbacks = cb
	e.mu.Unlock()
}

// Load attaches file as the new source, paused at position 0. The duration is
// probed in the background and announced through OnMetadataReady.
func (e *Element) Load(file string) error {
	if !e.accepts(file) {
		return fmt.Errorf("%w: %s cannot play %s", ErrUnsupported, e.kind, file)
	}

	resolved, err := e.resolve(file)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.haltLocked()
	e.gen++
	gen := e.gen
	e.src = file
	e.paused = true
	e.position = 0
	e.duration = 0
	e.hasDuration = false
	e.mu.Unlock()

	if e.probe != nil {
		go e.loadMetadata(gen, file, resolved)
	}
	return nil
}

// Play starts or resumes playback. A track that has ended restarts from 0.
func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.src == "" {
		return ErrNoSource
	}
	if !e.paused {
		return nil
	}
	if e.hasDuration && e.position >= e.duration {
		e.position = 0
	}

	e.paused = false
	e.startedAt = time.Now()
	e.startClockLocked()
	return nil
}

// Pause freezes the position.
func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return
	}
	e.position = e.currentLocked()
	e.paused = true
	e.haltLocked()
}

// Stop pauses and clears the source and position.
func (e *Element) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.haltLocked()
	e.gen++
	e.src = ""
	e.paused = true
	e.position = 0
	e.duration = 0
	e.hasDuration = false
}

// Paused reports whether the element is paused.
func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Source returns the loaded file, or "" when nothing is loaded.
func (e *Element) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

// CurrentTime returns the playing position in seconds.
func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLocked()
}

// SetCurrentTime moves the playing position, clamped to the known duration.
func (e *Element) SetCurrentTime(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.src == "" {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if e.hasDuration && seconds > e.duration {
		seconds = e.duration
	}

	e.position = seconds
	if !e.paused {
		e.haltLocked()
		e.startedAt = time.Now()
		e.startClockLocked()
	}
}

// Duration returns the track length once metadata is available.
func (e *Element) Duration() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration, e.hasDuration
}

// SetVolume stores the output volume.
func (e *Element) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
}

// Volume returns the output volume.
func (e *Element) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *Element) loadMetadata(gen uint64, file, resolved string) {
	duration, err := e.probe(file, resolved)
	if err != nil || duration <= 0 {
		if err != nil {
			e.logger.Printf("%s metadata for %s unavailable: %v", e.kind, file, err)
		}
		return
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.duration = duration
	e.hasDuration = true
	if !e.paused {
		e.position = e.currentLocked()
		e.startedAt = time.Now()
		e.haltLocked()
		e.startClockLocked()
	}
	cb := e.callbacks.OnMetadataReady
	e.mu.Unlock()

	if cb != nil {
		cb(duration)
	}
}

func (e *Element) currentLocked() float64 {
	if e.paused {
		return e.position
	}
	pos := e.position + time.Since(e.startedAt).Seconds()
	if e.hasDuration && pos > e.duration {
		pos = e.duration
	}
	return pos
}

func (e *Element) startClockLocked() {
	stop := make(chan struct{})
	e.stop = stop

	remaining := time.Duration(-1)
	if e.hasDuration {
		remaining = time.Duration((e.duration - e.position) * float64(time.Second))
		if remaining < 0 {
			remaining = 0
		}
	}
	go e.runClock(e.gen, stop, remaining)
}

func (e *Element) haltLocked() {
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

func (e *Element) runClock(gen uint64, stop chan struct{}, remaining time.Duration) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	var end <-chan time.Time
	if remaining >= 0 {
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		end = timer.C
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.gen != gen || e.stop != stop {
				e.mu.Unlock()
				return
			}
			pos := e.currentLocked()
			cb := e.callbacks.OnTimeUpdate
			e.mu.Unlock()
			if cb != nil {
				cb(pos)
			}
		case <-end:
			e.mu.Lock()
			if e.gen != gen || e.stop != stop {
				e.mu.Unlock()
				return
			}
			e.position = e.duration
			e.paused = true
			e.stop = nil
			cb := e.callbacks.OnEnded
			e.mu.Unlock()
			if cb != nil {
				cb()
			}
			return
		}
	}
}

func (e *Element) accepts(file string) bool {
	if file == "" || strings.Contains(file, "://") {
		return false
	}
	if e.kind == models.KindVideo {
		return models.IsVideoFile(file)
	}
	return !models.IsVideoFile(file)
}

func (e *Element) resolve(file string) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+file), "/")
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsupported)
	}

	target := filepath.Join(e.root, filepath.FromSlash(rel))
	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrUnsupported, file)
	}
	return target, nil
}

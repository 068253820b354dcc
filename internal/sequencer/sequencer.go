// Package sequencer decides which playlist entry plays and keeps the
// playlist, repeat/shuffle modes and volume of one playback session.
//
// A Sequencer is not safe for concurrent use. Every method, including the
// host notifications, must run on the same goroutine; Session provides that
// goroutine for callers outside of tests.
package sequencer

import (
	"context"
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-player/internal/metrics"
	"media-player/internal/models"
	"media-player/internal/playback"
	"media-player/internal/store"
)

const persistTimeout = 2 * time.Second

// Catalog resolves playlist keys to catalog entries.
type Catalog interface {
	Lookup(file string) (models.CatalogEntry, bool)
}

// Resource is the host playback capability for one kind of media.
type Resource interface {
	Load(file string) error
	Play() error
	Pause()
	Stop()
	Paused() bool
	Source() string
	CurrentTime() float64
	SetCurrentTime(seconds float64)
	Duration() (float64, bool)
	SetVolume(v float64)
	SetCallbacks(cb playback.Callbacks)
}

// Direction is the way Reorder moves an entry.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Options configures a Sequencer.
type Options struct {
	// ID identifies the session; a UUID is generated when empty.
	ID      string
	Catalog Catalog
	Audio   Resource
	Video   Resource
	Store   store.KV
	Logger  *log.Logger
	// Rand returns a uniformly distributed int in [0,n). Defaults to math/rand/v2.
	Rand func(n int) int
	// Dispatch runs host notifications on the sequencer's goroutine.
	// When nil they run on the calling goroutine.
	Dispatch      func(func())
	DefaultVolume float64
}

// Sequencer owns the playlist and the active playback resource.
type Sequencer struct {
	id       string
	catalog  Catalog
	audio    Resource
	video    Resource
	kv       store.KV
	logger   *log.Logger
	rand     func(n int) int
	dispatch func(func())

	playlist     []string
	currentIndex int
	current      *models.CatalogEntry
	kind         models.MediaKind
	isPlaying    bool
	shuffle      bool
	repeat       models.RepeatMode
	volume       float64
	position     float64
	duration     float64
	hasDuration  bool
	gen          uint64

	listenersMu  sync.Mutex
	listeners    []subscription
	nextListener int
}

// New creates a sequencer and restores the persisted playlist and volume.
// Storage failures are logged and the defaults are used instead.
func New(opts Options) *Sequencer {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Rand == nil {
		opts.Rand = rand.IntN
	}
	if opts.Dispatch == nil {
		opts.Dispatch = func(fn func()) { fn() }
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.DefaultVolume <= 0 || opts.DefaultVolume > 1 {
		opts.DefaultVolume = store.DefaultVolume
	}

	s := &Sequencer{
		id:           opts.ID,
		catalog:      opts.Catalog,
		audio:        opts.Audio,
		video:        opts.Video,
		kv:           opts.Store,
		logger:       opts.Logger,
		rand:         opts.Rand,
		dispatch:     opts.Dispatch,
		playlist:     []string{},
		currentIndex: -1,
		repeat:       models.RepeatNone,
		volume:       opts.DefaultVolume,
	}

	s.restore(opts.DefaultVolume)
	return s
}

func (s *Sequencer) restore(defaultVolume float64) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	playlist, err := store.LoadPlaylist(ctx, s.kv)
	if err != nil {
		s.logger.Printf("session %s: restore playlist: %v", s.id, err)
	} else {
		s.playlist = playlist
	}

	volume, err := store.LoadVolume(ctx, s.kv, defaultVolume)
	if err != nil {
		s.logger.Printf("session %s: restore volume: %v", s.id, err)
	}
	s.volume = volume
	s.eachResource(func(r Resource) { r.SetVolume(volume) })

	metrics.PlaylistLength.Set(float64(len(s.playlist)))
	s.logger.Printf("session %s restored %d playlist entries at volume %.2f", s.id, len(s.playlist), s.volume)
}

// ID returns the session identifier.
func (s *Sequencer) ID() string {
	return s.id
}

// AddToPlaylist appends file unless it is already present.
func (s *Sequencer) AddToPlaylist(file string) {
	metrics.SequencerCommandsTotal.WithLabelValues("add").Inc()
	if s.appendIfMissing(file) {
		s.playlistChanged()
	}
}

// RemoveFromPlaylist removes the first entry equal to file. The active track
// keeps playing even when it is the removed entry.
func (s *Sequencer) RemoveFromPlaylist(file string) {
	metrics.SequencerCommandsTotal.WithLabelValues("remove").Inc()
	i := s.indexOf(file)
	if i < 0 {
		return
	}
	s.playlist = append(s.playlist[:i], s.playlist[i+1:]...)
	s.resolveCurrentIndex()
	s.playlistChanged()
}

// Reorder swaps file with its neighbour in the given direction. Moving the
// first entry up or the last entry down does nothing.
func (s *Sequencer) Reorder(file string, dir Direction) {
	metrics.SequencerCommandsTotal.WithLabelValues("reorder").Inc()
	i := s.indexOf(file)
	if i < 0 {
		return
	}

	var j int
	switch dir {
	case Up:
		j = i - 1
	case Down:
		j = i + 1
	default:
		return
	}
	if j < 0 || j >= len(s.playlist) {
		return
	}

	s.playlist[i], s.playlist[j] = s.playlist[j], s.playlist[i]
	s.resolveCurrentIndex()
	s.playlistChanged()
}

// Clear empties the playlist and stops playback.
func (s *Sequencer) Clear() {
	metrics.SequencerCommandsTotal.WithLabelValues("clear").Inc()
	s.playlist = []string{}
	s.stopAll()
	s.current = nil
	s.kind = models.KindNone
	s.currentIndex = -1
	s.playlistChanged()
	s.emit(TrackChanged)
}

// PlayByFile makes file the active track, adding it to the playlist when
// needed. Files missing from the catalog play under their raw path.
func (s *Sequencer) PlayByFile(file string) {
	metrics.SequencerCommandsTotal.WithLabelValues("play").Inc()
	if file == "" {
		return
	}

	entry, ok := s.lookup(file)
	if !ok {
		entry = models.FallbackEntry(file)
	}

	if s.appendIfMissing(file) {
		s.playlistChanged()
	}
	s.currentIndex = s.indexOf(file)
	s.prepareAndPlay(entry)
}

// PlayNext advances to the next entry, a random one in shuffle mode. At the
// end of the playlist it wraps with repeat all and pauses otherwise.
func (s *Sequencer) PlayNext() {
	metrics.SequencerCommandsTotal.WithLabelValues("next").Inc()
	s.playNext()
}

func (s *Sequencer) playNext() {
	n := len(s.playlist)
	if n == 0 {
		return
	}

	// Shuffle may pick the current entry again.
	if s.shuffle {
		s.playIndex(s.rand(n))
		return
	}

	switch {
	case s.currentIndex < n-1:
		s.playIndex(s.currentIndex + 1)
	case s.repeat == models.RepeatAll:
		s.playIndex(0)
	default:
		s.pauseCurrent()
	}
}

// PlayPrevious steps back one entry. At the start it wraps with repeat all
// and stays on the first entry otherwise.
func (s *Sequencer) PlayPrevious() {
	metrics.SequencerCommandsTotal.WithLabelValues("previous").Inc()
	n := len(s.playlist)
	if n == 0 {
		return
	}

	if s.currentIndex > 0 {
		s.playIndex(s.currentIndex - 1)
		return
	}
	if s.repeat == models.RepeatAll {
		s.playIndex(n - 1)
		return
	}
	s.playIndex(0)
}

// OnTrackEnded handles the end of the active track.
func (s *Sequencer) OnTrackEnded() {
	if s.repeat != models.RepeatOne {
		s.playNext()
		return
	}

	res := s.active()
	if res == nil || res.Source() == "" {
		return
	}
	res.SetCurrentTime(0)
	s.position = 0
	if err := res.Play(); err != nil {
		s.playbackFailure("replay", res.Source(), err)
		s.emit(PlaybackStateChanged)
		return
	}
	s.isPlaying = true
	s.emit(PlaybackStateChanged)
}

// OnMetadataReady records the duration of the active track.
func (s *Sequencer) OnMetadataReady(duration float64) {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return
	}
	s.duration = duration
	s.hasDuration = true
	s.emit(PlaybackStateChanged)
}

// OnTimeUpdate records the playing position of the active track.
func (s *Sequencer) OnTimeUpdate(position float64) {
	if math.IsNaN(position) || position < 0 {
		return
	}
	s.position = position
	s.emit(PlaybackStateChanged)
}

// CycleRepeatMode moves to the next mode in none -> one -> all -> none.
func (s *Sequencer) CycleRepeatMode() models.RepeatMode {
	s.SetRepeatMode(s.repeat.Next())
	return s.repeat
}

// SetRepeatMode sets the repeat mode directly.
func (s *Sequencer) SetRepeatMode(mode models.RepeatMode) {
	metrics.SequencerCommandsTotal.WithLabelValues("repeat").Inc()
	if _, ok := models.ParseRepeatMode(string(mode)); !ok {
		return
	}
	s.repeat = mode
	s.emit(PlaybackStateChanged)
}

// SetShuffle enables or disables shuffle.
func (s *Sequencer) SetShuffle(enabled bool) {
	metrics.SequencerCommandsTotal.WithLabelValues("shuffle").Inc()
	s.shuffle = enabled
	s.emit(PlaybackStateChanged)
}

// ToggleShuffle flips shuffle and returns the new value.
func (s *Sequencer) ToggleShuffle() bool {
	s.SetShuffle(!s.shuffle)
	return s.shuffle
}

// TogglePause pauses a playing track or resumes a paused one.
func (s *Sequencer) TogglePause() {
	metrics.SequencerCommandsTotal.WithLabelValues("toggle").Inc()
	if s.loaded() == nil {
		return
	}
	if s.isPlaying {
		s.pauseCurrent()
		return
	}
	s.resumeCurrent()
}

// SeekRelative moves the position by delta seconds within [0, duration].
func (s *Sequencer) SeekRelative(delta float64) {
	metrics.SequencerCommandsTotal.WithLabelValues("seek").Inc()
	if math.IsNaN(delta) {
		return
	}
	res := s.loaded()
	if res == nil {
		return
	}
	duration, ok := res.Duration()
	if !ok || duration <= 0 {
		return
	}
	s.seekTo(res, math.Max(0, math.Min(duration, res.CurrentTime()+delta)))
}

// SeekToFraction moves to pct of the duration; pct is clamped to [0,1].
func (s *Sequencer) SeekToFraction(pct float64) {
	metrics.SequencerCommandsTotal.WithLabelValues("seek").Inc()
	if math.IsNaN(pct) {
		return
	}
	res := s.loaded()
	if res == nil {
		return
	}
	duration, ok := res.Duration()
	if !ok || duration <= 0 {
		return
	}
	pct = math.Max(0, math.Min(1, pct))
	s.seekTo(res, pct*duration)
}

// SetVolume applies v, clamped to [0,1], to both resources and persists it.
func (s *Sequencer) SetVolume(v float64) {
	metrics.SequencerCommandsTotal.WithLabelValues("volume").Inc()
	if math.IsNaN(v) {
		return
	}
	v = store.ClampVolume(v)
	s.volume = v
	s.eachResource(func(r Resource) { r.SetVolume(v) })

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := store.SaveVolume(ctx, s.kv, v); err != nil {
		s.persistFailure(err)
	}
	s.emit(PlaybackStateChanged)
}

// Close stops playback and writes the playlist for the next session.
func (s *Sequencer) Close() error {
	s.stopAll()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return store.SavePlaylist(ctx, s.kv, s.playlist)
}

// State returns a snapshot of the session.
func (s *Sequencer) State() models.PlaybackState {
	state := models.PlaybackState{
		SessionID:    s.id,
		Playlist:     append([]string(nil), s.playlist...),
		CurrentIndex: s.currentIndex,
		Kind:         s.kind,
		IsPlaying:    s.isPlaying,
		Shuffle:      s.shuffle,
		RepeatMode:   s.repeat,
		Volume:       s.volume,
		Position:     s.position,
	}
	if state.Playlist == nil {
		state.Playlist = []string{}
	}
	if s.current != nil {
		entry := *s.current
		state.Current = &entry
	}

	duration, hasDuration := s.duration, s.hasDuration
	if res := s.loaded(); res != nil {
		state.Position = res.CurrentTime()
		if d, ok := res.Duration(); ok {
			duration, hasDuration = d, true
		}
	}
	if hasDuration {
		state.Duration = &duration
		state.DurationLabel = models.HumanTime(duration)
	} else {
		state.DurationLabel = models.HumanTime(0)
	}
	state.PositionLabel = models.HumanTime(state.Position)
	return state
}

func (s *Sequencer) playIndex(i int) {
	s.currentIndex = i
	s.PlayByFile(s.playlist[i])
}

// prepareAndPlay stops whatever is playing before it attaches the new track
// so that audio never overlaps.
func (s *Sequencer) prepareAndPlay(entry models.CatalogEntry) {
	s.stopAll()

	s.gen++
	kind := models.KindForFile(entry.File)
	s.current = &entry
	s.kind = kind
	s.position = 0
	s.duration = 0
	s.hasDuration = false
	metrics.TrackChangesTotal.WithLabelValues(string(kind)).Inc()

	res := s.resource(kind)
	if res == nil {
		s.playbackFailure("load", entry.File, errNoResource)
		s.emit(TrackChanged)
		s.emit(PlaybackStateChanged)
		return
	}

	res.SetCallbacks(s.callbacks(s.gen))
	if err := res.Load(entry.File); err != nil {
		s.playbackFailure("load", entry.File, err)
		s.emit(TrackChanged)
		s.emit(PlaybackStateChanged)
		return
	}
	if err := res.Play(); err != nil {
		s.playbackFailure("play", entry.File, err)
		s.emit(TrackChanged)
		s.emit(PlaybackStateChanged)
		return
	}

	s.isPlaying = true
	s.emit(TrackChanged)
}

// callbacks binds host notifications to the track generation so that late
// notifications from a replaced track are ignored.
func (s *Sequencer) callbacks(gen uint64) playback.Callbacks {
	guard := func(fn func()) {
		s.dispatch(func() {
			if s.gen == gen {
				fn()
			}
		})
	}
	return playback.Callbacks{
		OnMetadataReady: func(d float64) { guard(func() { s.OnMetadataReady(d) }) },
		OnTimeUpdate:    func(p float64) { guard(func() { s.OnTimeUpdate(p) }) },
		OnEnded:         func() { guard(s.OnTrackEnded) },
	}
}

func (s *Sequencer) stopAll() {
	s.eachResource(func(r Resource) {
		r.Pause()
		r.Stop()
	})
	s.isPlaying = false
	s.position = 0
}

func (s *Sequencer) pauseCurrent() {
	if res := s.loaded(); res != nil {
		res.Pause()
	}
	s.isPlaying = false
	s.emit(PlaybackStateChanged)
}

func (s *Sequencer) resumeCurrent() {
	res := s.loaded()
	if res == nil {
		return
	}
	if err := res.Play(); err != nil {
		s.playbackFailure("resume", res.Source(), err)
		s.emit(PlaybackStateChanged)
		return
	}
	s.isPlaying = true
	s.emit(PlaybackStateChanged)
}

func (s *Sequencer) seekTo(res Resource, seconds float64) {
	res.SetCurrentTime(seconds)
	s.position = seconds
	s.emit(PlaybackStateChanged)
}

func (s *Sequencer) playbackFailure(op, file string, err error) {
	s.isPlaying = false
	metrics.PlaybackFailuresTotal.Inc()
	s.logger.Printf("session %s: %s %s: %v", s.id, op, file, err)
}

func (s *Sequencer) persistFailure(err error) {
	metrics.PersistFailuresTotal.Inc()
	s.logger.Printf("session %s: persist: %v", s.id, err)
}

func (s *Sequencer) playlistChanged() {
	metrics.PlaylistLength.Set(float64(len(s.playlist)))

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := store.SavePlaylist(ctx, s.kv, s.playlist); err != nil {
		s.persistFailure(err)
	}
	s.emit(PlaylistChanged)
}

func (s *Sequencer) appendIfMissing(file string) bool {
	if file == "" || s.indexOf(file) >= 0 {
		return false
	}
	s.playlist = append(s.playlist, file)
	return true
}

func (s *Sequencer) indexOf(file string) int {
	for i, f := range s.playlist {
		if f == file {
			return i
		}
	}
	return -1
}

func (s *Sequencer) resolveCurrentIndex() {
	if s.current == nil {
		s.currentIndex = -1
		return
	}
	s.currentIndex = s.indexOf(s.current.File)
}

func (s *Sequencer) lookup(file string) (models.CatalogEntry, bool) {
	if s.catalog == nil {
		return models.CatalogEntry{}, false
	}
	return s.catalog.Lookup(file)
}

func (s *Sequencer) resource(kind models.MediaKind) Resource {
	switch kind {
	case models.KindAudio:
		return s.audio
	case models.KindVideo:
		return s.video
	default:
		return nil
	}
}

func (s *Sequencer) active() Resource {
	return s.resource(s.kind)
}

// loaded returns the active resource when it has a source attached.
func (s *Sequencer) loaded() Resource {
	res := s.active()
	if res == nil || res.Source() == "" {
		return nil
	}
	return res
}

func (s *Sequencer) eachResource(fn func(Resource)) {
	for _, r := range []Resource{s.audio, s.video} {
		if r != nil {
			fn(r)
		}
	}
}

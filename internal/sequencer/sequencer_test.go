package sequencer

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"sync"
	"testing"
	"time"

	"media-player/internal/models"
	"media-player/internal/playback"
	"media-player/internal/store"
)

type fakeResource struct {
	mu        sync.Mutex
	name      string
	journal   *[]string
	src       string
	paused    bool
	position  float64
	duration  float64
	volume    float64
	loadErr   error
	playErr   error
	callbacks playback.Callbacks
}

func newFakeResource(name string, journal *[]string) *fakeResource {
	return &fakeResource{name: name, journal: journal, paused: true, volume: 1}
}

func (f *fakeResource) record(call string) {
	if f.journal != nil {
		*f.journal = append(*f.journal, f.name+"."+call)
	}
}

func (f *fakeResource) Load(file string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("load")
	if f.loadErr != nil {
		return f.loadErr
	}
	f.src = file
	f.position = 0
	f.duration = 0
	f.paused = true
	return nil
}

func (f *fakeResource) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("play")
	if f.playErr != nil {
		return f.playErr
	}
	if f.src == "" {
		return playback.ErrNoSource
	}
	f.paused = false
	return nil
}

func (f *fakeResource) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pause")
	f.paused = true
}

func (f *fakeResource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop")
	f.src = ""
	f.position = 0
	f.duration = 0
	f.paused = true
}

func (f *fakeResource) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeResource) Source() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.src
}

func (f *fakeResource) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeResource) SetCurrentTime(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = seconds
}

func (f *fakeResource) Duration() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration, f.duration > 0
}

func (f *fakeResource) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakeResource) SetCallbacks(cb playback.Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = cb
}

func (f *fakeResource) currentCallbacks() playback.Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbacks
}

// finishLoading plays the host's part after a load: it reports a duration.
func (f *fakeResource) finishLoading(duration float64) {
	f.mu.Lock()
	f.duration = duration
	cb := f.callbacks
	f.mu.Unlock()
	if cb.OnMetadataReady != nil {
		cb.OnMetadataReady(duration)
	}
}

type fakeCatalog map[string]models.CatalogEntry

func (c fakeCatalog) Lookup(file string) (models.CatalogEntry, bool) {
	entry, ok := c[file]
	return entry, ok
}

type harness struct {
	seq     *Sequencer
	audio   *fakeResource
	video   *fakeResource
	kv      *store.Memory
	journal *[]string
	events  *[]EventType
}

func newHarness(t *testing.T, playlist ...string) *harness {
	t.Helper()
	kv := store.NewMemory()
	if len(playlist) > 0 {
		if err := store.SavePlaylist(context.Background(), kv, playlist); err != nil {
			t.Fatalf("seed playlist: %v", err)
		}
	}
	return newHarnessWithStore(t, kv, nil)
}

func newHarnessWithStore(t *testing.T, kv *store.Memory, rnd func(int) int) *harness {
	t.Helper()
	journal := []string{}
	events := []EventType{}
	audio := newFakeResource("audio", &journal)
	video := newFakeResource("video", &journal)

	seq := New(Options{
		ID: "test",
		Catalog: fakeCatalog{
			"a.mp3": {File: "a.mp3", Type: "mp3", Title: "Alpha"},
			"b.mp4": {File: "b.mp4", Type: "mp4", Title: "Bravo"},
			"c.mp3": {File: "c.mp3", Type: "mp3", Title: "Charlie"},
		},
		Audio:  audio,
		Video:  video,
		Store:  kv,
		Logger: log.New(io.Discard, "", 0),
		Rand:   rnd,
	})
	seq.Subscribe(func(ev Event) { events = append(events, ev.Type) })

	return &harness{seq: seq, audio: audio, video: video, kv: kv, journal: &journal, events: &events}
}

func (h *harness) resetJournal() {
	*h.journal = (*h.journal)[:0]
	*h.events = (*h.events)[:0]
}

func assertPlaylist(t *testing.T, seq *Sequencer, want ...string) {
	t.Helper()
	if want == nil {
		want = []string{}
	}
	if got := seq.State().Playlist; !reflect.DeepEqual(got, want) {
		t.Fatalf("playlist = %v, want %v", got, want)
	}
}

func assertIndex(t *testing.T, seq *Sequencer, want int) {
	t.Helper()
	if got := seq.State().CurrentIndex; got != want {
		t.Fatalf("current index = %d, want %d", got, want)
	}
}

func TestAddToPlaylistIsIdempotent(t *testing.T) {
	h := newHarness(t)

	h.seq.AddToPlaylist("a.mp3")
	h.seq.AddToPlaylist("b.mp4")
	h.seq.AddToPlaylist("a.mp3")
	h.seq.AddToPlaylist("")

	assertPlaylist(t, h.seq, "a.mp3", "b.mp4")
	if len(*h.events) != 2 {
		t.Fatalf("expected one notification per real change, got %v", *h.events)
	}
}

func TestAddToPlaylistAcceptsUnknownFiles(t *testing.T) {
	h := newHarness(t)

	h.seq.AddToPlaylist("missing/track.ogg")

	assertPlaylist(t, h.seq, "missing/track.ogg")
}

func TestRemoveThenAddAppendsAtEnd(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4", "c.mp3")

	h.seq.RemoveFromPlaylist("a.mp3")
	h.seq.AddToPlaylist("a.mp3")

	assertPlaylist(t, h.seq, "b.mp4", "c.mp3", "a.mp3")
}

func TestRemoveMissingFileIsNoop(t *testing.T) {
	h := newHarness(t, "a.mp3")

	h.seq.RemoveFromPlaylist("zzz.mp3")

	assertPlaylist(t, h.seq, "a.mp3")
	if len(*h.events) != 0 {
		t.Fatalf("expected no notifications, got %v", *h.events)
	}
}

func TestRemovingCurrentTrackKeepsItPlaying(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4")
	h.seq.PlayByFile("a.mp3")

	h.seq.RemoveFromPlaylist("a.mp3")

	state := h.seq.State()
	if state.CurrentIndex != -1 {
		t.Fatalf("expected index -1 once the current key is gone, got %d", state.CurrentIndex)
	}
	if !state.IsPlaying || h.audio.Paused() || h.audio.Source() != "a.mp3" {
		t.Fatalf("expected removed track to keep playing")
	}
}

func TestRemoveBeforeCurrentShiftsIndex(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4", "c.mp3")
	h.seq.PlayByFile("c.mp3")

	h.seq.RemoveFromPlaylist("a.mp3")

	assertIndex(t, h.seq, 1)
}

func TestReorderIsItsOwnInverse(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4", "c.mp3")

	h.seq.Reorder("b.mp4", Up)
	assertPlaylist(t, h.seq, "b.mp4", "a.mp3", "c.mp3")

	h.seq.Reorder("b.mp4", Down)
	assertPlaylist(t, h.seq, "a.mp3", "b.mp4", "c.mp3")

	h.seq.Reorder("b.mp4", Down)
	h.seq.Reorder("c.mp3", Down)
	assertPlaylist(t, h.seq, "a.mp3", "b.mp4", "c.mp3")
}

func TestReorderBoundariesAreNoops(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4", "c.mp3")

	h.seq.Reorder("a.mp3", Up)
	h.seq.Reorder("c.mp3", Down)
	h.seq.Reorder("missing.mp3", Up)
	h.seq.Reorder("b.mp4", Direction("sideways"))

	assertPlaylist(t, h.seq, "a.mp3", "b.mp4", "c.mp3")
	if len(*h.events) != 0 {
		t.Fatalf("expected no notifications, got %v", *h.events)
	}
}

func TestReorderFollowsCurrentTrack(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4", "c.mp3")
	h.seq.PlayByFile("a.mp3")

	h.seq.Reorder("a.mp3", Down)

	assertIndex(t, h.seq, 1)
}

func TestClearStopsPlayback(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4")
	h.seq.PlayByFile("b.mp4")

	h.seq.Clear()

	state := h.seq.State()
	if len(state.Playlist) != 0 || state.CurrentIndex != -1 || state.IsPlaying || state.Current != nil {
		t.Fatalf("unexpected state after clear: %+v", state)
	}
	if h.video.Source() != "" || h.audio.Source() != "" {
		t.Fatalf("expected both resources stopped")
	}
}

func TestPlayByFileStopsBothBeforeLoading(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4")
	h.seq.PlayByFile("a.mp3")
	h.resetJournal()

	h.seq.PlayByFile("b.mp4")

	want := []string{"audio.pause", "audio.stop", "video.pause", "video.stop", "video.load", "video.play"}
	if !reflect.DeepEqual(*h.journal, want) {
		t.Fatalf("calls = %v, want %v", *h.journal, want)
	}
	state := h.seq.State()
	if state.Kind != models.KindVideo || state.Current == nil || state.Current.Title != "Bravo" {
		t.Fatalf("unexpected current track: %+v", state)
	}
	if !h.audio.Paused() || h.audio.Source() != "" {
		t.Fatalf("expected audio silenced")
	}
}

func TestPlayByFileUnknownUsesFallbackAndAppends(t *testing.T) {
	h := newHarness(t, "a.mp3")

	h.seq.PlayByFile("other/x.wav")

	state := h.seq.State()
	if state.Current == nil || state.Current.Title != "other/x.wav" || state.Current.File != "other/x.wav" {
		t.Fatalf("expected fallback entry, got %+v", state.Current)
	}
	assertPlaylist(t, h.seq, "a.mp3", "other/x.wav")
	assertIndex(t, h.seq, 1)
	if !state.IsPlaying {
		t.Fatalf("expected playback to start")
	}
}

func TestPlayByFileEmptyKeyIsNoop(t *testing.T) {
	h := newHarness(t, "a.mp3")

	h.seq.PlayByFile("")

	if len(*h.journal) != 0 || len(*h.events) != 0 {
		t.Fatalf("expected no activity, got %v %v", *h.journal, *h.events)
	}
}

func TestPlayFailureLeavesStatePaused(t *testing.T) {
	h := newHarness(t, "a.mp3")
	h.audio.playErr = playback.ErrUnsupported

	h.seq.PlayByFile("a.mp3")

	state := h.seq.State()
	if state.IsPlaying {
		t.Fatalf("expected paused state after failure")
	}
	if state.CurrentIndex != 0 {
		t.Fatalf("expected index to point at the failed track, got %d", state.CurrentIndex)
	}
	last := (*h.events)[len(*h.events)-1]
	if last != PlaybackStateChanged {
		t.Fatalf("expected playback state notification, got %v", *h.events)
	}
}

func TestLoadFailureLeavesStatePaused(t *testing.T) {
	h := newHarness(t, "a.mp3")
	h.audio.loadErr = errors.New("codec")

	h.seq.PlayByFile("a.mp3")

	if h.seq.State().IsPlaying {
		t.Fatalf("expected paused state after load failure")
	}
	for _, call := range *h.journal {
		if call == "audio.play" {
			t.Fatalf("play must not be requested after a failed load")
		}
	}
}

func TestRepeatAllWrapsAround(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4", "c.mp3")
	h.seq.SetRepeatMode(models.RepeatAll)
	h.seq.PlayByFile("a.mp3")

	for i := 0; i < 3; i++ {
		h.seq.PlayNext()
	}

	assertIndex(t, h.seq, 0)
	if !h.seq.State().IsPlaying {
		t.Fatalf("expected playback to continue")
	}
}

func TestRepeatAllExampleFromLastEntry(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4", "c.mp3")
	h.seq.SetRepeatMode(models.RepeatAll)
	h.seq.PlayByFile("c.mp3")

	h.seq.PlayNext()

	assertIndex(t, h.seq, 0)
	if h.audio.Source() != "a.mp3" {
		t.Fatalf("expected a.mp3 loaded, got %q", h.audio.Source())
	}
}

func TestRepeatNoneStopsAtEnd(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4", "c.mp3")
	h.seq.PlayByFile("c.mp3")

	h.seq.PlayNext()

	assertIndex(t, h.seq, 2)
	if h.seq.State().IsPlaying || !h.audio.Paused() {
		t.Fatalf("expected playback paused at the end")
	}
	if h.audio.Source() != "c.mp3" {
		t.Fatalf("expected the last track to stay loaded")
	}
}

func TestPlayNextStartsFromFirstEntryWhenIdle(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4")

	h.seq.PlayNext()

	assertIndex(t, h.seq, 0)
}

func TestShuffleSingleEntryReselectsIt(t *testing.T) {
	kv := store.NewMemory()
	if err := store.SavePlaylist(context.Background(), kv, []string{"a.mp3"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := newHarnessWithStore(t, kv, nil)
	h.seq.SetShuffle(true)
	h.seq.PlayByFile("a.mp3")

	for i := 0; i < 5; i++ {
		h.seq.PlayNext()
		assertIndex(t, h.seq, 0)
	}
}

func TestShuffleUsesRandomIndex(t *testing.T) {
	kv := store.NewMemory()
	if err := store.SavePlaylist(context.Background(), kv, []string{"a.mp3", "b.mp4", "c.mp3"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var bounds []int
	picks := []int{2, 2, 0}
	h := newHarnessWithStore(t, kv, func(n int) int {
		bounds = append(bounds, n)
		pick := picks[0]
		picks = picks[1:]
		return pick
	})
	h.seq.ToggleShuffle()

	h.seq.PlayNext()
	assertIndex(t, h.seq, 2)
	h.seq.PlayNext()
	assertIndex(t, h.seq, 2)
	h.seq.PlayNext()
	assertIndex(t, h.seq, 0)

	if !reflect.DeepEqual(bounds, []int{3, 3, 3}) {
		t.Fatalf("expected draws over the whole playlist, got %v", bounds)
	}
}

func TestPlayPrevious(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4", "c.mp3")
	h.seq.PlayByFile("b.mp4")

	h.seq.PlayPrevious()
	assertIndex(t, h.seq, 0)

	h.seq.PlayPrevious()
	assertIndex(t, h.seq, 0)

	h.seq.SetRepeatMode(models.RepeatAll)
	h.seq.PlayPrevious()
	assertIndex(t, h.seq, 2)
}

func TestEmptyPlaylistNavigationIsNoop(t *testing.T) {
	h := newHarness(t)
	before := h.seq.State()

	h.seq.PlayPrevious()
	h.seq.PlayNext()
	h.seq.TogglePause()
	h.seq.SeekRelative(5)
	h.seq.SeekToFraction(0.5)

	if after := h.seq.State(); !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed: before %+v after %+v", before, after)
	}
	if len(*h.journal) != 0 || len(*h.events) != 0 {
		t.Fatalf("expected no activity, got %v %v", *h.journal, *h.events)
	}
}

func TestTrackEndedRepeatOneRestarts(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4")
	h.seq.SetRepeatMode(models.RepeatOne)
	h.seq.PlayByFile("a.mp3")
	h.audio.finishLoading(120)
	h.audio.SetCurrentTime(120)

	h.seq.OnTrackEnded()

	assertIndex(t, h.seq, 0)
	if h.audio.CurrentTime() != 0 {
		t.Fatalf("expected position reset to 0, got %v", h.audio.CurrentTime())
	}
	if !h.seq.State().IsPlaying || h.audio.Paused() {
		t.Fatalf("expected track to restart")
	}
}

func TestTrackEndedAdvances(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4")
	h.seq.PlayByFile("a.mp3")

	h.audio.currentCallbacks().OnEnded()

	assertIndex(t, h.seq, 1)
	if h.video.Source() != "b.mp4" {
		t.Fatalf("expected video to take over, got %q", h.video.Source())
	}
}

func TestStaleEndedNotificationIsIgnored(t *testing.T) {
	h := newHarness(t, "a.mp3", "b.mp4", "c.mp3")
	h.seq.PlayByFile("a.mp3")
	stale := h.audio.currentCallbacks()

	h.seq.PlayByFile("c.mp3")
	stale.OnEnded()
	stale.OnMetadataReady(999)

	assertIndex(t, h.seq, 2)
	if d := h.seq.State().Duration; d != nil {
		t.Fatalf("expected stale metadata to be dropped, got %v", *d)
	}
}

func TestCycleRepeatMode(t *testing.T) {
	h := newHarness(t)

	got := []models.RepeatMode{h.seq.CycleRepeatMode(), h.seq.CycleRepeatMode(), h.seq.CycleRepeatMode()}

	want := []models.RepeatMode{models.RepeatOne, models.RepeatAll, models.RepeatNone}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("cycle = %v, want %v", got, want)
	}

	h.seq.SetRepeatMode(models.RepeatMode("bogus"))
	if h.seq.State().RepeatMode != models.RepeatNone {
		t.Fatalf("invalid mode must be ignored")
	}
}

func TestTogglePause(t *testing.T) {
	h := newHarness(t, "a.mp3")
	h.seq.PlayByFile("a.mp3")

	h.seq.TogglePause()
	if h.seq.State().IsPlaying || !h.audio.Paused() {
		t.Fatalf("expected pause")
	}

	h.seq.TogglePause()
	if !h.seq.State().IsPlaying || h.audio.Paused() {
		t.Fatalf("expected resume")
	}
}

func TestSeekRelativeClamps(t *testing.T) {
	h := newHarness(t, "a.mp3")
	h.seq.PlayByFile("a.mp3")

	h.seq.SeekRelative(10)
	if h.audio.CurrentTime() != 0 {
		t.Fatalf("seek without duration must be a no-op")
	}

	h.audio.finishLoading(60)
	h.seq.SeekRelative(10)
	if got := h.audio.CurrentTime(); got != 10 {
		t.Fatalf("position = %v, want 10", got)
	}
	h.seq.SeekRelative(-30)
	if got := h.audio.CurrentTime(); got != 0 {
		t.Fatalf("position = %v, want 0", got)
	}
	h.seq.SeekRelative(500)
	if got := h.audio.CurrentTime(); got != 60 {
		t.Fatalf("position = %v, want 60", got)
	}
}

func TestSeekToFraction(t *testing.T) {
	h := newHarness(t, "a.mp3")
	h.seq.PlayByFile("a.mp3")

	h.seq.SeekToFraction(0.5)
	if h.audio.CurrentTime() != 0 {
		t.Fatalf("seek before metadata must be a no-op")
	}

	h.audio.finishLoading(200)
	h.seq.SeekToFraction(0.25)
	if got := h.audio.CurrentTime(); got != 50 {
		t.Fatalf("position = %v, want 50", got)
	}
	h.seq.SeekToFraction(3)
	if got := h.audio.CurrentTime(); got != 200 {
		t.Fatalf("position = %v, want 200", got)
	}
}

func TestStateLabels(t *testing.T) {
	h := newHarness(t, "a.mp3")
	h.seq.PlayByFile("a.mp3")
	h.audio.finishLoading(125)
	h.audio.SetCurrentTime(61)

	state := h.seq.State()
	if state.PositionLabel != "1:01" || state.DurationLabel != "2:05" {
		t.Fatalf("labels = %q / %q", state.PositionLabel, state.DurationLabel)
	}
	if state.Duration == nil || *state.Duration != 125 {
		t.Fatalf("unexpected duration %v", state.Duration)
	}
}

func TestPlaylistIsPersistedOnChange(t *testing.T) {
	h := newHarness(t)

	h.seq.AddToPlaylist("a.mp3")
	h.seq.AddToPlaylist("c.mp3")
	h.seq.Reorder("c.mp3", Up)

	got, err := store.LoadPlaylist(context.Background(), h.kv)
	if err != nil {
		t.Fatalf("load playlist: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"c.mp3", "a.mp3"}) {
		t.Fatalf("persisted playlist = %v", got)
	}
}

func TestRestoreFromStore(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	if err := store.SavePlaylist(ctx, kv, []string{"b.mp4", "a.mp3"}); err != nil {
		t.Fatalf("seed playlist: %v", err)
	}
	if err := store.SaveVolume(ctx, kv, 0.3); err != nil {
		t.Fatalf("seed volume: %v", err)
	}

	h := newHarnessWithStore(t, kv, nil)

	state := h.seq.State()
	if !reflect.DeepEqual(state.Playlist, []string{"b.mp4", "a.mp3"}) {
		t.Fatalf("restored playlist = %v", state.Playlist)
	}
	if state.Volume != 0.3 || h.audio.volume != 0.3 || h.video.volume != 0.3 {
		t.Fatalf("expected volume 0.3 applied everywhere, got %v", state.Volume)
	}
	if state.CurrentIndex != -1 || state.IsPlaying {
		t.Fatalf("expected an idle session, got %+v", state)
	}
}

func TestDefaultVolume(t *testing.T) {
	h := newHarness(t)

	if got := h.seq.State().Volume; got != store.DefaultVolume {
		t.Fatalf("volume = %v, want %v", got, store.DefaultVolume)
	}
}

func TestSetVolumeClampsAndPersists(t *testing.T) {
	h := newHarness(t)

	h.seq.SetVolume(1.7)

	if h.audio.volume != 1 || h.video.volume != 1 {
		t.Fatalf("expected clamped volume on both resources")
	}
	got, err := store.LoadVolume(context.Background(), h.kv, 0)
	if err != nil || got != 1 {
		t.Fatalf("persisted volume = %v, %v", got, err)
	}
}

func TestCloseStopsAndPersists(t *testing.T) {
	h := newHarness(t, "a.mp3")
	h.seq.PlayByFile("a.mp3")

	if err := h.seq.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if h.audio.Source() != "" {
		t.Fatalf("expected resource stopped")
	}
	got, _ := store.LoadPlaylist(context.Background(), h.kv)
	if !reflect.DeepEqual(got, []string{"a.mp3"}) {
		t.Fatalf("persisted playlist = %v", got)
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	h := newHarness(t)
	count := 0
	cancel := h.seq.Subscribe(func(Event) { count++ })

	h.seq.AddToPlaylist("a.mp3")
	cancel()
	cancel()
	h.seq.AddToPlaylist("b.mp4")

	if count != 1 {
		t.Fatalf("expected 1 event before unsubscribe, got %d", count)
	}
}

func TestEventsCarrySnapshot(t *testing.T) {
	h := newHarness(t)
	var last Event
	h.seq.Subscribe(func(ev Event) { last = ev })

	h.seq.PlayByFile("b.mp4")

	if last.Type != TrackChanged || last.State.Current == nil || last.State.Current.File != "b.mp4" {
		t.Fatalf("unexpected event %+v", last)
	}
}

func TestSessionRoutesHostCallbacksThroughLoop(t *testing.T) {
	audio := newFakeResource("audio", nil)
	video := newFakeResource("video", nil)
	kv := store.NewMemory()
	session := NewSession(Options{
		Catalog: fakeCatalog{},
		Audio:   audio,
		Video:   video,
		Store:   kv,
		Logger:  log.New(io.Discard, "", 0),
	})
	t.Cleanup(func() { _ = session.Close(context.Background()) })

	if session.ID() == "" {
		t.Fatalf("expected a generated session id")
	}

	ctx := context.Background()
	if err := session.Do(ctx, func(seq *Sequencer) {
		seq.AddToPlaylist("one.mp3")
		seq.AddToPlaylist("two.mp3")
		seq.PlayByFile("one.mp3")
	}); err != nil {
		t.Fatalf("do: %v", err)
	}

	audio.currentCallbacks().OnEnded()

	waitFor(t, time.Second, func() bool {
		state, err := session.State(ctx)
		return err == nil && state.CurrentIndex == 1
	})
}

func TestSessionCloseRejectsFurtherCommands(t *testing.T) {
	kv := store.NewMemory()
	session := NewSession(Options{Store: kv, Logger: log.New(io.Discard, "", 0)})
	ctx := context.Background()

	if err := session.Do(ctx, func(seq *Sequencer) { seq.AddToPlaylist("x.mp3") }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if err := session.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := session.Do(ctx, func(*Sequencer) {}); !errors.Is(err, ErrLoopClosed) {
		t.Fatalf("expected ErrLoopClosed, got %v", err)
	}
	got, _ := store.LoadPlaylist(ctx, kv)
	if !reflect.DeepEqual(got, []string{"x.mp3"}) {
		t.Fatalf("persisted playlist = %v", got)
	}
}

func TestLoopDoHonoursContext(t *testing.T) {
	loop := NewLoop()
	t.Cleanup(loop.Close)

	release := make(chan struct{})
	loop.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := loop.Do(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-player/internal/catalog"
	"media-player/internal/models"
	"media-player/internal/sequencer"
)

const (
	defaultSeekStep = 5.0
	maxBodyBytes    = 64 << 10
)

// Player runs commands against the playback session.
type Player interface {
	Do(ctx context.Context, fn func(*sequencer.Sequencer)) error
	State(ctx context.Context) (models.PlaybackState, error)
	Subscribe(l sequencer.Listener) func()
}

// Library is the read side of the media catalog.
type Library interface {
	Lookup(file string) (models.CatalogEntry, bool)
	Query(q catalog.Query) []models.CatalogEntry
	Len() int
	LastError() error
}

// TokenValidator determines whether a supplied token is authorized.
type TokenValidator interface {
	IsValidToken(token string) bool
}

// FeedMetadata describes the static information necessary to render the RSS feed.
type FeedMetadata struct {
	Title       string
	Description string
	Language    string
	Author      string
}

// Options configures the HTTP handler.
type Options struct {
	Player    Player
	Library   Library
	Validator TokenValidator
	MediaRoot string
	// SeekStep is the default delta in seconds for /player/seek.
	SeekStep float64
	Feed     FeedMetadata
	Logger   *log.Logger
}

type serverHandler struct {
	player    Player
	library   Library
	validator TokenValidator
	mediaRoot string
	seekStep  float64
	feed      FeedMetadata
	logger    *log.Logger
}

// New creates the HTTP handler that exposes the catalog, the playback
// session and the media files.
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	cleanRoot := filepath.Clean(opts.MediaRoot)
	absRoot, err := filepath.Abs(cleanRoot)
	if err != nil {
		logger.Printf("warning: unable to resolve absolute media root %q: %v", opts.MediaRoot, err)
		absRoot = cleanRoot
	}

	feed := opts.Feed
	if feed.Title == "" {
		feed.Title = "Media Player"
	}
	if feed.Description == "" {
		feed.Description = feed.Title
	}
	seekStep := opts.SeekStep
	if seekStep <= 0 {
		seekStep = defaultSeekStep
	}

	h := &serverHandler{
		player:    opts.Player,
		library:   opts.Library,
		validator: opts.Validator,
		mediaRoot: absRoot,
		seekStep:  seekStep,
		feed:      feed,
		logger:    logger,
	}

	r := mux.NewRouter()
	r.Use(recordMetrics)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(h.requireToken)

	api.HandleFunc("/catalog", h.handleCatalog).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/state", h.handleState).Methods(http.MethodGet)
	api.HandleFunc("/events", h.handleEvents).Methods(http.MethodGet)

	api.HandleFunc("/playlist", h.handlePlaylist).Methods(http.MethodGet)
	api.HandleFunc("/playlist", h.handleAdd).Methods(http.MethodPost)
	api.HandleFunc("/playlist", h.handleRemove).Methods(http.MethodDelete)
	api.HandleFunc("/playlist/move", h.handleMove).Methods(http.MethodPost)
	api.HandleFunc("/playlist/clear", h.handleClear).Methods(http.MethodPost)
	api.HandleFunc("/playlist/feed.xml", h.handleFeed).Methods(http.MethodGet)

	api.HandleFunc("/player/play", h.handlePlay).Methods(http.MethodPost)
	api.HandleFunc("/player/next", h.command(func(s *sequencer.Sequencer) { s.PlayNext() })).Methods(http.MethodPost)
	api.HandleFunc("/player/previous", h.command(func(s *sequencer.Sequencer) { s.PlayPrevious() })).Methods(http.MethodPost)
	api.HandleFunc("/player/toggle", h.command(func(s *sequencer.Sequencer) { s.TogglePause() })).Methods(http.MethodPost)
	api.HandleFunc("/player/seek", h.handleSeek).Methods(http.MethodPost)
	api.HandleFunc("/player/shuffle", h.handleShuffle).Methods(http.MethodPost)
	api.HandleFunc("/player/repeat", h.handleRepeat).Methods(http.MethodPost)
	api.HandleFunc("/player/volume", h.handleVolume).Methods(http.MethodPost)

	api.PathPrefix("/media/").HandlerFunc(h.handleMedia).Methods(http.MethodGet, http.MethodHead)

	return logRequests(r, logger)
}

func (h *serverHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

type catalogResponse struct {
	Entries []models.CatalogEntry `json:"entries"`
	Total   int                   `json:"total"`
	Shown   int                   `json:"shown"`
	Error   string                `json:"error,omitempty"`
}

func (h *serverHandler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	entries := h.library.Query(queryFromRequest(r))
	resp := catalogResponse{
		Entries: entries,
		Total:   h.library.Len(),
		Shown:   len(entries),
	}
	if err := h.library.LastError(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

type statsResponse struct {
	Total    int `json:"total"`
	Shown    int `json:"shown"`
	Playlist int `json:"playlist"`
}

func (h *serverHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	state, ok := h.state(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Total:    h.library.Len(),
		Shown:    len(h.library.Query(queryFromRequest(r))),
		Playlist: len(state.Playlist),
	}, h.logger)
}

func (h *serverHandler) handleState(w http.ResponseWriter, r *http.Request) {
	if state, ok := h.state(w, r); ok {
		writeJSON(w, http.StatusOK, state, h.logger)
	}
}

type playlistItem struct {
	File    string `json:"file"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Current bool   `json:"current"`
	Missing bool   `json:"missing"`
}

func (h *serverHandler) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	state, ok := h.state(w, r)
	if !ok {
		return
	}

	items := make([]playlistItem, 0, len(state.Playlist))
	for i, file := range state.Playlist {
		entry, found := h.library.Lookup(file)
		if !found {
			entry = models.FallbackEntry(file)
		}
		items = append(items, playlistItem{
			File:    file,
			Title:   entry.Title,
			Type:    entry.Type,
			Current: i == state.CurrentIndex,
			Missing: !found,
		})
	}
	writeJSON(w, http.StatusOK, items, h.logger)
}

type fileRequest struct {
	File      string `json:"file"`
	Direction string `json:"direction"`
}

func (h *serverHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.File == "" {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	h.run(w, r, func(s *sequencer.Sequencer) { s.AddToPlaylist(req.File) })
}

func (h *serverHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	if file == "" {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	h.run(w, r, func(s *sequencer.Sequencer) { s.RemoveFromPlaylist(file) })
}

func (h *serverHandler) handleMove(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !h.decode(w, r, &req) {
		return
	}
	dir := sequencer.Direction(req.Direction)
	if req.File == "" || (dir != sequencer.Up && dir != sequencer.Down) {
		http.Error(w, "file and direction (up or down) are required", http.StatusBadRequest)
		return
	}
	h.run(w, r, func(s *sequencer.Sequencer) { s.Reorder(req.File, dir) })
}

func (h *serverHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(s *sequencer.Sequencer) { s.Clear() })
}

func (h *serverHandler) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.File == "" {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	h.run(w, r, func(s *sequencer.Sequencer) { s.PlayByFile(req.File) })
}

type seekRequest struct {
	Delta    *float64 `json:"delta"`
	Fraction *float64 `json:"fraction"`
}

func (h *serverHandler) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Fraction != nil {
		pct := *req.Fraction
		h.run(w, r, func(s *sequencer.Sequencer) { s.SeekToFraction(pct) })
		return
	}
	delta := h.seekStep
	if req.Delta != nil {
		delta = *req.Delta
	}
	h.run(w, r, func(s *sequencer.Sequencer) { s.SeekRelative(delta) })
}

type shuffleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *serverHandler) handleShuffle(w http.ResponseWriter, r *http.Request) {
	var req shuffleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, func(s *sequencer.Sequencer) {
		if req.Enabled == nil {
			s.ToggleShuffle()
			return
		}
		s.SetShuffle(*req.Enabled)
	})
}

type repeatRequest struct {
	Mode *string `json:"mode"`
}

func (h *serverHandler) handleRepeat(w http.ResponseWriter, r *http.Request) {
	var req repeatRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Mode == nil {
		h.run(w, r, func(s *sequencer.Sequencer) { s.CycleRepeatMode() })
		return
	}
	mode, ok := models.ParseRepeatMode(*req.Mode)
	if !ok {
		http.Error(w, "mode must be none, one or all", http.StatusBadRequest)
		return
	}
	h.run(w, r, func(s *sequencer.Sequencer) { s.SetRepeatMode(mode) })
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

func (h *serverHandler) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Volume == nil {
		http.Error(w, "volume is required", http.StatusBadRequest)
		return
	}
	v := *req.Volume
	h.run(w, r, func(s *sequencer.Sequencer) { s.SetVolume(v) })
}

func (h *serverHandler) command(fn func(*sequencer.Sequencer)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.run(w, r, fn)
	}
}

// run executes fn on the session and answers with the resulting state.
func (h *serverHandler) run(w http.ResponseWriter, r *http.Request, fn func(*sequencer.Sequencer)) {
	var state models.PlaybackState
	err := h.player.Do(r.Context(), func(s *sequencer.Sequencer) {
		fn(s)
		state = s.State()
	})
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state, h.logger)
}

func (h *serverHandler) state(w http.ResponseWriter, r *http.Request) (models.PlaybackState, bool) {
	state, err := h.player.State(r.Context())
	if err != nil {
		h.sessionError(w, err)
		return models.PlaybackState{}, false
	}
	return state, true
}

func (h *serverHandler) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	h.logger.Printf("session unavailable: %v", err)
	w.WriteHeader(http.StatusServiceUnavailable)
}

// decode reads an optional JSON body; an empty body leaves v untouched.
func (h *serverHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func queryFromRequest(r *http.Request) catalog.Query {
	values := r.URL.Query()
	return catalog.Query{
		Text: values.Get("q"),
		Type: values.Get("type"),
		Sort: values.Get("sort"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *log.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("failed to encode response: %v", err)
	}
}

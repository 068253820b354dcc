package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"media-player/internal/metrics"
	"media-player/internal/sequencer"
)

const (
	eventBuffer       = 32
	heartbeatInterval = 15 * time.Second
)

// handleEvents streams sequencer notifications as server-sent events. The
// first event is a snapshot of the current state.
func (h *serverHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan sequencer.Event, eventBuffer)
	clientID := uuid.NewString()
	unsubscribe := h.player.Subscribe(func(ev sequencer.Event) {
		select {
		case events <- ev:
		default:
			h.logger.Printf("events client %s is behind, dropping %s", clientID, ev.Type)
		}
	})
	defer unsubscribe()

	metrics.EventSubscribers.Inc()
	defer metrics.EventSubscribers.Dec()

	state, ok := h.state(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	seq := 0
	if err := writeEvent(w, seq, sequencer.Event{Type: "state", State: state}); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			seq++
			if err := writeEvent(w, seq, ev); err != nil {
				h.logger.Printf("events client %s: %v", clientID, err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, id int, ev sequencer.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, ev.Type, data)
	return err
}

package sequencer

import (
	"errors"

	"media-player/internal/models"
)

var errNoResource = errors.New("no playback resource for media kind")

// EventType names a change notification.
type EventType string

const (
	PlaylistChanged      EventType = "playlistChanged"
	TrackChanged         EventType = "trackChanged"
	PlaybackStateChanged EventType = "playbackStateChanged"
)

// Event is delivered to listeners after every state change.
type Event struct {
	Type  EventType            `json:"type"`
	State models.PlaybackState `json:"state"`
}

// Listener receives events on the sequencer's goroutine and must not block.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// Subscribe registers l and returns a function that removes it. The returned
// function may be called from any goroutine.
func (s *Sequencer) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextListener++
	id := s.nextListener
	s.listeners = append(s.listeners, subscription{id: id, fn: l})

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Sequencer) emit(t EventType) {
	s.listenersMu.Lock()
	listeners := append([]subscription(nil), s.listeners...)
	s.listenersMu.Unlock()
	if len(listeners) == 0 {
		return
	}

	ev := Event{Type: t, State: s.State()}
	for _, sub := range listeners {
		sub.fn(ev)
	}
}

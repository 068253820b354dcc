package models

import (
	"fmt"
	"math"
)

// RepeatMode controls what happens at the end of a track or of the playlist.
type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatOne  RepeatMode = "one"
	RepeatAll  RepeatMode = "all"
)

// Next returns the mode that follows m in the none -> one -> all cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatOne
	case RepeatOne:
		return RepeatAll
	default:
		return RepeatNone
	}
}

// ParseRepeatMode converts a string into a RepeatMode.
func ParseRepeatMode(value string) (RepeatMode, bool) {
	switch RepeatMode(value) {
	case RepeatNone, RepeatOne, RepeatAll:
		return RepeatMode(value), true
	default:
		return RepeatNone, false
	}
}

// PlaybackState is an immutable snapshot of a playback session.
type PlaybackState struct {
	SessionID     string        `json:"session_id"`
	Playlist      []string      `json:"playlist"`
	CurrentIndex  int           `json:"current_index"`
	Current       *CatalogEntry `json:"current,omitempty"`
	Kind          MediaKind     `json:"kind,omitempty"`
	IsPlaying     bool          `json:"is_playing"`
	Shuffle       bool          `json:"shuffle"`
	RepeatMode    RepeatMode    `json:"repeat_mode"`
	Volume        float64       `json:"volume"`
	Position      float64       `json:"position"`
	Duration      *float64      `json:"duration,omitempty"`
	PositionLabel string        `json:"position_label"`
	DurationLabel string        `json:"duration_label"`
}

// HumanTime formats seconds as m:ss. Non-finite and non-positive values render as 0:00.
func HumanTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return "0:00"
	}
	minutes := int64(seconds / 60)
	secs := int64(math.Mod(seconds, 60))
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

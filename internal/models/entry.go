package models

import (
	"path"
	"strings"
)

// CatalogEntry describes a single playable item from the media manifest.
type CatalogEntry struct {
	File            string   `json:"file"`
	Type            string   `json:"type"`
	Title           string   `json:"title"`
	Thumbnail       string   `json:"thumbnail"`
	Description     string   `json:"description"`
	Lyrics          string   `json:"lyrics"`
	Date            string   `json:"date"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// MediaKind tells which media element plays an entry.
type MediaKind string

const (
	KindNone  MediaKind = ""
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".mkv":  true,
}

var audioExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
	".ogg": true,
	".m4a": true,
}

// KindForFile returns KindVideo for video extensions and KindAudio for everything else.
func KindForFile(file string) MediaKind {
	if IsVideoFile(file) {
		return KindVideo
	}
	return KindAudio
}

// IsVideoFile reports whether the file extension is one of mp4, webm, mov or mkv.
func IsVideoFile(file string) bool {
	return videoExtensions[strings.ToLower(path.Ext(file))]
}

// IsAudioFile reports whether the file extension is one of mp3, wav, ogg or m4a.
func IsAudioFile(file string) bool {
	return audioExtensions[strings.ToLower(path.Ext(file))]
}

// FallbackEntry is used for playlist keys that are absent from the catalog.
func FallbackEntry(file string) CatalogEntry {
	return CatalogEntry{File: file, Title: file}
}

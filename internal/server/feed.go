package server

import (
	"encoding/xml"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	pathpkg "path"
	"path/filepath"
	"strings"
	"time"

	"media-player/internal/models"
)

func (h *serverHandler) handleFeed(w http.ResponseWriter, r *http.Request) {
	state, ok := h.state(w, r)
	if !ok {
		return
	}

	base := requestBaseURL(r)
	if base == nil {
		h.logger.Printf("unable to determine request base URL")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	entries := make([]models.CatalogEntry, 0, len(state.Playlist))
	for _, file := range state.Playlist {
		entry, found := h.library.Lookup(file)
		if !found {
			entry = models.FallbackEntry(file)
		}
		entries = append(entries, entry)
	}

	data, err := h.buildRSSFeed(base, r.URL.Path, r.URL.RawQuery, entries, extractToken(r))
	if err != nil {
		h.logger.Printf("failed to build RSS feed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		h.logger.Printf("failed to write RSS feed: %v", err)
	}
}

func requestBaseURL(r *http.Request) *url.URL {
	scheme := "http"
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		if candidate := strings.TrimSpace(strings.Split(forwarded, ",")[0]); candidate != "" {
			scheme = candidate
		}
	} else if r.TLS != nil {
		scheme = "https"
	}

	host := strings.TrimSpace(r.Host)
	if host == "" {
		return nil
	}

	return &url.URL{Scheme: scheme, Host: host}
}

// buildRSSFeed renders the playlist in playlist order. Items keep the order
// the listener chose, so there is no date sorting here.
func (h *serverHandler) buildRSSFeed(base *url.URL, requestPath, rawQuery string, entries []models.CatalogEntry, token string) ([]byte, error) {
	feedURL := *base
	feedURL.Path = requestPath
	feedURL.RawQuery = rawQuery

	channelLink := *base

	lastBuild := time.Time{}
	for _, entry := range entries {
		if date := entryDate(entry); !date.IsZero() && date.After(lastBuild) {
			lastBuild = date
		}
	}
	if lastBuild.IsZero() {
		lastBuild = time.Now().UTC()
	}

	rss := rssFeed{
		Version:  "2.0",
		AtomNS:   "http://www.w3.org/2005/Atom",
		ITunesNS: "http://www.itunes.com/dtds/podcast-1.0.dtd",
		Channel: rssChannel{
			Title:         h.feed.Title,
			Link:          channelLink.String(),
			Description:   h.feed.Description,
			Language:      h.feed.Language,
			LastBuildDate: lastBuild.Format(time.RFC1123Z),
			Generator:     "media-player",
			AtomLink: rssAtomLink{
				Href: feedURL.String(),
				Rel:  "self",
				Type: "application/rss+xml",
			},
			ITunesAuthor: h.feed.Author,
		},
	}

	for _, entry := range entries {
		enclosureURL := *base
		enclosureURL.Path = "/" + strings.TrimLeft(pathpkg.Join("media", entry.File), "/")
		if token != "" {
			values := url.Values{}
			values.Set("token", token)
			enclosureURL.RawQuery = values.Encode()
		}

		item := rssItem{
			Title:       entry.Title,
			Link:        enclosureURL.String(),
			GUID:        rssGUID{IsPermaLink: "false", Value: entry.File},
			Description: entry.Description,
			Enclosure: rssEnclosure{
				URL:    enclosureURL.String(),
				Length: h.fileSize(entry.File),
				Type:   mimeTypeForFilename(entry.File),
			},
			ITunesAuthor: h.feed.Author,
		}
		if date := entryDate(entry); !date.IsZero() {
			item.PubDate = date.Format(time.RFC1123Z)
		}
		if entry.DurationSeconds != nil {
			item.ITunesDuration = formatDuration(*entry.DurationSeconds)
		}

		rss.Channel.Items = append(rss.Channel.Items, item)
	}

	output, err := xml.MarshalIndent(rss, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), output...), nil
}

func (h *serverHandler) fileSize(file string) int64 {
	resolved, ok := h.resolveMedia(file)
	if !ok {
		return 0
	}
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}

func entryDate(entry models.CatalogEntry) time.Time {
	if entry.Date == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, entry.Date); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func mimeTypeForFilename(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if value := mime.TypeByExtension(ext); value != "" {
			return value
		}
		if fallback, ok := fallbackMIMETypes[ext]; ok {
			return fallback
		}
	}
	return "application/octet-stream"
}

var fallbackMIMETypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	total := int64(seconds + 0.5)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

type rssFeed struct {
	XMLName  xml.Name   `xml:"rss"`
	Version  string     `xml:"version,attr"`
	AtomNS   string     `xml:"xmlns:atom,attr"`
	ITunesNS string     `xml:"xmlns:itunes,attr"`
	Channel  rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string      `xml:"title"`
	Link          string      `xml:"link"`
	Description   string      `xml:"description"`
	Language      string      `xml:"language,omitempty"`
	LastBuildDate string      `xml:"lastBuildDate"`
	Generator     string      `xml:"generator"`
	AtomLink      rssAtomLink `xml:"atom:link"`
	ITunesAuthor  string      `xml:"itunes:author,omitempty"`
	Items         []rssItem   `xml:"item"`
}

type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title          string       `xml:"title"`
	Link           string       `xml:"link"`
	GUID           rssGUID      `xml:"guid"`
	PubDate        string       `xml:"pubDate,omitempty"`
	Description    string       `xml:"description"`
	Enclosure      rssEnclosure `xml:"enclosure"`
	ITunesDuration string       `xml:"itunes:duration,omitempty"`
	ITunesAuthor   string       `xml:"itunes:author,omitempty"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

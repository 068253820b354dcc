package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"media-player/internal/models"
)

// Type filters accepted by Query.
const (
	FilterAll   = "all"
	FilterAudio = "audio"
	FilterVideo = "video"
)

// Sort orders accepted by Query.
const (
	SortNone  = ""
	SortTitle = "title"
	SortDate  = "date"
	SortType  = "type"
)

// Query narrows and orders catalog entries.
type Query struct {
	// Text is matched case-insensitively against title, description and file.
	Text string
	// Type is "all", "audio", "video" or a specific lower-case type such as "wav".
	Type string
	// Sort is "title" (ascending), "date" (newest first), "type" or empty for manifest order.
	Sort string
}

// Apply filters and sorts entries. The input slice is not modified.
func (q Query) Apply(entries []models.CatalogEntry) []models.CatalogEntry {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	kind := strings.ToLower(strings.TrimSpace(q.Type))

	result := make([]models.CatalogEntry, 0, len(entries))
	for _, entry := range entries {
		if !matchesType(entry, kind) {
			continue
		}
		if text != "" {
			hay := strings.ToLower(entry.Title + " " + entry.Description + " " + entry.File)
			if !strings.Contains(hay, text) {
				continue
			}
		}
		result = append(result, entry)
	}

	switch q.Sort {
	case SortTitle:
		col := collate.New(language.Und, collate.IgnoreCase)
		sort.SliceStable(result, func(i, j int) bool {
			return col.CompareString(result[i].Title, result[j].Title) < 0
		})
	case SortDate:
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].Date > result[j].Date
		})
	case SortType:
		col := collate.New(language.Und)
		sort.SliceStable(result, func(i, j int) bool {
			return col.CompareString(result[i].Type, result[j].Type) < 0
		})
	}

	return result
}

func matchesType(entry models.CatalogEntry, kind string) bool {
	switch kind {
	case "", FilterAll:
		return true
	case FilterAudio:
		return entry.Type == "mp3" || models.IsAudioFile(entry.File)
	case FilterVideo:
		return entry.Type == "mp4" || models.IsVideoFile(entry.File)
	default:
		return entry.Type == kind
	}
}

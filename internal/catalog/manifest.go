package catalog

import (
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"media-player/internal/models"
)

// ParseManifest decodes a media manifest and normalizes its records. A
// document that is valid JSON but not an array yields an empty catalog.
func ParseManifest(data []byte) ([]models.CatalogEntry, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	records, ok := doc.([]any)
	if !ok {
		return []models.CatalogEntry{}, nil
	}

	entries := make([]models.CatalogEntry, 0, len(records))
	for _, record := range records {
		fields, ok := record.(map[string]any)
		if !ok {
			continue
		}
		entries = append(entries, Normalize(fields))
	}
	return entries, nil
}

// Normalize turns a raw manifest record into a CatalogEntry. The file is the
// first non-empty of file, src and path; missing fields become empty strings.
func Normalize(fields map[string]any) models.CatalogEntry {
	file := firstNonEmpty(fields, "file", "src", "path")

	kind := strings.ToLower(field(fields, "type"))
	if kind == "" {
		kind = strings.TrimPrefix(strings.ToLower(path.Ext(file)), ".")
	}

	title := field(fields, "title")
	if title == "" {
		title = file[strings.LastIndex(file, "/")+1:]
	}

	entry := models.CatalogEntry{
		File:        file,
		Type:        kind,
		Title:       title,
		Thumbnail:   field(fields, "thumbnail"),
		Description: field(fields, "description"),
		Lyrics:      field(fields, "lyrics"),
		Date:        field(fields, "date"),
	}

	if seconds, ok := fields["duration_seconds"].(float64); ok && seconds > 0 {
		entry.DurationSeconds = &seconds
	}

	return entry
}

func firstNonEmpty(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := field(fields, key); value != "" {
			return value
		}
	}
	return ""
}

func field(fields map[string]any, key string) string {
	switch value := fields[key].(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		if value {
			return "true"
		}
		return ""
	default:
		return ""
	}
}

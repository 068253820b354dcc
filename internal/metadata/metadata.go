package metadata

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"

	"media-player/internal/models"
)

// ErrUnknownDuration is returned when a file's duration cannot be determined
// without decoding it in a real media pipeline.
var ErrUnknownDuration = errors.New("duration unknown")

// BuildEntry constructs a catalog entry for the given media file path.
// The entry's File is the slash-separated path relative to root.
func BuildEntry(path string, root string) (models.CatalogEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.CatalogEntry{}, err
	}

	relative, err := filepath.Rel(root, path)
	if err != nil {
		relative = filepath.Base(path)
	}
	relative = filepath.ToSlash(relative)

	tags := readTags(path)
	title := tags.title
	if title == "" {
		title = filepath.Base(path)
	}

	entry := models.CatalogEntry{
		File:        relative,
		Type:        strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Title:       title,
		Description: tags.description(),
		Lyrics:      tags.lyrics,
		Date:        info.ModTime().UTC().Format(time.DateOnly),
	}

	if dur, err := ProbeDuration(path); err == nil && dur > 0 {
		entry.DurationSeconds = &dur
	}

	return entry, nil
}

// ProbeDuration returns the playing time of an mp3 file in seconds by summing
// its frame durations. Other formats report ErrUnknownDuration.
func ProbeDuration(path string) (float64, error) {
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return 0, ErrUnknownDuration
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total float64

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}

	if total <= 0 {
		return 0, ErrUnknownDuration
	}
	return total, nil
}

type fileTags struct {
	title  string
	artist string
	album  string
	lyrics string
}

func (t fileTags) description() string {
	parts := make([]string, 0, 2)
	if t.artist != "" {
		parts = append(parts, t.artist)
	}
	if t.album != "" {
		parts = append(parts, t.album)
	}
	return strings.Join(parts, " - ")
}

func readTags(path string) fileTags {
	f, err := os.Open(path)
	if err != nil {
		return fileTags{}
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return fileTags{}
	}

	return fileTags{
		title:  strings.TrimSpace(meta.Title()),
		artist: strings.TrimSpace(meta.Artist()),
		album:  strings.TrimSpace(meta.Album()),
		lyrics: strings.TrimSpace(meta.Lyrics()),
	}
}

package catalog

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-player/internal/metadata"
	"media-player/internal/models"
)

// maxManifestBytes bounds how much of a remote manifest is read.
const maxManifestBytes = 32 << 20

// Source produces the catalog entries.
type Source interface {
	Load(ctx context.Context) ([]models.CatalogEntry, error)
}

// FileSource reads a manifest from the local file system.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) ([]models.CatalogEntry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// HTTPSource fetches a manifest over HTTP, bypassing caches.
type HTTPSource struct {
	URL    string
	Client *http.Client
	Now    func() time.Time
}

func (s HTTPSource) Load(ctx context.Context) ([]models.CatalogEntry, error) {
	target, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("parse manifest url: %w", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	query := target.Query()
	query.Set("v", strconv.FormatInt(now().UnixMilli(), 10))
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch failed %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("read manifest body: %w", err)
	}
	return ParseManifest(data)
}

// DirSource builds the catalog by scanning a media directory.
type DirSource struct {
	Root    string
	Allowed []string
	Logger  *log.Logger
}

func (s DirSource) Load(ctx context.Context) ([]models.CatalogEntry, error) {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}

	allowed := make(map[string]struct{}, len(s.Allowed))
	for _, ext := range s.Allowed {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	var entries []models.CatalogEntry
	err := filepath.WalkDir(s.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logger.Printf("walk error for %s: %v", path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != s.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if _, ok := allowed[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		entry, err := metadata.BuildEntry(path, s.Root)
		if err != nil {
			logger.Printf("metadata error for %s: %v", path, err)
			return nil
		}

		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].File < entries[j].File
	})

	if entries == nil {
		entries = []models.CatalogEntry{}
	}
	return entries, nil
}

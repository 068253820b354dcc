// Package store persists player session state in a key-value store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
)

// Keys used for persisted session state.
const (
	KeyPlaylist = "media-playlist"
	KeyVolume   = "media-volume"
)

// DefaultVolume is used when no volume has been persisted.
const DefaultVolume = 0.8

// KV is a string key-value store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// LoadPlaylist returns the persisted playlist. Missing or malformed values
// yield an empty playlist.
func LoadPlaylist(ctx context.Context, kv KV) ([]string, error) {
	raw, ok, err := kv.Get(ctx, KeyPlaylist)
	if err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}
	if !ok || raw == "" {
		return []string{}, nil
	}

	var files []string
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return []string{}, nil
	}

	seen := make(map[string]struct{}, len(files))
	result := make([]string, 0, len(files))
	for _, file := range files {
		if file == "" {
			continue
		}
		if _, dup := seen[file]; dup {
			continue
		}
		seen[file] = struct{}{}
		result = append(result, file)
	}
	return result, nil
}

// SavePlaylist writes the playlist as a JSON array.
func SavePlaylist(ctx context.Context, kv KV, files []string) error {
	if files == nil {
		files = []string{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		return err
	}
	if err := kv.Set(ctx, KeyPlaylist, string(data)); err != nil {
		return fmt.Errorf("write playlist: %w", err)
	}
	return nil
}

// LoadVolume returns the persisted volume clamped to [0,1], or fallback when
// nothing usable is stored.
func LoadVolume(ctx context.Context, kv KV, fallback float64) (float64, error) {
	raw, ok, err := kv.Get(ctx, KeyVolume)
	if err != nil {
		return fallback, fmt.Errorf("read volume: %w", err)
	}
	if !ok {
		return fallback, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) {
		return fallback, nil
	}
	return ClampVolume(value), nil
}

// SaveVolume writes the volume as a decimal string.
func SaveVolume(ctx context.Context, kv KV, volume float64) error {
	value := strconv.FormatFloat(ClampVolume(volume), 'f', -1, 64)
	if err := kv.Set(ctx, KeyVolume, value); err != nil {
		return fmt.Errorf("write volume: %w", err)
	}
	return nil
}

// ClampVolume limits v to [0,1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Memory is an in-process KV used by tests and when no state file is configured.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

package auth

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"media-player/internal/watch"
)

// TokenStore holds the API tokens listed in a file, one per line. Lines
// starting with '#' are comments. The file is reloaded when it changes.
type TokenStore struct {
	file    string
	logger  *log.Logger
	watcher *watch.FileWatcher

	mu     sync.RWMutex
	tokens map[string]struct{}
}

// NewTokenStore loads filePath and starts watching it for changes.
func NewTokenStore(filePath string, debounce time.Duration, logger *log.Logger) (*TokenStore, error) {
	if logger == nil {
		logger = log.Default()
	}

	s := &TokenStore{
		file:   filepath.Clean(filePath),
		logger: logger,
		tokens: make(map[string]struct{}),
	}

	if err := s.refresh(); err != nil {
		return nil, err
	}

	watcher, err := watch.NewFileWatcher(s.file, debounce, func() {
		if err := s.refresh(); err != nil {
			s.logger.Printf("token refresh error: %v", err)
		}
	}, logger)
	if err != nil {
		return nil, err
	}
	s.watcher = watcher

	return s, nil
}

// Close stops watching the token file.
func (s *TokenStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// IsValidToken reports whether the provided token is authorized.
func (s *TokenStore) IsValidToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok
}

func (s *TokenStore) refresh() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.tokens = make(map[string]struct{})
			s.mu.Unlock()
			s.logger.Printf("token file %s missing; no tokens loaded", s.file)
			return nil
		}
		return err
	}

	tokens := parseTokens(string(data))

	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()

	s.logger.Printf("loaded %d api tokens", len(tokens))
	return nil
}

func parseTokens(data string) map[string]struct{} {
	lines := strings.Split(data, "\n")
	tokens := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		token := strings.TrimSpace(line)
		if token == "" || strings.HasPrefix(token, "#") {
			continue
		}
		tokens[token] = struct{}{}
	}
	return tokens
}

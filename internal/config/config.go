package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var mediaExtensions = []string{
	".mp3",
	".wav",
	".ogg",
	".m4a",
	".mp4",
	".webm",
	".mov",
	".mkv",
}

const (
	defaultListenAddr        = "127.0.0.1:8080"
	defaultRefreshDebounceMS = 500
	defaultVolume            = 0.8
	defaultSeekStepSeconds   = 5.0
	defaultTickIntervalMS    = 250
	defaultFeedTitle         = "Media Player"
	defaultFeedDescription   = "Current playlist of the local media player."
	defaultFeedLanguage      = "en"
	manifestFileName         = "media.json"
	stateFileName            = ".player-state.db"
)

// MediaExtensions returns the file extensions picked up when scanning the
// media root (lowercase).
func MediaExtensions() []string {
	result := make([]string, len(mediaExtensions))
	copy(result, mediaExtensions)
	return result
}

// ResolveMediaRoot returns the directory media files are served from.
// The directory is created when it does not yet exist.
func ResolveMediaRoot() (string, error) {
	dir := strings.TrimSpace(os.Getenv("PLAYER_MEDIA_DIR"))
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(cwd, "media")
	}

	abs, err := expandPath(dir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}

	return abs, nil
}

// ManifestKind tells where the catalog is loaded from.
type ManifestKind string

const (
	ManifestFile ManifestKind = "file"
	ManifestHTTP ManifestKind = "http"
	ManifestS3   ManifestKind = "s3"
	ManifestScan ManifestKind = "scan"
)

// S3Manifest locates a manifest object in an S3 compatible store.
type S3Manifest struct {
	Bucket    string
	Key       string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// Manifest describes the configured catalog source.
type Manifest struct {
	Kind ManifestKind
	// Location is a file path for ManifestFile and a URL for ManifestHTTP.
	Location string
	S3       S3Manifest
}

// ResolveManifest picks the catalog source. An S3 bucket wins over
// PLAYER_MANIFEST; without either, <media root>/media.json is used when it
// exists and the media root is scanned otherwise.
func ResolveManifest(mediaRoot string) (Manifest, error) {
	if bucket := strings.TrimSpace(os.Getenv("PLAYER_MANIFEST_S3_BUCKET")); bucket != "" {
		key := strings.TrimSpace(os.Getenv("PLAYER_MANIFEST_S3_KEY"))
		if key == "" {
			key = manifestFileName
		}
		return Manifest{
			Kind: ManifestS3,
			S3: S3Manifest{
				Bucket:    bucket,
				Key:       key,
				Endpoint:  strings.TrimSpace(os.Getenv("PLAYER_MANIFEST_S3_ENDPOINT")),
				Region:    strings.TrimSpace(os.Getenv("PLAYER_MANIFEST_S3_REGION")),
				AccessKey: strings.TrimSpace(os.Getenv("PLAYER_S3_ACCESS_KEY")),
				SecretKey: strings.TrimSpace(os.Getenv("PLAYER_S3_SECRET_KEY")),
			},
		}, nil
	}

	location := strings.TrimSpace(os.Getenv("PLAYER_MANIFEST"))
	if location != "" {
		lower := strings.ToLower(location)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return Manifest{Kind: ManifestHTTP, Location: location}, nil
		}
		abs, err := expandPath(location)
		if err != nil {
			return Manifest{}, err
		}
		return Manifest{Kind: ManifestFile, Location: abs}, nil
	}

	candidate := filepath.Join(mediaRoot, manifestFileName)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return Manifest{Kind: ManifestFile, Location: candidate}, nil
	}
	return Manifest{Kind: ManifestScan, Location: mediaRoot}, nil
}

// StateDBPath returns the SQLite file that keeps the playlist and volume.
func StateDBPath(mediaRoot string) (string, error) {
	path := strings.TrimSpace(os.Getenv("PLAYER_STATE_DB"))
	if path == "" {
		return filepath.Join(mediaRoot, stateFileName), nil
	}

	abs, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// ListenAddr returns the TCP address the HTTP server should bind to.
func ListenAddr() string {
	addr := strings.TrimSpace(os.Getenv("PLAYER_LISTEN_ADDR"))
	if addr == "" {
		return defaultListenAddr
	}
	return addr
}

// RefreshDebounce returns the duration to wait before reloading the manifest
// or token file after file-system change events.
func RefreshDebounce() time.Duration {
	value := strings.TrimSpace(os.Getenv("PLAYER_REFRESH_DEBOUNCE_MS"))
	if value == "" {
		return time.Duration(defaultRefreshDebounceMS) * time.Millisecond
	}

	ms, err := strconv.Atoi(value)
	if err != nil || ms < 0 {
		return time.Duration(defaultRefreshDebounceMS) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// ValidateListenAddr ensures the configured listen address is restricted to localhost.
func ValidateListenAddr(addr string) error {
	addr = strings.TrimSpace(strings.ToLower(addr))
	if strings.HasPrefix(addr, "127.0.0.1:") || strings.HasPrefix(addr, "localhost:") || strings.HasPrefix(addr, "[::1]:") {
		return nil
	}
	return errors.New("listen address must bind to localhost for security")
}

// ResolveTokenFile returns the absolute path to the API token file when configured.
// The file is created if it does not already exist. When no file is configured the
// second return value will be false.
func ResolveTokenFile() (string, bool, error) {
	path := strings.TrimSpace(os.Getenv("PLAYER_TOKEN_FILE"))
	if path == "" {
		return "", false, nil
	}

	abs, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", false, err
	}

	if _, err := os.Stat(abs); err != nil {
		if !os.IsNotExist(err) {
			return "", false, err
		}
		file, err := os.OpenFile(abs, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return "", false, err
		}
		if err := file.Close(); err != nil {
			return "", false, err
		}
	}

	return abs, true, nil
}

// FeedMetadata represents the static metadata used to render the playlist RSS feed.
type FeedMetadata struct {
	Title       string
	Description string
	Language    string
	Author      string
}

// Player holds playback defaults.
type Player struct {
	DefaultVolume   float64
	SeekStepSeconds float64
	TickInterval    time.Duration
	Feed            FeedMetadata
}

type playerYAML struct {
	DefaultVolume   *float64 `yaml:"default_volume"`
	SeekStepSeconds *float64 `yaml:"seek_step_seconds"`
	TickIntervalMS  *int     `yaml:"tick_interval_ms"`
	Feed            struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		Language    string `yaml:"language"`
		Author      string `yaml:"author"`
	} `yaml:"feed"`
}

// ResolvePlayer returns the player settings after applying defaults, the YAML
// file named by PLAYER_CONFIG (when set), and environment variable overrides.
// Out of range values fall back to the defaults.
func ResolvePlayer() (Player, error) {
	player := Player{
		DefaultVolume:   defaultVolume,
		SeekStepSeconds: defaultSeekStepSeconds,
		TickInterval:    time.Duration(defaultTickIntervalMS) * time.Millisecond,
		Feed: FeedMetadata{
			Title:       defaultFeedTitle,
			Description: defaultFeedDescription,
			Language:    defaultFeedLanguage,
		},
	}

	if configPath := strings.TrimSpace(os.Getenv("PLAYER_CONFIG")); configPath != "" {
		resolved, err := expandPath(configPath)
		if err != nil {
			return Player{}, err
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return Player{}, err
		}
		var file playerYAML
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Player{}, err
		}
		if file.DefaultVolume != nil && validVolume(*file.DefaultVolume) {
			player.DefaultVolume = *file.DefaultVolume
		}
		if file.SeekStepSeconds != nil && *file.SeekStepSeconds > 0 {
			player.SeekStepSeconds = *file.SeekStepSeconds
		}
		if file.TickIntervalMS != nil && *file.TickIntervalMS > 0 {
			player.TickInterval = time.Duration(*file.TickIntervalMS) * time.Millisecond
		}
		if value := strings.TrimSpace(file.Feed.Title); value != "" {
			player.Feed.Title = value
		}
		if value := strings.TrimSpace(file.Feed.Description); value != "" {
			player.Feed.Description = value
		}
		if value := strings.TrimSpace(file.Feed.Language); value != "" {
			player.Feed.Language = value
		}
		if value := strings.TrimSpace(file.Feed.Author); value != "" {
			player.Feed.Author = value
		}
	}

	if value, ok := envFloat("PLAYER_DEFAULT_VOLUME"); ok && validVolume(value) {
		player.DefaultVolume = value
	}
	if value, ok := envFloat("PLAYER_SEEK_STEP_SECONDS"); ok && value > 0 {
		player.SeekStepSeconds = value
	}
	if value := strings.TrimSpace(os.Getenv("PLAYER_FEED_TITLE")); value != "" {
		player.Feed.Title = value
	}
	if value := strings.TrimSpace(os.Getenv("PLAYER_FEED_AUTHOR")); value != "" {
		player.Feed.Author = value
	}

	return player, nil
}

func validVolume(v float64) bool {
	return v > 0 && v <= 1
}

func envFloat(name string) (float64, bool) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Abs(path)
}

package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-player/internal/auth"
	"media-player/internal/catalog"
	"media-player/internal/config"
	"media-player/internal/metadata"
	"media-player/internal/models"
	"media-player/internal/playback"
	"media-player/internal/sequencer"
	"media-player/internal/server"
	"media-player/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "media-player ", log.LstdFlags|log.Lmsgprefix)

	mediaRoot, err := config.ResolveMediaRoot()
	if err != nil {
		logger.Fatalf("resolve media root: %v", err)
	}

	listenAddr := config.ListenAddr()
	if err := config.ValidateListenAddr(listenAddr); err != nil {
		logger.Fatalf("invalid listen address %q: %v", listenAddr, err)
	}

	debounce := config.RefreshDebounce()

	player, err := config.ResolvePlayer()
	if err != nil {
		logger.Fatalf("resolve player settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := openCatalog(ctx, mediaRoot, debounce, logger)
	if err != nil {
		logger.Fatalf("initialise catalog: %v", err)
	}
	defer func() {
		if err := cat.Close(); err != nil {
			logger.Printf("error closing catalog: %v", err)
		}
	}()

	statePath, err := config.StateDBPath(mediaRoot)
	if err != nil {
		logger.Fatalf("resolve state database: %v", err)
	}
	kv, err := store.OpenSQLite(ctx, statePath)
	if err != nil {
		logger.Fatalf("open state database: %v", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Printf("error closing state database: %v", err)
		}
	}()

	probe := func(file, path string) (float64, error) {
		if entry, ok := cat.Lookup(file); ok && entry.DurationSeconds != nil {
			return *entry.DurationSeconds, nil
		}
		return metadata.ProbeDuration(path)
	}
	newElement := func(kind models.MediaKind) *playback.Element {
		return playback.NewElement(playback.Options{
			Kind:         kind,
			Root:         mediaRoot,
			Probe:        probe,
			TickInterval: player.TickInterval,
			Logger:       logger,
		})
	}

	session := sequencer.NewSession(sequencer.Options{
		Catalog:       cat,
		Audio:         newElement(models.KindAudio),
		Video:         newElement(models.KindVideo),
		Store:         kv,
		Logger:        logger,
		DefaultVolume: player.DefaultVolume,
	})

	tokenFile, tokensEnabled, err := config.ResolveTokenFile()
	if err != nil {
		logger.Fatalf("resolve token file: %v", err)
	}

	var validator server.TokenValidator
	if tokensEnabled {
		tokenStore, err := auth.NewTokenStore(tokenFile, debounce, logger)
		if err != nil {
			logger.Fatalf("initialise token store: %v", err)
		}
		defer func() {
			if err := tokenStore.Close(); err != nil {
				logger.Printf("error closing token store: %v", err)
			}
		}()
		validator = tokenStore
	}

	handler := server.New(server.Options{
		Player:    session,
		Library:   cat,
		Validator: validator,
		MediaRoot: mediaRoot,
		SeekStep:  player.SeekStepSeconds,
		Feed: server.FeedMetadata{
			Title:       player.Feed.Title,
			Description: player.Feed.Description,
			Language:    player.Feed.Language,
			Author:      player.Feed.Author,
		},
		Logger: logger,
	})

	// No write timeout: /events keeps its response open.
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("graceful shutdown error: %v", err)
		}
	}()

	logger.Printf("listening on %s (media directory: %s, session %s)", listenAddr, mediaRoot, session.ID())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server error: %v", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Close(closeCtx); err != nil {
		logger.Printf("error closing session: %v", err)
	}
	logger.Println("shutdown complete")
}

// openCatalog loads the configured catalog once and keeps it fresh when the
// source is local. A failed first load leaves an empty catalog.
func openCatalog(ctx context.Context, mediaRoot string, debounce time.Duration, logger *log.Logger) (*catalog.Catalog, error) {
	manifest, err := config.ResolveManifest(mediaRoot)
	if err != nil {
		return nil, err
	}

	var source catalog.Source
	switch manifest.Kind {
	case config.ManifestS3:
		source, err = catalog.NewS3Source(ctx, catalog.S3Config{
			Endpoint:  manifest.S3.Endpoint,
			Region:    manifest.S3.Region,
			Bucket:    manifest.S3.Bucket,
			Key:       manifest.S3.Key,
			AccessKey: manifest.S3.AccessKey,
			SecretKey: manifest.S3.SecretKey,
		})
		if err != nil {
			return nil, err
		}
	case config.ManifestHTTP:
		source = catalog.HTTPSource{URL: manifest.Location}
	case config.ManifestFile:
		source = catalog.FileSource{Path: manifest.Location}
	default:
		source = catalog.DirSource{Root: mediaRoot, Allowed: config.MediaExtensions(), Logger: logger}
	}

	cat := catalog.New(source, logger)
	_ = cat.Reload(ctx)

	switch manifest.Kind {
	case config.ManifestFile:
		if err := cat.WatchFile(manifest.Location, debounce); err != nil {
			logger.Printf("manifest watch disabled for %s: %v", manifest.Location, err)
		}
	case config.ManifestScan:
		if err := cat.WatchDir(mediaRoot, config.MediaExtensions(), debounce); err != nil {
			logger.Printf("media watch disabled for %s: %v", mediaRoot, err)
		}
	}

	logger.Printf("catalog source: %s", manifest.Kind)
	return cat, nil
}

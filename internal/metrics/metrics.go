// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_player_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_player_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_player_event_subscribers",
			Help: "Number of connected server-sent event clients",
		},
	)
)

// Sequencer metrics
var (
	SequencerCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_player_sequencer_commands_total",
			Help: "Total number of playback sequencer commands by name",
		},
		[]string{"command"},
	)

	TrackChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_player_track_changes_total",
			Help: "Total number of track switches by media kind",
		},
		[]string{"kind"},
	)

	PlaybackFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_player_playback_failures_total",
			Help: "Total number of load or play requests rejected by the playback resource",
		},
	)

	PlaylistLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_player_playlist_length",
			Help: "Number of entries in the playlist",
		},
	)

	PersistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_player_persist_failures_total",
			Help: "Total number of failed writes to the state store",
		},
	)
)

// Catalog metrics
var (
	CatalogEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_player_catalog_entries",
			Help: "Number of entries in the loaded catalog",
		},
	)

	CatalogLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_player_catalog_loads_total",
			Help: "Total number of catalog loads by result",
		},
		[]string{"result"},
	)
)

// Package catalog finds tracks in an external music catalog and resolves
// them to playable audio URLs. Lookups go through a resolver service when one
// is configured; a built-in fallback catalog guarantees that search and
// resolution always return something usable.
package catalog

import (
	"context"
	"log/slog"
	"strings"

	"radiowave/internal/models"
	"radiowave/internal/observability/metrics"
)

// FallbackAudioURL is returned when audio resolution fails. It points at a
// small, always-available MP3 so playback never breaks outright.
const FallbackAudioURL = "https://ccrma.stanford.edu/~jos/mp3/gtr-nylon22.mp3"

// Searcher locates tracks and resolves them to audio stream URLs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.Track, error)
	Resolve(ctx context.Context, trackURL string) (string, error)
}

// Service wraps a Searcher with fallback behaviour and instrumentation.
// A nil underlying Searcher serves the fallback catalog only.
type Service struct {
	searcher Searcher
	logger   *slog.Logger
	metrics  *metrics.Recorder
	limit    int
}

// ServiceConfig configures a catalog Service.
type ServiceConfig struct {
	Searcher Searcher
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	// Limit caps the number of results returned by Search; zero means 3,
	// matching the public API contract.
	Limit int
}

// NewService assembles a Service from the provided configuration.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 3
	}
	return &Service{searcher: cfg.Searcher, logger: logger, metrics: recorder, limit: limit}
}

// Search queries the catalog and falls back to the built-in tracks when the
// resolver is unavailable, errors, or returns nothing. The query must be
// non-empty; callers enforce that at the API boundary.
func (s *Service) Search(ctx context.Context, query string) []models.Track {
	s.metrics.ObserveCatalogAttempt("search")
	if s.searcher != nil {
		results, err := s.searcher.Search(ctx, query)
		if err != nil {
			s.metrics.ObserveCatalogFailure("search")
			s.logger.Warn("catalog search failed, serving fallback", "query", query, "error", err)
		} else if len(results) > 0 {
			if len(results) > s.limit {
				results = results[:s.limit]
			}
			return results
		}
	}
	return FallbackTracks(query)
}

// Resolve turns a track URL into a playable audio URL. Resolution failures
// degrade to the fallback audio URL rather than failing the play request.
func (s *Service) Resolve(ctx context.Context, trackURL string) string {
	s.metrics.ObserveCatalogAttempt("resolve")
	trimmed := strings.TrimSpace(trackURL)
	if trimmed == "" {
		return FallbackAudioURL
	}
	if s.searcher == nil {
		return FallbackAudioURL
	}
	audioURL, err := s.searcher.Resolve(ctx, trimmed)
	if err != nil || strings.TrimSpace(audioURL) == "" {
		s.metrics.ObserveCatalogFailure("resolve")
		s.logger.Warn("audio resolution failed, serving fallback audio", "url", trimmed, "error", err)
		return FallbackAudioURL
	}
	return audioURL
}

// Lookup finds the track matching the given URL, checking the resolver first
// and then the fallback catalog. The boolean reports whether a real match was
// found; otherwise a generic live entry is returned.
func (s *Service) Lookup(ctx context.Context, trackURL string) (models.Track, bool) {
	trimmed := strings.TrimSpace(trackURL)
	for _, track := range FallbackTracks("") {
		if track.URL == trimmed {
			return track, true
		}
	}
	if s.searcher != nil {
		if results, err := s.searcher.Search(ctx, trimmed); err == nil {
			for _, track := range results {
				if track.URL == trimmed {
					return track, true
				}
			}
		}
	}
	return models.Track{
		ID:     "live",
		Title:  "Music Stream",
		Artist: "Radiowave",
		URL:    trimmed,
	}, false
}

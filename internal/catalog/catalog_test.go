package catalog

import (
	"context"
	"errors"
	"testing"

	"radiowave/internal/models"
)

type stubSearcher struct {
	results    []models.Track
	searchErr  error
	audioURL   string
	resolveErr error
	lastQuery  string
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]models.Track, error) {
	s.lastQuery = query
	return s.results, s.searchErr
}

func (s *stubSearcher) Resolve(_ context.Context, _ string) (string, error) {
	return s.audioURL, s.resolveErr
}

func TestFallbackTracksMatchesTitleAndArtist(t *testing.T) {
	results := FallbackTracks("despacito")
	if len(results) != 1 || results[0].Title != "Despacito" {
		t.Fatalf("expected Despacito, got %+v", results)
	}

	results = FallbackTracks("WEEKND")
	if len(results) != 1 || results[0].Artist != "The Weeknd" {
		t.Fatalf("expected artist match, got %+v", results)
	}
}

func TestFallbackTracksDefaultsWhenNoMatch(t *testing.T) {
	for _, query := range []string{"", "zzzz no such track"} {
		results := FallbackTracks(query)
		if len(results) != 2 {
			t.Fatalf("query %q: expected 2 default tracks, got %d", query, len(results))
		}
		if results[0].Title != "Despacito" || results[1].Title != "Shape of You" {
			t.Fatalf("query %q: unexpected defaults %+v", query, results)
		}
	}
}

func TestServiceSearchPrefersResolver(t *testing.T) {
	searcher := &stubSearcher{results: []models.Track{
		{ID: "a", Title: "One", URL: "https://example.com/a"},
		{ID: "b", Title: "Two", URL: "https://example.com/b"},
		{ID: "c", Title: "Three", URL: "https://example.com/c"},
		{ID: "d", Title: "Four", URL: "https://example.com/d"},
	}}
	svc := NewService(ServiceConfig{Searcher: searcher})

	results := svc.Search(context.Background(), "anything")
	if len(results) != 3 {
		t.Fatalf("expected results capped at 3, got %d", len(results))
	}
	if searcher.lastQuery != "anything" {
		t.Fatalf("expected query to reach searcher, got %q", searcher.lastQuery)
	}
}

func TestServiceSearchFallsBackOnError(t *testing.T) {
	searcher := &stubSearcher{searchErr: errors.New("resolver down")}
	svc := NewService(ServiceConfig{Searcher: searcher})

	results := svc.Search(context.Background(), "despacito")
	if len(results) != 1 || results[0].Title != "Despacito" {
		t.Fatalf("expected fallback match, got %+v", results)
	}
}

func TestServiceSearchFallsBackOnEmptyResults(t *testing.T) {
	svc := NewService(ServiceConfig{Searcher: &stubSearcher{}})
	results := svc.Search(context.Background(), "unknown query")
	if len(results) != 2 {
		t.Fatalf("expected default fallback tracks, got %d", len(results))
	}
}

func TestServiceResolve(t *testing.T) {
	svc := NewService(ServiceConfig{Searcher: &stubSearcher{audioURL: "https://cdn.example.com/a.mp3"}})
	if got := svc.Resolve(context.Background(), "https://example.com/a"); got != "https://cdn.example.com/a.mp3" {
		t.Fatalf("unexpected audio URL %q", got)
	}

	svc = NewService(ServiceConfig{Searcher: &stubSearcher{resolveErr: errors.New("boom")}})
	if got := svc.Resolve(context.Background(), "https://example.com/a"); got != FallbackAudioURL {
		t.Fatalf("expected fallback audio URL, got %q", got)
	}

	svc = NewService(ServiceConfig{})
	if got := svc.Resolve(context.Background(), ""); got != FallbackAudioURL {
		t.Fatalf("expected fallback for empty URL, got %q", got)
	}
}

func TestServiceLookup(t *testing.T) {
	svc := NewService(ServiceConfig{})

	track, found := svc.Lookup(context.Background(), "https://www.youtube.com/watch?v=kJQP7kiw5Fk")
	if !found || track.Title != "Despacito" {
		t.Fatalf("expected catalog hit, got %+v found=%v", track, found)
	}

	track, found = svc.Lookup(context.Background(), "https://example.com/unknown")
	if found {
		t.Fatal("expected unknown URL to miss")
	}
	if track.Title != "Music Stream" || track.URL != "https://example.com/unknown" {
		t.Fatalf("unexpected placeholder track %+v", track)
	}
}

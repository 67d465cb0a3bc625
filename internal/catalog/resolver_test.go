package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoadResolverConfigFromEnv(t *testing.T) {
	t.Setenv("RADIOWAVE_RESOLVER_API", "https://resolver.example.com")
	t.Setenv("RADIOWAVE_RESOLVER_TOKEN", "abc123")

	cfg, err := LoadResolverConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Enabled() {
		t.Fatal("expected resolver to be enabled")
	}
	if cfg.Token != "abc123" {
		t.Fatalf("unexpected token %q", cfg.Token)
	}
}

func TestLoadResolverConfigFromEnvRejectsBadURL(t *testing.T) {
	t.Setenv("RADIOWAVE_RESOLVER_API", "resolver.example.com")
	if _, err := LoadResolverConfigFromEnv(); err == nil {
		t.Fatal("expected error for URL without scheme")
	}
}

func TestResolverClientSearch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "shape of you" {
			t.Errorf("unexpected query %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"id": "x", "title": "Shape of You", "artist": "Ed Sheeran", "url": "https://example.com/x"},
			},
		})
	}))
	defer upstream.Close()

	cfg := ResolverConfig{BaseURL: upstream.URL, Token: "secret"}
	client, err := cfg.NewClient()
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	results, err := client.Search(context.Background(), "shape of you")
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Shape of You" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestResolverClientResolve(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/resolve" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload.URL != "https://example.com/x" {
			t.Errorf("unexpected track URL %q", payload.URL)
		}
		json.NewEncoder(w).Encode(map[string]string{"audioUrl": "https://cdn.example.com/x.mp3"})
	}))
	defer upstream.Close()

	client, err := ResolverConfig{BaseURL: upstream.URL}.NewClient()
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	audioURL, err := client.Resolve(context.Background(), "https://example.com/x")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if audioURL != "https://cdn.example.com/x.mp3" {
		t.Fatalf("unexpected audio URL %q", audioURL)
	}
}

func TestResolverClientResolveRejectsEmptyAudioURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"audioUrl": " "})
	}))
	defer upstream.Close()

	client, err := ResolverConfig{BaseURL: upstream.URL}.NewClient()
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := client.Resolve(context.Background(), "https://example.com/x"); err == nil {
		t.Fatal("expected error for blank audio URL")
	}
}

func TestResolverClientSurfacesUpstreamErrors(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	client, err := ResolverConfig{BaseURL: upstream.URL}.NewClient()
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := client.Search(context.Background(), "q"); err == nil {
		t.Fatal("expected error from upstream failure")
	}
}

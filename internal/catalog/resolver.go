package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"radiowave/internal/models"
)

// ResolverConfig stores connectivity information for the external catalog
// resolver service.
type ResolverConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// LoadResolverConfigFromEnv initialises a ResolverConfig from environment
// variables. An empty base URL means no resolver is configured and the
// Service runs on the fallback catalog alone.
func LoadResolverConfigFromEnv() (ResolverConfig, error) {
	cfg := ResolverConfig{
		BaseURL: strings.TrimSpace(os.Getenv("RADIOWAVE_RESOLVER_API")),
		Token:   strings.TrimSpace(os.Getenv("RADIOWAVE_RESOLVER_TOKEN")),
	}
	if cfg.BaseURL != "" {
		parsed, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return ResolverConfig{}, fmt.Errorf("parse RADIOWAVE_RESOLVER_API: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return ResolverConfig{}, fmt.Errorf("RADIOWAVE_RESOLVER_API must include scheme and host")
		}
	}
	return cfg, nil
}

// Enabled reports whether a resolver endpoint has been configured.
func (c ResolverConfig) Enabled() bool {
	return c.BaseURL != ""
}

// NewClient constructs the HTTP Searcher backed by the resolver service.
func (c ResolverConfig) NewClient() (*ResolverClient, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("resolver base URL is required")
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ResolverClient{config: c, client: client}, nil
}

// ResolverClient performs catalog lookups via the resolver's REST endpoints.
type ResolverClient struct {
	config ResolverConfig
	client *http.Client
}

type searchResponse struct {
	Results []models.Track `json:"results"`
}

type resolveRequest struct {
	URL string `json:"url"`
}

type resolveResponse struct {
	AudioURL string `json:"audioUrl"`
}

// Search queries the resolver's search endpoint with the free-text query.
func (c *ResolverClient) Search(ctx context.Context, query string) ([]models.Track, error) {
	endpoint := fmt.Sprintf("%s/v1/search?q=%s", strings.TrimRight(c.config.BaseURL, "/"), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return payload.Results, nil
}

// Resolve asks the resolver for the direct audio URL of the given track.
func (c *ResolverClient) Resolve(ctx context.Context, trackURL string) (string, error) {
	body, err := json.Marshal(resolveRequest{URL: trackURL})
	if err != nil {
		return "", fmt.Errorf("marshal resolve request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/resolve", strings.TrimRight(c.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	var payload resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode resolve response: %w", err)
	}
	if strings.TrimSpace(payload.AudioURL) == "" {
		return "", fmt.Errorf("resolver returned no audio URL")
	}
	return payload.AudioURL, nil
}

func (c *ResolverClient) authorize(req *http.Request) {
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
}

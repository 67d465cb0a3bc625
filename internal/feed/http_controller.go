package feed

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

	"radiowave/internal/icecast"
)

// HTTPConfig stores connectivity information for the standalone encoder
// daemon's control plane.
type HTTPConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// LoadHTTPConfigFromEnv initialises an HTTPConfig from environment variables.
// An empty base URL means the local exec controller should be used instead.
func LoadHTTPConfigFromEnv() (HTTPConfig, error) {
	cfg := HTTPConfig{
		BaseURL: strings.TrimSpace(os.Getenv("RADIOWAVE_ENCODER_API")),
		Token:   strings.TrimSpace(os.Getenv("RADIOWAVE_ENCODER_TOKEN")),
	}
	if cfg.BaseURL != "" {
		parsed, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("parse RADIOWAVE_ENCODER_API: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return HTTPConfig{}, fmt.Errorf("RADIOWAVE_ENCODER_API must include scheme and host")
		}
	}
	return cfg, nil
}

// Enabled reports whether an encoder daemon has been configured.
func (c HTTPConfig) Enabled() bool {
	return c.BaseURL != ""
}

// NewController constructs the HTTP-backed feed controller.
func (c HTTPConfig) NewController() (*HTTPController, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("encoder base URL is required")
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPController{config: c, client: client}, nil
}

// HTTPController drives feeds through the encoder daemon's REST endpoints.
type HTTPController struct {
	config HTTPConfig
	client *http.Client
}

type feedRequest struct {
	SessionID string `json:"sessionId"`
	AudioURL  string `json:"audioUrl"`
	Target    string `json:"target"`
}

// Start submits the feed to the encoder daemon. The daemon keys feeds by
// session ID so Stop can address them later.
func (c *HTTPController) Start(ctx context.Context, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(feedRequest{
		SessionID: params.SessionID,
		AudioURL:  params.AudioURL,
		Target:    params.Target,
	})
	if err != nil {
		return fmt.Errorf("marshal feed request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/feeds", strings.TrimRight(c.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Stop asks the encoder daemon to terminate the feed for the session.
func (c *HTTPController) Stop(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("%s/v1/feeds/%s", strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return nil
}

// Health probes the encoder daemon's health endpoint.
func (c *HTTPController) Health(ctx context.Context) icecast.HealthStatus {
	status := icecast.HealthStatus{Component: "encoder"}
	endpoint := fmt.Sprintf("%s/healthz", strings.TrimRight(c.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		status.Status = "error"
		status.Detail = err.Error()
		return status
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		status.Status = "error"
		status.Detail = err.Error()
		return status
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		status.Status = "ok"
	} else {
		status.Status = "error"
		status.Detail = resp.Status
	}
	return status
}

func (c *HTTPController) authorize(req *http.Request) {
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
}

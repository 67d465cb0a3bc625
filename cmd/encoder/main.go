// Command encoder runs the standalone audio feed daemon. It accepts feed
// jobs over HTTP, pushes the referenced audio into the streaming server with
// ffmpeg, and resumes interrupted feeds after a restart.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"radiowave/internal/feed"
	"radiowave/internal/observability/logging"
	"radiowave/internal/observability/metrics"
	"radiowave/internal/serverutil"
)

type feedRecord struct {
	SessionID string     `json:"sessionId"`
	AudioURL  string     `json:"audioUrl"`
	Target    string     `json:"target"`
	CreatedAt time.Time  `json:"createdAt"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
}

type feedRequest struct {
	SessionID string `json:"sessionId"`
	AudioURL  string `json:"audioUrl"`
	Target    string `json:"target"`
}

type daemon struct {
	token      string
	controller *feed.ExecController
	logger     *slog.Logger
	store      *stateStore

	mu      sync.RWMutex
	current *feedRecord
}

func main() {
	bind := envOrDefault("RADIOWAVE_ENCODER_BIND", ":9000")
	token := strings.TrimSpace(os.Getenv("RADIOWAVE_ENCODER_TOKEN"))
	stateRoot := envOrDefault("RADIOWAVE_ENCODER_STATE_DIR", "./work")

	logger := logging.WithComponent(logging.Init(logging.Config{Format: string(logging.FormatJSON)}), "encoder")
	recorder := metrics.Default()

	d, err := newDaemon(token, stateRoot, logger, recorder)
	if err != nil {
		logger.Error("initialise daemon", "error", err)
		os.Exit(1)
	}

	handler := http.Handler(d.routes())
	handler = metrics.HTTPMiddleware(recorder, handler)
	handler = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(handler)

	server := &http.Server{
		Addr:              bind,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = serverutil.Run(ctx, serverutil.Config{
		Server:          server,
		ShutdownTimeout: 15 * time.Second,
		Logger:          logger,
		Drain: []serverutil.DrainFunc{
			func(ctx context.Context) error {
				d.stopCurrent(ctx)
				return nil
			},
		},
	})
	if err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("feed daemon stopped")
}

func newDaemon(token, stateRoot string, logger *slog.Logger, recorder *metrics.Recorder) (*daemon, error) {
	store, err := newStateStore(stateRoot)
	if err != nil {
		return nil, err
	}
	d := &daemon{
		token:  token,
		logger: logger,
		store:  store,
	}
	d.controller = feed.NewExecController(feed.ExecControllerConfig{
		Binary:  strings.TrimSpace(os.Getenv("RADIOWAVE_FFMPEG_BIN")),
		Logger:  logger,
		Metrics: recorder,
		OnExit:  d.handleFeedExit,
	})
	d.resume()
	return d, nil
}

func (d *daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.handleHealthz)
	mux.HandleFunc("/v1/feeds", d.handleFeeds)
	mux.HandleFunc("/v1/feeds/", d.handleFeedByID)
	return mux
}

// resume restarts the persisted feed after a daemon restart so a crash does
// not silence the station permanently.
func (d *daemon) resume() {
	record, err := d.store.Load()
	if err != nil {
		d.logger.Warn("load persisted feed failed", "error", err)
		return
	}
	if record == nil || record.StoppedAt != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	params := feed.Params{
		SessionID: record.SessionID,
		AudioURL:  record.AudioURL,
		Target:    record.Target,
	}
	if err := d.controller.Start(ctx, params); err != nil {
		d.logger.Warn("resume feed failed", "session_id", record.SessionID, "error", err)
		return
	}
	d.mu.Lock()
	d.current = record
	d.mu.Unlock()
	d.logger.Info("resumed feed", "session_id", record.SessionID)
}

func (d *daemon) authorize(r *http.Request) bool {
	if d.token == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return false
	}
	return strings.TrimSpace(header[7:]) == d.token
}

func (d *daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	health := d.controller.Health(r.Context())
	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": health.Status, "detail": health.Detail})
}

func (d *daemon) handleFeeds(w http.ResponseWriter, r *http.Request) {
	if !d.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	switch r.Method {
	case http.MethodGet:
		d.mu.RLock()
		current := d.current
		d.mu.RUnlock()
		if current == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"feeds": []feedRecord{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"feeds": []feedRecord{*current}})
	case http.MethodPost:
		var req feedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		params := feed.Params{
			SessionID: strings.TrimSpace(req.SessionID),
			AudioURL:  strings.TrimSpace(req.AudioURL),
			Target:    strings.TrimSpace(req.Target),
		}
		if err := params.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := d.controller.Start(r.Context(), params); err != nil {
			http.Error(w, "failed to start feed", http.StatusInternalServerError)
			return
		}
		record := &feedRecord{
			SessionID: params.SessionID,
			AudioURL:  params.AudioURL,
			Target:    params.Target,
			CreatedAt: time.Now().UTC(),
		}
		d.mu.Lock()
		d.current = record
		d.mu.Unlock()
		if err := d.store.Save(record); err != nil {
			d.logger.Warn("persist feed failed", "session_id", record.SessionID, "error", err)
		}
		writeJSON(w, http.StatusCreated, record)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *daemon) handleFeedByID(w http.ResponseWriter, r *http.Request) {
	if !d.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := strings.TrimPrefix(r.URL.Path, "/v1/feeds/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		d.mu.RLock()
		current := d.current
		d.mu.RUnlock()
		if current == nil || current.SessionID != sessionID {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, current)
	case http.MethodDelete:
		d.mu.Lock()
		current := d.current
		d.mu.Unlock()
		if current == nil || current.SessionID != sessionID {
			http.NotFound(w, r)
			return
		}
		if err := d.controller.Stop(r.Context(), sessionID); err != nil {
			d.logger.Warn("stop feed failed", "session_id", sessionID, "error", err)
		}
		d.markStopped(sessionID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *daemon) handleFeedExit(sessionID string, err error) {
	if err != nil {
		d.logger.Warn("feed exited", "session_id", sessionID, "error", err)
	} else {
		d.logger.Info("feed finished", "session_id", sessionID)
	}
	d.markStopped(sessionID)
}

func (d *daemon) markStopped(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.current.SessionID != sessionID {
		return
	}
	now := time.Now().UTC()
	d.current.StoppedAt = &now
	if err := d.store.Save(d.current); err != nil {
		d.logger.Warn("persist feed failed", "session_id", sessionID, "error", err)
	}
}

func (d *daemon) stopCurrent(ctx context.Context) {
	d.mu.RLock()
	current := d.current
	d.mu.RUnlock()
	if current == nil || current.StoppedAt != nil {
		return
	}
	if err := d.controller.Stop(ctx, current.SessionID); err != nil {
		d.logger.Warn("stop feed failed", "session_id", current.SessionID, "error", err)
	}
	d.markStopped(current.SessionID)
}

type stateStore struct {
	path string
}

func newStateStore(root string) (*stateStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve state dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("prepare state dir: %w", err)
	}
	return &stateStore{path: filepath.Join(abs, "feed.json")}, nil
}

func (s *stateStore) Load() (*feedRecord, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var record feedRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	if record.SessionID == "" {
		return nil, nil
	}
	return &record, nil
}

func (s *stateStore) Save(record *feedRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "feed-*.json")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(record); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

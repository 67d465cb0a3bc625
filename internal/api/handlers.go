package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"radiowave/internal/icecast"
	"radiowave/internal/models"
	"radiowave/internal/observability/metrics"
	"radiowave/internal/radio"
	"radiowave/internal/storage"
)

// HealthChecker reports the readiness of one downstream component.
type HealthChecker interface {
	Health(ctx context.Context) icecast.HealthStatus
}

type Handler struct {
	Player  *radio.Player
	Store   storage.Repository
	Checks  []HealthChecker
	Metrics *metrics.Recorder
}

func NewHandler(player *radio.Player, store storage.Repository) *Handler {
	return &Handler{Player: player, Store: store, Metrics: metrics.Default()}
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics == nil {
		h.Metrics = metrics.Default()
	}
	return h.Metrics
}

// Root describes the API surface so a bare GET / is self-documenting.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "radiowave",
		"status":  string(h.Player.Status(r.Context()).Status),
		"endpoints": []string{
			"/api/search?q=",
			"/api/play",
			"/api/stop",
			"/api/status",
			"/api/radio/url",
			"/api/stream",
			"/api/history",
		},
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := make([]icecast.HealthStatus, 0, len(h.Checks)+1)
	if h.Store != nil {
		storeCheck := icecast.HealthStatus{Component: "store", Status: "ok"}
		if err := h.Store.Ping(r.Context()); err != nil {
			storeCheck.Status = "error"
			storeCheck.Detail = err.Error()
		}
		checks = append(checks, storeCheck)
	}
	for _, checker := range h.Checks {
		if checker == nil {
			continue
		}
		checks = append(checks, checker.Health(r.Context()))
	}
	status := "ok"
	for _, check := range checks {
		switch strings.ToLower(check.Status) {
		case "ok", "disabled":
			continue
		default:
			status = "degraded"
		}
	}
	for _, check := range checks {
		h.recorder().SetIcecastHealth(check.Component, check.Status)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"services": checks,
	})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, errors.New("query parameter q is required"))
		return
	}
	results := h.Player.Search(r.Context(), query)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

type playRequest struct {
	URL string `json:"url"`
}

func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req playRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	session, err := h.Player.Play(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    string(models.StatusPlaying),
		"session":   session,
		"streamUrl": h.Player.StreamURL(r.Context()),
	})
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	session, err := h.Player.Stop(r.Context())
	if errors.Is(err, radio.ErrNothingPlaying) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": string(models.StatusStopped),
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  string(models.StatusStopped),
		"session": session,
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	state := h.Player.Status(r.Context())
	payload := map[string]interface{}{
		"status":    string(state.Status),
		"updatedAt": state.UpdatedAt,
	}
	if state.SessionID != "" {
		payload["sessionId"] = state.SessionID
	}
	if state.Track != nil {
		payload["track"] = state.Track
	}
	if state.Status == models.StatusPlaying {
		payload["streamUrl"] = h.Player.StreamURL(r.Context())
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) RadioURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url": h.Player.StreamURL(r.Context()),
	})
}

// StreamRedirect bounces listeners to the live mount so players can be
// pointed at a stable path regardless of where icecast runs.
func (h *Handler) StreamRedirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	http.Redirect(w, r, h.Player.StreamURL(r.Context()), http.StatusTemporaryRedirect)
}

const historyDefaultLimit = 20

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	limit := historyDefaultLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	sessions, err := h.Player.History(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []models.PlaybackSession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

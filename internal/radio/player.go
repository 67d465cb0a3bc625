package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"radiowave/internal/catalog"
	"radiowave/internal/feed"
	"radiowave/internal/models"
	"radiowave/internal/nowplaying"
	"radiowave/internal/observability/metrics"
	"radiowave/internal/storage"
)

// ErrNothingPlaying is returned by Stop when the station is already idle.
var ErrNothingPlaying = errors.New("nothing is playing")

// Config wires the player to its collaborators. Catalog and Store are
// required; the rest degrade gracefully when absent.
type Config struct {
	Catalog *catalog.Service
	Store   storage.Repository
	Feed    feed.Controller
	Events  nowplaying.Queue
	Logger  *slog.Logger
	Metrics *metrics.Recorder

	// SourceTarget is the icecast source URL feeds publish to. When empty
	// no feed process is started and listeners fetch the resolved audio
	// URL directly.
	SourceTarget string
	// ListenerURL is the public stream URL handed to clients.
	ListenerURL string
}

// Player owns the station's playback state machine. A station plays at most
// one track at a time; starting a new track displaces the current one.
type Player struct {
	catalog *catalog.Service
	store   storage.Repository
	feed    feed.Controller
	events  nowplaying.Queue
	logger  *slog.Logger
	metrics *metrics.Recorder

	sourceTarget string
	listenerURL  string

	stateMu sync.Mutex
	current *models.PlaybackSession
}

// NewPlayer constructs a Player and rehydrates the station state from the
// repository so a restart does not forget what was last playing.
func NewPlayer(ctx context.Context, cfg Config) (*Player, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog service is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	player := &Player{
		catalog:      cfg.Catalog,
		store:        cfg.Store,
		feed:         cfg.Feed,
		events:       cfg.Events,
		logger:       logger,
		metrics:      recorder,
		sourceTarget: strings.TrimSpace(cfg.SourceTarget),
		listenerURL:  strings.TrimSpace(cfg.ListenerURL),
	}
	state, err := cfg.Store.StationState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load station state: %w", err)
	}
	// A process restart kills any feed that was running, so a persisted
	// "playing" state is stale. Record the stop rather than pretending.
	if state.Status == models.StatusPlaying {
		logger.Info("closing stale playback session", "session_id", state.SessionID)
		if state.SessionID != "" {
			if _, err := cfg.Store.CompleteSession(ctx, state.SessionID); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
				logger.Warn("stale session close failed", "session_id", state.SessionID, "error", err)
			}
		}
		if err := cfg.Store.SetStationState(ctx, models.StationState{Status: models.StatusStopped, UpdatedAt: time.Now().UTC()}); err != nil {
			return nil, fmt.Errorf("reset station state: %w", err)
		}
	}
	return player, nil
}

// Play resolves the requested track to a playable audio URL, starts the feed,
// and records the new session. Any track already playing is stopped first.
func (p *Player) Play(ctx context.Context, trackURL string) (models.PlaybackSession, error) {
	trackURL = strings.TrimSpace(trackURL)
	if trackURL == "" {
		return models.PlaybackSession{}, errors.New("track url is required")
	}

	track, _ := p.catalog.Lookup(ctx, trackURL)
	audioURL := p.catalog.Resolve(ctx, trackURL)

	session := models.PlaybackSession{
		ID:        uuid.NewString(),
		Track:     track,
		AudioURL:  audioURL,
		StartedAt: time.Now().UTC(),
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.current != nil {
		p.stopLocked(ctx, p.current.ID)
	}

	if p.feed != nil && p.sourceTarget != "" {
		params := feed.Params{
			SessionID: session.ID,
			AudioURL:  audioURL,
			Target:    p.sourceTarget,
		}
		if err := p.feed.Start(ctx, params); err != nil {
			return models.PlaybackSession{}, fmt.Errorf("start feed: %w", err)
		}
	}

	if err := p.store.AppendSession(ctx, session); err != nil {
		p.logger.Error("session persist failed", "session_id", session.ID, "error", err)
	}
	state := models.StationState{
		Status:    models.StatusPlaying,
		SessionID: session.ID,
		Track:     &session.Track,
		UpdatedAt: session.StartedAt,
	}
	if err := p.store.SetStationState(ctx, state); err != nil {
		p.logger.Error("station state persist failed", "error", err)
	}
	p.current = &session

	p.metrics.PlaybackStarted()
	p.publish(ctx, nowplaying.Event{
		Type:       nowplaying.EventPlay,
		SessionID:  session.ID,
		Track:      &session.Track,
		AudioURL:   session.AudioURL,
		OccurredAt: session.StartedAt,
	})
	p.logger.Info("playback started",
		"session_id", session.ID,
		"track", session.Track.Title,
		"audio_url", session.AudioURL,
	)
	return session, nil
}

// Stop ends the current session if one exists.
func (p *Player) Stop(ctx context.Context) (models.PlaybackSession, error) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.current == nil {
		return models.PlaybackSession{}, ErrNothingPlaying
	}
	sessionID := p.current.ID
	p.stopLocked(ctx, sessionID)

	session, err := p.store.CompleteSession(ctx, sessionID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		session = *p.current
		now := time.Now().UTC()
		session.StoppedAt = &now
	} else if err != nil {
		p.logger.Error("session completion persist failed", "session_id", sessionID, "error", err)
		session = *p.current
	}
	p.current = nil
	return session, nil
}

// stopLocked tears down the feed and records the stopped state. Callers hold
// stateMu.
func (p *Player) stopLocked(ctx context.Context, sessionID string) {
	if p.feed != nil && p.sourceTarget != "" {
		if err := p.feed.Stop(ctx, sessionID); err != nil {
			p.logger.Warn("feed stop failed", "session_id", sessionID, "error", err)
		}
	}
	now := time.Now().UTC()
	if err := p.store.SetStationState(ctx, models.StationState{Status: models.StatusStopped, UpdatedAt: now}); err != nil {
		p.logger.Error("station state persist failed", "error", err)
	}
	p.metrics.PlaybackStopped()
	p.publish(ctx, nowplaying.Event{
		Type:       nowplaying.EventStop,
		SessionID:  sessionID,
		OccurredAt: now,
	})
	p.logger.Info("playback stopped", "session_id", sessionID)
}

// HandleFeedExit is invoked by the feed controller when a feed process dies
// on its own. The session is closed out so status reflects reality.
func (p *Player) HandleFeedExit(sessionID string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.current == nil || p.current.ID != sessionID {
		return
	}
	if err != nil {
		p.logger.Warn("feed exited unexpectedly", "session_id", sessionID, "error", err)
	} else {
		p.logger.Info("feed finished", "session_id", sessionID)
	}
	if _, cerr := p.store.CompleteSession(ctx, sessionID); cerr != nil && !errors.Is(cerr, storage.ErrSessionNotFound) {
		p.logger.Error("session completion persist failed", "session_id", sessionID, "error", cerr)
	}
	now := time.Now().UTC()
	if serr := p.store.SetStationState(ctx, models.StationState{Status: models.StatusStopped, UpdatedAt: now}); serr != nil {
		p.logger.Error("station state persist failed", "error", serr)
	}
	p.metrics.PlaybackStopped()
	p.publish(ctx, nowplaying.Event{
		Type:       nowplaying.EventStop,
		SessionID:  sessionID,
		OccurredAt: now,
	})
	p.current = nil
}

// Status reports the station's current state.
func (p *Player) Status(ctx context.Context) models.StationState {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.current != nil {
		return models.StationState{
			Status:    models.StatusPlaying,
			SessionID: p.current.ID,
			Track:     &p.current.Track,
			UpdatedAt: p.current.StartedAt,
		}
	}
	state, err := p.store.StationState(ctx)
	if err != nil {
		p.logger.Warn("station state load failed", "error", err)
		return models.StationState{Status: models.StatusStopped, UpdatedAt: time.Now().UTC()}
	}
	return state
}

// StreamURL returns the URL listeners should tune to. When no icecast mount
// is configured the current session's audio URL is served directly.
func (p *Player) StreamURL(ctx context.Context) string {
	if p.listenerURL != "" {
		return p.listenerURL
	}
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.current != nil {
		return p.current.AudioURL
	}
	return catalog.FallbackAudioURL
}

// Search proxies to the catalog service.
func (p *Player) Search(ctx context.Context, query string) []models.Track {
	return p.catalog.Search(ctx, query)
}

// History lists recent playback sessions, newest first.
func (p *Player) History(ctx context.Context, limit int) ([]models.PlaybackSession, error) {
	return p.store.ListSessions(ctx, limit)
}

func (p *Player) publish(ctx context.Context, event nowplaying.Event) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warn("event publish failed", "type", string(event.Type), "error", err)
	}
}

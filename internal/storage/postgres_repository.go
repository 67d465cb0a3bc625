package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"radiowave/internal/models"
)

type postgresRepository struct {
	pool         *pgxpool.Pool
	cfg          PostgresConfig
	historyLimit int
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema migration before returning.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{
		pool:         pool,
		cfg:          cfg,
		historyLimit: cfg.HistoryLimit,
	}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS playback_sessions (
			id TEXT PRIMARY KEY,
			track_id TEXT NOT NULL,
			track_title TEXT NOT NULL,
			track_artist TEXT NOT NULL DEFAULT '',
			track_url TEXT NOT NULL DEFAULT '',
			audio_url TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			stopped_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS playback_sessions_started_at_idx
			ON playback_sessions (started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS station_state (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			status TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			track_id TEXT NOT NULL DEFAULT '',
			track_title TEXT NOT NULL DEFAULT '',
			track_artist TEXT NOT NULL DEFAULT '',
			track_url TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) AppendSession(ctx context.Context, session models.PlaybackSession) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO playback_sessions (id, track_id, track_title, track_artist, track_url, audio_url, started_at, stopped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			track_id = EXCLUDED.track_id,
			track_title = EXCLUDED.track_title,
			track_artist = EXCLUDED.track_artist,
			track_url = EXCLUDED.track_url,
			audio_url = EXCLUDED.audio_url,
			started_at = EXCLUDED.started_at,
			stopped_at = EXCLUDED.stopped_at`,
		session.ID,
		session.Track.ID,
		session.Track.Title,
		session.Track.Artist,
		session.Track.URL,
		session.AudioURL,
		session.StartedAt,
		session.StoppedAt,
	)
	if err != nil {
		return fmt.Errorf("append playback session: %w", err)
	}
	return r.prune(ctx)
}

func (r *postgresRepository) CompleteSession(ctx context.Context, sessionID string) (models.PlaybackSession, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE playback_sessions
		SET stopped_at = COALESCE(stopped_at, NOW())
		WHERE id = $1
		RETURNING id, track_id, track_title, track_artist, track_url, audio_url, started_at, stopped_at`,
		sessionID,
	)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PlaybackSession{}, ErrSessionNotFound
	}
	if err != nil {
		return models.PlaybackSession{}, fmt.Errorf("complete playback session: %w", err)
	}
	return session, nil
}

func (r *postgresRepository) GetSession(ctx context.Context, sessionID string) (models.PlaybackSession, bool) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, track_id, track_title, track_artist, track_url, audio_url, started_at, stopped_at
		FROM playback_sessions WHERE id = $1`,
		sessionID,
	)
	session, err := scanSession(row)
	if err != nil {
		return models.PlaybackSession{}, false
	}
	return session, true
}

func (r *postgresRepository) ListSessions(ctx context.Context, limit int) ([]models.PlaybackSession, error) {
	if limit <= 0 || limit > r.historyLimit {
		limit = r.historyLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, track_id, track_title, track_artist, track_url, audio_url, started_at, stopped_at
		FROM playback_sessions
		ORDER BY started_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list playback sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.PlaybackSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan playback session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list playback sessions: %w", err)
	}
	return sessions, nil
}

func (r *postgresRepository) StationState(ctx context.Context) (models.StationState, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT status, session_id, track_id, track_title, track_artist, track_url, updated_at
		FROM station_state WHERE id = 1`)
	var (
		state models.StationState
		track models.Track
	)
	err := row.Scan(&state.Status, &state.SessionID, &track.ID, &track.Title, &track.Artist, &track.URL, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StationState{Status: models.StatusStopped, UpdatedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return models.StationState{}, fmt.Errorf("load station state: %w", err)
	}
	if track.ID != "" {
		state.Track = &track
	}
	return state, nil
}

func (r *postgresRepository) SetStationState(ctx context.Context, state models.StationState) error {
	if state.Status == "" {
		return errors.New("station status is required")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	var track models.Track
	if state.Track != nil {
		track = *state.Track
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO station_state (id, status, session_id, track_id, track_title, track_artist, track_url, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			session_id = EXCLUDED.session_id,
			track_id = EXCLUDED.track_id,
			track_title = EXCLUDED.track_title,
			track_artist = EXCLUDED.track_artist,
			track_url = EXCLUDED.track_url,
			updated_at = EXCLUDED.updated_at`,
		string(state.Status),
		state.SessionID,
		track.ID,
		track.Title,
		track.Artist,
		track.URL,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("persist station state: %w", err)
	}
	return nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// prune keeps the completed history bounded. Active sessions are exempt.
func (r *postgresRepository) prune(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM playback_sessions
		WHERE stopped_at IS NOT NULL AND id NOT IN (
			SELECT id FROM playback_sessions
			ORDER BY started_at DESC
			LIMIT $1
		)`,
		r.historyLimit,
	)
	if err != nil {
		return fmt.Errorf("prune playback sessions: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (models.PlaybackSession, error) {
	var (
		session   models.PlaybackSession
		stoppedAt *time.Time
	)
	err := row.Scan(
		&session.ID,
		&session.Track.ID,
		&session.Track.Title,
		&session.Track.Artist,
		&session.Track.URL,
		&session.AudioURL,
		&session.StartedAt,
		&stoppedAt,
	)
	if err != nil {
		return models.PlaybackSession{}, err
	}
	session.StoppedAt = stoppedAt
	return session, nil
}

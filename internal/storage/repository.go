package storage

import (
	"context"
	"errors"

	"radiowave/internal/models"
)

// ErrSessionNotFound is returned when a playback session lookup misses.
var ErrSessionNotFound = errors.New("playback session not found")

// Repository exposes the datastore operations required by the playback API:
// appending playback sessions, closing them out, and tracking the station's
// last known state across restarts.
type Repository interface {
	Ping(ctx context.Context) error

	AppendSession(ctx context.Context, session models.PlaybackSession) error
	CompleteSession(ctx context.Context, sessionID string) (models.PlaybackSession, error)
	GetSession(ctx context.Context, sessionID string) (models.PlaybackSession, bool)
	ListSessions(ctx context.Context, limit int) ([]models.PlaybackSession, error)

	StationState(ctx context.Context) (models.StationState, error)
	SetStationState(ctx context.Context, state models.StationState) error

	Close(ctx context.Context) error
}

var _ Repository = (*Store)(nil)
var _ Repository = (*postgresRepository)(nil)

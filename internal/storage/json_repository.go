package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"radiowave/internal/models"
)

const defaultHistoryLimit = 500

type dataset struct {
	Sessions map[string]models.PlaybackSession `json:"sessions"`
	Station  models.StationState               `json:"station"`
}

// Store is the JSON-file-backed repository used for single-node deployments.
// Every mutation is persisted atomically so a crash never leaves a partially
// written store file behind.
type Store struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	historyLimit    int
}

// NewStore loads (or creates) the JSON store at path.
func NewStore(path string, opts ...Option) (*Store, error) {
	store := &Store{
		filePath:     path,
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if store.historyLimit <= 0 {
		store.historyLimit = defaultHistoryLimit
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func newDataset() dataset {
	return dataset{
		Sessions: make(map[string]models.PlaybackSession),
		Station: models.StationState{
			Status:    models.StatusStopped,
			UpdatedAt: time.Now().UTC(),
		},
	}
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}
	if s.data.Sessions == nil {
		s.data.Sessions = make(map[string]models.PlaybackSession)
	}
	if s.data.Station.Status == "" {
		s.data.Station.Status = models.StatusStopped
	}
	return nil
}

func (s *Store) persist() error {
	if s.persistOverride != nil {
		if err := s.persistOverride(s.data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir := filepath.Dir(s.filePath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

func (s *Store) AppendSession(ctx context.Context, session models.PlaybackSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session.ID == "" {
		return errors.New("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Sessions[session.ID] = session
	s.pruneLocked()
	return s.persist()
}

func (s *Store) CompleteSession(ctx context.Context, sessionID string) (models.PlaybackSession, error) {
	if err := ctx.Err(); err != nil {
		return models.PlaybackSession{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.data.Sessions[sessionID]
	if !ok {
		return models.PlaybackSession{}, ErrSessionNotFound
	}
	if session.StoppedAt == nil {
		now := time.Now().UTC()
		session.StoppedAt = &now
		s.data.Sessions[sessionID] = session
		if err := s.persist(); err != nil {
			return models.PlaybackSession{}, err
		}
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.PlaybackSession, bool) {
	if ctx.Err() != nil {
		return models.PlaybackSession{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.data.Sessions[sessionID]
	return session, ok
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.PlaybackSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]models.PlaybackSession, 0, len(s.data.Sessions))
	for _, session := range s.data.Sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *Store) StationState(ctx context.Context) (models.StationState, error) {
	if err := ctx.Err(); err != nil {
		return models.StationState{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Station, nil
}

func (s *Store) SetStationState(ctx context.Context, state models.StationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.Status == "" {
		return errors.New("station status is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	s.data.Station = state
	return s.persist()
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

// pruneLocked discards the oldest completed sessions once the history cap is
// exceeded. Sessions still playing are never pruned.
func (s *Store) pruneLocked() {
	if s.historyLimit <= 0 || len(s.data.Sessions) <= s.historyLimit {
		return
	}
	completed := make([]models.PlaybackSession, 0, len(s.data.Sessions))
	for _, session := range s.data.Sessions {
		if session.StoppedAt != nil {
			completed = append(completed, session)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].StartedAt.Before(completed[j].StartedAt)
	})
	excess := len(s.data.Sessions) - s.historyLimit
	for i := 0; i < excess && i < len(completed); i++ {
		delete(s.data.Sessions, completed[i].ID)
	}
}

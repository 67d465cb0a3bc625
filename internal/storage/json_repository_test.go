package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"radiowave/internal/models"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "store.json"), opts...)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return store
}

func sessionFixture(id string, startedAt time.Time) models.PlaybackSession {
	return models.PlaybackSession{
		ID:        id,
		Track:     models.Track{ID: "trk-" + id, Title: "Track " + id, URL: "https://example.com/" + id},
		AudioURL:  "https://cdn.example.com/" + id + ".mp3",
		StartedAt: startedAt,
	}
}

func TestStorePersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	session := sessionFixture("s1", time.Now().UTC())
	if err := store.AppendSession(ctx, session); err != nil {
		t.Fatalf("AppendSession returned error: %v", err)
	}
	state := models.StationState{
		Status:    models.StatusPlaying,
		SessionID: session.ID,
		Track:     &session.Track,
		UpdatedAt: session.StartedAt,
	}
	if err := store.SetStationState(ctx, state); err != nil {
		t.Fatalf("SetStationState returned error: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	got, ok := reloaded.GetSession(ctx, session.ID)
	if !ok {
		t.Fatal("expected session to survive reload")
	}
	if got.AudioURL != session.AudioURL {
		t.Fatalf("unexpected audio URL %q", got.AudioURL)
	}
	loadedState, err := reloaded.StationState(ctx)
	if err != nil {
		t.Fatalf("StationState returned error: %v", err)
	}
	if loadedState.Status != models.StatusPlaying || loadedState.SessionID != session.ID {
		t.Fatalf("unexpected station state %+v", loadedState)
	}
}

func TestStoreStartsStopped(t *testing.T) {
	store := newTestStore(t)
	state, err := store.StationState(context.Background())
	if err != nil {
		t.Fatalf("StationState returned error: %v", err)
	}
	if state.Status != models.StatusStopped {
		t.Fatalf("expected stopped initial state, got %q", state.Status)
	}
}

func TestCompleteSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	session := sessionFixture("s1", time.Now().UTC())
	if err := store.AppendSession(ctx, session); err != nil {
		t.Fatalf("AppendSession returned error: %v", err)
	}

	completed, err := store.CompleteSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("CompleteSession returned error: %v", err)
	}
	if completed.StoppedAt == nil {
		t.Fatal("expected StoppedAt to be set")
	}

	// Completing again keeps the original stop time.
	again, err := store.CompleteSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("second CompleteSession returned error: %v", err)
	}
	if !again.StoppedAt.Equal(*completed.StoppedAt) {
		t.Fatal("expected CompleteSession to be idempotent")
	}

	if _, err := store.CompleteSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		session := sessionFixture(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := store.AppendSession(ctx, session); err != nil {
			t.Fatalf("AppendSession returned error: %v", err)
		}
	}

	sessions, err := store.ListSessions(ctx, 3)
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "s4" || sessions[2].ID != "s2" {
		t.Fatalf("unexpected ordering: %s, %s, %s", sessions[0].ID, sessions[1].ID, sessions[2].ID)
	}
}

func TestStorePrunesCompletedSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithHistoryLimit(3))
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		session := sessionFixture(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute))
		if i < 4 {
			stopped := session.StartedAt.Add(30 * time.Second)
			session.StoppedAt = &stopped
		}
		if err := store.AppendSession(ctx, session); err != nil {
			t.Fatalf("AppendSession returned error: %v", err)
		}
	}

	sessions, err := store.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(sessions))
	}
	// The still-playing session is never pruned.
	if _, ok := store.GetSession(ctx, "s4"); !ok {
		t.Fatal("expected active session to survive pruning")
	}
	if _, ok := store.GetSession(ctx, "s0"); ok {
		t.Fatal("expected oldest completed session to be pruned")
	}
}

func TestAppendSessionRequiresID(t *testing.T) {
	store := newTestStore(t)
	if err := store.AppendSession(context.Background(), models.PlaybackSession{}); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestSetStationStateRequiresStatus(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetStationState(context.Background(), models.StationState{}); err == nil {
		t.Fatal("expected error for empty status")
	}
}

func TestStorePersistFailureSurfaced(t *testing.T) {
	store := newTestStore(t)
	store.persistOverride = func(dataset) error { return errors.New("disk full") }
	err := store.AppendSession(context.Background(), sessionFixture("s1", time.Now().UTC()))
	if err == nil {
		t.Fatal("expected persist error to propagate")
	}
}

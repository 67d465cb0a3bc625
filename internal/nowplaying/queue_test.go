package nowplaying

import (
	"context"
	"testing"
	"time"

	"radiowave/internal/models"
)

func TestMemoryQueueFanOut(t *testing.T) {
	queue := NewMemoryQueue(4)
	first := queue.Subscribe()
	second := queue.Subscribe()
	defer first.Close()
	defer second.Close()

	event := Event{
		Type:      EventPlay,
		SessionID: "s1",
		Track:     &models.Track{Title: "Despacito"},
		AudioURL:  "https://cdn.example.com/a.mp3",
	}
	if err := queue.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	for _, sub := range []Subscription{first, second} {
		select {
		case got := <-sub.Events():
			if got.SessionID != "s1" || got.Type != EventPlay {
				t.Fatalf("unexpected event %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestMemoryQueueRequiresEventType(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Publish(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for event without type")
	}
}

func TestMemoryQueueDropsWhenSubscriberIsFull(t *testing.T) {
	queue := NewMemoryQueue(1)
	sub := queue.Subscribe()
	defer sub.Close()

	ctx := context.Background()
	if err := queue.Publish(ctx, Event{Type: EventPlay, SessionID: "s1"}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	// Buffer is full; this publish must not block.
	done := make(chan struct{})
	go func() {
		_ = queue.Publish(ctx, Event{Type: EventStop, SessionID: "s1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	queue := NewMemoryQueue(1)
	sub := queue.Subscribe()
	sub.Close()
	sub.Close()

	if err := queue.Publish(context.Background(), Event{Type: EventPlay, SessionID: "s1"}); err != nil {
		t.Fatalf("Publish after close returned error: %v", err)
	}
}

package nowplaying

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisQueue(t *testing.T, buffer int) Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewRedisQueue(RedisQueueConfig{
		Addr:         mr.Addr(),
		Buffer:       buffer,
		BlockTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRedisQueue returned error: %v", err)
	}
	return q
}

func TestRedisQueueRequiresAddr(t *testing.T) {
	if _, err := NewRedisQueue(RedisQueueConfig{}); err == nil {
		t.Fatal("expected error without addr")
	}
}

func TestRedisQueuePublishSubscribe(t *testing.T) {
	q := newTestRedisQueue(t, 4)

	sub := q.Subscribe()
	defer sub.Close()

	event := Event{Type: EventPlay, SessionID: "session-1", AudioURL: "https://cdn.example.com/a.mp3"}
	if err := q.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	select {
	case got := <-sub.Events():
		if got.Type != EventPlay || got.SessionID != "session-1" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisQueuePublishRequiresType(t *testing.T) {
	q := newTestRedisQueue(t, 4)
	if err := q.Publish(context.Background(), Event{SessionID: "session-1"}); err == nil {
		t.Fatal("expected error for event without type")
	}
}

// Closing a subscription while the reader is mid-delivery must not panic:
// the reader owns the channel and closes it only after it stops sending.
func TestRedisSubscriptionCloseDuringDelivery(t *testing.T) {
	q := newTestRedisQueue(t, 1)

	sub := q.Subscribe()
	for i := 0; i < 8; i++ {
		event := Event{Type: EventPlay, SessionID: fmt.Sprintf("session-%d", i)}
		if err := q.Publish(context.Background(), event); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}

	// Let the reader fill the buffer and park on the blocked send.
	time.Sleep(100 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		sub.Close()
		close(closed)
	}()

	for range sub.Events() {
	}

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	// Close is idempotent after the reader has exited.
	sub.Close()
}

package nowplaying

import (
	"time"

	"radiowave/internal/models"
)

// EventType distinguishes playback lifecycle notifications.
type EventType string

const (
	EventPlay EventType = "play"
	EventStop EventType = "stop"
)

// Event describes a change to the station's playback state. Events are
// published when a listener starts or stops a track so dashboards and
// downstream consumers can follow along without polling the status API.
type Event struct {
	Type       EventType     `json:"type"`
	SessionID  string        `json:"sessionId"`
	Track      *models.Track `json:"track,omitempty"`
	AudioURL   string        `json:"audioUrl,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

package models

import "time"

// Track describes a single catalog entry returned by search or selected for
// playback.
type Track struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	URL       string `json:"url"`
	Duration  int    `json:"duration"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// PlayerStatus enumerates the externally visible playback states.
type PlayerStatus string

const (
	StatusPlaying PlayerStatus = "playing"
	StatusStopped PlayerStatus = "stopped"
)

// PlaybackSession records one play request from start to stop.
type PlaybackSession struct {
	ID        string     `json:"id"`
	Track     Track      `json:"track"`
	AudioURL  string     `json:"audioUrl"`
	StartedAt time.Time  `json:"startedAt"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
}

// StationState is the persisted snapshot of the station: whatever is playing
// now plus the identifier of the active session.
type StationState struct {
	Status    PlayerStatus `json:"status"`
	SessionID string       `json:"sessionId,omitempty"`
	Track     *Track       `json:"track,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

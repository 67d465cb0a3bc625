// Package feed pushes resolved audio into the streaming server's source
// port. Two controllers exist: one shells out to ffmpeg locally, the other
// drives the standalone encoder daemon over its REST control plane.
package feed

import (
	"context"
	"fmt"
	"strings"

	"radiowave/internal/icecast"
)

// Params describes one feed: which playback session it belongs to, the audio
// to read, and the icecast source target to write.
type Params struct {
	SessionID string
	AudioURL  string
	Target    string
}

// Controller starts and stops audio feeds. At most one feed is live at a
// time; starting a new one replaces the previous.
type Controller interface {
	Start(ctx context.Context, params Params) error
	Stop(ctx context.Context, sessionID string) error
	Health(ctx context.Context) icecast.HealthStatus
}

// Validate checks the parameters shared by both controller implementations.
func (p Params) Validate() error {
	if strings.TrimSpace(p.SessionID) == "" {
		return fmt.Errorf("session ID is required")
	}
	if strings.TrimSpace(p.AudioURL) == "" {
		return fmt.Errorf("audio URL is required")
	}
	if strings.TrimSpace(p.Target) == "" {
		return fmt.Errorf("feed target is required")
	}
	return nil
}

// BuildArgs assembles the ffmpeg argument list for pushing the audio URL
// into the icecast source target as a re-encoded MP3 stream. The -re flag
// paces reads at native speed so the broadcast stays realtime.
func BuildArgs(audioURL, target string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "warning",
		"-re",
		"-i", audioURL,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", "128k",
		"-content_type", "audio/mpeg",
		"-f", "mp3",
		target,
	}
}

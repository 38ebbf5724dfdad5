package radio

import (
	"context"
	"time"
)

// Track is a playlist entry after metadata enrichment.
// Tracks are immutable once built.
type Track struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Artist   string        `json:"artist"`
	Album    string        `json:"album"`
	Duration time.Duration `json:"duration"`
	CoverURL string        `json:"cover_url"`
	Mood     string        `json:"mood"`
	Reason   string        `json:"reason,omitempty"`
	// AudioURL is the playable locator. Empty means the fallback
	// resource is used.
	AudioURL string `json:"audio_url,omitempty"`
}

// Playlist is the content provider's answer to a mood prompt.
type Playlist struct {
	Tracks []Track `json:"tracks"`
	Intro  string  `json:"intro"`
}

// TrackInfo is the metadata provider's answer to a "title artist" query.
type TrackInfo struct {
	Title      string
	Artist     string
	Album      string
	CoverURL   string
	PreviewURL string
	Duration   time.Duration
}

// Content generates playlists, interlude scripts and synthesized speech.
type Content interface {
	// GeneratePlaylist returns a playlist and an intro script for the
	// given mood prompt.
	GeneratePlaylist(ctx context.Context, mood string) (*Playlist, error)
	// GenerateInterlude returns a short spoken script bridging prev and
	// next. Implementations return a deterministic fallback line instead
	// of an error when generation fails.
	GenerateInterlude(ctx context.Context, prev, next Track, mood string) (string, error)
	// GenerateSpeech synthesizes the script into an audio payload.
	GenerateSpeech(ctx context.Context, script string) ([]byte, error)
}

// Metadata resolves a "title artist" query to enriched track metadata.
// A nil result with a nil error signals a lookup miss: the caller uses
// placeholder metadata and no playable preview.
type Metadata interface {
	Resolve(ctx context.Context, query string) (*TrackInfo, error)
}

// VoiceHandle controls an in-flight speech clip.
type VoiceHandle interface {
	Stop()
}

// MusicHandle controls an in-flight music stream.
type MusicHandle interface {
	Pause()
	Resume()
	Stop()
}

// Output is the audio output subsystem: a voice channel for decoded
// in-memory buffers and a music channel for streamed locators. Both fire
// their completion callback once, from a separate goroutine, only when
// playback ends naturally.
type Output interface {
	// Unlock prepares the underlying audio device. It must be called
	// before any playback and is cheap when already unlocked.
	Unlock() error
	// Suspend pauses the whole output device.
	Suspend() error
	// Resume reverses Suspend.
	Resume() error
	PlayBuffer(buf []byte, onComplete func()) (VoiceHandle, error)
	PlayLocator(ctx context.Context, locator string, volume float64, onComplete func()) (MusicHandle, error)
}

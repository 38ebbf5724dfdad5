package driftfm

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/driftfm/driftfm/pkg/audio"
	"github.com/driftfm/driftfm/pkg/dj"
	"github.com/driftfm/driftfm/pkg/radio"
	"github.com/driftfm/driftfm/pkg/session"
	"github.com/driftfm/driftfm/pkg/spotify"
)

type Config struct {
	Debug         bool
	OpenAIKey     string
	Model         string
	Voice         string
	Tracks        int
	SpotifyID     string
	SpotifySecret string
}

// Play runs a single DJ session for the given mood prompt and blocks until
// the set ends or the context is cancelled.
func Play(ctx context.Context, cfg *Config, prompt string) error {
	content, err := dj.New(&dj.Config{
		Debug:  cfg.Debug,
		Token:  cfg.OpenAIKey,
		Model:  cfg.Model,
		Voice:  cfg.Voice,
		Tracks: cfg.Tracks,
	})
	if err != nil {
		return fmt.Errorf("couldn't create dj: %w", err)
	}
	var metadata radio.Metadata = noMetadata{}
	if cfg.SpotifyID != "" && cfg.SpotifySecret != "" {
		client := spotify.New(&spotify.Config{
			Debug:        cfg.Debug,
			ClientID:     cfg.SpotifyID,
			ClientSecret: cfg.SpotifySecret,
		})
		if err := client.Start(ctx); err != nil {
			return fmt.Errorf("couldn't start spotify client: %w", err)
		}
		metadata = client
	}

	done := make(chan struct{})
	var once sync.Once
	orch, err := session.New(&session.Config{
		Debug:    cfg.Debug,
		Content:  content,
		Metadata: metadata,
		Output:   audio.New(&audio.Config{}),
		OnEvent: func(e session.Event) {
			switch e.Type {
			case session.EventTrackStarted:
				log.Printf("now playing: %s - %s\n", e.Track.Artist, e.Track.Title)
			case session.EventSessionEnded:
				once.Do(func() { close(done) })
			case session.EventSessionError:
				log.Printf("session error: %v\n", e.Err)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("couldn't create orchestrator: %w", err)
	}
	defer orch.Stop()

	if err := orch.StartSession(ctx, prompt); err != nil {
		return fmt.Errorf("couldn't start session: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

type noMetadata struct{}

func (noMetadata) Resolve(ctx context.Context, query string) (*radio.TrackInfo, error) {
	return nil, nil
}

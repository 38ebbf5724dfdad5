package play

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/driftfm/driftfm/pkg/audio"
	"github.com/driftfm/driftfm/pkg/dj"
	"github.com/driftfm/driftfm/pkg/history"
	"github.com/driftfm/driftfm/pkg/radio"
	"github.com/driftfm/driftfm/pkg/session"
	"github.com/driftfm/driftfm/pkg/spotify"
)

type Config struct {
	Debug bool

	OpenAIKey   string
	Model       string
	Voice       string
	PersonaFile string
	Tracks      int

	SpotifyID     string
	SpotifySecret string

	DBType string
	DBConn string

	Prompt           string
	CommentaryChance float64
	TrackCeiling     time.Duration
	Volume           float64
}

// Run starts an interactive DJ session in the terminal. Commands are read
// from stdin: skip, pause, new <prompt>, quit.
func Run(ctx context.Context, cfg *Config) error {
	log.Printf("play: session started\n")
	defer log.Printf("play: session ended\n")

	if cfg.OpenAIKey == "" {
		return errors.New("play: missing openai key")
	}
	if cfg.Prompt == "" {
		return errors.New("play: missing mood prompt")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	content, err := dj.New(&dj.Config{
		Debug:       cfg.Debug,
		Token:       cfg.OpenAIKey,
		Model:       cfg.Model,
		Voice:       cfg.Voice,
		Tracks:      cfg.Tracks,
		PersonaFile: cfg.PersonaFile,
	})
	if err != nil {
		return fmt.Errorf("play: couldn't create dj: %w", err)
	}

	var metadata radio.Metadata = nullMetadata{}
	if cfg.SpotifyID != "" && cfg.SpotifySecret != "" {
		client := spotify.New(&spotify.Config{
			Debug:        cfg.Debug,
			ClientID:     cfg.SpotifyID,
			ClientSecret: cfg.SpotifySecret,
		})
		if err := client.Start(ctx); err != nil {
			return fmt.Errorf("play: couldn't start spotify client: %w", err)
		}
		metadata = client
	} else {
		log.Printf("play: no spotify credentials, using placeholder metadata\n")
	}

	var store *history.Store
	if cfg.DBType != "" {
		store, err = history.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("play: couldn't create history store: %w", err)
		}
		if err := store.Start(ctx); err != nil {
			return fmt.Errorf("play: couldn't start history store: %w", err)
		}
	}

	output := audio.New(&audio.Config{})

	rec := &recorder{ctx: ctx, store: store}
	orch, err := session.New(&session.Config{
		Debug:            cfg.Debug,
		Content:          content,
		Metadata:         metadata,
		Output:           output,
		CommentaryChance: cfg.CommentaryChance,
		TrackCeiling:     cfg.TrackCeiling,
		Volume:           cfg.Volume,
		OnEvent:          rec.onEvent,
	})
	if err != nil {
		return fmt.Errorf("play: couldn't create orchestrator: %w", err)
	}
	rec.orch = orch
	defer orch.Stop()

	log.Printf("play: generating a set for %q...\n", cfg.Prompt)
	if err := orch.StartSession(ctx, cfg.Prompt); err != nil {
		return fmt.Errorf("play: couldn't start session: %w", err)
	}

	// Read user commands from stdin
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch {
			case line == "s" || line == "skip":
				orch.Skip()
			case line == "p" || line == "pause":
				orch.TogglePlay()
			case line == "q" || line == "quit":
				return nil
			case strings.HasPrefix(line, "new "):
				prompt := strings.TrimSpace(strings.TrimPrefix(line, "new "))
				go func() {
					if err := orch.StartSession(ctx, prompt); err != nil && !errors.Is(err, session.ErrBusy) {
						log.Printf("play: couldn't start session: %v\n", err)
					}
				}()
			case line == "":
			default:
				log.Printf("play: commands: skip (s), pause (p), new <prompt>, quit (q)\n")
			}
		}
	}
}

// recorder logs orchestrator events and persists plays to the history
// store when one is configured.
type recorder struct {
	ctx       context.Context
	store     *history.Store
	orch      *session.Orchestrator
	sessionID string
}

func (r *recorder) onEvent(e session.Event) {
	switch e.Type {
	case session.EventSessionStarted:
		s := r.orch.Snapshot()
		log.Printf("play: set ready, %d tracks\n", len(s.Queue))
		if r.store != nil {
			id, err := r.store.AddSession(r.ctx, s.Mood, len(s.Queue))
			if err != nil {
				log.Printf("play: couldn't record session: %v\n", err)
				return
			}
			r.sessionID = id
		}
	case session.EventCommentaryStarted:
		s := r.orch.Snapshot()
		log.Printf("play: on air: %s\n", s.Commentary)
	case session.EventTrackStarted:
		log.Printf("play: now playing: %s - %s (%s)\n", e.Track.Artist, e.Track.Title, e.Track.Album)
	case session.EventTrackEnded:
		r.record(e.Track, false)
	case session.EventTrackSkipped:
		log.Printf("play: skipped: %s - %s\n", e.Track.Artist, e.Track.Title)
		r.record(e.Track, true)
	case session.EventStateChanged:
		s := r.orch.Snapshot()
		log.Printf("play: %s\n", s.Phase)
	case session.EventSessionEnded:
		log.Printf("play: that's the end of the set, thanks for listening\n")
	case session.EventSessionError:
		log.Printf("play: session error: %v\n", e.Err)
	}
}

func (r *recorder) record(track *radio.Track, skipped bool) {
	if r.store == nil || track == nil {
		return
	}
	err := r.store.AddPlay(r.ctx, &history.Play{
		SessionID: r.sessionID,
		TrackID:   track.ID,
		Title:     track.Title,
		Artist:    track.Artist,
		Album:     track.Album,
		Mood:      track.Mood,
		Skipped:   skipped,
	})
	if err != nil {
		log.Printf("play: couldn't record play: %v\n", err)
	}
}

// nullMetadata always misses, so every track gets placeholder metadata and
// the fallback audio resource.
type nullMetadata struct{}

func (nullMetadata) Resolve(ctx context.Context, query string) (*radio.TrackInfo, error) {
	return nil, nil
}

package serve

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/browser"

	"github.com/driftfm/driftfm/pkg/audio"
	"github.com/driftfm/driftfm/pkg/dj"
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

	Addr    string
	Open    bool
	Volume  float64
	Ceiling time.Duration
}

//go:embed static/*
var staticContent embed.FS

// Serve runs the web presentation: a JSON API over the orchestrator state
// and commands, plus a small embedded page that consumes it. Audio plays
// on the host running the server.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("serve: server started")
	defer log.Println("serve: server ended")

	if cfg.OpenAIKey == "" {
		return errors.New("serve: missing openai key")
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
		return fmt.Errorf("serve: couldn't create dj: %w", err)
	}

	var metadata radio.Metadata = nullMetadata{}
	if cfg.SpotifyID != "" && cfg.SpotifySecret != "" {
		client := spotify.New(&spotify.Config{
			Debug:        cfg.Debug,
			ClientID:     cfg.SpotifyID,
			ClientSecret: cfg.SpotifySecret,
		})
		if err := client.Start(ctx); err != nil {
			return fmt.Errorf("serve: couldn't start spotify client: %w", err)
		}
		metadata = client
	}

	orch, err := session.New(&session.Config{
		Debug:        cfg.Debug,
		Content:      content,
		Metadata:     metadata,
		Output:       audio.New(&audio.Config{}),
		Volume:       cfg.Volume,
		TrackCeiling: cfg.Ceiling,
	})
	if err != nil {
		return fmt.Errorf("serve: couldn't create orchestrator: %w", err)
	}
	defer orch.Stop()

	staticFS, err := iofs.Sub(staticContent, "static")
	if err != nil {
		return fmt.Errorf("serve: couldn't load static content: %w", err)
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	if cfg.Debug {
		mux.Use(middleware.Logger)
	}

	mux.Get("/api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, toState(orch.Snapshot()))
	})
	mux.Post("/api/session", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
			http.Error(w, "missing prompt", http.StatusBadRequest)
			return
		}
		// Session generation outlives the request
		go func() {
			if err := orch.StartSession(ctx, req.Prompt); err != nil && !errors.Is(err, session.ErrBusy) {
				log.Printf("serve: couldn't start session: %v\n", err)
			}
		}()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.Post("/api/skip", func(w http.ResponseWriter, r *http.Request) {
		orch.Skip()
		writeJSON(w, toState(orch.Snapshot()))
	})
	mux.Post("/api/toggle", func(w http.ResponseWriter, r *http.Request) {
		orch.TogglePlay()
		writeJSON(w, toState(orch.Snapshot()))
	})
	mux.Handle("/*", http.FileServer(http.FS(staticFS)))

	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:1984"
	}
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		log.Printf("serve: listening on http://%s\n", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("serve: failed to start server: %v\n", err)
			cancel()
		}
	}()
	if cfg.Open {
		_ = browser.OpenURL("http://" + addr)
	}

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

type trackState struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	CoverURL string `json:"cover_url"`
	Mood     string `json:"mood"`
	Reason   string `json:"reason,omitempty"`
}

type state struct {
	Phase      string       `json:"phase"`
	Loading    bool         `json:"loading"`
	Mood       string       `json:"mood"`
	Current    *trackState  `json:"current,omitempty"`
	Queue      []trackState `json:"queue"`
	Commentary string       `json:"commentary"`
}

func toState(s session.Status) state {
	out := state{
		Phase:      s.Phase.String(),
		Loading:    s.Loading,
		Mood:       s.Mood,
		Commentary: s.Commentary,
		Queue:      make([]trackState, 0, len(s.Queue)),
	}
	if s.Current != nil {
		t := toTrack(*s.Current)
		out.Current = &t
	}
	for _, t := range s.Queue {
		out.Queue = append(out.Queue, toTrack(t))
	}
	return out
}

func toTrack(t radio.Track) trackState {
	return trackState{
		ID:       t.ID,
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		CoverURL: t.CoverURL,
		Mood:     t.Mood,
		Reason:   t.Reason,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("serve: couldn't encode response: %v\n", err)
	}
}

type nullMetadata struct{}

func (nullMetadata) Resolve(ctx context.Context, query string) (*radio.TrackInfo, error) {
	return nil, nil
}

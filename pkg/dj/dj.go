package dj

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/driftfm/driftfm/pkg/audio"
	"github.com/driftfm/driftfm/pkg/openai"
	"github.com/driftfm/driftfm/pkg/radio"
	"gopkg.in/yaml.v3"
)

// DJ authors playlists and spoken commentary using an LLM backend and
// synthesizes the commentary into speech.
type DJ struct {
	ai     ai
	debug  bool
	tracks int

	persona Persona
}

type ai interface {
	Chat(ctx context.Context, system, user string) (string, error)
	Speech(ctx context.Context, text string) ([]byte, error)
}

type Config struct {
	Debug bool
	Token string
	Model string
	Voice string

	// Tracks is the playlist length requested per session.
	Tracks int

	// PersonaFile points to an optional YAML file tuning the DJ voice
	// and on-air style.
	PersonaFile string

	// BaseURL overrides the API endpoint in tests.
	BaseURL string
	Client  *http.Client
}

// Persona tunes how the DJ talks on air.
type Persona struct {
	Name  string `yaml:"name"`
	Voice string `yaml:"voice"`
	Style string `yaml:"style"`
}

var defaultPersona = Persona{
	Name:  "Nova",
	Voice: "nova",
	Style: "warm, laid back, a little playful",
}

func New(cfg *Config) (*DJ, error) {
	if cfg.Token == "" {
		return nil, errors.New("dj: missing api token")
	}
	persona := defaultPersona
	if cfg.PersonaFile != "" {
		b, err := os.ReadFile(cfg.PersonaFile)
		if err != nil {
			return nil, fmt.Errorf("dj: couldn't read persona file: %w", err)
		}
		if err := yaml.Unmarshal(b, &persona); err != nil {
			return nil, fmt.Errorf("dj: couldn't parse persona file: %w", err)
		}
		if persona.Name == "" {
			persona.Name = defaultPersona.Name
		}
		if persona.Voice == "" {
			persona.Voice = defaultPersona.Voice
		}
	}
	voice := cfg.Voice
	if voice == "" {
		voice = persona.Voice
	}
	tracks := cfg.Tracks
	if tracks == 0 {
		tracks = 5
	}
	client := openai.New(&openai.Config{
		Debug:   cfg.Debug,
		Token:   cfg.Token,
		Model:   cfg.Model,
		Voice:   voice,
		BaseURL: cfg.BaseURL,
		Client:  cfg.Client,
	})
	return &DJ{
		ai:      client,
		debug:   cfg.Debug,
		tracks:  tracks,
		persona: persona,
	}, nil
}

func (d *DJ) log(format string, args ...interface{}) {
	if d.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

func (d *DJ) systemPrompt() string {
	return fmt.Sprintf(
		"You are %s, a radio DJ. Your on-air style: %s. Keep spoken lines under 60 words.",
		d.persona.Name, d.persona.Style,
	)
}

type playlistResponse struct {
	Intro  string `json:"intro"`
	Tracks []struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
		Mood   string `json:"mood"`
		Reason string `json:"reason"`
	} `json:"tracks"`
}

// GeneratePlaylist asks the model for a playlist and an intro script for
// the given mood prompt. Tracks carry title, artist, mood and reason only;
// the rest of the metadata comes from enrichment.
func (d *DJ) GeneratePlaylist(ctx context.Context, mood string) (*radio.Playlist, error) {
	user := fmt.Sprintf(
		`Build a playlist of %d real songs for this mood: %q.
Respond with JSON only, no prose, in this shape:
{"intro": "<spoken intro for the set>", "tracks": [{"title": "", "artist": "", "mood": "", "reason": ""}]}`,
		d.tracks, mood,
	)
	raw, err := d.ai.Chat(ctx, d.systemPrompt(), user)
	if err != nil {
		return nil, fmt.Errorf("dj: couldn't generate playlist: %w", err)
	}
	var resp playlistResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		return nil, fmt.Errorf("dj: couldn't parse playlist response: %w", err)
	}
	if len(resp.Tracks) == 0 {
		return nil, errors.New("dj: playlist response has no tracks")
	}
	if resp.Intro == "" {
		return nil, errors.New("dj: playlist response has no intro")
	}
	playlist := &radio.Playlist{Intro: resp.Intro}
	for _, t := range resp.Tracks {
		if t.Title == "" || t.Artist == "" {
			continue
		}
		playlist.Tracks = append(playlist.Tracks, radio.Track{
			Title:  t.Title,
			Artist: t.Artist,
			Mood:   t.Mood,
			Reason: t.Reason,
		})
	}
	if len(playlist.Tracks) == 0 {
		return nil, errors.New("dj: playlist response has no usable tracks")
	}
	return playlist, nil
}

// GenerateInterlude writes a short bridge between two tracks. Generation
// failures degrade to a fixed announcement line instead of an error so a
// flaky backend never silences the transition.
func (d *DJ) GenerateInterlude(ctx context.Context, prev, next radio.Track, mood string) (string, error) {
	user := fmt.Sprintf(
		"We just played %q by %s. Up next is %q by %s. The set mood is %q. Write the spoken transition.",
		prev.Title, prev.Artist, next.Title, next.Artist, mood,
	)
	script, err := d.ai.Chat(ctx, d.systemPrompt(), user)
	if err != nil || strings.TrimSpace(script) == "" {
		d.log("dj: interlude generation failed, using fallback: %v", err)
		return fmt.Sprintf("That was %s by %s. Up next, %s by %s.",
			prev.Title, prev.Artist, next.Title, next.Artist), nil
	}
	return strings.TrimSpace(script), nil
}

// GenerateSpeech synthesizes a script into an mp3 payload.
func (d *DJ) GenerateSpeech(ctx context.Context, script string) ([]byte, error) {
	b, err := d.ai.Speech(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("dj: couldn't synthesize speech: %w", err)
	}
	if len(b) == 0 {
		return nil, errors.New("dj: synthesis returned no audio")
	}
	if d.debug {
		if dur, err := audio.Duration(b); err == nil {
			d.log("dj: synthesized %s of speech", dur)
		}
	}
	return b, nil
}

// stripFences removes a markdown code fence wrapping, which some models
// add even when asked for raw JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

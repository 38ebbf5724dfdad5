package dj

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/driftfm/driftfm/pkg/radio"
)

type fakeAI struct {
	chat      string
	chatErr   error
	speech    []byte
	speechErr error
}

func (f *fakeAI) Chat(ctx context.Context, system, user string) (string, error) {
	return f.chat, f.chatErr
}

func (f *fakeAI) Speech(ctx context.Context, text string) ([]byte, error) {
	return f.speech, f.speechErr
}

func newTestDJ(ai ai) *DJ {
	return &DJ{
		ai:      ai,
		tracks:  3,
		persona: defaultPersona,
	}
}

func TestGeneratePlaylist(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		wantErr    bool
		wantTracks int
		wantIntro  string
	}{
		{
			name: "plain json",
			response: `{"intro": "hello night owls", "tracks": [
				{"title": "Nightcall", "artist": "Kavinsky", "mood": "dark synth", "reason": "sets the tone"},
				{"title": "Midnight City", "artist": "M83", "mood": "euphoric"}
			]}`,
			wantTracks: 2,
			wantIntro:  "hello night owls",
		},
		{
			name: "fenced json",
			response: "```json\n" + `{"intro": "hi", "tracks": [{"title": "Genesis", "artist": "Grimes"}]}` + "\n```",
			wantTracks: 1,
			wantIntro:  "hi",
		},
		{
			name:     "not json",
			response: "sorry, I can't do that",
			wantErr:  true,
		},
		{
			name:     "no tracks",
			response: `{"intro": "hi", "tracks": []}`,
			wantErr:  true,
		},
		{
			name:     "no intro",
			response: `{"tracks": [{"title": "Genesis", "artist": "Grimes"}]}`,
			wantErr:  true,
		},
		{
			name:     "tracks missing titles are dropped",
			response: `{"intro": "hi", "tracks": [{"artist": "Grimes"}, {"title": "Genesis", "artist": "Grimes"}]}`,
			wantTracks: 1,
			wantIntro:  "hi",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDJ(&fakeAI{chat: tt.response})
			playlist, err := d.GeneratePlaylist(context.Background(), "late night drive")
			if (err != nil) != tt.wantErr {
				t.Fatalf("GeneratePlaylist() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(playlist.Tracks) != tt.wantTracks {
				t.Errorf("tracks = %d, want %d", len(playlist.Tracks), tt.wantTracks)
			}
			if playlist.Intro != tt.wantIntro {
				t.Errorf("intro = %q, want %q", playlist.Intro, tt.wantIntro)
			}
		})
	}
}

func TestGeneratePlaylistError(t *testing.T) {
	d := newTestDJ(&fakeAI{chatErr: errors.New("backend down")})
	if _, err := d.GeneratePlaylist(context.Background(), "mood"); err == nil {
		t.Fatal("GeneratePlaylist() error = nil, want error")
	}
}

func TestGenerateInterlude(t *testing.T) {
	prev := radio.Track{Title: "Nightcall", Artist: "Kavinsky"}
	next := radio.Track{Title: "Midnight City", Artist: "M83"}

	t.Run("success", func(t *testing.T) {
		d := newTestDJ(&fakeAI{chat: "  what a ride that was\n"})
		got, err := d.GenerateInterlude(context.Background(), prev, next, "late night")
		if err != nil {
			t.Fatalf("GenerateInterlude() error = %v", err)
		}
		if got != "what a ride that was" {
			t.Errorf("script = %q", got)
		}
	})

	t.Run("failure falls back to announcement", func(t *testing.T) {
		d := newTestDJ(&fakeAI{chatErr: errors.New("backend down")})
		got, err := d.GenerateInterlude(context.Background(), prev, next, "late night")
		if err != nil {
			t.Fatalf("GenerateInterlude() error = %v, want fallback", err)
		}
		for _, want := range []string{"Nightcall", "Kavinsky", "Midnight City", "M83"} {
			if !strings.Contains(got, want) {
				t.Errorf("fallback %q missing %q", got, want)
			}
		}
	})

	t.Run("empty response falls back", func(t *testing.T) {
		d := newTestDJ(&fakeAI{chat: "   "})
		got, err := d.GenerateInterlude(context.Background(), prev, next, "late night")
		if err != nil || got == "" {
			t.Fatalf("GenerateInterlude() = %q, %v, want fallback", got, err)
		}
	})
}

func TestGenerateSpeech(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		d := newTestDJ(&fakeAI{speech: []byte("mp3data")})
		got, err := d.GenerateSpeech(context.Background(), "hello")
		if err != nil {
			t.Fatalf("GenerateSpeech() error = %v", err)
		}
		if string(got) != "mp3data" {
			t.Errorf("speech = %q", got)
		}
	})
	t.Run("empty payload", func(t *testing.T) {
		d := newTestDJ(&fakeAI{})
		if _, err := d.GenerateSpeech(context.Background(), "hello"); err == nil {
			t.Fatal("GenerateSpeech() error = nil, want error")
		}
	})
	t.Run("backend error", func(t *testing.T) {
		d := newTestDJ(&fakeAI{speechErr: errors.New("backend down")})
		if _, err := d.GenerateSpeech(context.Background(), "hello"); err == nil {
			t.Fatal("GenerateSpeech() error = nil, want error")
		}
	})
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"  {\"a\": 1}  ", `{"a": 1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

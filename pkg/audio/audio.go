package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/driftfm/driftfm/pkg/radio"
)

// Output plays audio through the system speaker. It exposes a voice
// channel for in-memory speech buffers and a music channel for streamed
// locators, each returning an independent handle.
type Output struct {
	mu          sync.Mutex
	initialized bool
	sampleRate  beep.SampleRate
	client      *http.Client
}

type Config struct {
	Client *http.Client
}

func New(cfg *Config) *Output {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Output{
		sampleRate: beep.SampleRate(44100),
		client:     client,
	}
}

// Unlock initializes the speaker. It must run before any playback and is
// a no-op once the speaker is up.
func (o *Output) Unlock() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return nil
	}
	if err := speaker.Init(o.sampleRate, o.sampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("audio: couldn't init speaker: %w", err)
	}
	o.initialized = true
	return nil
}

// Suspend pauses the whole output device.
func (o *Output) Suspend() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized {
		return nil
	}
	if err := speaker.Suspend(); err != nil {
		return fmt.Errorf("audio: couldn't suspend speaker: %w", err)
	}
	return nil
}

// Resume reverses Suspend.
func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized {
		return nil
	}
	if err := speaker.Resume(); err != nil {
		return fmt.Errorf("audio: couldn't resume speaker: %w", err)
	}
	return nil
}

// PlayBuffer decodes an in-memory mp3 payload and plays it on the voice
// channel. onComplete fires once, in its own goroutine, only on natural
// completion.
func (o *Output) PlayBuffer(buf []byte, onComplete func()) (radio.VoiceHandle, error) {
	if err := o.Unlock(); err != nil {
		return nil, err
	}
	streamer, format, err := mp3.Decode(nopCloser{bytes.NewReader(buf)})
	if err != nil {
		return nil, fmt.Errorf("audio: couldn't decode speech buffer: %w", err)
	}
	h := &handle{streamer: streamer}
	h.ctrl = &beep.Ctrl{Streamer: beep.Resample(4, format.SampleRate, o.sampleRate, streamer)}
	speaker.Play(beep.Seq(h.ctrl, beep.Callback(func() {
		// Runs in a separate goroutine so the next playback can be
		// started from the callback without deadlocking the speaker.
		go h.complete(onComplete)
	})))
	return h, nil
}

// PlayLocator streams the resource at the given URL and plays it on the
// music channel at the given volume (0..1].
func (o *Output) PlayLocator(ctx context.Context, locator string, volume float64, onComplete func()) (radio.MusicHandle, error) {
	if err := o.Unlock(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: couldn't create request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio: couldn't fetch %s: %w", locator, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("audio: %s returned status %d", locator, resp.StatusCode)
	}
	streamer, format, err := mp3.Decode(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("audio: couldn't decode stream: %w", err)
	}
	h := &handle{streamer: streamer}
	vol := &effects.Volume{
		Streamer: beep.Resample(4, format.SampleRate, o.sampleRate, streamer),
		Base:     2,
		Volume:   gain(volume),
		Silent:   volume <= 0,
	}
	h.ctrl = &beep.Ctrl{Streamer: vol}
	speaker.Play(beep.Seq(h.ctrl, beep.Callback(func() {
		go h.complete(onComplete)
	})))
	return h, nil
}

// gain converts a linear volume in (0..1] to the logarithmic exponent the
// volume effect expects.
func gain(volume float64) float64 {
	if volume <= 0 {
		return 0
	}
	return math.Log2(volume)
}

// handle controls a single playing stream. Stopping a handle suppresses
// its completion callback.
type handle struct {
	mu       sync.Mutex
	stopped  bool
	ctrl     *beep.Ctrl
	streamer beep.StreamSeekCloser
}

func (h *handle) complete(onComplete func()) {
	h.mu.Lock()
	stopped := h.stopped
	h.stopped = true
	h.mu.Unlock()
	if stopped || onComplete == nil {
		return
	}
	onComplete()
}

func (h *handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

func (h *handle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
}

func (h *handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
	h.streamer.Close()
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

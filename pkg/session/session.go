package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftfm/driftfm/pkg/radio"
)

// ErrBusy is returned when a session start is requested while another one
// is still loading.
var ErrBusy = errors.New("session: already loading")

const (
	defaultCeiling = 30 * time.Second
	defaultChance  = 0.6
	defaultVolume  = 0.4

	placeholderAlbum    = "Unknown Album"
	placeholderDuration = 30 * time.Second

	// fallbackAudioURL plays when a track has no preview locator.
	fallbackAudioURL = "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3"
)

// Orchestrator drives the commentary/track alternation of a DJ session.
// It owns the playback phase, the queue and the two audio-channel handles,
// and it is the only component that mutates them. All callbacks are
// serialized through a single mutex, so transitions never interleave.
type Orchestrator struct {
	content  radio.Content
	metadata radio.Metadata
	output   radio.Output

	debug       bool
	ceiling     time.Duration
	chance      float64
	volume      float64
	fallbackURL string
	interjector Interjector
	onEvent     func(Event)

	mu         sync.Mutex
	phase      Phase
	loading    bool
	sess       *sessionState
	queue      []radio.Track
	current    *radio.Track
	commentary string
	// ended marks that current already emitted its end event; a skip
	// arriving before the follow-up starts must not report it again.
	ended bool

	voice    radio.VoiceHandle
	music    radio.MusicHandle
	timer    *time.Timer
	deadline time.Time
	// remaining ceiling time carried across a pause, re-armed on resume
	remaining time.Duration

	// gen invalidates callbacks from superseded handles and timers: a
	// callback created under an older generation is discarded.
	gen uint64

	ctx     context.Context
	pending []Event
}

// sessionState is created once per StartSession call and superseded, never
// mutated into, by the next one.
type sessionState struct {
	mood    string
	tracks  []radio.Track
	cursor  int
	history []string
}

type Config struct {
	Debug    bool
	Content  radio.Content
	Metadata radio.Metadata
	Output   radio.Output

	// TrackCeiling bounds how long a track may play before it is force
	// ended. Defaults to 30s, matching preview clip length.
	TrackCeiling time.Duration
	// CommentaryChance is the probability of interposing commentary
	// between two tracks. Defaults to 0.6; negative disables commentary
	// entirely.
	CommentaryChance float64
	// Volume is the music channel gain in (0..1]. Defaults to 0.4;
	// negative plays the music channel silent.
	Volume float64
	// FallbackAudioURL overrides the resource played for tracks without
	// a preview locator.
	FallbackAudioURL string
	// Interjector decides whether to interpose commentary. Defaults to
	// a rand-backed implementation; tests inject a fixed one.
	Interjector Interjector
	// OnEvent, when set, receives orchestrator events. It is invoked
	// outside the orchestrator lock, after the transition completed.
	OnEvent func(Event)
}

func New(cfg *Config) (*Orchestrator, error) {
	if cfg.Content == nil {
		return nil, errors.New("session: missing content provider")
	}
	if cfg.Metadata == nil {
		return nil, errors.New("session: missing metadata provider")
	}
	if cfg.Output == nil {
		return nil, errors.New("session: missing audio output")
	}
	ceiling := cfg.TrackCeiling
	if ceiling == 0 {
		ceiling = defaultCeiling
	}
	chance := cfg.CommentaryChance
	if chance == 0 {
		chance = defaultChance
	} else if chance < 0 {
		chance = 0
	}
	volume := cfg.Volume
	if volume == 0 {
		volume = defaultVolume
	} else if volume < 0 {
		volume = 0
	}
	fallback := cfg.FallbackAudioURL
	if fallback == "" {
		fallback = fallbackAudioURL
	}
	interjector := cfg.Interjector
	if interjector == nil {
		interjector = newRandomInterjector()
	}
	return &Orchestrator{
		content:     cfg.Content,
		metadata:    cfg.Metadata,
		output:      cfg.Output,
		debug:       cfg.Debug,
		ceiling:     ceiling,
		chance:      chance,
		volume:      volume,
		fallbackURL: fallback,
		interjector: interjector,
		onEvent:     cfg.OnEvent,
		ctx:         context.Background(),
	}, nil
}

func (o *Orchestrator) debugf(format string, args ...interface{}) {
	if o.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Status is a read-only view of the orchestrator state.
type Status struct {
	Phase      Phase
	Loading    bool
	Mood       string
	Current    *radio.Track
	Queue      []radio.Track
	Commentary string
	History    []string
}

// Snapshot copies the observable state. The returned queue and history are
// detached from the orchestrator's own slices.
func (o *Orchestrator) Snapshot() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{
		Phase:      o.phase,
		Loading:    o.loading,
		Commentary: o.commentary,
		Queue:      append([]radio.Track(nil), o.queue...),
	}
	if o.current != nil {
		track := *o.current
		s.Current = &track
	}
	if o.sess != nil {
		s.Mood = o.sess.mood
		s.History = append([]string(nil), o.sess.history...)
	}
	return s
}

// StartSession generates a playlist and intro for the prompt, enriches the
// tracks and starts intro commentary playback. It blocks until playback of
// the intro has begun or a bootstrap step failed. Re-entry while loading
// returns ErrBusy; the loading flag is cleared on every exit path.
func (o *Orchestrator) StartSession(ctx context.Context, prompt string) error {
	o.mu.Lock()
	if o.loading {
		o.mu.Unlock()
		return ErrBusy
	}
	o.loading = true
	o.phase = PhaseLoading
	o.ctx = ctx
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.loading = false
		o.mu.Unlock()
		o.flush()
	}()

	// The output device must be primed inside the user-initiated call,
	// before any asynchronous work.
	if err := o.output.Unlock(); err != nil {
		return o.fail(fmt.Errorf("session: couldn't unlock audio output: %w", err))
	}

	playlist, err := o.content.GeneratePlaylist(ctx, prompt)
	if err != nil {
		return o.fail(fmt.Errorf("session: couldn't generate playlist: %w", err))
	}
	tracks := o.enrich(ctx, playlist.Tracks)

	o.mu.Lock()
	o.sess = &sessionState{
		mood:   prompt,
		tracks: tracks,
		cursor: -1,
	}
	o.queue = append([]radio.Track(nil), tracks...)
	o.mu.Unlock()

	speech, err := o.content.GenerateSpeech(ctx, playlist.Intro)
	if err != nil {
		return o.fail(fmt.Errorf("session: couldn't synthesize intro: %w", err))
	}

	o.mu.Lock()
	o.emitLocked(Event{Type: EventSessionStarted})
	o.playCommentaryLocked(speech, playlist.Intro)
	o.mu.Unlock()
	return nil
}

// fail aborts a session bootstrap: the error is surfaced and the phase
// returns to idle.
func (o *Orchestrator) fail(err error) error {
	o.mu.Lock()
	o.teardownLocked()
	o.phase = PhaseIdle
	o.current = nil
	o.commentary = ""
	o.emitLocked(Event{Type: EventSessionError, Err: err})
	o.mu.Unlock()
	return err
}

// enrich resolves metadata for each generated track. Lookup misses and
// errors degrade to placeholder metadata, never failing the playlist.
func (o *Orchestrator) enrich(ctx context.Context, tracks []radio.Track) []radio.Track {
	out := make([]radio.Track, 0, len(tracks))
	for _, t := range tracks {
		t.ID = ulid.Make().String()
		t.Album = placeholderAlbum
		t.Duration = placeholderDuration
		info, err := o.metadata.Resolve(ctx, t.Title+" "+t.Artist)
		if err != nil {
			o.debugf("session: metadata lookup failed for %q: %v", t.Title, err)
		} else if info != nil {
			if info.Album != "" {
				t.Album = info.Album
			}
			t.CoverURL = info.CoverURL
			t.AudioURL = info.PreviewURL
			if info.Duration > 0 {
				t.Duration = info.Duration
			}
		}
		out = append(out, t)
	}
	return out
}

// playCommentaryLocked supersedes any active playback with a spoken clip.
// Voice buffers are fully decoded up front, so natural completion is
// reliable and no ceiling timer is used.
func (o *Orchestrator) playCommentaryLocked(speech []byte, script string) {
	o.teardownLocked()
	o.phase = PhaseCommentary
	o.commentary = script
	gen := o.gen
	voice, err := o.output.PlayBuffer(speech, func() {
		o.onVoiceDone(gen)
	})
	if err != nil {
		// Playback failures act like completions so the sequence
		// never stalls.
		log.Printf("session: couldn't play commentary: %v\n", err)
		if len(o.queue) > 0 {
			o.advanceLocked()
			return
		}
		o.phase = PhaseIdle
		o.commentary = ""
		o.emitLocked(Event{Type: EventSessionEnded})
		return
	}
	o.voice = voice
	o.emitLocked(Event{Type: EventCommentaryStarted})
}

func (o *Orchestrator) onVoiceDone(gen uint64) {
	o.mu.Lock()
	if gen != o.gen || o.phase != PhaseCommentary {
		o.mu.Unlock()
		return
	}
	if len(o.queue) == 0 {
		o.teardownLocked()
		o.phase = PhaseIdle
		o.current = nil
		o.commentary = ""
		o.emitLocked(Event{Type: EventSessionEnded})
		o.mu.Unlock()
		o.flush()
		return
	}
	o.advanceLocked()
	o.mu.Unlock()
	o.flush()
}

// advanceLocked pops the queue front and starts music playback for it.
// Calling it with an empty queue is a no-op; callers guard.
func (o *Orchestrator) advanceLocked() {
	if len(o.queue) == 0 {
		return
	}
	o.teardownLocked()
	track := o.queue[0]
	o.queue = o.queue[1:]
	o.commentary = ""
	o.current = &track
	o.ended = false
	o.sess.cursor++
	o.sess.history = append(o.sess.history, track.ID)
	o.phase = PhaseTrack

	locator := track.AudioURL
	if locator == "" {
		locator = o.fallbackURL
	}
	gen := o.gen
	music, err := o.output.PlayLocator(o.ctx, locator, o.volume, func() {
		o.onTrackDone(gen, track)
	})
	if err != nil {
		log.Printf("session: couldn't play %q: %v\n", track.Title, err)
		// Treated as an immediate completion to avoid stalling.
		go o.decide(gen, track)
		return
	}
	o.music = music
	o.deadline = time.Now().Add(o.ceiling)
	o.timer = time.AfterFunc(o.ceiling, func() {
		o.onCeiling(gen, track)
	})
	o.emitLocked(Event{Type: EventTrackStarted, Track: &track})
}

// onTrackDone handles natural completion of the music channel. It cancels
// the ceiling timer and invalidates the generation so a late timer cannot
// end the same track twice.
func (o *Orchestrator) onTrackDone(gen uint64, track radio.Track) {
	o.mu.Lock()
	if gen != o.gen || o.phase != PhaseTrack {
		o.mu.Unlock()
		return
	}
	o.gen++
	o.stopTimerLocked()
	o.ended = true
	next := o.gen
	o.emitLocked(Event{Type: EventTrackEnded, Track: &track})
	o.mu.Unlock()
	o.flush()
	o.decide(next, track)
}

// onCeiling force-ends a track that outlived the ceiling timer. The music
// channel is paused, not stopped, so a natural completion can no longer
// fire for it; the generation bump discards it if it already has.
func (o *Orchestrator) onCeiling(gen uint64, track radio.Track) {
	o.mu.Lock()
	if gen != o.gen || o.phase != PhaseTrack {
		o.mu.Unlock()
		return
	}
	o.gen++
	o.timer = nil
	if o.music != nil {
		o.music.Pause()
	}
	o.ended = true
	next := o.gen
	o.emitLocked(Event{Type: EventTrackEnded, Track: &track})
	o.mu.Unlock()
	o.flush()
	o.decide(next, track)
}

// decide is the track-end decision: continue with commentary, continue
// with the next track, or end the session when the queue is exhausted.
// Commentary generation happens outside the lock; a stale generation when
// it completes means the session has moved on and the result is discarded.
func (o *Orchestrator) decide(gen uint64, finished radio.Track) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.resumeIfPausedLocked()
	if len(o.queue) == 0 {
		o.teardownLocked()
		o.phase = PhaseIdle
		o.current = nil
		o.commentary = ""
		o.emitLocked(Event{Type: EventSessionEnded})
		o.mu.Unlock()
		o.flush()
		return
	}
	next := o.queue[0]
	mood := o.sess.mood
	ctx := o.ctx
	interject := o.interjector.ShouldInterject(o.chance)
	if !interject {
		o.advanceLocked()
		o.mu.Unlock()
		o.flush()
		return
	}
	o.mu.Unlock()

	script, err := o.content.GenerateInterlude(ctx, finished, next, mood)
	var speech []byte
	if err == nil {
		speech, err = o.content.GenerateSpeech(ctx, script)
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.resumeIfPausedLocked()
	if err != nil {
		// Commentary failure must never stall playback.
		o.debugf("session: commentary generation failed, advancing: %v", err)
		o.advanceLocked()
	} else {
		o.playCommentaryLocked(speech, script)
	}
	o.mu.Unlock()
	o.flush()
}

// resumeIfPausedLocked lifts a user pause that landed in the window between
// a track ending and its follow-up starting. Whatever plays next must not
// start over a suspended device.
func (o *Orchestrator) resumeIfPausedLocked() {
	if o.phase != PhasePaused {
		return
	}
	if err := o.output.Resume(); err != nil {
		o.debugf("session: couldn't resume output: %v", err)
	}
}

// Skip tears down whatever is playing, commentary included, and advances
// to the next track. Skipping never triggers commentary.
func (o *Orchestrator) Skip() {
	o.mu.Lock()
	switch o.phase {
	case PhaseCommentary, PhaseTrack, PhasePaused:
	default:
		o.mu.Unlock()
		return
	}
	o.resumeIfPausedLocked()
	// Only a live track is reported as skipped. From the moment its end
	// event fires through the following interlude, current still points
	// at the finished track and must not be reported again.
	if o.current != nil && o.phase != PhaseCommentary && !o.ended {
		o.emitLocked(Event{Type: EventTrackSkipped, Track: o.current})
	}
	if len(o.queue) == 0 {
		o.teardownLocked()
		o.phase = PhaseIdle
		o.current = nil
		o.commentary = ""
		o.emitLocked(Event{Type: EventSessionEnded})
		o.mu.Unlock()
		o.flush()
		return
	}
	o.advanceLocked()
	o.mu.Unlock()
	o.flush()
}

// TogglePlay pauses or resumes the music channel. It is a no-op outside
// the playing-track and paused phases; commentary is not pausable.
// Pausing stops the ceiling timer and records its remainder; resuming
// re-arms the timer with that remainder and continues the same stream
// from its paused position.
func (o *Orchestrator) TogglePlay() {
	o.mu.Lock()
	switch o.phase {
	case PhaseTrack:
		if o.music != nil {
			o.music.Pause()
		}
		if o.timer != nil {
			o.timer.Stop()
			o.timer = nil
			o.remaining = time.Until(o.deadline)
			if o.remaining <= 0 {
				o.remaining = time.Second
			}
		}
		if err := o.output.Suspend(); err != nil {
			o.debugf("session: couldn't suspend output: %v", err)
		}
		o.phase = PhasePaused
		o.emitLocked(Event{Type: EventStateChanged, Track: o.current})
	case PhasePaused:
		if err := o.output.Resume(); err != nil {
			o.debugf("session: couldn't resume output: %v", err)
		}
		if o.music != nil {
			o.music.Resume()
		}
		if o.current != nil && o.remaining > 0 {
			gen := o.gen
			track := *o.current
			o.deadline = time.Now().Add(o.remaining)
			o.timer = time.AfterFunc(o.remaining, func() {
				o.onCeiling(gen, track)
			})
			o.remaining = 0
		}
		o.phase = PhaseTrack
		o.emitLocked(Event{Type: EventStateChanged, Track: o.current})
	default:
	}
	o.mu.Unlock()
	o.flush()
}

// Stop tears down all playback and returns the orchestrator to idle.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.teardownLocked()
	o.phase = PhaseIdle
	o.current = nil
	o.commentary = ""
	o.mu.Unlock()
	o.flush()
}

// teardownLocked releases both channel handles and the pending timer and
// invalidates their callbacks. It runs at the top of every transition that
// supersedes active playback.
func (o *Orchestrator) teardownLocked() {
	o.gen++
	if o.voice != nil {
		o.voice.Stop()
		o.voice = nil
	}
	if o.music != nil {
		o.music.Stop()
		o.music = nil
	}
	o.stopTimerLocked()
	o.remaining = 0
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) emitLocked(e Event) {
	if o.onEvent == nil {
		return
	}
	o.pending = append(o.pending, e)
}

// flush delivers pending events outside the lock, preserving the order in
// which their transitions happened.
func (o *Orchestrator) flush() {
	o.mu.Lock()
	events := o.pending
	o.pending = nil
	o.mu.Unlock()
	for _, e := range events {
		o.onEvent(e)
	}
}

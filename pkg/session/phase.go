package session

import "github.com/driftfm/driftfm/pkg/radio"

// Phase is the single current value of the playback state machine.
type Phase int

const (
	// PhaseIdle means no session is playing.
	PhaseIdle Phase = iota
	// PhaseLoading means a session is being generated.
	PhaseLoading
	// PhaseCommentary means a spoken clip is playing on the voice channel.
	PhaseCommentary
	// PhaseTrack means a track is playing on the music channel.
	PhaseTrack
	// PhasePaused means the current track is paused.
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading_session"
	case PhaseCommentary:
		return "playing_commentary"
	case PhaseTrack:
		return "playing_track"
	case PhasePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// EventType identifies an orchestrator event.
type EventType int

const (
	EventSessionStarted EventType = iota
	EventCommentaryStarted
	EventTrackStarted
	EventTrackEnded
	EventTrackSkipped
	EventStateChanged
	EventSessionEnded
	EventSessionError
)

func (e EventType) String() string {
	switch e {
	case EventSessionStarted:
		return "session_started"
	case EventCommentaryStarted:
		return "commentary_started"
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventSessionEnded:
		return "session_ended"
	case EventSessionError:
		return "session_error"
	default:
		return "unknown"
	}
}

// Event is delivered to the OnEvent hook after the transition that caused
// it has completed.
type Event struct {
	Type  EventType
	Track *radio.Track
	Err   error
}

// Package playback drives playback sessions: a controller state machine
// that consumes streaming decisions, a typed event stream for UI layers,
// and a reporter that keeps server watch state current.
package playback

import "github.com/flixor/flixor/internal/streaming"

// State is a playback controller lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateBuffering
	StateSeeking
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateSeeking:
		return "seeking"
	case StateErrored:
		return "error"
	default:
		return "unknown"
	}
}

// canTransition reports whether the controller may move between two
// states. Errored is reachable from anywhere and terminal; Loading is
// re-enterable from the active states for the fallback reload.
func canTransition(from, to State) bool {
	if to == StateErrored {
		return from != StateErrored
	}
	switch from {
	case StateUninitialized:
		return to == StateLoading
	case StateLoading:
		return to == StateReady
	case StateReady:
		return to == StatePlaying || to == StateLoading
	case StatePlaying:
		return to == StatePaused || to == StateBuffering || to == StateSeeking || to == StateLoading
	case StatePaused:
		return to == StatePlaying || to == StateSeeking || to == StateLoading
	case StateBuffering:
		return to == StatePlaying || to == StateSeeking || to == StateLoading
	case StateSeeking:
		return to == StateReady
	default:
		return false
	}
}

// EventType classifies controller events.
type EventType int

const (
	// EventStateChanged reports a state machine transition.
	EventStateChanged EventType = iota
	// EventDecisionMade carries a fresh streaming decision.
	EventDecisionMade
	// EventFallbackTriggered marks the forced-transcode reload.
	EventFallbackTriggered
	// EventError carries the terminal playback error.
	EventError
)

func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventDecisionMade:
		return "decision_made"
	case EventFallbackTriggered:
		return "fallback_triggered"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one controller observation. The stream is buffered and sends
// never block: a slow consumer loses events rather than stalling playback.
type Event struct {
	Type     EventType
	State    State
	Decision *streaming.Decision
	Err      error
}

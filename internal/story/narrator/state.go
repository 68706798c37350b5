package narrator

import "storyvoice/internal/story/playback"

// DefaultVolume is restored on unmute when no earlier volume is known.
const DefaultVolume = 0.7

// State is the read-only view of narration exposed to the UI.
type State struct {
	IsPlaying bool    `json:"isPlaying"`
	IsLoading bool    `json:"isLoading"`
	IsPaused  bool    `json:"isPaused"`
	Error     string  `json:"error,omitempty"`
	Volume    float64 `json:"volume"`
	IsMuted   bool    `json:"isMuted"`
}

// EventKind enumerates what can happen to narration.
type EventKind int

const (
	EventLoading EventKind = iota
	EventQueued
	EventStarted
	EventEnded
	EventFailed
	EventStopped
	EventPaused
	EventResumed
	EventVolume
	EventMute
)

func (k EventKind) String() string {
	switch k {
	case EventLoading:
		return "loading"
	case EventQueued:
		return "queued"
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventFailed:
		return "failed"
	case EventStopped:
		return "stopped"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventVolume:
		return "volume"
	case EventMute:
		return "mute"
	default:
		return "unknown"
	}
}

// Event is one message fed to the reducer. Gen is the stop generation the
// event belongs to; playback events from an older generation are dropped.
type Event struct {
	Kind   EventKind
	Gen    uint64
	Err    error
	Volume float64
}

type model struct {
	State
	gen uint64
	// unmuted is the volume restored by the next unmute.
	unmuted float64
}

func (e Event) fromPlayback() bool {
	switch e.Kind {
	case EventStarted, EventEnded, EventFailed, EventQueued:
		return true
	}
	return false
}

// reduce is the only place narration state changes.
func reduce(m model, ev Event) model {
	if ev.fromPlayback() && ev.Gen != m.gen {
		return m
	}

	switch ev.Kind {
	case EventLoading:
		m.gen = ev.Gen
		m.IsLoading = true
		m.Error = ""
	case EventQueued:
		// still loading until the queue starts the item
	case EventStarted:
		m.IsPlaying = true
		m.IsLoading = false
		m.IsPaused = false
		m.Error = ""
	case EventEnded:
		m.IsPlaying = false
		m.IsPaused = false
	case EventFailed:
		m.IsLoading = false
		m.IsPlaying = false
		m.IsPaused = false
		if ev.Err != nil {
			m.Error = ev.Err.Error()
		}
	case EventStopped:
		m.gen = ev.Gen
		m.IsPlaying = false
		m.IsLoading = false
		m.IsPaused = false
	case EventPaused:
		m.IsPlaying = false
		m.IsPaused = true
	case EventResumed:
		m.IsPlaying = true
		m.IsPaused = false
	case EventVolume:
		m.Volume = playback.ClampVolume(ev.Volume)
		m.IsMuted = m.Volume == 0
	case EventMute:
		if m.Volume > 0 {
			m.unmuted = m.Volume
			m.Volume = 0
			m.IsMuted = true
		} else {
			m.Volume = m.unmuted
			if m.Volume == 0 {
				m.Volume = DefaultVolume
			}
			m.IsMuted = false
		}
	}
	return m
}

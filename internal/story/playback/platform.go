package playback

import "time"

// EngineKind identifies a playback strategy.
type EngineKind int

const (
	EngineNone EngineKind = iota
	EngineDeclarative
	EngineGraph
)

func (k EngineKind) String() string {
	switch k {
	case EngineDeclarative:
		return "declarative"
	case EngineGraph:
		return "graph"
	default:
		return "none"
	}
}

// MediaEventKind is the lifecycle signal of a media element.
type MediaEventKind int

const (
	MediaLoadStart MediaEventKind = iota
	MediaCanPlay
	MediaEnded
	MediaError
)

// MediaEvent is delivered on MediaElement.Events.
type MediaEvent struct {
	Kind MediaEventKind
	Code MediaErrorCode
	Err  error
}

// MediaElement is a playable media resource loaded from a blob reference.
// Load reports MediaLoadStart, then MediaCanPlay or MediaError. After Play
// the element reports MediaEnded or MediaError.
type MediaElement interface {
	Load(src string) error
	Play() error
	Pause() error
	Rewind() error
	SetVolume(v float64)
	Paused() bool
	Events() <-chan MediaEvent
	Close() error
}

// MediaPlatform creates media elements.
type MediaPlatform interface {
	NewElement() (MediaElement, error)
}

// PCM is decoded audio owned by an AudioContext.
type PCM interface {
	Duration() time.Duration
}

// GraphNode is a started source -> gain -> output chain.
type GraphNode interface {
	SetGain(v float64)
	Disconnect()
}

// AudioContext owns decoding and output for a single graph attempt.
// onEnded passed to Start fires once on natural completion and never after
// Disconnect.
type AudioContext interface {
	Decode(buf *Buffer) (PCM, error)
	Start(pcm PCM, gain float64, onEnded func()) (GraphNode, error)
	Close() error
}

// GraphPlatform creates audio contexts.
type GraphPlatform interface {
	NewContext() (AudioContext, error)
}

// Callbacks observed by the caller of one playback attempt. OnStart precedes
// OnEnd/OnError; OnEnd and OnError are exclusive and fire at most once.
// OnStop fires when the attempt is halted by Stop.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
	OnStop  func()
}

// Options for one playback attempt.
type Options struct {
	// Volume is applied before playback starts; nil keeps the engine default.
	Volume     *float64
	ForceGraph bool
	Callbacks
}

// Volume returns a pointer suitable for Options.Volume.
func Volume(v float64) *float64 {
	return &v
}

// ClampVolume bounds v to [0,1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package playback

import (
	"errors"
	"sync"
)

type handleState int

const (
	stateLoading handleState = iota
	stateReady
	statePlaying
	statePaused
	stateEnded
	stateFailed
	stateStopped
)

func (s handleState) terminal() bool {
	return s == stateEnded || s == stateFailed || s == stateStopped
}

// voice is the engine-level resource a handle currently owns.
type voice interface {
	engine() EngineKind
	play() error
	pause() error
	resume() error
	setVolume(v float64)
	// stop halts output and releases every resource before returning.
	// No notifications are delivered afterwards.
	stop()
}

// Handle owns one playback attempt. Engine events reach the caller through
// the handle, which guarantees a single OnStart and at most one of
// OnEnd/OnError/OnStop, no matter how many engines were tried.
type Handle struct {
	id uint64
	cb Callbacks

	// fallback is run when the declarative voice fails after it was attached.
	fallback func(cause error)

	mu      sync.Mutex
	state   handleState
	voice   voice
	volume  float64
	started bool
	err     error
	done    chan struct{}
}

func newHandle(id uint64, opts Options) *Handle {
	volume := 1.0
	if opts.Volume != nil {
		volume = ClampVolume(*opts.Volume)
	}
	return &Handle{
		id:     id,
		cb:     opts.Callbacks,
		state:  stateLoading,
		volume: volume,
		done:   make(chan struct{}),
	}
}

// ID identifies the attempt within its orchestrator.
func (h *Handle) ID() uint64 {
	return h.id
}

// Engine reports which engine currently backs the handle.
func (h *Handle) Engine() EngineKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.voice == nil {
		return EngineNone
	}
	return h.voice.engine()
}

// Done is closed once the attempt ended, failed or was stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the terminal error, nil after a natural end.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Volume returns the volume last applied to the handle.
func (h *Handle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// IsPlaying reports whether the handle is audible.
func (h *Handle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == statePlaying
}

// IsPaused reports whether playback is paused.
func (h *Handle) IsPaused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == statePaused
}

// Play starts a ready handle or resumes a paused one. Graph handles are
// already playing once returned, so Play is a no-op for them.
func (h *Handle) Play() error {
	h.mu.Lock()
	switch h.state {
	case stateReady:
		v := h.voice
		if err := v.play(); err != nil {
			h.mu.Unlock()
			h.voiceFailed(v, &PlaybackError{Engine: v.engine(), Code: MediaErrAborted, Err: err})
			return h.Err()
		}
		h.state = statePlaying
	case statePaused:
		if err := h.voice.resume(); err != nil {
			h.mu.Unlock()
			return err
		}
		h.state = statePlaying
	case stateLoading:
		h.mu.Unlock()
		return errors.New("playback is still loading")
	case stateFailed:
		err := h.err
		h.mu.Unlock()
		return err
	case stateStopped:
		h.mu.Unlock()
		return ErrStopped
	}
	h.mu.Unlock()
	return nil
}

// Pause suspends playback. Graph handles return ErrNotPausable.
func (h *Handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != statePlaying {
		return nil
	}
	if err := h.voice.pause(); err != nil {
		return err
	}
	h.state = statePaused
	return nil
}

// Resume continues a paused handle.
func (h *Handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != statePaused {
		return nil
	}
	if err := h.voice.resume(); err != nil {
		return err
	}
	h.state = statePlaying
	return nil
}

// SetVolume clamps v and applies it to the live engine, if any.
func (h *Handle) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = ClampVolume(v)
	if h.voice != nil {
		h.voice.setVolume(h.volume)
	}
}

// Stop halts the attempt and releases its resources before returning.
// It is safe to call repeatedly and after the attempt finished.
func (h *Handle) Stop() {
	h.mu.Lock()
	if h.state.terminal() {
		h.mu.Unlock()
		return
	}
	v := h.voice
	h.voice = nil
	h.state = stateStopped
	h.err = ErrStopped
	close(h.done)
	h.mu.Unlock()

	if v != nil {
		v.stop()
	}
	if h.cb.OnStop != nil {
		h.cb.OnStop()
	}
}

// attach makes v the live voice. It fails when the handle was stopped in
// the meantime; the caller then owns v and must stop it.
func (h *Handle) attach(v voice, state handleState) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.terminal() {
		return false
	}
	h.voice = v
	h.state = state
	v.setVolume(h.volume)
	return true
}

// detach forgets v without notifying the caller.
func (h *Handle) detach(v voice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.voice == v {
		h.voice = nil
		if !h.state.terminal() {
			h.state = stateLoading
		}
	}
}

func (h *Handle) owns(v voice) bool {
	return !h.state.terminal() && (h.voice == nil || h.voice == v)
}

func (h *Handle) voiceStarted(v voice) {
	h.mu.Lock()
	if !h.owns(v) || h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	if h.cb.OnStart != nil {
		h.cb.OnStart()
	}
}

func (h *Handle) voiceEnded(v voice) {
	h.mu.Lock()
	if h.state.terminal() || h.voice != v {
		h.mu.Unlock()
		return
	}
	h.voice = nil
	h.state = stateEnded
	needStart := !h.started
	h.started = true
	close(h.done)
	h.mu.Unlock()

	if needStart && h.cb.OnStart != nil {
		h.cb.OnStart()
	}
	if h.cb.OnEnd != nil {
		h.cb.OnEnd()
	}
}

func (h *Handle) voiceFailed(v voice, err error) {
	h.mu.Lock()
	if h.state.terminal() || h.voice != v {
		h.mu.Unlock()
		return
	}
	h.voice = nil
	h.state = stateLoading
	fallback := h.fallback
	h.mu.Unlock()

	// the handle no longer owns v, so nothing else will release it
	v.stop()

	if fallback != nil && v.engine() == EngineDeclarative {
		fallback(err)
		return
	}
	h.fail(err)
}

// fail settles the attempt with err and reports it once.
func (h *Handle) fail(err error) {
	h.mu.Lock()
	if h.state.terminal() {
		h.mu.Unlock()
		return
	}
	v := h.voice
	h.voice = nil
	h.state = stateFailed
	h.err = err
	close(h.done)
	h.mu.Unlock()

	if v != nil {
		v.stop()
	}
	if h.cb.OnError != nil {
		h.cb.OnError(err)
	}
}

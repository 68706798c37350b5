package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// OrchestratorConfig wires the platforms behind both engines. A nil Media
// platform means only the graph engine is available.
type OrchestratorConfig struct {
	Media         MediaPlatform
	Graph         GraphPlatform
	Blobs         *BlobStore
	LoadTimeout   time.Duration
	DecodeTimeout time.Duration
}

// Orchestrator tries the declarative engine first and falls back to the
// graph engine on failure. At most one handle is live at a time.
type Orchestrator struct {
	declarative *Declarative
	graph       *Graph

	mu      sync.Mutex
	current *Handle
	nextID  uint64
}

// NewOrchestrator creates an orchestrator from cfg.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{}
	if cfg.Media != nil && cfg.Blobs != nil {
		o.declarative = NewDeclarative(cfg.Media, cfg.Blobs, cfg.LoadTimeout)
	}
	if cfg.Graph != nil {
		o.graph = NewGraph(cfg.Graph, cfg.DecodeTimeout)
	}
	return o
}

// Play normalizes audio, stops the previous attempt and starts a new one.
//
// A declarative handle is returned ready once the element can play and the
// caller starts it with Handle.Play. A graph handle is already playing.
// Terminal failures are returned and also reported through OnError.
func (o *Orchestrator) Play(ctx context.Context, audio GeneratedAudio, opts Options) (*Handle, error) {
	buf, err := Normalize(audio)
	if err != nil {
		logrus.WithError(err).Error("Failed to normalize audio payload")
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return nil, err
	}

	o.mu.Lock()
	prev := o.current
	o.nextID++
	h := newHandle(o.nextID, opts)
	o.current = h
	o.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	if o.declarative == nil && o.graph == nil {
		h.fail(ErrNoEngine)
		return nil, ErrNoEngine
	}

	var declErr error
	if o.declarative != nil && !opts.ForceGraph {
		if o.graph != nil {
			h.fallback = o.fallback(h, buf)
		}

		v, err := o.declarative.load(ctx, buf, h)
		if err == nil {
			if h.attach(v, stateReady) {
				logrus.WithField("handle", h.ID()).Debug("Declarative playback ready")
				return h, nil
			}
			v.stop()
			return nil, ErrStopped
		}
		if errors.Is(err, ErrStopped) {
			return nil, err
		}
		if ctx.Err() != nil || o.graph == nil {
			h.fail(err)
			return nil, err
		}

		declErr = err
		logrus.WithError(err).Warn("Declarative playback failed, falling back to graph")
	}

	if err := o.graph.start(ctx, buf, h); err != nil {
		if errors.Is(err, ErrStopped) {
			return nil, err
		}
		final := err
		if declErr != nil {
			final = &FallbackError{Declarative: declErr, Graph: err}
		}
		logrus.WithError(final).Error("Audio playback failed")
		h.fail(final)
		return nil, final
	}

	logrus.WithField("handle", h.ID()).Debug("Graph playback started")
	return h, nil
}

// fallback builds the recovery path for a declarative voice that fails after
// it was handed to the caller.
func (o *Orchestrator) fallback(h *Handle, buf *Buffer) func(error) {
	return func(cause error) {
		logrus.WithError(cause).Warn("Declarative playback failed, falling back to graph")
		if err := o.graph.start(context.Background(), buf, h); err != nil {
			if errors.Is(err, ErrStopped) {
				return
			}
			final := &FallbackError{Declarative: cause, Graph: err}
			logrus.WithError(final).Error("Audio playback failed")
			h.fail(final)
		}
	}
}

// Stop halts the live handle, if any. Safe to call when idle.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	h := o.current
	o.current = nil
	o.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

// Current returns the most recent handle, which may already be finished.
func (o *Orchestrator) Current() *Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Graph decodes buffers fully and plays them through a source -> gain ->
// output chain owned by a fresh audio context per attempt.
type Graph struct {
	platform      GraphPlatform
	decodeTimeout time.Duration
}

// NewGraph creates the graph engine. A zero decodeTimeout waits indefinitely.
func NewGraph(platform GraphPlatform, decodeTimeout time.Duration) *Graph {
	return &Graph{
		platform:      platform,
		decodeTimeout: decodeTimeout,
	}
}

type graphVoice struct {
	h    *Handle
	actx AudioContext

	mu      sync.Mutex
	node    GraphNode
	halted  bool
	release sync.Once
}

// start decodes buf, attaches a graph voice to h and starts it. On error no
// graph resource remains open.
func (g *Graph) start(ctx context.Context, buf *Buffer, h *Handle) error {
	actx, err := g.platform.NewContext()
	if err != nil {
		return &PlaybackError{Engine: EngineGraph, Err: err}
	}
	v := &graphVoice{h: h, actx: actx}

	pcm, err := g.decode(ctx, actx, buf)
	if err != nil {
		v.free()
		return err
	}

	logrus.WithFields(logrus.Fields{
		"handle":   h.ID(),
		"duration": pcm.Duration(),
	}).Debug("Audio decoded for graph playback")

	if !h.attach(v, statePlaying) {
		v.free()
		return ErrStopped
	}
	h.voiceStarted(v)

	node, err := actx.Start(pcm, h.Volume(), v.ended)
	if err != nil {
		h.detach(v)
		v.free()
		return &PlaybackError{Engine: EngineGraph, Err: err}
	}

	v.mu.Lock()
	if v.halted {
		v.mu.Unlock()
		node.Disconnect()
		return nil
	}
	v.node = node
	v.mu.Unlock()
	return nil
}

func (g *Graph) decode(ctx context.Context, actx AudioContext, buf *Buffer) (PCM, error) {
	type result struct {
		pcm PCM
		err error
	}
	done := make(chan result, 1)
	go func() {
		pcm, err := actx.Decode(buf)
		done <- result{pcm: pcm, err: err}
	}()

	var timeout <-chan time.Time
	if g.decodeTimeout > 0 {
		timer := time.NewTimer(g.decodeTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-done:
		if r.err != nil {
			var decodeErr *DecodeError
			if errors.As(r.err, &decodeErr) {
				return nil, r.err
			}
			return nil, &DecodeError{Stage: StageAudio, Err: r.err}
		}
		return r.pcm, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, &TimeoutError{Stage: "graph decode", After: g.decodeTimeout}
	}
}

func (v *graphVoice) ended() {
	v.mu.Lock()
	halted := v.halted
	v.mu.Unlock()

	v.free()
	if !halted {
		v.h.voiceEnded(v)
	}
}

func (v *graphVoice) free() {
	v.release.Do(func() {
		if err := v.actx.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close audio context")
			return
		}
		logrus.Debug("Audio context closed")
	})
}

func (v *graphVoice) engine() EngineKind { return EngineGraph }

func (v *graphVoice) play() error { return nil }

func (v *graphVoice) pause() error { return ErrNotPausable }

func (v *graphVoice) resume() error { return ErrNotPausable }

func (v *graphVoice) setVolume(vol float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.node != nil {
		v.node.SetGain(vol)
	}
}

func (v *graphVoice) stop() {
	v.mu.Lock()
	v.halted = true
	node := v.node
	v.node = nil
	v.mu.Unlock()

	if node != nil {
		node.Disconnect()
	}
	v.free()
}

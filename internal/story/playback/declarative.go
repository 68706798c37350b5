package playback

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Declarative plays buffers through media elements loaded from blob references.
type Declarative struct {
	platform    MediaPlatform
	blobs       *BlobStore
	loadTimeout time.Duration
}

// NewDeclarative creates the declarative engine. A zero loadTimeout waits
// for the element indefinitely.
func NewDeclarative(platform MediaPlatform, blobs *BlobStore, loadTimeout time.Duration) *Declarative {
	return &Declarative{
		platform:    platform,
		blobs:       blobs,
		loadTimeout: loadTimeout,
	}
}

type declarativeVoice struct {
	h     *Handle
	el    MediaElement
	blobs *BlobStore
	ref   string

	// ready receives nil on the first MediaCanPlay, or the load error.
	ready chan error

	mu      sync.Mutex
	loaded  bool
	halted  bool
	release sync.Once
}

// load prepares an element for buf and waits until it can play. The voice is
// returned ready but silent; the handle starts it.
func (d *Declarative) load(ctx context.Context, buf *Buffer, h *Handle) (*declarativeVoice, error) {
	ref, err := d.blobs.Create(buf)
	if err != nil {
		return nil, &PlaybackError{Engine: EngineDeclarative, Code: MediaErrAborted, Err: err}
	}

	el, err := d.platform.NewElement()
	if err != nil {
		if rerr := d.blobs.Revoke(ref); rerr != nil {
			logrus.WithError(rerr).Warn("Failed to revoke blob")
		}
		return nil, &PlaybackError{Engine: EngineDeclarative, Code: MediaErrSrcNotSupported, Err: err}
	}
	el.SetVolume(h.Volume())

	v := &declarativeVoice{
		h:     h,
		el:    el,
		blobs: d.blobs,
		ref:   ref,
		ready: make(chan error, 1),
	}
	go v.pump()

	logrus.WithFields(logrus.Fields{
		"handle":    h.ID(),
		"ref":       ref,
		"mime_type": buf.MimeType,
	}).Debug("Loading audio element")

	if err := el.Load(ref); err != nil {
		v.stop()
		return nil, &PlaybackError{Engine: EngineDeclarative, Code: MediaErrSrcNotSupported, Err: err}
	}

	var timeout <-chan time.Time
	if d.loadTimeout > 0 {
		timer := time.NewTimer(d.loadTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-v.ready:
		if err != nil {
			return nil, err
		}
		return v, nil
	case <-h.Done():
		v.stop()
		return nil, ErrStopped
	case <-ctx.Done():
		v.stop()
		return nil, ctx.Err()
	case <-timeout:
		v.stop()
		return nil, &TimeoutError{Stage: "declarative load", After: d.loadTimeout}
	}
}

func (v *declarativeVoice) pump() {
	for ev := range v.el.Events() {
		switch ev.Kind {
		case MediaLoadStart:
			logrus.WithField("ref", v.ref).Debug("Audio load started")
			if !v.isHalted() {
				v.h.voiceStarted(v)
			}

		case MediaCanPlay:
			if v.markLoaded() {
				logrus.WithField("ref", v.ref).Debug("Audio can play")
				v.ready <- nil
			}

		case MediaEnded:
			logrus.WithField("ref", v.ref).Debug("Audio ended")
			v.free()
			if !v.isHalted() {
				v.h.voiceEnded(v)
			}
			return

		case MediaError:
			err := &PlaybackError{Engine: EngineDeclarative, Code: ev.Code, Err: ev.Err}
			logrus.WithError(err).WithField("ref", v.ref).Debug("Audio element error")
			v.free()
			if v.markLoaded() {
				v.ready <- err
				return
			}
			if !v.isHalted() {
				v.h.voiceFailed(v, err)
			}
			return
		}
	}
}

// markLoaded reports whether this call settled the load.
func (v *declarativeVoice) markLoaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.loaded {
		return false
	}
	v.loaded = true
	return true
}

func (v *declarativeVoice) isHalted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.halted
}

func (v *declarativeVoice) free() {
	v.release.Do(func() {
		if err := v.el.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close audio element")
		}
		if err := v.blobs.Revoke(v.ref); err != nil {
			logrus.WithError(err).Warn("Failed to revoke blob")
		}
	})
}

func (v *declarativeVoice) engine() EngineKind { return EngineDeclarative }

func (v *declarativeVoice) play() error {
	return v.el.Play()
}

func (v *declarativeVoice) pause() error {
	return v.el.Pause()
}

func (v *declarativeVoice) resume() error {
	return v.el.Play()
}

func (v *declarativeVoice) setVolume(vol float64) {
	v.el.SetVolume(vol)
}

func (v *declarativeVoice) stop() {
	v.mu.Lock()
	v.halted = true
	v.mu.Unlock()

	if err := v.el.Pause(); err != nil {
		logrus.WithError(err).Debug("Failed to pause audio element")
	}
	if err := v.el.Rewind(); err != nil {
		logrus.WithError(err).Debug("Failed to rewind audio element")
	}
	v.free()
}

package playback

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotPausable = errors.New("playback engine cannot pause")
	ErrStopped     = errors.New("playback stopped")
	ErrNoEngine    = errors.New("no playback engine available")
	ErrClosed      = errors.New("player closed")
)

// Decode stages.
const (
	StageBase64 = "base64"
	StageAudio  = "audio"
)

// DecodeError reports malformed base64 or audio bytes no codec accepts.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MediaErrorCode mirrors the error codes reported by a media element.
type MediaErrorCode int

const (
	MediaErrUnknown MediaErrorCode = iota
	MediaErrAborted
	MediaErrNetwork
	MediaErrDecode
	MediaErrSrcNotSupported
)

func (c MediaErrorCode) String() string {
	switch c {
	case MediaErrAborted:
		return "MEDIA_ERR_ABORTED - Playback aborted"
	case MediaErrNetwork:
		return "MEDIA_ERR_NETWORK - Network error"
	case MediaErrDecode:
		return "MEDIA_ERR_DECODE - Decode error"
	case MediaErrSrcNotSupported:
		return "MEDIA_ERR_SRC_NOT_SUPPORTED - Source not supported"
	default:
		return "Unknown error"
	}
}

// PlaybackError is a native failure reported by one engine.
type PlaybackError struct {
	Engine EngineKind
	Code   MediaErrorCode
	Err    error
}

func (e *PlaybackError) Error() string {
	msg := fmt.Sprintf("%s playback failed", e.Engine)
	if e.Code != MediaErrUnknown {
		msg += ": " + e.Code.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// FallbackError is returned when both engines failed for the same attempt.
type FallbackError struct {
	Declarative error
	Graph       error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("both declarative and graph playback failed. declarative: %v, graph: %v", e.Declarative, e.Graph)
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Declarative, e.Graph}
}

// QueueItemError wraps a failed queue item. The queue keeps draining.
type QueueItemError struct {
	ID  uint64
	Err error
}

func (e *QueueItemError) Error() string {
	return fmt.Sprintf("queue item %d: %v", e.ID, e.Err)
}

func (e *QueueItemError) Unwrap() error { return e.Err }

// TimeoutError reports a load or decode that did not settle in time.
type TimeoutError struct {
	Stage string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Stage, e.After)
}

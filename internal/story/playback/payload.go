package playback

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/sirupsen/logrus"
)

// Canonical MIME types understood by both engines.
const (
	MimeMPEG = "audio/mpeg"
	MimeWAV  = "audio/wav"
	MimeOGG  = "audio/ogg"
)

// GeneratedAudio is the payload returned by a speech service.
type GeneratedAudio struct {
	Base64Data string `json:"base64Data"`
	MimeType   string `json:"mimeType"`
	DurationMs int    `json:"durationMs,omitempty"`
}

// Buffer is a decoded payload ready for one playback attempt.
type Buffer struct {
	Data     []byte
	MimeType string
}

// Normalize strips an optional data URI prefix, decodes the base64 body and
// canonicalizes the declared MIME type.
func Normalize(audio GeneratedAudio) (*Buffer, error) {
	// line-wrapped base64 is accepted
	raw := strings.Join(strings.Fields(stripDataURI(strings.TrimSpace(audio.Base64Data))), "")

	data, err := decodeBase64(raw)
	if err != nil {
		return nil, &DecodeError{Stage: StageBase64, Err: err}
	}

	mimeType := CanonicalMimeType(audio.MimeType)

	logrus.WithFields(logrus.Fields{
		"original_mime_type":   audio.MimeType,
		"normalized_mime_type": mimeType,
		"original_size":        len(audio.Base64Data),
		"binary_size":          len(data),
	}).Debug("Audio payload normalized")

	return &Buffer{Data: data, MimeType: mimeType}, nil
}

// CanonicalMimeType maps a declared type onto one of the canonical types,
// passing unknown types through unchanged.
func CanonicalMimeType(mimeType string) string {
	lower := strings.ToLower(mimeType)
	switch {
	case strings.Contains(lower, "mp3"), strings.Contains(lower, "mpeg"):
		return MimeMPEG
	case strings.Contains(lower, "wav"):
		return MimeWAV
	case strings.Contains(lower, "ogg"):
		return MimeOGG
	default:
		return mimeType
	}
}

// SniffMimeType inspects the leading bytes of data and returns the canonical
// type for recognised containers, or "" when the format is unknown.
func SniffMimeType(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return MimeWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return MimeOGG
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return MimeMPEG
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG frame sync
		return MimeMPEG
	default:
		return ""
	}
}

func stripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	const marker = ";base64,"
	if i := strings.Index(s, marker); i >= 0 {
		return s[i+len(marker):]
	}
	return s
}

func decodeBase64(s string) ([]byte, error) {
	if len(s)%4 != 0 && !strings.HasSuffix(s, "=") {
		return base64.RawStdEncoding.DecodeString(s)
	}
	return base64.StdEncoding.DecodeString(s)
}

// internal/story/tts/tts.go
package tts

import (
	"context"
	"encoding/base64"

	"storyvoice/internal/story/playback"
)

type Config struct {
	Type      string
	Speed     float64
	Voice     string
	CachePath string
}

// Synthesizer turns narration text into an audio payload the playback
// subsystem can normalize.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*playback.GeneratedAudio, error)
	Voices(ctx context.Context) ([]VoiceInfo, error)
	Name() string
}

// CacheStats describes the on-disk synthesis cache.
type CacheStats struct {
	Directory   string  `json:"cache_directory"`
	CachedFiles int64   `json:"cached_files"`
	TotalSizeMB float64 `json:"total_size_mb"`
}

// VoiceInfo provides detailed information about available voices
type VoiceInfo struct {
	Name         string `json:"name"`
	LanguageCode string `json:"language_code"`
	Gender       string `json:"gender"`
	Natural      bool   `json:"natural"`
	Description  string `json:"description"`
}

func encodeAudio(data []byte, mimeType string) *playback.GeneratedAudio {
	return &playback.GeneratedAudio{
		Base64Data: base64.StdEncoding.EncodeToString(data),
		MimeType:   mimeType,
	}
}

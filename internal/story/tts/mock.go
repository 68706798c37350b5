package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"strings"

	"storyvoice/internal/story/playback"
)

const (
	mockSampleRate = 22050
	mockToneHz     = 440
)

// MockSpeech renders a quiet tone whose length follows the text, so the
// playback path can be exercised without a real speech engine.
type MockSpeech struct {
	speed float64
}

func NewMockSpeech(c Config) *MockSpeech {
	speed := c.Speed
	if speed <= 0 {
		speed = 1.0
	}
	return &MockSpeech{speed: speed}
}

func (m *MockSpeech) Name() string { return EngineTypeMock.String() }

func (m *MockSpeech) Voices(ctx context.Context) ([]VoiceInfo, error) {
	return []VoiceInfo{{Name: "mock-voice", LanguageCode: "en-US", Description: "sine tone"}}, nil
}

func (m *MockSpeech) Synthesize(ctx context.Context, text string) (*playback.GeneratedAudio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// roughly 150 words per minute, capped so a long turn stays short
	words := len(strings.Fields(text))
	seconds := math.Min(float64(words)/150.0*60.0/m.speed, 3.0)
	if seconds < 0.25 {
		seconds = 0.25
	}

	samples := int(seconds * mockSampleRate)
	pcm := new(bytes.Buffer)
	for i := 0; i < samples; i++ {
		v := 0.2 * math.Sin(2*math.Pi*mockToneHz*float64(i)/mockSampleRate)
		binary.Write(pcm, binary.LittleEndian, int16(v*math.MaxInt16))
	}

	wav := encodeWAV(pcm.Bytes(), mockSampleRate, 16)
	audio := encodeAudio(wav, "audio/wav")
	audio.DurationMs = wavDurationMs(wav)
	return audio, nil
}

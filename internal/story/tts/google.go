package tts

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/texttospeech/apiv1"
	"github.com/sirupsen/logrus"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"

	"storyvoice/internal/story/playback"
)

// DefaultGoogleVoice is used when no voice is configured.
const DefaultGoogleVoice = "en-US-Chirp3-HD-Charon"

// chunkLimit is a little under the API's 5000 byte input limit.
const chunkLimit = 4800

// GoogleSpeech synthesizes MP3 narration with Google Cloud Text-to-Speech.
type GoogleSpeech struct {
	client *texttospeech.Client
	voice  string
	speed  float64
}

func NewGoogleSpeech(config Config) (*GoogleSpeech, error) {
	client, err := texttospeech.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}

	voice := config.Voice
	if voice == "" {
		voice = DefaultGoogleVoice
	}
	return &GoogleSpeech{client: client, voice: voice, speed: config.Speed}, nil
}

func (g *GoogleSpeech) Name() string { return EngineTypeGoogleClassic.String() }

func (g *GoogleSpeech) Synthesize(ctx context.Context, text string) (*playback.GeneratedAudio, error) {
	voice := &texttospeechpb.VoiceSelectionParams{
		LanguageCode: languageCode(g.voice),
		Name:         g.voice,
	}
	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}
	// Chirp voices reject speakingRate
	if !strings.Contains(strings.ToLower(g.voice), "chirp") && g.speed > 0 {
		audioCfg.SpeakingRate = g.speed
	}

	chunks := splitIntoChunks(text, chunkLimit)
	var out bytes.Buffer
	for i, chunk := range chunks {
		req := &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
			},
			Voice:       voice,
			AudioConfig: audioCfg,
		}
		resp, err := g.client.SynthesizeSpeech(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
		}
		out.Write(resp.AudioContent)
	}

	logrus.WithFields(logrus.Fields{
		"voice":  g.voice,
		"chunks": len(chunks),
		"bytes":  out.Len(),
	}).Debug("Synthesized speech")

	return encodeAudio(out.Bytes(), "audio/mp3"), nil
}

func (g *GoogleSpeech) Voices(ctx context.Context) ([]VoiceInfo, error) {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}

	voices := make([]VoiceInfo, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		info := VoiceInfo{
			Name:    v.Name,
			Gender:  strings.ToLower(v.SsmlGender.String()),
			Natural: strings.Contains(v.Name, "Chirp") || strings.Contains(v.Name, "Neural"),
		}
		if len(v.LanguageCodes) > 0 {
			info.LanguageCode = v.LanguageCodes[0]
		}
		voices = append(voices, info)
	}
	return voices, nil
}

func (g *GoogleSpeech) Close() error {
	return g.client.Close()
}

// languageCode derives the BCP-47 code from a voice name such as en-GB-Neural2-A.
func languageCode(voice string) string {
	if len(voice) < 5 {
		return "en-US"
	}
	return voice[:5]
}

func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	runes := []rune(text) // safe for UTF-8
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

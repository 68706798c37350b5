package tts

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"storyvoice/internal/story/playback"
)

// SaySpeech renders WAV with the macOS say command.
type SaySpeech struct {
	config Config
	path   string
}

func newSaySpeech(config Config) (*SaySpeech, error) {
	path, err := exec.LookPath("say")
	if err != nil {
		return nil, fmt.Errorf("say not found: %w", err)
	}
	return &SaySpeech{config: config, path: path}, nil
}

func (s *SaySpeech) Name() string { return EngineTypeSay.String() }

func (s *SaySpeech) Synthesize(ctx context.Context, text string) (*playback.GeneratedAudio, error) {
	wav, err := synthesizeToFile(ctx, s.path, ".wav", func(out string) []string {
		return sayArgs(s.config, out, text)
	})
	if err != nil {
		return nil, err
	}

	audio := encodeAudio(wav, "audio/wav")
	audio.DurationMs = wavDurationMs(wav)
	return audio, nil
}

// sayArgs sets rate in words per minute, default is ~175.
func sayArgs(config Config, out, text string) []string {
	args := []string{"-o", out, "--data-format=LEI16@22050"}
	if config.Voice != "" && config.Voice != "default" {
		args = append(args, "-v", config.Voice)
	}
	args = append(args, "-r", fmt.Sprintf("%.0f", 175*config.Speed))
	return append(args, "--", text)
}

// "Alex                en_US    # Most people recognize me by my voice."
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2}[_-][A-Z]{2})\s+#\s*(.*)$`)

func (s *SaySpeech) Voices(ctx context.Context) ([]VoiceInfo, error) {
	output, err := exec.CommandContext(ctx, s.path, "-v", "?").Output()
	if err != nil {
		return nil, err
	}
	return parseSayVoices(string(output)), nil
}

func parseSayVoices(output string) []VoiceInfo {
	var voices []VoiceInfo
	for _, line := range strings.Split(output, "\n") {
		m := sayVoiceLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		voices = append(voices, VoiceInfo{
			Name:         m[1],
			LanguageCode: strings.ReplaceAll(m[2], "_", "-"),
			Description:  m[3],
		})
	}
	return voices
}

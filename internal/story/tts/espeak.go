// Cross-platform eSpeak implementation
package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"storyvoice/internal/story/playback"
)

// ESpeakSpeech synthesizes WAV narration with eSpeak/eSpeak-NG.
type ESpeakSpeech struct {
	config Config
	path   string
}

// newESpeakSpeech creates a new eSpeak speech service
func newESpeakSpeech(config Config) (*ESpeakSpeech, error) {
	espeakPath, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("eSpeak not found: %w", err)
	}

	if err := exec.Command(espeakPath, "--version").Run(); err != nil {
		return nil, fmt.Errorf("eSpeak test failed: %w", err)
	}

	return &ESpeakSpeech{config: config, path: espeakPath}, nil
}

func findESpeakExecutable() (string, error) {
	candidates := []string{"espeak-ng", "espeak"}

	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("eSpeak executable not found in PATH")
}

func (e *ESpeakSpeech) Name() string { return EngineTypeESpeak.String() }

func (e *ESpeakSpeech) Synthesize(ctx context.Context, text string) (*playback.GeneratedAudio, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path, espeakArgs(e.config, text)...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("eSpeak failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("eSpeak produced no audio")
	}

	audio := encodeAudio(out, "audio/wav")
	audio.DurationMs = wavDurationMs(out)
	return audio, nil
}

// espeakArgs writes WAV to stdout; speed is words per minute around 175.
func espeakArgs(config Config, text string) []string {
	args := []string{"--stdout"}

	if config.Voice != "" && config.Voice != "default" {
		args = append(args, "-v", config.Voice)
	}

	speed := int(175 * config.Speed)
	args = append(args, "-s", strconv.Itoa(speed))

	// "--" keeps narration starting with a dash from being read as a flag
	return append(args, "--", text)
}

func (e *ESpeakSpeech) Voices(ctx context.Context) ([]VoiceInfo, error) {
	output, err := exec.CommandContext(ctx, e.path, "--voices").Output()
	if err != nil {
		return nil, err
	}

	return parseESpeakVoices(string(output)), nil
}

func parseESpeakVoices(output string) []VoiceInfo {
	lines := strings.Split(output, "\n")
	voices := make([]VoiceInfo, 0)

	for i, line := range lines {
		// Skip header line
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		// Pty Language Age/Gender VoiceName File Other Languages
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		info := VoiceInfo{
			Name:         fields[3],
			LanguageCode: fields[1],
		}
		if gender := strings.TrimPrefix(fields[2], "--/"); gender == "M" {
			info.Gender = "male"
		} else if gender == "F" {
			info.Gender = "female"
		}
		voices = append(voices, info)
	}

	return voices
}

package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"storyvoice/internal/story/playback"
)

// SAPISpeech renders WAV through System.Speech via PowerShell.
type SAPISpeech struct {
	config Config
	shell  string
}

func newSAPISpeech(config Config) (*SAPISpeech, error) {
	shell, err := exec.LookPath("powershell")
	if err != nil {
		return nil, fmt.Errorf("powershell not found: %w", err)
	}
	return &SAPISpeech{config: config, shell: shell}, nil
}

func (s *SAPISpeech) Name() string { return EngineTypeSAPI.String() }

func (s *SAPISpeech) Synthesize(ctx context.Context, text string) (*playback.GeneratedAudio, error) {
	// text goes through a file so quoting never reaches the script
	input, err := os.CreateTemp("", "storyvoice-sapi-*.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to stage narration text: %w", err)
	}
	defer os.Remove(input.Name())
	if _, err := input.WriteString(text); err != nil {
		input.Close()
		return nil, fmt.Errorf("failed to stage narration text: %w", err)
	}
	input.Close()

	wav, err := synthesizeToFile(ctx, s.shell, ".wav", func(out string) []string {
		return []string{"-NoProfile", "-Command", sapiScript(s.config, input.Name(), out)}
	})
	if err != nil {
		return nil, err
	}

	audio := encodeAudio(wav, "audio/wav")
	audio.DurationMs = wavDurationMs(wav)
	return audio, nil
}

func sapiScript(config Config, textPath, outPath string) string {
	var b strings.Builder
	b.WriteString("Add-Type -AssemblyName System.Speech; ")
	b.WriteString("$synth = New-Object System.Speech.Synthesis.SpeechSynthesizer; ")
	if config.Voice != "" && config.Voice != "default" {
		fmt.Fprintf(&b, "$synth.SelectVoice('%s'); ", psQuote(config.Voice))
	}
	// SAPI rate runs from -10 to 10
	fmt.Fprintf(&b, "$synth.Rate = %d; ", clampRate(int(config.Speed*10)-10))
	fmt.Fprintf(&b, "$synth.SetOutputToWaveFile('%s'); ", psQuote(outPath))
	fmt.Fprintf(&b, "$synth.Speak([IO.File]::ReadAllText('%s')); ", psQuote(textPath))
	b.WriteString("$synth.Dispose()")
	return b.String()
}

func (s *SAPISpeech) Voices(ctx context.Context) ([]VoiceInfo, error) {
	script := "Add-Type -AssemblyName System.Speech; " +
		"(New-Object System.Speech.Synthesis.SpeechSynthesizer).GetInstalledVoices() | " +
		"ForEach-Object { $_.VoiceInfo.Name + '|' + $_.VoiceInfo.Culture + '|' + $_.VoiceInfo.Gender }"
	output, err := exec.CommandContext(ctx, s.shell, "-NoProfile", "-Command", script).Output()
	if err != nil {
		return nil, err
	}

	var voices []VoiceInfo
	for _, line := range strings.Split(string(output), "\n") {
		parts := strings.Split(strings.TrimSpace(line), "|")
		if len(parts) != 3 {
			continue
		}
		voices = append(voices, VoiceInfo{
			Name:         parts[0],
			LanguageCode: parts[1],
			Gender:       strings.ToLower(parts[2]),
		})
	}
	return voices, nil
}

func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func clampRate(r int) int {
	if r < -10 {
		return -10
	}
	if r > 10 {
		return 10
	}
	return r
}

package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// synthesizeToFile runs a speech command that can only write to a file and
// returns what it wrote. args receives the output path.
func synthesizeToFile(ctx context.Context, name, ext string, args func(out string) []string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "storyvoice-tts-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "speech"+ext)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args(out)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s produced no audio", filepath.Base(name))
	}
	return data, nil
}

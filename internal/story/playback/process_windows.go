//go:build windows

package playback

import "os/exec"

// pauseProcess is unsupported on Windows, which has no SIGSTOP equivalent.
func pauseProcess(cmd *exec.Cmd) error {
	return ErrNotPausable
}

func resumeProcess(cmd *exec.Cmd) error {
	return ErrNotPausable
}

//go:build unix

package playback

import (
	"os/exec"
	"syscall"
)

// pauseProcess suspends the player process.
func pauseProcess(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGSTOP)
}

// resumeProcess continues a suspended player process.
func resumeProcess(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGCONT)
}

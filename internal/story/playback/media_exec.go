package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// PlayerCommand describes an external audio player.
type PlayerCommand struct {
	Name string
	Args func(src string, volume float64) []string
}

var playerCommands = []PlayerCommand{
	{
		Name: "ffplay",
		Args: func(src string, volume float64) []string {
			return []string{"-nodisp", "-autoexit", "-loglevel", "error", "-volume", fmt.Sprint(int(volume * 100)), src}
		},
	},
	{
		Name: "mpv",
		Args: func(src string, volume float64) []string {
			return []string{"--no-video", "--really-quiet", fmt.Sprintf("--volume=%d", int(volume*100)), src}
		},
	},
	{
		Name: "afplay",
		Args: func(src string, volume float64) []string {
			return []string{"-v", fmt.Sprintf("%.2f", volume), src}
		},
	},
	{
		Name: "paplay",
		Args: func(src string, volume float64) []string {
			return []string{fmt.Sprintf("--volume=%d", int(volume*65536)), src}
		},
	},
}

// ExecMedia is a MediaPlatform backed by an external player process.
type ExecMedia struct {
	path    string
	command PlayerCommand
}

// NewExecMedia locates player on PATH. "auto" or "" picks the first
// available known player.
func NewExecMedia(player string) (*ExecMedia, error) {
	for _, candidate := range playerCommands {
		if player != "" && player != "auto" && candidate.Name != player {
			continue
		}
		if path, err := exec.LookPath(candidate.Name); err == nil {
			logrus.WithFields(logrus.Fields{
				"player": candidate.Name,
				"path":   path,
			}).Debug("Audio player found")
			return &ExecMedia{path: path, command: candidate}, nil
		}
	}
	if player == "" || player == "auto" {
		return nil, errors.New("no audio player found in PATH")
	}
	return nil, fmt.Errorf("audio player %q not found in PATH", player)
}

// Name returns the player name.
func (m *ExecMedia) Name() string {
	return m.command.Name
}

func (m *ExecMedia) NewElement() (MediaElement, error) {
	return &execElement{
		path:    m.path,
		command: m.command,
		volume:  1,
		events:  make(chan MediaEvent, 8),
	}, nil
}

type execElement struct {
	path    string
	command PlayerCommand

	mu     sync.Mutex
	src    string
	volume float64
	cmd    *exec.Cmd
	paused bool
	closed bool
	events chan MediaEvent
}

// Load probes src and reports whether the player can take it. The volume
// in effect when Play spawns the process is the one the player uses.
func (e *execElement) Load(src string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.src = src
	e.mu.Unlock()

	e.emit(MediaEvent{Kind: MediaLoadStart})

	header, err := readHeader(src, 16)
	if err != nil {
		e.emit(MediaEvent{Kind: MediaError, Code: MediaErrNetwork, Err: err})
		return nil
	}
	if SniffMimeType(header) == "" {
		e.emit(MediaEvent{Kind: MediaError, Code: MediaErrSrcNotSupported, Err: errors.New("unrecognised audio container")})
		return nil
	}

	e.emit(MediaEvent{Kind: MediaCanPlay})
	return nil
}

func readHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, n)
	read, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return header[:read], nil
}

func (e *execElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.cmd != nil {
		if !e.paused {
			return nil
		}
		if err := resumeProcess(e.cmd); err != nil {
			return err
		}
		e.paused = false
		return nil
	}

	var stderr bytes.Buffer
	cmd := exec.Command(e.path, e.command.Args(e.src, e.volume)...)
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.command.Name, err)
	}
	e.cmd = cmd
	e.paused = false

	logrus.WithFields(logrus.Fields{
		"player": e.command.Name,
		"pid":    cmd.Process.Pid,
		"src":    e.src,
	}).Debug("Audio player started")

	go e.wait(cmd, &stderr)
	return nil
}

func (e *execElement) wait(cmd *exec.Cmd, stderr *bytes.Buffer) {
	err := cmd.Wait()

	e.mu.Lock()
	halted := e.cmd != cmd
	if !halted {
		e.cmd = nil
		e.paused = false
	}
	e.mu.Unlock()

	if halted {
		return
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		e.emit(MediaEvent{Kind: MediaError, Code: MediaErrDecode, Err: fmt.Errorf("%s: %w: %s", e.command.Name, err, msg)})
		return
	}
	e.emit(MediaEvent{Kind: MediaEnded})
}

func (e *execElement) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil || e.paused {
		return nil
	}
	if err := pauseProcess(e.cmd); err != nil {
		return err
	}
	e.paused = true
	return nil
}

// Rewind kills the running process so the next Play starts from the top.
func (e *execElement) Rewind() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kill()
}

func (e *execElement) kill() error {
	if e.cmd == nil {
		return nil
	}
	cmd := e.cmd
	e.cmd = nil
	e.paused = false
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (e *execElement) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = ClampVolume(v)
	if e.cmd != nil {
		logrus.WithField("volume", e.volume).Debug("Volume change applies from the next playback")
	}
}

func (e *execElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cmd == nil || e.paused
}

func (e *execElement) Events() <-chan MediaEvent {
	return e.events
}

func (e *execElement) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.kill()
	close(e.events)
	return err
}

func (e *execElement) emit(ev MediaEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	default:
		logrus.WithField("kind", ev.Kind).Warn("Dropped media event")
	}
}

package game

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"storyvoice/internal/cli/scheme/colours"
	"storyvoice/internal/domain/story"
	"storyvoice/internal/story/gemini"
	"storyvoice/internal/story/journal"
	"storyvoice/internal/story/narrator"
)

// ErrEmptyAction is returned by Act for blank player input.
var ErrEmptyAction = errors.New("describe what you want to do")

// StoryService produces the next story turn and its illustration.
type StoryService interface {
	NextTurn(ctx context.Context, history []story.GameMessage, action string) (*story.Turn, error)
	GenerateImage(ctx context.Context, description string) (*gemini.Image, error)
}

// Narrator is the part of the narration controller the turn loop drives.
type Narrator interface {
	GenerateAndPlay(ctx context.Context, text string)
	Stop()
	Pause()
	Resume()
	SetVolume(v float64)
	ToggleMute()
	State() narrator.State
}

type Options struct {
	ImagesDir  string
	Illustrate bool
	Narrate    bool
	Out        io.Writer
}

// Game runs the adventure: every turn asks the story service for text, then
// illustrates and narrates it concurrently.
type Game struct {
	stories  StoryService
	narrator Narrator
	journal  *journal.Journal
	fs       afero.Fs
	opts     Options

	mu       sync.Mutex
	messages []story.GameMessage
}

// New creates a game. j may be nil to disable saving.
func New(stories StoryService, narr Narrator, j *journal.Journal, fs afero.Fs, opts Options) *Game {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Game{
		stories:  stories,
		narrator: narr,
		journal:  j,
		fs:       fs,
		opts:     opts,
	}
}

// Messages returns a copy of the transcript.
func (g *Game) Messages() []story.GameMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]story.GameMessage(nil), g.messages...)
}

// Start begins a new adventure and plays the opening scene.
func (g *Game) Start(ctx context.Context) (*story.GameMessage, error) {
	g.mu.Lock()
	g.messages = nil
	g.mu.Unlock()

	logrus.Info("Starting new adventure")
	turn, err := g.stories.NextTurn(ctx, nil, "")
	if err != nil {
		return nil, err
	}
	return g.playTurn(ctx, turn)
}

// Continue restores the saved adventure and replays the last scene.
func (g *Game) Continue(ctx context.Context) (*story.GameMessage, error) {
	if g.journal == nil {
		return nil, journal.ErrNotFound
	}
	messages, err := g.journal.Load()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.messages = messages
	g.mu.Unlock()

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == story.RoleAssistant {
			last := messages[i]
			g.printScene(last)
			if g.opts.Narrate && g.narrator != nil {
				g.narrator.GenerateAndPlay(ctx, last.Content)
			}
			return &last, nil
		}
	}
	return nil, journal.ErrNotFound
}

// Act records the player's action and plays the consequences.
func (g *Game) Act(ctx context.Context, action string) (*story.GameMessage, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, ErrEmptyAction
	}

	g.mu.Lock()
	history := append([]story.GameMessage(nil), g.messages...)
	g.messages = append(g.messages, story.GameMessage{
		ID:        uuid.NewString(),
		Role:      story.RoleUser,
		Content:   action,
		CreatedAt: time.Now(),
	})
	g.mu.Unlock()

	logrus.WithField("action", action).Info("Continuing adventure")
	turn, err := g.stories.NextTurn(ctx, history, action)
	if err != nil {
		return nil, err
	}
	return g.playTurn(ctx, turn)
}

func (g *Game) playTurn(ctx context.Context, turn *story.Turn) (*story.GameMessage, error) {
	msg := story.GameMessage{
		ID:        uuid.NewString(),
		Role:      story.RoleAssistant,
		Content:   turn.Story,
		CreatedAt: time.Now(),
	}

	grp, gctx := errgroup.WithContext(ctx)
	if g.opts.Illustrate {
		grp.Go(func() error {
			// a missing illustration never blocks the story
			path, err := g.illustrate(gctx, msg.ID, turn.ImagePrompt)
			if err != nil {
				logrus.WithError(err).Warn("Failed to illustrate turn")
				return nil
			}
			msg.Image = path
			return nil
		})
	}
	if g.opts.Narrate && g.narrator != nil {
		grp.Go(func() error {
			g.narrator.GenerateAndPlay(gctx, turn.Story)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.messages = append(g.messages, msg)
	messages := append([]story.GameMessage(nil), g.messages...)
	g.mu.Unlock()

	if g.journal != nil {
		if err := g.journal.Save(messages); err != nil {
			logrus.WithError(err).Warn("Failed to save adventure journal")
		}
	}

	g.printScene(msg)
	return &msg, nil
}

func (g *Game) illustrate(ctx context.Context, id, description string) (string, error) {
	img, err := g.stories.GenerateImage(ctx, description)
	if err != nil {
		return "", err
	}

	if err := g.fs.MkdirAll(g.opts.ImagesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create images dir: %w", err)
	}
	path := filepath.Join(g.opts.ImagesDir, id+imageExtension(img.MimeType))
	if err := afero.WriteFile(g.fs, path, img.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}

func imageExtension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func (g *Game) printScene(msg story.GameMessage) {
	fmt.Fprintln(g.opts.Out)
	colours.Story.Fprintln(g.opts.Out, msg.Content)
	if msg.Image != "" {
		colours.Info.Fprintf(g.opts.Out, "🖼️  %s\n", msg.Image)
	}
	fmt.Fprintln(g.opts.Out)
}

// Run reads player input from in until /quit, end of input or ctx is done.
// Lines starting with a slash control narration; anything else is an action.
func (g *Game) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		colours.Prompt.Fprint(g.opts.Out, "🧟 What do you do? ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := g.command(line); quit {
				return nil
			}
			continue
		}

		if _, err := g.Act(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			colours.Error.Fprintf(g.opts.Out, "❌ %v\n", err)
		}
	}
}

// command handles a slash command and reports whether the game should end.
func (g *Game) command(line string) bool {
	fields := strings.Fields(line)
	out := g.opts.Out

	switch fields[0] {
	case "/quit", "/exit":
		if g.narrator != nil {
			g.narrator.Stop()
		}
		return true
	}
	if g.narrator == nil {
		colours.Warning.Fprintln(out, "🔇 Narration is off")
		return false
	}

	switch fields[0] {
	case "/pause":
		g.narrator.Pause()
		if g.narrator.State().IsPaused {
			colours.Warning.Fprintln(out, "⏸️  Paused")
		} else {
			colours.Info.Fprintln(out, "ℹ️  Nothing to pause")
		}
	case "/resume":
		g.narrator.Resume()
		colours.Success.Fprintln(out, "▶️  Resumed")
	case "/stop":
		g.narrator.Stop()
		colours.Warning.Fprintln(out, "⏹️  Stopped")
	case "/mute":
		g.narrator.ToggleMute()
		if g.narrator.State().IsMuted {
			colours.Warning.Fprintln(out, "🔇 Muted")
		} else {
			colours.Success.Fprintf(out, "🔊 Volume %.0f%%\n", g.narrator.State().Volume*100)
		}
	case "/vol", "/volume":
		if len(fields) < 2 {
			colours.Info.Fprintf(out, "🔊 Volume %.0f%%\n", g.narrator.State().Volume*100)
			return false
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			colours.Error.Fprintf(out, "❌ Invalid volume %q\n", fields[1])
			return false
		}
		g.narrator.SetVolume(v)
		colours.Success.Fprintf(out, "🔊 Volume %.0f%%\n", g.narrator.State().Volume*100)
	case "/status":
		printState(out, g.narrator.State())
	default:
		colours.Info.Fprintln(out, "ℹ️  Commands: /pause /resume /stop /mute /vol <0..1> /status /quit")
	}
	return false
}

func printState(out io.Writer, st narrator.State) {
	switch {
	case st.IsLoading:
		colours.Info.Fprintln(out, "⏳ Generating narration...")
	case st.IsPlaying:
		colours.Success.Fprintln(out, "🎵 Playing")
	case st.IsPaused:
		colours.Warning.Fprintln(out, "⏸️  Paused")
	default:
		colours.Info.Fprintln(out, "⏹️  Idle")
	}
	if st.IsMuted {
		colours.Warning.Fprintln(out, "🔇 Muted")
	} else {
		colours.Info.Fprintf(out, "🔊 Volume %.0f%%\n", st.Volume*100)
	}
	if st.Error != "" {
		colours.Error.Fprintf(out, "❌ %s\n", st.Error)
	}
}

package game

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"storyvoice/internal/cli/scheme/colours"
	"storyvoice/internal/config"
	"storyvoice/internal/story/gemini"
	"storyvoice/internal/story/journal"
	"storyvoice/internal/story/narrator"
	"storyvoice/internal/story/playback"
	"storyvoice/internal/story/tts"
)

// App wires configuration to the narration stack and exposes the cobra
// handlers.
type App struct {
	cfg    *config.Config
	fs     afero.Fs
	ctx    context.Context
	Cancel context.CancelFunc

	mu       sync.Mutex
	narrator *narrator.Controller
	synth    tts.Synthesizer
}

func NewApp(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:    cfg,
		fs:     afero.NewOsFs(),
		ctx:    ctx,
		Cancel: cancel,
	}
}

// Close stops narration and releases the audio stack. Safe to call twice.
func (a *App) Close() {
	a.Cancel()

	a.mu.Lock()
	c := a.narrator
	a.mu.Unlock()

	if c != nil {
		c.Close()
	}
}

func (a *App) ShowWelcome() {
	fmt.Println()
	colours.Title.Println("🧟 Welcome to StoryVoice! 🧟")
	fmt.Println()
	colours.Info.Println("📚 Available commands:")
	fmt.Println("  • storyvoice play        - Start a new narrated adventure")
	fmt.Println("  • storyvoice play -c     - Continue your last adventure")
	fmt.Println("  • storyvoice narrate     - Read a line of text aloud")
	fmt.Println("  • storyvoice listen      - Play an audio file")
	fmt.Println("  • storyvoice voices      - List speech voices")
	fmt.Println("  • storyvoice settings    - Show the current settings")
	fmt.Println()
	colours.Prompt.Println("✨ Ready to survive the night? ✨")
}

func (a *App) synthesizer() (tts.Synthesizer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.synth != nil {
		return a.synth, nil
	}
	synth, err := tts.NewSynthesizer(tts.Config{
		Type:      a.cfg.TTS.Type,
		Voice:     a.cfg.TTS.Voice,
		Speed:     a.cfg.TTS.Speed,
		CachePath: a.cfg.TTS.CachePath,
	}, a.fs)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech engine: %w", err)
	}
	a.synth = synth
	return synth, nil
}

// orchestrator builds the playback engines named by audio.engine. A missing
// player binary leaves the graph engine alone.
func (a *App) orchestrator() *playback.Orchestrator {
	cfg := playback.OrchestratorConfig{
		LoadTimeout:   a.cfg.Audio.LoadTimeout,
		DecodeTimeout: a.cfg.Audio.DecodeTimeout,
	}

	if a.cfg.Audio.Engine != "graph" {
		media, err := playback.NewExecMedia(a.cfg.Audio.Player)
		if err != nil {
			logrus.WithError(err).Warn("Declarative playback unavailable, using graph playback only")
		} else {
			logrus.WithField("player", media.Name()).Info("Using external audio player")
			cfg.Media = media
			cfg.Blobs = playback.NewBlobStore(a.fs, a.cfg.Audio.BlobDir)
		}
	}
	if a.cfg.Audio.Engine != "declarative" {
		cfg.Graph = playback.NewBeepGraph()
	}

	return playback.NewOrchestrator(cfg)
}

func (a *App) narration(forceGraph bool) (*narrator.Controller, error) {
	synth, err := a.synthesizer()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.narrator != nil {
		return a.narrator, nil
	}

	a.narrator = narrator.New(synth, a.orchestrator(), narrator.Options{
		Volume:     a.cfg.Audio.Volume,
		Policy:     narrator.Policy(a.cfg.Audio.Policy),
		ForceGraph: forceGraph || a.cfg.Audio.Engine == "graph",
	})
	return a.narrator, nil
}

// Play runs the interactive adventure on stdin.
func (a *App) Play(cmd *cobra.Command, args []string) error {
	resume, _ := cmd.Flags().GetBool("continue")
	noVoice, _ := cmd.Flags().GetBool("no-voice")
	noImages, _ := cmd.Flags().GetBool("no-images")
	forceGraph, _ := cmd.Flags().GetBool("force-graph")

	stories, err := gemini.NewClient(a.ctx, gemini.Config{
		APIKey:     a.cfg.Gemini.APIKey,
		StoryModel: a.cfg.Gemini.StoryModel,
		ImageModel: a.cfg.Gemini.ImageModel,
		Separator:  a.cfg.Gemini.Separator,
	})
	if err != nil {
		return err
	}

	var narr Narrator
	if !noVoice {
		c, err := a.narration(forceGraph)
		if err != nil {
			return err
		}
		var mu sync.Mutex
		var lastErr string
		c.Subscribe(func(st narrator.State) {
			mu.Lock()
			defer mu.Unlock()
			if st.Error != "" && st.Error != lastErr {
				colours.Warning.Fprintf(cmd.OutOrStdout(), "\n🔇 Narration failed: %s\n", st.Error)
			}
			lastErr = st.Error
		})
		narr = c
	}

	g := New(stories, narr, a.adventureJournal(), a.fs, Options{
		ImagesDir:  a.cfg.Game.ImagesDir,
		Illustrate: !noImages,
		Narrate:    !noVoice,
		Out:        cmd.OutOrStdout(),
	})

	fmt.Fprintln(cmd.OutOrStdout())
	colours.Title.Fprintln(cmd.OutOrStdout(), "🧟 StoryVoice 🧟")
	colours.Info.Fprintln(cmd.OutOrStdout(), "💡 Type an action, or /pause /resume /stop /mute /vol <0..1> /status /quit")

	if resume {
		_, err = g.Continue(a.ctx)
		if errors.Is(err, journal.ErrNotFound) || errors.Is(err, journal.ErrStale) {
			colours.Warning.Fprintf(cmd.OutOrStdout(), "⚠️  %v, starting a new adventure\n", err)
			_, err = g.Start(a.ctx)
		}
	} else {
		_, err = g.Start(a.ctx)
	}
	if err != nil {
		return err
	}

	if err := g.Run(a.ctx, cmd.InOrStdin()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	colours.Warning.Fprintln(cmd.OutOrStdout(), "👋 Stay safe out there!")
	return nil
}

// Narrate reads the given text aloud and waits for it to finish.
func (a *App) Narrate(cmd *cobra.Command, args []string) error {
	forceGraph, _ := cmd.Flags().GetBool("force-graph")
	text := strings.Join(args, " ")

	c, err := a.narration(forceGraph)
	if err != nil {
		return err
	}

	colours.Success.Fprintln(cmd.OutOrStdout(), "🎵 Narrating...")
	c.GenerateAndPlay(a.ctx, text)
	return a.wait(cmd, c)
}

// Listen plays an audio file through the same engines narration uses.
func (a *App) Listen(cmd *cobra.Command, args []string) error {
	forceGraph, _ := cmd.Flags().GetBool("force-graph")

	data, err := afero.ReadFile(a.fs, args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	mimeType := playback.SniffMimeType(data)
	if mimeType == "" {
		mimeType = playback.CanonicalMimeType(strings.TrimPrefix(filepath.Ext(args[0]), "."))
	}

	c, err := a.narration(forceGraph)
	if err != nil {
		return err
	}

	colours.Success.Fprintf(cmd.OutOrStdout(), "🎵 Playing %s\n", filepath.Base(args[0]))
	c.Play(playback.GeneratedAudio{
		Base64Data: base64.StdEncoding.EncodeToString(data),
		MimeType:   mimeType,
	})
	return a.wait(cmd, c)
}

// wait blocks until narration goes idle, then reports any recorded error.
func (a *App) wait(cmd *cobra.Command, c *narrator.Controller) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return nil
		case <-ticker.C:
		}

		st := c.State()
		if st.IsLoading || st.IsPlaying || st.IsPaused || c.QueueStatus().IsPlaying {
			continue
		}
		if st.Error != "" {
			return errors.New(st.Error)
		}
		colours.Success.Fprintln(cmd.OutOrStdout(), "✅ Finished")
		return nil
	}
}

func (a *App) Voices(cmd *cobra.Command, args []string) error {
	synth, err := a.synthesizer()
	if err != nil {
		return err
	}

	voices, err := synth.Voices(a.ctx)
	if err != nil {
		return fmt.Errorf("failed to list voices: %w", err)
	}

	out := cmd.OutOrStdout()
	colours.Title.Fprintf(out, "🎤 %s voices\n", synth.Name())
	for _, v := range voices {
		colours.Info.Fprintf(out, "  %-32s", v.Name)
		fmt.Fprintf(out, " %-8s %-8s %s\n", v.LanguageCode, v.Gender, v.Description)
	}
	colours.Success.Fprintf(out, "✨ %d voices\n", len(voices))
	return nil
}

func (a *App) cache() (*tts.Cache, error) {
	// the cache does not need a live speech engine to report or clear
	return tts.NewCache(tts.NewMockSpeech(tts.Config{}), a.fs, a.cfg.TTS.CachePath, a.cfg.TTS.Voice)
}

func (a *App) CacheStatus(cmd *cobra.Command, args []string) error {
	cache, err := a.cache()
	if err != nil {
		return err
	}
	stats, err := cache.Stats()
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	out := cmd.OutOrStdout()
	colours.Title.Fprintln(out, "📊 Speech Cache Status")
	colours.Info.Fprintf(out, "📁 Location: %s\n", stats.Directory)
	colours.Info.Fprintf(out, "🎧 Cached clips: %d\n", stats.CachedFiles)
	colours.Info.Fprintf(out, "📏 Size: %.2f MB\n", stats.TotalSizeMB)
	return nil
}

func (a *App) CacheClear(cmd *cobra.Command, args []string) error {
	cache, err := a.cache()
	if err != nil {
		return err
	}
	if err := cache.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	colours.Success.Fprintln(cmd.OutOrStdout(), "✅ Speech cache cleared")
	return nil
}

func (a *App) adventureJournal() *journal.Journal {
	return journal.New(a.fs, a.cfg.Game.JournalPath, a.cfg.Game.JournalMaxAge)
}

func (a *App) JournalStatus(cmd *cobra.Command, args []string) error {
	info := a.adventureJournal().Info()
	out := cmd.OutOrStdout()

	colours.Title.Fprintln(out, "📓 Adventure Journal")
	if !info.Exists {
		colours.Warning.Fprintln(out, "❌ No saved adventure")
		colours.Info.Fprintln(out, "💡 Run 'storyvoice play' to start one")
		return nil
	}

	colours.Info.Fprintf(out, "📁 Location: %s\n", info.Path)
	colours.Info.Fprintf(out, "📏 Size: %d bytes\n", info.Size)
	colours.Info.Fprintf(out, "🕐 Last saved: %s\n", info.LastModified.Format("2006-01-02 15:04:05"))
	if info.IsFresh {
		colours.Success.Fprintln(out, "🔄 Can be continued with 'storyvoice play -c'")
	} else {
		colours.Warning.Fprintf(out, "⏰ Older than %s, it will not be continued\n", info.MaxAge)
	}
	return nil
}

func (a *App) JournalClear(cmd *cobra.Command, args []string) error {
	if err := a.adventureJournal().Clear(); err != nil {
		return err
	}
	colours.Success.Fprintln(cmd.OutOrStdout(), "✅ Journal cleared")
	return nil
}

func (a *App) Settings(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	cfg := a.cfg

	colours.Title.Fprintln(out, "⚙️ Settings ⚙️")
	fmt.Fprintln(out)
	colours.Prompt.Fprintln(out, "🎤 Speech:")
	fmt.Fprintf(out, "  • Engine: %s\n", cfg.TTS.Type)
	fmt.Fprintf(out, "  • Available: %s\n", availableEngines())
	fmt.Fprintf(out, "  • Voice: %s\n", cfg.TTS.Voice)
	fmt.Fprintf(out, "  • Speed: %.1fx\n", cfg.TTS.Speed)
	fmt.Fprintf(out, "  • Cache: %s\n", cfg.TTS.CachePath)
	fmt.Fprintln(out)
	colours.Prompt.Fprintln(out, "🔊 Playback:")
	fmt.Fprintf(out, "  • Volume: %.0f%%\n", cfg.Audio.Volume*100)
	fmt.Fprintf(out, "  • Engine: %s (player %s)\n", cfg.Audio.Engine, cfg.Audio.Player)
	fmt.Fprintf(out, "  • Policy: %s\n", cfg.Audio.Policy)
	fmt.Fprintf(out, "  • Timeouts: load %s, decode %s\n", cfg.Audio.LoadTimeout, cfg.Audio.DecodeTimeout)
	fmt.Fprintln(out)
	colours.Prompt.Fprintln(out, "📖 Story:")
	fmt.Fprintf(out, "  • Story model: %s\n", cfg.Gemini.StoryModel)
	fmt.Fprintf(out, "  • Image model: %s\n", cfg.Gemini.ImageModel)
	fmt.Fprintf(out, "  • API key set: %t\n", cfg.Gemini.APIKey != "")
	fmt.Fprintf(out, "  • Images: %s\n", cfg.Game.ImagesDir)
	fmt.Fprintf(out, "  • Journal: %s (max age %s)\n", cfg.Game.JournalPath, cfg.Game.JournalMaxAge)

	if _, err := a.fs.Stat(cfg.Game.ImagesDir); err != nil {
		colours.Info.Fprintln(out, "\n💡 The images folder is created on the first illustrated turn")
	}
}

func availableEngines() string {
	var names []string
	for _, e := range tts.GetAvailableEngines() {
		names = append(names, e.String())
	}
	return strings.Join(names, ", ")
}

// AddCommands registers the storyvoice subcommands on rootCmd. app is
// resolved when a command runs, after configuration has been loaded.
func AddCommands(rootCmd *cobra.Command, app func() *App) {
	run := func(handler func(*App, *cobra.Command, []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return handler(app(), cmd, args)
		}
	}

	playCmd := &cobra.Command{
		Use:   "play",
		Short: "🧟 Start a narrated adventure",
		Long:  "Play the zombie survival adventure: every turn is narrated aloud and illustrated",
		RunE:  run((*App).Play),
	}
	playCmd.Flags().BoolP("continue", "c", false, "Continue the last saved adventure")
	playCmd.Flags().Bool("no-voice", false, "Do not narrate turns")
	playCmd.Flags().Bool("no-images", false, "Do not illustrate turns")

	narrateCmd := &cobra.Command{
		Use:   "narrate [text]",
		Short: "🗣️ Read text aloud",
		Long:  "Synthesize the given text with the configured speech engine and play it",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run((*App).Narrate),
	}

	listenCmd := &cobra.Command{
		Use:   "listen [file]",
		Short: "🎧 Play an audio file",
		Long:  "Play an MP3, WAV or Ogg file through the narration playback engines",
		Args:  cobra.ExactArgs(1),
		RunE:  run((*App).Listen),
	}

	for _, c := range []*cobra.Command{playCmd, narrateCmd, listenCmd} {
		c.Flags().Bool("force-graph", false, "Skip the external player and decode in-process")
	}

	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "🎤 List available voices",
		RunE:  run((*App).Voices),
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "💾 Manage the speech cache",
	}
	cacheCmd.AddCommand(
		&cobra.Command{Use: "status", Short: "📊 Show cache status", RunE: run((*App).CacheStatus)},
		&cobra.Command{Use: "clear", Short: "🧹 Remove cached speech", RunE: run((*App).CacheClear)},
	)

	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "📓 Manage the saved adventure",
	}
	journalCmd.AddCommand(
		&cobra.Command{Use: "status", Short: "📊 Show journal status", RunE: run((*App).JournalStatus)},
		&cobra.Command{Use: "clear", Short: "🧹 Forget the saved adventure", RunE: run((*App).JournalClear)},
	)

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "⚙️ Show settings",
		Long:  "Display speech, playback and story settings",
		Run: func(cmd *cobra.Command, args []string) {
			app().Settings(cmd, args)
		},
	}

	rootCmd.AddCommand(playCmd, narrateCmd, listenCmd, voicesCmd, cacheCmd, journalCmd, settingsCmd)
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"storyvoice/internal/cli/scheme/colours"
	"storyvoice/internal/config"
	"storyvoice/internal/story/game"
)

func main() {
	var cfgFile string
	var app *game.App

	rootCmd := &cobra.Command{
		Use:   "storyvoice",
		Short: "🧟 A narrated zombie survival adventure",
		Long: `
┌─────────────────────────────────────┐
│  🧟 Welcome to StoryVoice! 🧟       │
│  An interactive adventure,          │
│  narrated aloud turn by turn 🎧     │
└─────────────────────────────────────┘

StoryVoice tells a branching survival story, illustrates every scene and
reads it to you. Type what you do next and the story answers.
		`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			level, err := logrus.ParseLevel(cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("invalid log.level: %w", err)
			}
			logrus.SetLevel(level)

			app = game.NewApp(cfg)
			watchSignals(app)
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			app.ShowWelcome()
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.storyvoice/storyvoice.yaml)")

	// subcommands resolve app lazily, after PersistentPreRunE has built it
	game.AddCommands(rootCmd, func() *game.App { return app })

	err := rootCmd.Execute()
	if app != nil {
		app.Close()
	}
	if err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}
}

// watchSignals tears narration down on SIGINT/SIGTERM
func watchSignals(app *game.App) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Close()
		fmt.Println("\n" + colours.Warning.Sprint("👋 Goodbye! Stay safe out there! 🌙"))
		os.Exit(0)
	}()
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"storyvoice/internal/story/playback"
)

type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	TTS    TTSConfig    `mapstructure:"tts"`
	Audio  AudioConfig  `mapstructure:"audio"`
	Gemini GeminiConfig `mapstructure:"gemini"`
	Game   GameConfig   `mapstructure:"game"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type TTSConfig struct {
	Type      string  `mapstructure:"type"`
	Voice     string  `mapstructure:"voice"`
	Speed     float64 `mapstructure:"speed"`
	CachePath string  `mapstructure:"cache_path"`
}

type AudioConfig struct {
	Volume        float64       `mapstructure:"volume"`
	Engine        string        `mapstructure:"engine"` // auto, declarative or graph
	Player        string        `mapstructure:"player"`
	BlobDir       string        `mapstructure:"blob_dir"`
	LoadTimeout   time.Duration `mapstructure:"load_timeout"`
	DecodeTimeout time.Duration `mapstructure:"decode_timeout"`
	Policy        string        `mapstructure:"policy"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api_key"`
	StoryModel string `mapstructure:"story_model"`
	ImageModel string `mapstructure:"image_model"`
	Separator  string `mapstructure:"separator"`
}

type GameConfig struct {
	ImagesDir     string        `mapstructure:"images_dir"`
	JournalPath   string        `mapstructure:"journal_path"`
	JournalMaxAge time.Duration `mapstructure:"journal_max_age"`
}

func SetDefaults() {
	cacheDir := CacheDirectory()

	viper.SetDefault("log.level", "info")

	viper.SetDefault("tts.type", "auto") // Auto-select best engine
	viper.SetDefault("tts.voice", "en-US-Chirp3-HD-Charon")
	viper.SetDefault("tts.speed", 1.0)
	viper.SetDefault("tts.cache_path", filepath.Join(cacheDir, "tts"))

	viper.SetDefault("audio.volume", 0.7)
	viper.SetDefault("audio.engine", "auto")
	viper.SetDefault("audio.player", "auto")
	viper.SetDefault("audio.blob_dir", filepath.Join(os.TempDir(), "storyvoice-blobs"))
	viper.SetDefault("audio.load_timeout", "10s")
	viper.SetDefault("audio.decode_timeout", "10s")
	viper.SetDefault("audio.policy", "replace")

	viper.SetDefault("gemini.story_model", "gemini-2.0-flash-lite-001")
	viper.SetDefault("gemini.image_model", "gemini-2.5-flash-image-preview")
	viper.SetDefault("gemini.separator", "IMAGE:")

	viper.SetDefault("game.images_dir", filepath.Join(cacheDir, "images"))
	viper.SetDefault("game.journal_path", filepath.Join(cacheDir, "journal.json"))
	viper.SetDefault("game.journal_max_age", "24h")
}

// Init points viper at the config file and environment. A missing config
// file is not an error.
func Init(cfgFile string) error {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("storyvoice")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME/.storyvoice")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("STORYVOICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv("gemini.api_key", "STORYVOICE_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load decodes the current viper settings.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Audio.Volume = playback.ClampVolume(cfg.Audio.Volume)

	switch cfg.Audio.Engine {
	case "", "auto", "declarative", "graph":
	default:
		return nil, fmt.Errorf("unsupported audio.engine %q (auto, declarative or graph)", cfg.Audio.Engine)
	}
	switch cfg.Audio.Policy {
	case "", "replace", "append":
	default:
		return nil, fmt.Errorf("unsupported audio.policy %q (replace or append)", cfg.Audio.Policy)
	}

	return &cfg, nil
}

// CacheDirectory returns the appropriate cache directory
func CacheDirectory() string {
	if cacheDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cacheDir, "storyvoice")
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".storyvoice", "cache")
	}

	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, "cache")
	}

	return "cache"
}

package tts

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"storyvoice/internal/story/playback"
)

// Cache stores synthesized audio on fs keyed by md5(text+voice), so a
// replayed turn does not hit the speech service again.
type Cache struct {
	Synthesizer
	fs    afero.Fs
	dir   string
	voice string
}

func NewCache(inner Synthesizer, fs afero.Fs, dir, voice string) (*Cache, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &Cache{Synthesizer: inner, fs: fs, dir: dir, voice: voice}, nil
}

func (c *Cache) Synthesize(ctx context.Context, text string) (*playback.GeneratedAudio, error) {
	key := md5Sum(text + c.voice)

	if audio, ok := c.lookup(key); ok {
		logrus.WithField("key", key[:8]).Debug("Using cached audio")
		return audio, nil
	}

	audio, err := c.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.store(key, audio); err != nil {
		// a cache write failure still returns usable audio
		logrus.WithError(err).Warn("Failed to cache synthesized audio")
	}
	return audio, nil
}

func (c *Cache) lookup(key string) (*playback.GeneratedAudio, bool) {
	for ext, mimeType := range cacheExtensions {
		data, err := afero.ReadFile(c.fs, filepath.Join(c.dir, key+ext))
		if err != nil {
			continue
		}
		audio := encodeAudio(data, mimeType)
		if mimeType == playback.MimeWAV {
			audio.DurationMs = wavDurationMs(data)
		}
		return audio, true
	}
	return nil, false
}

func (c *Cache) store(key string, audio *playback.GeneratedAudio) error {
	ext, ok := extensionFor(audio.MimeType)
	if !ok {
		return fmt.Errorf("uncacheable mime type %q", audio.MimeType)
	}
	data, err := base64.StdEncoding.DecodeString(audio.Base64Data)
	if err != nil {
		return fmt.Errorf("failed to decode audio for cache: %w", err)
	}
	path := filepath.Join(c.dir, key+ext)
	if err := afero.WriteFile(c.fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

var cacheExtensions = map[string]string{
	".mp3": playback.MimeMPEG,
	".wav": playback.MimeWAV,
	".ogg": playback.MimeOGG,
}

func extensionFor(mimeType string) (string, bool) {
	canonical := playback.CanonicalMimeType(mimeType)
	for ext, m := range cacheExtensions {
		if m == canonical {
			return ext, true
		}
	}
	return "", false
}

// Stats returns cache statistics
func (c *Cache) Stats() (CacheStats, error) {
	stats := CacheStats{Directory: c.dir}
	var totalSize int64

	err := afero.Walk(c.fs, c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Continue walking despite errors
		}
		if _, ok := cacheExtensions[strings.ToLower(filepath.Ext(info.Name()))]; ok && !info.IsDir() {
			stats.CachedFiles++
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	stats.TotalSizeMB = float64(totalSize) / (1024 * 1024)
	return stats, nil
}

// Clear removes all cached files
func (c *Cache) Clear() error {
	if err := c.fs.RemoveAll(c.dir); err != nil {
		return err
	}
	return c.fs.MkdirAll(c.dir, 0755)
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

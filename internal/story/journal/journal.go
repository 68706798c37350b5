package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"storyvoice/internal/domain/story"
)

var (
	// ErrNotFound is returned by Load when no journal has been saved.
	ErrNotFound = errors.New("no saved adventure")
	// ErrStale is returned by Load when the journal is older than the max age.
	ErrStale = errors.New("saved adventure is too old to continue")
)

// Journal persists the adventure transcript so a later session can continue it
type Journal struct {
	fs     afero.Fs
	path   string
	maxAge time.Duration
}

// savedAdventure represents the journal file on disk
type savedAdventure struct {
	Messages      []story.GameMessage `json:"messages"`
	LastUpdated   time.Time           `json:"last_updated"`
	TotalMessages int                 `json:"total_messages"`
}

// Info describes the journal file.
type Info struct {
	Exists       bool          `json:"exists"`
	Path         string        `json:"path"`
	Size         int64         `json:"size,omitempty"`
	LastModified time.Time     `json:"last_modified,omitempty"`
	IsFresh      bool          `json:"is_fresh"`
	MaxAge       time.Duration `json:"max_age"`
}

// New creates a journal at path. A zero maxAge never expires.
func New(fs afero.Fs, path string, maxAge time.Duration) *Journal {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logrus.WithError(err).Warn("Failed to create journal directory")
	}

	return &Journal{fs: fs, path: path, maxAge: maxAge}
}

// isFresh checks if the journal file exists and is within the max age
func (j *Journal) isFresh() bool {
	info, err := j.fs.Stat(j.path)
	if err != nil {
		return false
	}
	return j.maxAge <= 0 || time.Since(info.ModTime()) < j.maxAge
}

// Load returns the saved transcript when it is fresh enough to continue.
func (j *Journal) Load() ([]story.GameMessage, error) {
	if _, err := j.fs.Stat(j.path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat journal: %w", err)
	}
	if !j.isFresh() {
		return nil, ErrStale
	}

	file, err := j.fs.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	var saved savedAdventure
	if err := json.NewDecoder(file).Decode(&saved); err != nil {
		return nil, fmt.Errorf("failed to decode journal: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"messages":     len(saved.Messages),
		"last_updated": saved.LastUpdated.Format(time.RFC3339),
	}).Info("Loaded adventure journal")

	return saved.Messages, nil
}

// Save replaces the journal with messages
func (j *Journal) Save(messages []story.GameMessage) error {
	saved := savedAdventure{
		Messages:      messages,
		LastUpdated:   time.Now(),
		TotalMessages: len(messages),
	}

	file, err := j.fs.Create(j.path)
	if err != nil {
		return fmt.Errorf("failed to create journal file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(saved); err != nil {
		return fmt.Errorf("failed to encode journal: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"messages": len(messages),
		"file":     j.path,
	}).Debug("Saved adventure journal")

	return nil
}

// Clear removes the journal file
func (j *Journal) Clear() error {
	if err := j.fs.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	logrus.Info("Cleared adventure journal")
	return nil
}

// Info returns information about the journal
func (j *Journal) Info() Info {
	info := Info{Path: j.path, MaxAge: j.maxAge}

	if stat, err := j.fs.Stat(j.path); err == nil {
		info.Exists = true
		info.Size = stat.Size()
		info.LastModified = stat.ModTime()
		info.IsFresh = j.isFresh()
	}

	return info
}

package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"storyvoice/internal/domain/story"
)

func TestSaveLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	j := New(fs, "/data/journal.json", time.Hour)

	messages := []story.GameMessage{
		{ID: "a", Role: story.RoleAssistant, Content: "The lights die.", Image: "/img/a.png"},
		{ID: "b", Role: story.RoleUser, Content: "I light a match"},
	}
	if err := j.Save(messages); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := j.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 || got[0].Image != "/img/a.png" || got[1].Role != story.RoleUser {
		t.Errorf("Load() = %+v", got)
	}

	info := j.Info()
	if !info.Exists || !info.IsFresh || info.Size == 0 {
		t.Errorf("Info() = %+v", info)
	}
}

func TestLoadMissing(t *testing.T) {
	j := New(afero.NewMemMapFs(), "/data/journal.json", time.Hour)
	if _, err := j.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
	if info := j.Info(); info.Exists {
		t.Errorf("Info() = %+v, want missing", info)
	}
}

func TestLoadStale(t *testing.T) {
	fs := afero.NewMemMapFs()
	j := New(fs, "/data/journal.json", time.Hour)
	if err := j.Save([]story.GameMessage{{ID: "a"}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := fs.Chtimes("/data/journal.json", old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	if _, err := j.Load(); !errors.Is(err, ErrStale) {
		t.Errorf("Load() error = %v, want ErrStale", err)
	}
	if info := j.Info(); !info.Exists || info.IsFresh {
		t.Errorf("Info() = %+v, want existing but stale", info)
	}

	// zero max age never expires
	if _, err := New(fs, "/data/journal.json", 0).Load(); err != nil {
		t.Errorf("Load() without max age error = %v", err)
	}
}

func TestClear(t *testing.T) {
	fs := afero.NewMemMapFs()
	j := New(fs, "/data/journal.json", time.Hour)
	if err := j.Save(nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := j.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := j.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
	if _, err := j.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Clear error = %v, want ErrNotFound", err)
	}
}

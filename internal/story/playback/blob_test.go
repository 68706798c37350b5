package playback

import (
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestBlobStoreLifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewBlobStore(fs, "/tmp/blobs")

	ref, err := store.Create(&Buffer{Data: []byte("Hello"), MimeType: MimeMPEG})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasSuffix(ref, ".mp3") {
		t.Errorf("ref %q should carry the mp3 extension", ref)
	}
	if store.Live() != 1 {
		t.Errorf("Live() = %d, want 1", store.Live())
	}

	rc, err := store.Open(ref)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "Hello" {
		t.Errorf("blob contents = %q, want Hello", data)
	}

	if err := store.Revoke(ref); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := store.Revoke(ref); err != nil {
		t.Errorf("second Revoke() error = %v", err)
	}
	if store.Live() != 0 {
		t.Errorf("Live() = %d, want 0", store.Live())
	}
	if _, err := store.Open(ref); err == nil {
		t.Error("expected Open on a revoked blob to fail")
	}
	if exists, _ := afero.Exists(fs, ref); exists {
		t.Error("revoked blob still on disk")
	}
}

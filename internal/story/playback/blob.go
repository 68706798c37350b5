package playback

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// BlobStore hands out revocable file references for buffers, the equivalent
// of an object URL. Every Create must be paired with a Revoke.
type BlobStore struct {
	fs  afero.Fs
	dir string

	mu   sync.Mutex
	live map[string]struct{}
}

// NewBlobStore creates a store rooted at dir on fs.
func NewBlobStore(fs afero.Fs, dir string) *BlobStore {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		logrus.WithError(err).WithField("dir", dir).Warn("Failed to create blob directory")
	}
	return &BlobStore{
		fs:   fs,
		dir:  dir,
		live: make(map[string]struct{}),
	}
}

// Create writes buf and returns its reference.
func (b *BlobStore) Create(buf *Buffer) (string, error) {
	ref := filepath.Join(b.dir, uuid.NewString()+extensionFor(buf.MimeType))
	if err := afero.WriteFile(b.fs, ref, buf.Data, 0600); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", ref, err)
	}

	b.mu.Lock()
	b.live[ref] = struct{}{}
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"ref":       ref,
		"mime_type": buf.MimeType,
		"size":      len(buf.Data),
	}).Debug("Blob created")
	return ref, nil
}

// Open reads a live blob.
func (b *BlobStore) Open(ref string) (io.ReadCloser, error) {
	b.mu.Lock()
	_, ok := b.live[ref]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("blob %s is not live", ref)
	}
	return b.fs.Open(ref)
}

// Revoke releases ref. Revoking an unknown or already revoked reference is a no-op.
func (b *BlobStore) Revoke(ref string) error {
	b.mu.Lock()
	_, ok := b.live[ref]
	delete(b.live, ref)
	b.mu.Unlock()

	if !ok {
		return nil
	}
	if err := b.fs.Remove(ref); err != nil {
		return fmt.Errorf("failed to revoke blob %s: %w", ref, err)
	}
	logrus.WithField("ref", ref).Debug("Blob revoked")
	return nil
}

// Live reports the number of references not yet revoked.
func (b *BlobStore) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case MimeMPEG:
		return ".mp3"
	case MimeWAV:
		return ".wav"
	case MimeOGG:
		return ".ogg"
	default:
		return ".bin"
	}
}

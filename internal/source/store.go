// Package source loads the channel playlist and programme guide from their
// configured URLs, keeping a verbatim copy of each download on disk so the
// next start can present data before any network round trip.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Store is the on-disk blob cache. One file per source URL; the URL is
// hashed into the name so rotating sources never collide.
type Store struct {
	dir string
}

// NewStore opens a blob store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("source: blob dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func urlHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// PlaylistPath is where the raw playlist for url lives on disk.
func (s *Store) PlaylistPath(url string) string {
	return filepath.Join(s.dir, "channels_"+urlHash(url)+".m3u")
}

// GuidePath is where the raw guide document for url lives on disk.
func (s *Store) GuidePath(url string) string {
	return filepath.Join(s.dir, "epg_"+urlHash(url)+".xmltv")
}

// ReadPlaylist returns the cached playlist blob for url, or an error
// satisfying os.IsNotExist when none is cached.
func (s *Store) ReadPlaylist(url string) ([]byte, error) {
	return os.ReadFile(s.PlaylistPath(url))
}

// ReadGuide returns the cached guide blob for url.
func (s *Store) ReadGuide(url string) ([]byte, error) {
	return os.ReadFile(s.GuidePath(url))
}

// WritePlaylist replaces the cached playlist blob for url.
func (s *Store) WritePlaylist(url string, data []byte) error {
	return s.writeAtomic(s.PlaylistPath(url), data)
}

// WriteGuide replaces the cached guide blob for url.
func (s *Store) WriteGuide(url string, data []byte) error {
	return s.writeAtomic(s.GuidePath(url), data)
}

// writeAtomic writes via temp file and rename so a crash mid-write leaves
// the previous blob intact.
func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("source: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("source: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("source: write %s: %w", path, err)
	}
	return nil
}

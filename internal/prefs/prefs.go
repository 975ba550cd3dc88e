// Package prefs persists small key/value settings (source URLs, the last
// watched channel, refresh bookkeeping) in a local SQLite database.
package prefs

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// Well-known keys.
const (
	KeyLiveSourceURL     = "live_source_url"
	KeyEPGSourceURL      = "epg_source_url"
	KeyLastChannel       = "last_channel"
	KeyLastChannelURL    = "last_channel_url"
	KeyPlaylistCacheFile = "playlist_cache_file"
	KeyLastEPGRefresh    = "last_epg_refresh"
)

const schema = `CREATE TABLE IF NOT EXISTS prefs (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// Store is a SQLite-backed settings store. Safe for concurrent use;
// database/sql serializes access to the single connection pool.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefs: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the value for key, or "" when unset.
func (s *Store) Get(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return v, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO prefs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM prefs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("prefs: delete %s: %w", key, err)
	}
	return nil
}

// LiveSourceURL returns the configured playlist URL, or "".
func (s *Store) LiveSourceURL() (string, error) { return s.Get(KeyLiveSourceURL) }

// SetLiveSourceURL stores the playlist URL.
func (s *Store) SetLiveSourceURL(url string) error { return s.Set(KeyLiveSourceURL, url) }

// EPGSourceURL returns the configured guide URL, or "".
func (s *Store) EPGSourceURL() (string, error) { return s.Get(KeyEPGSourceURL) }

// SetEPGSourceURL stores the guide URL.
func (s *Store) SetEPGSourceURL(url string) error { return s.Set(KeyEPGSourceURL, url) }

// LastChannel returns the title and URL of the channel last tuned, or "".
func (s *Store) LastChannel() (title, url string, err error) {
	title, err = s.Get(KeyLastChannel)
	if err != nil {
		return "", "", err
	}
	url, err = s.Get(KeyLastChannelURL)
	return title, url, err
}

// SetLastChannel remembers the channel last tuned so the next session can
// resume on it.
func (s *Store) SetLastChannel(title, url string) error {
	if err := s.Set(KeyLastChannel, title); err != nil {
		return err
	}
	return s.Set(KeyLastChannelURL, url)
}

// SetPlaylistCacheFile records where the raw playlist blob lives on disk.
func (s *Store) SetPlaylistCacheFile(path string) error {
	return s.Set(KeyPlaylistCacheFile, path)
}

// PlaylistCacheFile returns the recorded playlist blob path, or "".
func (s *Store) PlaylistCacheFile() (string, error) { return s.Get(KeyPlaylistCacheFile) }

// LastEPGRefresh returns when the guide was last refreshed, zero if never.
func (s *Store) LastEPGRefresh() (time.Time, error) {
	v, err := s.Get(KeyLastEPGRefresh)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	millis, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("prefs: bad %s value %q", KeyLastEPGRefresh, v)
	}
	return time.UnixMilli(millis), nil
}

// SetLastEPGRefresh records a successful guide refresh instant.
func (s *Store) SetLastEPGRefresh(t time.Time) error {
	return s.Set(KeyLastEPGRefresh, strconv.FormatInt(t.UnixMilli(), 10))
}

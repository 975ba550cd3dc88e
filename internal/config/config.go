// Package config reads settings from IPTV_* environment variables, with an
// optional .env file loaded on top.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds source URLs, storage paths and fetch tuning.
type Config struct {
	// Sources
	LiveSourceURL string // M3U playlist URL
	EPGSourceURL  string // XMLTV guide URL

	// Paths (all under DataDir unless overridden)
	DataDir   string // e.g. /var/lib/iptv-core
	SourceDir string // raw playlist/guide blobs
	LogoDir   string // scaled artwork files
	PrefsPath string // settings database

	// Artwork
	LogoBoxWidth  int
	LogoBoxHeight int

	// Network
	FetchTimeout time.Duration

	// MetricsAddr exposes /metrics when non-empty, e.g. ":9180".
	MetricsAddr string
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load()
// to use a .env file.
func Load() *Config {
	c := &Config{
		LiveSourceURL: os.Getenv("IPTV_LIVE_SOURCE_URL"),
		EPGSourceURL:  os.Getenv("IPTV_EPG_SOURCE_URL"),
		DataDir:       getEnv("IPTV_DATA_DIR", "./data"),
		SourceDir:     os.Getenv("IPTV_SOURCE_DIR"),
		LogoDir:       os.Getenv("IPTV_LOGO_DIR"),
		PrefsPath:     os.Getenv("IPTV_PREFS_PATH"),
		LogoBoxWidth:  getEnvInt("IPTV_LOGO_WIDTH", 160),
		LogoBoxHeight: getEnvInt("IPTV_LOGO_HEIGHT", 100),
		FetchTimeout:  getEnvDuration("IPTV_FETCH_TIMEOUT", 45*time.Second),
		MetricsAddr:   os.Getenv("IPTV_METRICS_ADDR"),
	}
	if c.SourceDir == "" {
		c.SourceDir = filepath.Join(c.DataDir, "sources")
	}
	if c.LogoDir == "" {
		c.LogoDir = filepath.Join(c.DataDir, "logos")
	}
	if c.PrefsPath == "" {
		c.PrefsPath = filepath.Join(c.DataDir, "prefs.db")
	}
	if c.LogoBoxWidth <= 0 {
		c.LogoBoxWidth = 160
	}
	if c.LogoBoxHeight <= 0 {
		c.LogoBoxHeight = 100
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 45 * time.Second
	}
	return c
}

// Validate checks the parts that have no workable default.
func (c *Config) Validate() error {
	if err := checkHTTPURL("IPTV_LIVE_SOURCE_URL", c.LiveSourceURL); err != nil {
		return err
	}
	if c.EPGSourceURL != "" {
		if err := checkHTTPURL("IPTV_EPG_SOURCE_URL", c.EPGSourceURL); err != nil {
			return err
		}
	}
	return nil
}

func checkHTTPURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("config: %s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config: %s must be an http(s) URL, got %q", name, raw)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

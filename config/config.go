// Package config loads environment variables and provides a typed Config
// used across the service. It applies sensible defaults so the binary can
// run locally with minimal setup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Twitch
	TwitchChannel      string
	TwitchClientID     string
	TwitchClientSecret string

	// VOD anchoring. When TWITCH_VOD_ID is set and Helix credentials are
	// available, the VOD's recording start overrides VODStart.
	TwitchVODID string
	VODStart    time.Time

	// Log source
	LogSourceURL string

	// Emotes
	EmoteAPIURL string

	// Database. Empty disables the archive.
	DBDsn string

	// HTTP
	HTTPAddr string

	// Replay
	WindowLimit    int
	HighlightTerms []string
}

// Load reads environment variables and applies defaults. It doesn't fail
// when Twitch credentials are missing; without them VOD metadata lookup and
// channel emote sets are simply disabled.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchChannel = os.Getenv("CHAT_CHANNEL")
	if cfg.TwitchChannel == "" {
		return nil, fmt.Errorf("CHAT_CHANNEL is required")
	}
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")

	cfg.TwitchVODID = os.Getenv("TWITCH_VOD_ID")
	if v := os.Getenv("VOD_START"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid VOD_START (RFC3339): %w", err)
		}
		cfg.VODStart = t.UTC()
	}

	cfg.LogSourceURL = os.Getenv("LOG_SOURCE_URL")
	if cfg.LogSourceURL == "" {
		cfg.LogSourceURL = "https://logs.ivr.fi"
	}

	cfg.EmoteAPIURL = os.Getenv("EMOTE_API_URL")
	if cfg.EmoteAPIURL == "" {
		cfg.EmoteAPIURL = "https://7tv.io"
	}

	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.WindowLimit = 150
	if v := os.Getenv("WINDOW_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WINDOW_LIMIT %q", v)
		}
		cfg.WindowLimit = n
	}

	if v := os.Getenv("HIGHLIGHT_TERMS"); v != "" {
		for _, term := range strings.Split(v, ",") {
			if term = strings.TrimSpace(term); term != "" {
				cfg.HighlightTerms = append(cfg.HighlightTerms, term)
			}
		}
	}

	return cfg, nil
}

// HelixReady reports whether Helix credentials are configured.
func (c *Config) HelixReady() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

// Package config loads and validates Cratedig configuration.
//
// Configuration is layered via Koanf v2 (highest priority wins):
//  1. Environment variables (DISCOGS_TOKEN, HTTP_PORT, ...)
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Built-in defaults
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration for the Cratedig server.
type Config struct {
	Discogs DiscogsConfig `koanf:"discogs"`
	Sync    SyncConfig    `koanf:"sync"`
	Storage StorageConfig `koanf:"storage"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// DiscogsConfig holds Discogs API credentials and client tuning.
//
// Authentication uses a personal access token by default. When ProxyURL is
// set, requests are routed through a forwarding proxy that receives the
// credentials in X-Forward-* headers instead; retry and pacing semantics are
// unchanged.
type DiscogsConfig struct {
	Token     string `koanf:"token"`
	ProxyURL  string `koanf:"proxy_url"`
	UserAgent string `koanf:"user_agent"`

	// RequestTimeout is the hard per-request timeout.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// MinInterval is the minimum spacing between consecutive requests.
	// Discogs publishes 60 req/min for authenticated clients; 1.1s keeps a
	// safety margin under that.
	MinInterval time.Duration `koanf:"min_interval"`

	// MaxPerWindow is the rolling per-minute request quota.
	MaxPerWindow int           `koanf:"max_per_window"`
	Window       time.Duration `koanf:"window"`

	// MaxRetries is the retry budget beyond the first attempt.
	MaxRetries int `koanf:"max_retries"`

	// RetryBaseDelay and RetryMaxDelay bound the exponential backoff.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay  time.Duration `koanf:"retry_max_delay"`
}

// SyncConfig tunes the inventory sync pipeline.
type SyncConfig struct {
	// PageSize is the inventory page size (Discogs maximum is 100).
	PageSize int `koanf:"page_size"`

	// MaxPages bounds pagination against provider pathologies such as
	// pagination loops.
	MaxPages int `koanf:"max_pages"`

	// FailureThreshold stops an enrichment run early once this many release
	// detail fetches have failed, persisting what was enriched so far.
	FailureThreshold int `koanf:"failure_threshold"`

	// FlushEvery bounds the data-loss window: enriched releases are flushed
	// to the repository at least every N items.
	FlushEvery int `koanf:"flush_every"`

	// JobRetention is the age past which stale job records are
	// garbage-collected at startup.
	JobRetention time.Duration `koanf:"job_retention"`

	// TerminalGrace is how long terminal job records stay readable before
	// removal, so the UI can render the final state.
	TerminalGrace time.Duration `koanf:"terminal_grace"`
}

// StorageConfig holds persistence paths.
type StorageConfig struct {
	// Path is the BadgerDB directory holding sellers, jobs and settings.
	Path string `koanf:"path"`

	// InMemory runs Badger without disk persistence. Tests only.
	InMemory bool `koanf:"in_memory"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	// RateLimitReqs/RateLimitWindow throttle inbound API clients.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateDiscogs(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

// validateDiscogs validates the Discogs client configuration. The token is
// deliberately NOT required here: a missing token is surfaced per-request as
// a non-retryable credentials error so the dashboard can start without one
// and prompt the user.
func (c *Config) validateDiscogs() error {
	if c.Discogs.ProxyURL != "" {
		u, err := url.Parse(c.Discogs.ProxyURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("DISCOGS_PROXY_URL must be a valid http(s) URL, got %q", c.Discogs.ProxyURL)
		}
	}
	if c.Discogs.MinInterval <= 0 {
		return fmt.Errorf("DISCOGS_MIN_INTERVAL must be positive, got %s", c.Discogs.MinInterval)
	}
	if c.Discogs.MaxPerWindow <= 0 {
		return fmt.Errorf("DISCOGS_MAX_PER_WINDOW must be positive, got %d", c.Discogs.MaxPerWindow)
	}
	if c.Discogs.Window <= 0 {
		return fmt.Errorf("DISCOGS_WINDOW must be positive, got %s", c.Discogs.Window)
	}
	if c.Discogs.MaxRetries < 0 {
		return fmt.Errorf("DISCOGS_MAX_RETRIES must not be negative, got %d", c.Discogs.MaxRetries)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.PageSize < 1 || c.Sync.PageSize > 100 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 100, got %d", c.Sync.PageSize)
	}
	if c.Sync.MaxPages < 1 {
		return fmt.Errorf("SYNC_MAX_PAGES must be positive, got %d", c.Sync.MaxPages)
	}
	if c.Sync.FailureThreshold < 1 {
		return fmt.Errorf("SYNC_FAILURE_THRESHOLD must be positive, got %d", c.Sync.FailureThreshold)
	}
	if c.Sync.FlushEvery < 1 {
		return fmt.Errorf("SYNC_FLUSH_EVERY must be positive, got %d", c.Sync.FlushEvery)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace/debug/info/warn/error/fatal, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

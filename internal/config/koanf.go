// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cratedig/config.yaml",
	"/etc/cratedig/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are
// overridden by config file and environment variables in that order.
func defaultConfig() *Config {
	return &Config{
		Discogs: DiscogsConfig{
			Token:          "",
			ProxyURL:       "",
			UserAgent:      "Cratedig/1.0 +https://github.com/cratedig/cratedig",
			RequestTimeout: 30 * time.Second,
			MinInterval:    1100 * time.Millisecond,
			MaxPerWindow:   55, // Discogs allows 60/min; stay conservative
			Window:         time.Minute,
			MaxRetries:     3,
			RetryBaseDelay: 2 * time.Second,
			RetryMaxDelay:  120 * time.Second,
		},
		Sync: SyncConfig{
			PageSize:         100,
			MaxPages:         100,
			FailureThreshold: 10,
			FlushEvery:       10,
			JobRetention:     24 * time.Hour,
			TerminalGrace:    5 * time.Second,
		},
		Storage: StorageConfig{
			Path:     "/data/cratedig",
			InMemory: false,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            7645,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches the env override and then the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when they arrive as env var strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings; YAML values are already
// slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - DISCOGS_TOKEN       -> discogs.token
//   - DISCOGS_PROXY_URL   -> discogs.proxy_url
//   - SYNC_PAGE_SIZE      -> sync.page_size
//   - HTTP_PORT           -> server.port
//   - LOG_LEVEL           -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"discogs_token":           "discogs.token",
		"discogs_proxy_url":       "discogs.proxy_url",
		"discogs_user_agent":      "discogs.user_agent",
		"discogs_request_timeout": "discogs.request_timeout",
		"discogs_min_interval":    "discogs.min_interval",
		"discogs_max_per_window":  "discogs.max_per_window",
		"discogs_window":          "discogs.window",
		"discogs_max_retries":     "discogs.max_retries",
		"discogs_retry_base":      "discogs.retry_base_delay",
		"discogs_retry_max":       "discogs.retry_max_delay",

		"sync_page_size":         "sync.page_size",
		"sync_max_pages":         "sync.max_pages",
		"sync_failure_threshold": "sync.failure_threshold",
		"sync_flush_every":       "sync.flush_every",
		"sync_job_retention":     "sync.job_retention",
		"sync_terminal_grace":    "sync.terminal_grace",

		"storage_path":      "storage.path",
		"storage_in_memory": "storage.in_memory",

		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_timeout":          "server.timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",
		"cors_origins":          "server.cors_origins",
		"rate_limit_reqs":       "server.rate_limit_reqs",
		"rate_limit_window":     "server.rate_limit_window",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are ignored rather than guessed at; returning an
	// empty path makes koanf skip the key.
	return ""
}

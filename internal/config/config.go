// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for ilmchat.
//
// Configuration is read from ~/.ilmchat/config.toml with sensible defaults
// and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete ilmchat configuration.
type Config struct {
	// API configuration
	API APIConfig `toml:"api"`

	// Sync configuration
	Sync SyncConfig `toml:"sync"`

	// Chat configuration
	Chat ChatConfig `toml:"chat"`

	// DataDir holds the local sqlite store. Default: ~/.ilmchat
	DataDir string `toml:"data_dir"`

	// Debug enables verbose logging.
	Debug bool `toml:"debug"`
}

// APIConfig holds backend endpoint settings.
type APIConfig struct {
	// BaseURL is the backend base URL, e.g. "https://api.example.org"
	BaseURL string `toml:"base_url"`

	// TimeoutSecs applies to non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs"`

	// MaxRetries is the retry budget for transient (5xx) failures on
	// non-streaming requests. Streaming requests never retry.
	MaxRetries int `toml:"max_retries"`
}

// Timeout returns the request timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SyncConfig holds freshness settings for the local cache.
type SyncConfig struct {
	// ConversationTTLMinutes is the staleness TTL for the conversation list.
	ConversationTTLMinutes int `toml:"conversation_ttl_minutes"`

	// MessageTTLMinutes is the per-conversation staleness TTL for messages.
	MessageTTLMinutes int `toml:"message_ttl_minutes"`

	// RemoteFetchesPerMinute caps background remote fetches regardless
	// of TTL expiry. Zero disables the cap.
	RemoteFetchesPerMinute int `toml:"remote_fetches_per_minute"`
}

// ConversationTTL returns the conversation-list TTL as a duration.
func (c SyncConfig) ConversationTTL() time.Duration {
	return time.Duration(c.ConversationTTLMinutes) * time.Minute
}

// MessageTTL returns the per-conversation message TTL as a duration.
func (c SyncConfig) MessageTTL() time.Duration {
	return time.Duration(c.MessageTTLMinutes) * time.Minute
}

// ChatConfig holds streaming/chat settings.
type ChatConfig struct {
	// Streaming selects the SSE endpoint; when false the blocking
	// /api/chat endpoint is used instead.
	Streaming bool `toml:"streaming"`

	// EnableThinking requests "thinking" events from the backend.
	EnableThinking bool `toml:"enable_thinking"`

	// LanguagePreference overrides the locale-derived language code.
	LanguagePreference string `toml:"language_preference"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     "https://api.ilmchat.app",
			TimeoutSecs: 60,
			MaxRetries:  3,
		},
		Sync: SyncConfig{
			ConversationTTLMinutes: 5,
			MessageTTLMinutes:      5,
			RemoteFetchesPerMinute: 30,
		},
		Chat: ChatConfig{
			Streaming:      true,
			EnableThinking: false,
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// DefaultPath returns ~/.ilmchat/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ilmchat", "config.toml"), nil
}

// Load reads the config file at path, layering it over the defaults and
// then applying environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = filepath.Join(home, ".ilmchat")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies ILMCHAT_* environment overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ILMCHAT_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("ILMCHAT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ILMCHAT_LANGUAGE"); v != "" {
		cfg.Chat.LanguagePreference = v
	}
	if os.Getenv("ILMCHAT_DEBUG") == "1" {
		cfg.Debug = true
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid api.base_url %q", c.API.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url must be http or https, got %q", parsed.Scheme)
	}
	if c.Sync.ConversationTTLMinutes < 0 || c.Sync.MessageTTLMinutes < 0 {
		return errors.New("sync TTLs must not be negative")
	}
	if c.API.TimeoutSecs <= 0 {
		return errors.New("api.timeout_secs must be positive")
	}
	return nil
}

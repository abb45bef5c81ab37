// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, 5*time.Minute, cfg.Sync.ConversationTTL())
	require.Equal(t, 5*time.Minute, cfg.Sync.MessageTTL())
	require.True(t, cfg.Chat.Streaming, "streaming should default to on")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ILMCHAT_DATA_DIR", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, Default().API.BaseURL, cfg.API.BaseURL)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("ILMCHAT_DATA_DIR", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
debug = true

[api]
base_url = "https://qa.example.org"
timeout_secs = 30
max_retries = 1

[sync]
conversation_ttl_minutes = 10
message_ttl_minutes = 2

[chat]
streaming = false
language_preference = "ar"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://qa.example.org", cfg.API.BaseURL)
	require.Equal(t, 30*time.Second, cfg.API.Timeout())
	require.Equal(t, 10*time.Minute, cfg.Sync.ConversationTTL())
	require.Equal(t, 2*time.Minute, cfg.Sync.MessageTTL())
	require.False(t, cfg.Chat.Streaming)
	require.Equal(t, "ar", cfg.Chat.LanguagePreference)
	require.True(t, cfg.Debug)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ILMCHAT_DATA_DIR", t.TempDir())
	t.Setenv("ILMCHAT_API_URL", "http://localhost:8080")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
}

func TestValidate_BadURL(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "ftp://example.org"
	require.Error(t, cfg.Validate(), "ftp scheme should fail validation")

	cfg.API.BaseURL = "not a url"
	require.Error(t, cfg.Validate(), "garbage URL should fail validation")
}

func TestValidate_NegativeTTL(t *testing.T) {
	cfg := Default()
	cfg.Sync.ConversationTTLMinutes = -1
	require.Error(t, cfg.Validate())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 4, cfg.Walk.PostsPerProfile)
	assert.Equal(t, 2, cfg.Walk.ReelsPerProfile)
	assert.Equal(t, "both", cfg.Walk.ContentType)
	assert.Equal(t, 0, cfg.Walk.MinSuccess)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.MinInterval)
	assert.True(t, cfg.Session.Reuse)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
walk:
  posts_per_profile: 10
  content_type: posts
rate_limit:
  min_interval: 3s
session:
  reuse: false
  ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, 10, cfg.Walk.PostsPerProfile)
	assert.Equal(t, "posts", cfg.Walk.ContentType)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.MinInterval)
	assert.False(t, cfg.Session.Reuse)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	// untouched fields keep their defaults
	assert.Equal(t, 2, cfg.Walk.ReelsPerProfile)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("IGWALKER_POSTS_PER_PROFILE", "7")
	t.Setenv("IGWALKER_CONTENT_TYPE", "reels")
	t.Setenv("IGWALKER_SESSION_REUSE", "false")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 7, cfg.Walk.PostsPerProfile)
	assert.Equal(t, "reels", cfg.Walk.ContentType)
	assert.False(t, cfg.Session.Reuse)
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("IGWALKER_POSTS_PER_PROFILE", "many")

	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromEnv())
}

func TestFlagOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.applyFlags(map[string]interface{}{
		"posts":      1,
		"reels":      9,
		"no-session": true,
		"log-level":  "debug",
	})

	assert.Equal(t, 1, cfg.Walk.PostsPerProfile)
	assert.Equal(t, 9, cfg.Walk.ReelsPerProfile)
	assert.False(t, cfg.Session.Reuse)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative posts", func(c *Config) { c.Walk.PostsPerProfile = -1 }},
		{"bad content type", func(c *Config) { c.Walk.ContentType = "stories" }},
		{"zero base delay", func(c *Config) { c.Retry.BaseDelay = 0 }},
		{"max below base", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a walk run.
type Config struct {
	// Walk quotas and content selection
	Walk WalkConfig `yaml:"walk" json:"walk"`

	// Per-profile rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry/backoff policy
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Session lifecycle
	Session SessionConfig `yaml:"session" json:"session"`

	// Durable checkpoint store
	Store StoreConfig `yaml:"store" json:"store"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// WalkConfig holds quotas and run-level thresholds.
type WalkConfig struct {
	PostsPerProfile int    `yaml:"posts_per_profile" json:"posts_per_profile"`
	ReelsPerProfile int    `yaml:"reels_per_profile" json:"reels_per_profile"`
	ContentType     string `yaml:"content_type" json:"content_type"`
	// MinSuccess is the number of profiles that must succeed for a
	// zero exit status. 0 means all requested profiles.
	MinSuccess int `yaml:"min_success" json:"min_success"`
}

// RateLimitConfig bounds request frequency per profile.
type RateLimitConfig struct {
	MinInterval   time.Duration `yaml:"min_interval" json:"min_interval"`
	MaxExtraDelay time.Duration `yaml:"max_extra_delay" json:"max_extra_delay"`
}

// UnmarshalYAML accepts durations in time.ParseDuration form ("10s").
func (r *RateLimitConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MinInterval   string `yaml:"min_interval"`
		MaxExtraDelay string `yaml:"max_extra_delay"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if err := setDuration(&r.MinInterval, raw.MinInterval); err != nil {
		return fmt.Errorf("min_interval: %w", err)
	}
	if err := setDuration(&r.MaxExtraDelay, raw.MaxExtraDelay); err != nil {
		return fmt.Errorf("max_extra_delay: %w", err)
	}
	return nil
}

// RetryConfig parameterises the backoff policy.
type RetryConfig struct {
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay" json:"max_delay"`
}

func (r *RetryConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseDelay string `yaml:"base_delay"`
		MaxDelay  string `yaml:"max_delay"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if err := setDuration(&r.BaseDelay, raw.BaseDelay); err != nil {
		return fmt.Errorf("base_delay: %w", err)
	}
	if err := setDuration(&r.MaxDelay, raw.MaxDelay); err != nil {
		return fmt.Errorf("max_delay: %w", err)
	}
	return nil
}

// SessionConfig controls session persistence and refresh.
type SessionConfig struct {
	// Reuse enables loading a persisted session before logging in.
	Reuse bool `yaml:"reuse" json:"reuse"`
	// TTL is the expiry hint: a persisted session older than this is
	// not trusted optimistically.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// MaxRefreshAttempts bounds Stale -> Authenticating cycles before
	// the session is abandoned.
	MaxRefreshAttempts int `yaml:"max_refresh_attempts" json:"max_refresh_attempts"`
}

func (s *SessionConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Reuse              *bool  `yaml:"reuse"`
		TTL                string `yaml:"ttl"`
		MaxRefreshAttempts *int   `yaml:"max_refresh_attempts"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Reuse != nil {
		s.Reuse = *raw.Reuse
	}
	if err := setDuration(&s.TTL, raw.TTL); err != nil {
		return fmt.Errorf("ttl: %w", err)
	}
	if raw.MaxRefreshAttempts != nil {
		s.MaxRefreshAttempts = *raw.MaxRefreshAttempts
	}
	return nil
}

// setDuration parses a duration string into dst, leaving dst alone
// when the field was absent.
func setDuration(dst *time.Duration, s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// StoreConfig locates the checkpoint database.
type StoreConfig struct {
	// Path to the SQLite database file. Empty selects the platform
	// data directory default.
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config with sensible defaults, mirroring
// the original tool's constants (4 posts, 2 reels, 10-15s between
// remote operations).
func DefaultConfig() *Config {
	return &Config{
		Walk: WalkConfig{
			PostsPerProfile: 4,
			ReelsPerProfile: 2,
			ContentType:     "both",
			MinSuccess:      0,
		},
		RateLimit: RateLimitConfig{
			MinInterval:   10 * time.Second,
			MaxExtraDelay: 5 * time.Second,
		},
		Retry: RetryConfig{
			BaseDelay: 2 * time.Second,
			MaxDelay:  2 * time.Minute,
		},
		Session: SessionConfig{
			Reuse:              true,
			TTL:                24 * time.Hour,
			MaxRefreshAttempts: 2,
		},
		Store: StoreConfig{
			Path: "",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Load builds the effective configuration: defaults, then config
// file, then environment, then command line flags.
func Load(path string, flags map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()

	// .env in the working directory, if present
	_ = godotenv.Load()

	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.applyFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file. An empty path
// searches the standard locations; a missing file is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv applies IGWALKER_* environment overrides.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("IGWALKER_POSTS_PER_PROFILE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid IGWALKER_POSTS_PER_PROFILE: %w", err)
		}
		c.Walk.PostsPerProfile = n
	}
	if v := os.Getenv("IGWALKER_REELS_PER_PROFILE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid IGWALKER_REELS_PER_PROFILE: %w", err)
		}
		c.Walk.ReelsPerProfile = n
	}
	if v := os.Getenv("IGWALKER_CONTENT_TYPE"); v != "" {
		c.Walk.ContentType = v
	}
	if v := os.Getenv("IGWALKER_MIN_SUCCESS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid IGWALKER_MIN_SUCCESS: %w", err)
		}
		c.Walk.MinSuccess = n
	}
	if v := os.Getenv("IGWALKER_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("IGWALKER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IGWALKER_SESSION_REUSE"); v != "" {
		c.Session.Reuse = strings.ToLower(v) == "true" || v == "1"
	}
	return nil
}

// applyFlags merges command line flag overrides.
func (c *Config) applyFlags(flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "posts":
			if v, ok := value.(int); ok {
				c.Walk.PostsPerProfile = v
			}
		case "reels":
			if v, ok := value.(int); ok {
				c.Walk.ReelsPerProfile = v
			}
		case "content-type":
			if v, ok := value.(string); ok {
				c.Walk.ContentType = v
			}
		case "min-success":
			if v, ok := value.(int); ok {
				c.Walk.MinSuccess = v
			}
		case "no-session":
			if v, ok := value.(bool); ok && v {
				c.Session.Reuse = false
			}
		case "store":
			if v, ok := value.(string); ok {
				c.Store.Path = v
			}
		case "min-interval":
			if v, ok := value.(time.Duration); ok {
				c.RateLimit.MinInterval = v
			}
		case "log-level":
			if v, ok := value.(string); ok {
				c.Logging.Level = v
			}
		}
	}
}

// findConfigFile searches standard locations.
func (c *Config) findConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".igwalker.yaml",
		".igwalker.yml",
		filepath.Join(home, ".config", "igwalker", "config.yaml"),
		filepath.Join(home, ".config", "igwalker", "config.yml"),
		filepath.Join(home, ".igwalker.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Walk.PostsPerProfile < 0 {
		errs = append(errs, errors.New("posts per profile cannot be negative"))
	}
	if c.Walk.ReelsPerProfile < 0 {
		errs = append(errs, errors.New("reels per profile cannot be negative"))
	}
	switch strings.ToLower(c.Walk.ContentType) {
	case "posts", "reels", "both":
	default:
		errs = append(errs, fmt.Errorf("invalid content type %q", c.Walk.ContentType))
	}
	if c.Walk.MinSuccess < 0 {
		errs = append(errs, errors.New("min success cannot be negative"))
	}

	if c.RateLimit.MinInterval < 0 {
		errs = append(errs, errors.New("rate limit interval cannot be negative"))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, errors.New("retry base delay must be positive"))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry max delay must be at least the base delay"))
	}

	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.Session.MaxRefreshAttempts < 0 {
		errs = append(errs, errors.New("session refresh attempts cannot be negative"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "disabled":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}

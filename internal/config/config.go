// Package config loads the chat client's settings from defaults, an optional
// TOML file, and MENTIONCHAT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the client configuration.
type Config struct {
	Endpoint     string `toml:"endpoint"`
	RetryDelayMS int    `toml:"retry_delay_ms"`
	MaxRetries   int    `toml:"max_retries"`

	Nickname    string `toml:"nickname"`
	CaretPolicy string `toml:"caret_policy"`
	Notify      bool   `toml:"notify"`

	StatePath   string `toml:"state_path"`
	LogFile     string `toml:"log_file"`
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`
}

const (
	defaultEndpoint     = "ws://127.0.0.1:8080/ws"
	defaultRetryDelayMS = 5000
	defaultMaxRetries   = 10
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "~/.mentionchat/config.toml"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint:     defaultEndpoint,
		RetryDelayMS: defaultRetryDelayMS,
		MaxRetries:   defaultMaxRetries,
		CaretPolicy:  "end",
		StatePath:    "~/.mentionchat/state.db",
		LogFile:      "~/.mentionchat/chat.log",
		LogLevel:     "info",
	}
}

// RetryDelay returns the retry delay as a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// Load builds the configuration. A missing file at path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		expanded, err := ExpandHome(path)
		if err != nil {
			return Config{}, err
		}
		if _, err := toml.DecodeFile(expanded, &cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", expanded, err)
			}
		}
	}

	applyEnv(&cfg)
	return Sanitize(cfg)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MENTIONCHAT_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("MENTIONCHAT_RETRY_DELAY_MS"); v != "" {
		cfg.RetryDelayMS = parseIntValue(v, cfg.RetryDelayMS)
	}
	if v := os.Getenv("MENTIONCHAT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("MENTIONCHAT_NICK"); v != "" {
		cfg.Nickname = v
	}
	if v := os.Getenv("MENTIONCHAT_CARET"); v != "" {
		cfg.CaretPolicy = v
	}
	if v := os.Getenv("MENTIONCHAT_NOTIFY"); v != "" {
		cfg.Notify = parseBool(v, cfg.Notify)
	}
	if v := os.Getenv("MENTIONCHAT_STATE"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("MENTIONCHAT_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("MENTIONCHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MENTIONCHAT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

// Sanitize fills invalid values with defaults and expands ~ in paths.
func Sanitize(cfg Config) (Config, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if !strings.HasPrefix(cfg.Endpoint, "ws://") && !strings.HasPrefix(cfg.Endpoint, "wss://") {
		return Config{}, fmt.Errorf("endpoint %q must use ws:// or wss://", cfg.Endpoint)
	}
	if cfg.RetryDelayMS <= 0 {
		cfg.RetryDelayMS = defaultRetryDelayMS
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	cfg.Nickname = strings.TrimPrefix(strings.TrimSpace(cfg.Nickname), "@")

	var err error
	if cfg.StatePath, err = ExpandHome(cfg.StatePath); err != nil {
		return Config{}, err
	}
	if cfg.LogFile, err = ExpandHome(cfg.LogFile); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

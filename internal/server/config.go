// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the demo chat server.
package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// RateLimitConfig defines the parameters for per-session message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	MetricsPort    string
	StaticDir      string
	LogLevel       string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
}

// fileConfig is the TOML layout of a Config.
type fileConfig struct {
	Port                  string   `toml:"port"`
	MetricsPort           string   `toml:"metrics_port"`
	StaticDir             string   `toml:"static_dir"`
	LogLevel              string   `toml:"log_level"`
	AllowedOrigins        []string `toml:"allowed_origins"`
	MaxMessageSize        int64    `toml:"max_message_size"`
	RateLimitBurst        int      `toml:"rate_limit_burst"`
	RateLimitRefillSecond int      `toml:"rate_limit_refill_interval"`
}

var (
	configMu     sync.RWMutex
	activeConfig Config
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port:        ":8080",
		MetricsPort: ":9090",
		LogLevel:    "info",
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://127.0.0.1:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.AllowedOrigins = cleanOrigins(cfg.AllowedOrigins)

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	return cfg
}

// OriginPolicy returns the WebSocket origin policy for c.AllowedOrigins.
func (c Config) OriginPolicy() *OriginPolicy {
	return NewOriginPolicy(c.AllowedOrigins)
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	copied := *cfg
	copied.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(copied)
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnv(&cfg)
	return &cfg
}

// LoadConfig reads the TOML file at path over the defaults and then applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := LoadConfigFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadConfigFile decodes the TOML file at path into cfg. Keys missing from the
// file leave cfg unchanged. A missing file is not an error.
func LoadConfigFile(path string, cfg *Config) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if md.IsDefined("port") {
		cfg.Port = fc.Port
	}
	if md.IsDefined("metrics_port") {
		cfg.MetricsPort = fc.MetricsPort
	}
	if md.IsDefined("static_dir") {
		cfg.StaticDir = fc.StaticDir
	}
	if md.IsDefined("log_level") {
		cfg.LogLevel = fc.LogLevel
	}
	if md.IsDefined("allowed_origins") {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if md.IsDefined("max_message_size") && fc.MaxMessageSize > 0 {
		cfg.MaxMessageSize = fc.MaxMessageSize
	}
	if md.IsDefined("rate_limit_burst") && fc.RateLimitBurst > 0 {
		cfg.RateLimit.Burst = fc.RateLimitBurst
	}
	if md.IsDefined("rate_limit_refill_interval") && fc.RateLimitRefillSecond > 0 {
		cfg.RateLimit.RefillInterval = time.Duration(fc.RateLimitRefillSecond) * time.Second
	}
	return nil
}

func applyEnv(cfg *Config) {
	// Load SERVER_PORT
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	// Load METRICS_PORT; "off" disables the metrics listener
	if port := os.Getenv("METRICS_PORT"); port != "" {
		if port == "off" {
			port = ""
		}
		cfg.MetricsPort = port
	}

	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	// Load ALLOWED_ORIGINS
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	// Load MAX_MESSAGE_SIZE
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	// Load RATE_LIMIT_BURST
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	// Load RATE_LIMIT_REFILL_INTERVAL
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the system-wide settings tree. Values resolve in three layers:
// built-in defaults, then an optional JSON file, then TUTORHUB_* environment
// variables.
type Config struct {
	Database  DatabaseConfig  `json:"database" envPrefix:"DB_"`
	HTTP      HTTPConfig      `json:"http" envPrefix:"HTTP_"`
	WebSocket WebSocketConfig `json:"websocket" envPrefix:"WS_"`
	Auth      AuthConfig      `json:"auth" envPrefix:"AUTH_"`
	AI        AIConfig        `json:"ai" envPrefix:"AI_"`
	Session   SessionConfig   `json:"session" envPrefix:"SESSION_"`
}

type DatabaseConfig struct {
	Path string `json:"path" env:"PATH"`
}

type HTTPConfig struct {
	Host         string        `json:"host" env:"HOST"`
	Port         int           `json:"port" env:"PORT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval" env:"PING_INTERVAL"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
}

type AuthConfig struct {
	// Secret signs and verifies connection tokens. Required.
	Secret string `json:"secret" env:"SECRET"`
}

type AIConfig struct {
	GenerateURL string        `json:"generate_url" env:"GENERATE_URL"`
	VoiceURL    string        `json:"voice_url" env:"VOICE_URL"`
	Timeout     time.Duration `json:"timeout" env:"TIMEOUT"`
	// DeliveryTimeout is how long an answer counts as being delivered
	// before the tutor is ready for the next question.
	DeliveryTimeout time.Duration `json:"delivery_timeout" env:"DELIVERY_TIMEOUT"`
}

type SessionConfig struct {
	// CleanupGrace is how long an empty session survives before teardown.
	CleanupGrace   time.Duration `json:"cleanup_grace" env:"CLEANUP_GRACE"`
	MemoryCapacity int           `json:"memory_capacity" env:"MEMORY_CAPACITY"`
	PresenceTTL    time.Duration `json:"presence_ttl" env:"PRESENCE_TTL"`
	// RateLimitPerMinute caps inbound events per user.
	RateLimitPerMinute int `json:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
}

// DefaultConfig returns production defaults. The auth secret has no default
// and must come from the file or environment.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "./tutorhub.db",
		},
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
		},
		AI: AIConfig{
			GenerateURL:     "http://localhost:9000/generate",
			VoiceURL:        "http://localhost:9000/synthesize",
			Timeout:         30 * time.Second,
			DeliveryTimeout: 8 * time.Second,
		},
		Session: SessionConfig{
			CleanupGrace:       time.Minute,
			MemoryCapacity:     5,
			PresenceTTL:        5 * time.Second,
			RateLimitPerMinute: 120,
		},
	}
}

// Load resolves the configuration: defaults, then the JSON file at path (if
// path is non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "TUTORHUB_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required")
	}
	if c.AI.GenerateURL == "" {
		return fmt.Errorf("AI generate URL cannot be empty")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI timeout must be positive")
	}
	if c.Session.MemoryCapacity <= 0 {
		return fmt.Errorf("session memory capacity must be positive")
	}
	if c.Session.PresenceTTL <= 0 {
		return fmt.Errorf("session presence TTL must be positive")
	}
	if c.Session.CleanupGrace <= 0 {
		return fmt.Errorf("session cleanup grace must be positive")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsRequireSecret(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Load without a secret should fail validation")
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("TUTORHUB_AUTH_SECRET", "env-secret")
	t.Setenv("TUTORHUB_HTTP_PORT", "9999")
	t.Setenv("TUTORHUB_SESSION_PRESENCE_TTL", "3s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Secret != "env-secret" {
		t.Errorf("secret = %q, want env-secret", cfg.Auth.Secret)
	}
	if cfg.HTTP.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.HTTP.Port)
	}
	if cfg.Session.PresenceTTL != 3*time.Second {
		t.Errorf("presence TTL = %v, want 3s", cfg.Session.PresenceTTL)
	}
	// Untouched values keep their defaults.
	if cfg.Session.MemoryCapacity != 5 {
		t.Errorf("memory capacity = %d, want default 5", cfg.Session.MemoryCapacity)
	}
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"auth": {"secret": "file-secret"},
		"http": {"port": 7777},
		"database": {"path": "/tmp/from-file.db"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("TUTORHUB_HTTP_PORT", "8888")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Secret != "file-secret" {
		t.Errorf("secret = %q, want file-secret", cfg.Auth.Secret)
	}
	if cfg.HTTP.Port != 8888 {
		t.Errorf("port = %d, environment should win over the file", cfg.HTTP.Port)
	}
	if cfg.Database.Path != "/tmp/from-file.db" {
		t.Errorf("database path = %q, want file value", cfg.Database.Path)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Load with a missing file should fail")
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"port out of range", func(c *Config) { c.HTTP.Port = 70000 }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval / 2 }},
		{"empty generate URL", func(c *Config) { c.AI.GenerateURL = "" }},
		{"zero memory capacity", func(c *Config) { c.Session.MemoryCapacity = 0 }},
		{"zero presence TTL", func(c *Config) { c.Session.PresenceTTL = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Auth.Secret = "secret"
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should reject this configuration")
			}
		})
	}
}

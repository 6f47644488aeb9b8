package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.ProcessingDelay != 5*time.Second {
		t.Errorf("ProcessingDelay = %v, want 5s", cfg.ProcessingDelay)
	}
	if cfg.ReviewSteps {
		t.Error("ReviewSteps should default to false")
	}
	if cfg.Processor != "echo" {
		t.Errorf("Processor = %q, want echo", cfg.Processor)
	}
	if cfg.CatalogStore != "memory" || cfg.FlowStore != "memory" || cfg.AttachmentStore != "memory" {
		t.Errorf("stores should default to memory: %+v", cfg)
	}
	if cfg.AuthEnabled() {
		t.Error("auth should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PROCESSING_DELAY", "250ms")
	t.Setenv("REVIEW_STEPS", "true")
	t.Setenv("EVENT_MAX_LEN", "50")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("AUTH_HMAC_SECRET", "0123456789abcdef")
	t.Setenv("SESSION_IDLE_TTL", "not-a-duration")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.ProcessingDelay != 250*time.Millisecond {
		t.Errorf("ProcessingDelay = %v", cfg.ProcessingDelay)
	}
	if !cfg.ReviewSteps {
		t.Error("ReviewSteps should be true")
	}
	if cfg.EventMaxLen != 50 {
		t.Errorf("EventMaxLen = %d", cfg.EventMaxLen)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Errorf("RateLimitRPS = %v", cfg.RateLimitRPS)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if !cfg.AuthEnabled() {
		t.Error("HMAC secret should enable auth")
	}
	if cfg.SessionIdleTTL != 30*time.Minute {
		t.Errorf("invalid duration should fall back to default, got %v", cfg.SessionIdleTTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown catalog", func(c *Config) { c.CatalogStore = "etcd" }, true},
		{"postgres without dsn", func(c *Config) { c.FlowStore = "postgres" }, true},
		{"postgres with dsn", func(c *Config) {
			c.FlowStore = "postgres"
			c.PostgresDSN = "postgres://localhost/agentmarket"
		}, false},
		{"s3 without bucket", func(c *Config) { c.AttachmentStore = "s3" }, true},
		{"oidc without issuer", func(c *Config) { c.OIDCEnabled = true }, true},
		{"negative delay", func(c *Config) { c.ProcessingDelay = -time.Second }, true},
		{"zero event log", func(c *Config) { c.EventMaxLen = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

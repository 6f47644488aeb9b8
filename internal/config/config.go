// Package config provides configuration loading for the marketplace service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the marketplace service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Catalog configuration
	CatalogStore string // "memory" or "redis"
	CatalogFile  string // optional YAML seed file

	// Saved workflows
	FlowStore   string // "memory", "redis" or "postgres"
	PostgresDSN string

	// Attachments
	AttachmentStore   string // "memory" or "s3"
	AttachmentMaxSize int64
	S3Endpoint        string
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UseSSL          bool
	S3PathPrefix      string

	// Execution
	ProcessingDelay time.Duration
	ReviewSteps     bool
	Processor       string // "echo" or "canned"

	// Sessions
	SessionIdleTTL time.Duration
	EventMaxLen    int

	// OIDC configuration
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCEnabled      bool

	// HMAC session tokens
	AuthHMACSecret string
	AuthIssuer     string

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing
	TracingEnabled  bool
	OTLPEndpoint    string
	TraceSampleRate float64

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "8080"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		// Catalog
		CatalogStore: getEnv("CATALOG_STORE", "memory"),
		CatalogFile:  getEnv("CATALOG_FILE", ""),

		// Workflows
		FlowStore:   getEnv("FLOW_STORE", "memory"),
		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		// Attachments
		AttachmentStore:   getEnv("ATTACHMENT_STORE", "memory"),
		AttachmentMaxSize: getInt64("ATTACHMENT_MAX_SIZE", 10<<20),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Region:          getEnv("S3_REGION", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3UseSSL:          getBool("S3_USE_SSL", false),
		S3PathPrefix:      getEnv("S3_PATH_PREFIX", "attachments"),

		// Execution
		ProcessingDelay: getDuration("PROCESSING_DELAY", 5*time.Second),
		ReviewSteps:     getBool("REVIEW_STEPS", false),
		Processor:       getEnv("PROCESSOR", "echo"),

		// Sessions
		SessionIdleTTL: getDuration("SESSION_IDLE_TTL", 30*time.Minute),
		EventMaxLen:    getInt("EVENT_MAX_LEN", 1000),

		// OIDC
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCEnabled:      getBool("OIDC_ENABLED", false),

		// HMAC
		AuthHMACSecret: getEnv("AUTH_HMAC_SECRET", ""),
		AuthIssuer:     getEnv("AUTH_ISSUER", "agentmarket"),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 50.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 100),

		// Tracing
		TracingEnabled:  getBool("TRACING_ENABLED", false),
		OTLPEndpoint:    getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TraceSampleRate: getFloat("TRACE_SAMPLE_RATE", 1.0),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// AuthEnabled reports whether any token verifier is configured.
func (c *Config) AuthEnabled() bool {
	return c.OIDCEnabled || c.AuthHMACSecret != ""
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.CatalogStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("CATALOG_STORE: unknown store %q", c.CatalogStore)
	}

	switch c.FlowStore {
	case "memory", "redis":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("FLOW_STORE=postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("FLOW_STORE: unknown store %q", c.FlowStore)
	}

	switch c.AttachmentStore {
	case "memory":
	case "s3", "minio":
		if c.S3Bucket == "" {
			return fmt.Errorf("ATTACHMENT_STORE=%s requires S3_BUCKET", c.AttachmentStore)
		}
	default:
		return fmt.Errorf("ATTACHMENT_STORE: unknown store %q", c.AttachmentStore)
	}

	if c.OIDCEnabled && (c.OIDCIssuer == "" || c.OIDCClientID == "") {
		return fmt.Errorf("OIDC_ENABLED requires OIDC_ISSUER and OIDC_CLIENT_ID")
	}
	if c.ProcessingDelay < 0 {
		return fmt.Errorf("PROCESSING_DELAY must not be negative")
	}
	if c.EventMaxLen <= 0 {
		return fmt.Errorf("EVENT_MAX_LEN must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultVal
}

// Package config loads service configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	StorageBackendSupabase = "supabase"
	StorageBackendGCS      = "gcs"
)

// Config holds all runtime configuration for the server.
type Config struct {
	Port        string `env:"PORT" env-default:"5001"`
	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	// FrontendOrigin is the single origin allowed by CORS.
	FrontendOrigin string `env:"NEXT_PUBLIC_URL" env-default:"http://localhost:3002"`

	DefaultPreviewImageURL string `env:"DEFAULT_PREVIEW_IMAGE_URL" env-default:""`

	Generation GenerationConfig
	Storage    StorageConfig
	RateLimit  RateLimitConfig
}

// GenerationConfig configures the outbound webhook and image rehosting.
type GenerationConfig struct {
	// WebhookURL may be empty; generation requests then fail with CONFIGURATION_ERROR.
	WebhookURL        string        `env:"N8N_WEBHOOK_URL" env-default:""`
	Timeout           time.Duration `env:"GENERATION_TIMEOUT" env-default:"300s"`
	ImageFetchTimeout time.Duration `env:"IMAGE_FETCH_TIMEOUT" env-default:"30s"`
	MaxSourceSizeMB   int           `env:"IMAGE_MAX_SOURCE_SIZE_MB" env-default:"10"`
	RehostConcurrency int           `env:"REHOST_CONCURRENCY" env-default:"3"`
}

// StorageConfig selects and configures the object storage backend.
type StorageConfig struct {
	Backend string `env:"STORAGE_BACKEND" env-default:"supabase"`
	Bucket  string `env:"VARIANT_IMAGES_BUCKET" env-default:"variant-images"`

	// PublicBaseURL is the prefix of every public object URL, without the bucket.
	// Derived from the backend when empty.
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" env-default:""`

	SupabaseURL string `env:"SUPABASE_URL" env-default:""`
	SupabaseKey string `env:"SUPABASE_SERVICE_ROLE_KEY" env-default:""`
}

// RateLimitConfig holds per-client request budgets, in requests per minute.
type RateLimitConfig struct {
	RequestsPerMinute         int `env:"RATE_LIMIT_RPM" env-default:"100"`
	GenerateRequestsPerMinute int `env:"GENERATE_RATE_LIMIT_RPM" env-default:"10"`
	MaxClients                int `env:"RATE_LIMIT_MAX_CLIENTS" env-default:"10000"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finalize() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Storage.SupabaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.SupabaseURL), "/")
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	c.Generation.WebhookURL = strings.TrimSpace(c.Generation.WebhookURL)

	switch c.Storage.Backend {
	case StorageBackendSupabase:
		if c.Storage.SupabaseURL == "" {
			return errors.New("SUPABASE_URL is required when STORAGE_BACKEND=supabase")
		}
		if c.Storage.SupabaseKey == "" {
			return errors.New("SUPABASE_SERVICE_ROLE_KEY is required when STORAGE_BACKEND=supabase")
		}
		if c.Storage.PublicBaseURL == "" {
			c.Storage.PublicBaseURL = c.Storage.SupabaseURL + "/storage/v1/object/public"
		}
	case StorageBackendGCS:
		if c.Storage.PublicBaseURL == "" {
			c.Storage.PublicBaseURL = "https://storage.googleapis.com"
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q (expected %q or %q)",
			c.Storage.Backend, StorageBackendSupabase, StorageBackendGCS)
	}

	if c.Storage.Bucket == "" {
		return errors.New("VARIANT_IMAGES_BUCKET cannot be empty")
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive: got %v", c.Generation.Timeout)
	}
	if c.Generation.ImageFetchTimeout <= 0 {
		return fmt.Errorf("IMAGE_FETCH_TIMEOUT must be positive: got %v", c.Generation.ImageFetchTimeout)
	}
	if c.Generation.MaxSourceSizeMB <= 0 {
		return fmt.Errorf("IMAGE_MAX_SOURCE_SIZE_MB must be positive: got %d", c.Generation.MaxSourceSizeMB)
	}
	if c.Generation.RehostConcurrency <= 0 {
		c.Generation.RehostConcurrency = 1
	}

	if c.DefaultPreviewImageURL == "" {
		c.DefaultPreviewImageURL = c.Storage.PublicBaseURL + "/preview-images/default-previewImage.png"
	}
	return nil
}

// OwnedImagePrefix is the URL prefix of every object in the variant image bucket.
func (c *Config) OwnedImagePrefix() string {
	return c.Storage.PublicBaseURL + "/" + c.Storage.Bucket + "/"
}

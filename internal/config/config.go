// Package config provides configuration management for lorewiki.
// It loads settings from environment variables with the LOREWIKI_ prefix
// and provides sensible defaults for all configuration options.
//
// Per-world settings (prompts, models, image toggle) are not part of this
// package; they live in each world's world.yaml, see internal/world.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all process-wide configuration settings.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	LLM       LLMConfig
	Image     ImageConfig
	Engine    EngineConfig
	Security  SecurityConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Backup    BackupConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `env:"LOREWIKI_PORT" envDefault:"6464"`
	Host string `env:"LOREWIKI_HOST" envDefault:"127.0.0.1"`

	// RateLimit is the sustained request rate per second; RateBurst the burst.
	RateLimit float64 `env:"LOREWIKI_RATE_LIMIT" envDefault:"10"`
	RateBurst int     `env:"LOREWIKI_RATE_BURST" envDefault:"20"`

	// ShutdownTimeout bounds how long in-flight requests may run after a
	// stop signal before the listener is forced closed.
	ShutdownTimeout time.Duration `env:"LOREWIKI_SHUTDOWN_TIMEOUT" envDefault:"5m"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	// Engine is sqlite (one database per world directory) or postgres (one
	// shared database, rows keyed by world).
	Engine string `env:"LOREWIKI_STORAGE_ENGINE" envDefault:"sqlite"`

	// WorldsPath is the base directory holding one directory per world.
	WorldsPath string `env:"LOREWIKI_WORLDS_PATH" envDefault:"./worlds"`

	PostgresDSN string `env:"LOREWIKI_POSTGRES_DSN"`
}

// LLMConfig contains text and embedding provider configuration.
type LLMConfig struct {
	Provider string `env:"LOREWIKI_LLM_PROVIDER" envDefault:"openai"`
	Model    string `env:"LOREWIKI_LLM_MODEL" envDefault:"gpt-4o-mini"`

	OpenAIAPIKey  string `env:"LOREWIKI_OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"LOREWIKI_OPENAI_BASE_URL" envDefault:"https://api.openai.com"`

	AnthropicAPIKey string `env:"LOREWIKI_ANTHROPIC_API_KEY"`

	OllamaURL string `env:"LOREWIKI_OLLAMA_URL" envDefault:"http://localhost:11434"`

	// EmbeddingModel enables vector similarity when non-empty. Without it the
	// similarity index falls back to full-text ranking.
	EmbeddingModel string `env:"LOREWIKI_EMBEDDING_MODEL"`

	// Timeout bounds every single generation call.
	Timeout time.Duration `env:"LOREWIKI_LLM_TIMEOUT" envDefault:"90s"`
}

// ImageConfig contains image synthesis configuration.
type ImageConfig struct {
	Model   string `env:"LOREWIKI_IMAGE_MODEL" envDefault:"dall-e-3"`
	Size    string `env:"LOREWIKI_IMAGE_SIZE" envDefault:"1024x1024"`
	APIKey  string `env:"LOREWIKI_IMAGE_API_KEY"`
	BaseURL string `env:"LOREWIKI_IMAGE_BASE_URL"`

	Workers   int `env:"LOREWIKI_IMAGE_WORKERS" envDefault:"2"`
	QueueSize int `env:"LOREWIKI_IMAGE_QUEUE_SIZE" envDefault:"100"`
}

// EngineConfig contains generation pipeline settings.
type EngineConfig struct {
	// MaxValidations bounds consistency checks per generation.
	MaxValidations int `env:"LOREWIKI_MAX_VALIDATIONS" envDefault:"2"`

	// SimilarityTopK is the number of similar articles used as context.
	SimilarityTopK int `env:"LOREWIKI_SIMILARITY_TOP_K" envDefault:"3"`

	// NeighborhoodHops is the graph distance included in context.
	NeighborhoodHops int `env:"LOREWIKI_NEIGHBORHOOD_HOPS" envDefault:"1"`

	// SkipValidationDefault is used when a request does not say.
	SkipValidationDefault bool `env:"LOREWIKI_SKIP_VALIDATION" envDefault:"true"`
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	Mode     string `env:"LOREWIKI_SECURITY_MODE" envDefault:"development"`
	APIToken string `env:"LOREWIKI_API_TOKEN"`
}

// LogConfig selects the logger flavor.
type LogConfig struct {
	Mode string `env:"LOREWIKI_LOG_MODE" envDefault:"dev"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `env:"LOREWIKI_OTEL_ENABLED" envDefault:"false"`
	Endpoint    string  `env:"LOREWIKI_OTEL_ENDPOINT"`
	ServiceName string  `env:"LOREWIKI_OTEL_SERVICE_NAME" envDefault:"lorewiki"`
	SampleRatio float64 `env:"LOREWIKI_OTEL_SAMPLE_RATIO" envDefault:"0.1"`
}

// LoadConfig loads configuration from environment variables with sensible
// defaults and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: LOREWIKI_POSTGRES_DSN is required for the postgres engine")
		}
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.Engine)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("config: unsupported LLM provider %q", c.LLM.Provider)
	}

	if c.Engine.MaxValidations < 1 {
		return fmt.Errorf("config: LOREWIKI_MAX_VALIDATIONS must be >= 1, got %d", c.Engine.MaxValidations)
	}
	if c.Image.Workers < 1 {
		return fmt.Errorf("config: LOREWIKI_IMAGE_WORKERS must be >= 1, got %d", c.Image.Workers)
	}
	if c.Image.QueueSize < 1 {
		return fmt.Errorf("config: LOREWIKI_IMAGE_QUEUE_SIZE must be >= 1, got %d", c.Image.QueueSize)
	}
	if c.Backup.Dir != "" && c.Storage.Engine != "sqlite" {
		return fmt.Errorf("config: LOREWIKI_BACKUP_DIR requires the sqlite storage engine")
	}
	if c.Security.Mode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: LOREWIKI_API_TOKEN is required in production mode")
	}
	return nil
}

// BackupConfig controls scheduled world backups. An empty Dir disables them.
type BackupConfig struct {
	Dir      string        `env:"LOREWIKI_BACKUP_DIR"`
	Interval time.Duration `env:"LOREWIKI_BACKUP_INTERVAL" envDefault:"6h"`

	// Number of backups kept per world in each age tier.
	KeepHourly  int `env:"LOREWIKI_BACKUP_KEEP_HOURLY" envDefault:"24"`
	KeepDaily   int `env:"LOREWIKI_BACKUP_KEEP_DAILY" envDefault:"7"`
	KeepWeekly  int `env:"LOREWIKI_BACKUP_KEEP_WEEKLY" envDefault:"4"`
	KeepMonthly int `env:"LOREWIKI_BACKUP_KEEP_MONTHLY" envDefault:"12"`
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

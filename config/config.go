package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/astreus-ai/astreus-go/embedding"
	"github.com/astreus-ai/astreus-go/memory"
	"github.com/astreus-ai/astreus-go/rag"
	"github.com/astreus-ai/astreus-go/types"
)

// Config is the complete engine configuration.
type Config struct {
	Memory    memory.Config   `yaml:"memory"`
	RAG       rag.RAGConfig   `yaml:"rag"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the implementation. Currently "openai".
	Provider string `yaml:"provider"`

	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Dimensions int           `yaml:"dimensions"`
	MaxBatch   int           `yaml:"max_batch"`
	Timeout    time.Duration `yaml:"timeout"`

	// RequestsPerSecond caps outbound embedding calls client-side.
	// Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// RedisConfig configures the optional Redis memory backend.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DatabaseConfig configures the relational backend.
type DatabaseConfig struct {
	// Driver names the database driver. Currently "sqlite".
	Driver string `yaml:"driver"`
	// DSN is passed directly to the driver. For sqlite this is the
	// database file path, or ":memory:".
	DSN string `yaml:"dsn"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
	// OutputPaths lists zap sinks; default stderr.
	OutputPaths  []string `yaml:"output_paths"`
	EnableCaller bool     `yaml:"enable_caller"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Memory:    memory.DefaultConfig(),
		RAG:       rag.DefaultRAGConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultEmbeddingConfig returns the OpenAI defaults.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		MaxBatch:   100,
		Timeout:    30 * time.Second,
	}
}

// DefaultRedisConfig returns a disabled localhost configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "astreus:memory:",
	}
}

// DefaultDatabaseConfig returns an on-disk sqlite database.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver: "sqlite",
		DSN:    "astreus.db",
	}
}

// DefaultLogConfig returns info-level JSON logging to stderr.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stderr"},
	}
}

// Validate checks the composed configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.Memory.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.RAG.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Embedding.Provider != "" && c.Embedding.Provider != "openai" {
		errs = append(errs, fmt.Sprintf("unknown embedding provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions < 0 {
		errs = append(errs, "embedding dimensions cannot be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	if c.Database.Driver != "" && c.Database.Driver != "sqlite" {
		errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return types.NewErrorf(types.ErrConfiguration, "invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// BuildProvider constructs the configured embedding provider.
func (c *EmbeddingConfig) BuildProvider() (embedding.Provider, error) {
	switch c.Provider {
	case "", "openai":
		return embedding.NewOpenAIProvider(embedding.BaseConfig{
			BaseURL:           c.BaseURL,
			APIKey:            c.APIKey,
			Model:             c.Model,
			Dimensions:        c.Dimensions,
			MaxBatch:          c.MaxBatch,
			Timeout:           c.Timeout,
			RequestsPerSecond: c.RequestsPerSecond,
		}), nil
	default:
		return nil, types.NewErrorf(types.ErrConfiguration, "unknown embedding provider %q", c.Provider)
	}
}

// StoreConfig converts the Redis section into the backend config.
func (c *RedisConfig) StoreConfig() memory.RedisStoreConfig {
	return memory.RedisStoreConfig{
		Addr:      c.Addr,
		Password:  c.Password,
		DB:        c.DB,
		PoolSize:  c.PoolSize,
		KeyPrefix: c.KeyPrefix,
	}
}

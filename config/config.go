// Package config loads and validates application configuration from a
// config file and APP_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the validated application configuration. It is built once at
// startup and passed explicitly into every pipeline entry point.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Server    ServerConfig    `mapstructure:"server"`
}

// DatabaseConfig holds connection parameters for the Postgres store.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	// Pool bounds. Acquisition waits are bounded by AcquireTimeout
	// rather than blocking indefinitely.
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AcquireTimeout  time.Duration `mapstructure:"acquire_timeout"`
}

// DSN renders the gorm/pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.Host, c.Username, c.Password, c.Database, c.Port, c.SSLMode)
}

// EmbeddingConfig locates the model artifacts and declares the encoder's
// output dimension. ModelPath is a directory holding the visual and text
// ONNX encoders; TokenizerPath is an HF tokenizer.json.
type EmbeddingConfig struct {
	ModelPath     string `mapstructure:"model_path"`
	TokenizerPath string `mapstructure:"tokenizer_path"`
	ModelName     string `mapstructure:"model_name"`
	ModelVersion  string `mapstructure:"model_version"`
	Dimension     int    `mapstructure:"dimension"`

	// Device selects the compute backend: "auto", "cuda" or "cpu".
	Device string `mapstructure:"device"`

	// ONNXLibraryPath optionally points at the onnxruntime shared
	// library when it is not on the default search path.
	ONNXLibraryPath string `mapstructure:"onnx_library_path"`
}

// StorageConfig holds the media storage root.
type StorageConfig struct {
	MediaPath string `mapstructure:"media_path"`
}

// QueueConfig holds the Redis connection for the async ingestion queue.
type QueueConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	WorkerCount   int    `mapstructure:"worker_count"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Load reads the config file named by APP_CONFIG (default "config",
// yaml/toml/json resolved by extension), applies APP_ environment
// overrides, and validates the result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.acquire_timeout", 5*time.Second)
	v.SetDefault("embedding.model_name", "clip-vit-base-patch32")
	v.SetDefault("embedding.model_version", "v1")
	v.SetDefault("embedding.dimension", 512)
	v.SetDefault("embedding.device", "auto")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.worker_count", 4)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)

	name := os.Getenv("APP_CONFIG")
	if name == "" {
		name = "config"
	}
	v.SetConfigName(name)
	v.AddConfigPath(".")

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// The file is optional; env and defaults may fully configure us.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the system trusts. The
// media path is created if missing.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be greater than 0, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.ModelPath == "" {
		return fmt.Errorf("embedding model path cannot be empty")
	}
	if _, err := os.Stat(c.Embedding.ModelPath); err != nil {
		return fmt.Errorf("embedding model path does not exist: %s", c.Embedding.ModelPath)
	}
	if c.Embedding.TokenizerPath == "" {
		return fmt.Errorf("tokenizer path cannot be empty")
	}
	if _, err := os.Stat(c.Embedding.TokenizerPath); err != nil {
		return fmt.Errorf("tokenizer path does not exist: %s", c.Embedding.TokenizerPath)
	}
	if c.Storage.MediaPath != "" {
		if err := os.MkdirAll(c.Storage.MediaPath, 0o755); err != nil {
			return fmt.Errorf("creating media path: %w", err)
		}
	}
	return nil
}

// Package config merges the static YAML file with environment overrides.
// Secrets (API keys, connection strings) come from the environment only;
// config.yaml holds the tunables that are safe to commit.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"tapassist/internal/assistant"
)

// LogConfig controls the global zerolog logger.
type LogConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format     string `yaml:"format" envconfig:"LOG_FORMAT"`
	Output     string `yaml:"output" envconfig:"LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" envconfig:"LOG_FILE_PATH"`
	TimeFormat string `yaml:"time_format" envconfig:"LOG_TIME_FORMAT"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr         string `yaml:"addr" envconfig:"SERVER_ADDR"`
	ReadTimeout  int    `yaml:"read_timeout_seconds" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout int    `yaml:"write_timeout_seconds" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// StorageConfig holds the backing store connection settings.
type StorageConfig struct {
	MongoURI      string `yaml:"-" envconfig:"MONGODB_URI"`
	MongoDatabase string `yaml:"mongo_database" envconfig:"MONGODB_DATABASE"`
	RedisURL      string `yaml:"-" envconfig:"REDIS_URL"`
	// CacheTTLSeconds bounds conversation cache entries.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" envconfig:"CACHE_TTL"`
}

// Config is the full application configuration.
type Config struct {
	Log       LogConfig        `yaml:"log"`
	Server    ServerConfig     `yaml:"server"`
	Storage   StorageConfig    `yaml:"storage"`
	Assistant assistant.Config `yaml:"assistant"`
}

// Defaults is the configuration used when neither config.yaml nor the
// environment says otherwise.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "logs/tapassist.log",
			TimeFormat: "rfc3339",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15,
			WriteTimeout: 60,
		},
		Storage: StorageConfig{
			MongoURI:        "mongodb://localhost:27017",
			MongoDatabase:   "tapassist",
			RedisURL:        "redis://localhost:6379",
			CacheTTLSeconds: 3600,
		},
		Assistant: assistant.Config{
			Provider:         "openai",
			Model:            "gpt-4o-mini",
			MaxTokens:        1500,
			Temperature:      0.7,
			ThreadLimit:      10,
			ThreadTTLSeconds: 86400,
		},
	}
}

// Load layers configuration: defaults, then config.yaml (if present), then
// environment variables on top.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("error parsing YAML: %w", err)
			}
		case os.IsNotExist(err):
			// env-only configuration
		default:
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	return &cfg, nil
}

package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	DBPath            string        `envconfig:"DB_PATH" default:"data/database.sqlite"`
	ReplicateAPIToken string        `envconfig:"REPLICATE_API_TOKEN"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	MaxDecisionLength int           `envconfig:"MAX_DECISION_LENGTH" default:"10000"`
	ImageConcurrency  int           `envconfig:"IMAGE_CONCURRENCY" default:"6"`
	ImageTimeout      time.Duration `envconfig:"IMAGE_TIMEOUT" default:"60s"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if cfg.MaxDecisionLength <= 0 {
		return Config{}, fmt.Errorf("MAX_DECISION_LENGTH must be positive, got %d", cfg.MaxDecisionLength)
	}
	if cfg.ImageConcurrency <= 0 {
		return Config{}, fmt.Errorf("IMAGE_CONCURRENCY must be positive, got %d", cfg.ImageConcurrency)
	}
	return cfg, nil
}

func (c Config) slogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

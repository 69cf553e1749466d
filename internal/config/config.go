package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all server configuration, loaded from STARSHIP_* environment
// variables.
type Config struct {
	Port     string `env:"STARSHIP_PORT" envDefault:"8080"`
	DBPath   string `env:"STARSHIP_DB_PATH" envDefault:"starshipplan.db"`
	LogLevel string `env:"STARSHIP_LOG_LEVEL" envDefault:"info"`

	// Timezone is the canonical zone for task period boundaries. Empty means
	// server-local time.
	Timezone string `env:"STARSHIP_TIMEZONE"`

	Backup BackupConfig `envPrefix:"STARSHIP_BACKUP_"`
}

// BackupConfig configures optional snapshot uploads to S3-compatible storage.
// Backups are disabled unless Bucket, AccessKey, and SecretKey are all set.
type BackupConfig struct {
	Endpoint  string        `env:"S3_ENDPOINT"`
	Bucket    string        `env:"S3_BUCKET"`
	Region    string        `env:"S3_REGION" envDefault:"auto"`
	AccessKey string        `env:"S3_ACCESS_KEY"`
	SecretKey string        `env:"S3_SECRET_KEY"`
	Interval  time.Duration `env:"INTERVAL" envDefault:"24h"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Location resolves the configured period-boundary time zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

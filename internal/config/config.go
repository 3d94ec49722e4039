// Package config loads variant-goat settings from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "./variant-goat.yaml"

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Log        LogConfig        `yaml:"log"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

type ServerConfig struct {
	Port      int             `yaml:"port"`
	TokenFile string          `yaml:"token_file"` // empty means next to the database
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds result ingestion per client. A zero PerSecond
// disables the limit.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type ExperimentConfig struct {
	DefaultConfidenceThreshold float64 `yaml:"default_confidence_threshold"`
	DefaultMinimumSampleSize   int64   `yaml:"default_minimum_sample_size"`
}

type SweepConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Interval    time.Duration `yaml:"interval"`
	AutoDeclare bool          `yaml:"auto_declare"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", Path: "./variant-goat.db"},
		Server: ServerConfig{
			Port:      8080,
			RateLimit: RateLimitConfig{PerSecond: 50, Burst: 100},
		},
		Experiment: ExperimentConfig{
			DefaultConfidenceThreshold: 0.95,
			DefaultMinimumSampleSize:   1000,
		},
		Sweep: SweepConfig{Concurrency: 4, Interval: time.Hour},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error unless required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("VG_DB_DRIVER"); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := lookup("VG_DB_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup("VG_DATABASE_URL"); ok && v != "" {
		c.Database.URL = v
	}
	if v, ok := lookup("VG_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid VG_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("VG_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("VG_LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit.PerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if t := c.Experiment.DefaultConfidenceThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("experiment.default_confidence_threshold must be between 0 and 1")
	}
	if c.Experiment.DefaultMinimumSampleSize <= 0 {
		return fmt.Errorf("experiment.default_minimum_sample_size must be positive")
	}
	if c.Sweep.Concurrency <= 0 {
		return fmt.Errorf("sweep.concurrency must be positive")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		return fmt.Errorf("unknown log.format %q", f)
	}
	return nil
}

// TokenPath returns where the API token is kept.
func (c Config) TokenPath() string {
	if c.Server.TokenFile != "" {
		return c.Server.TokenFile
	}
	if c.Database.Driver == "sqlite" {
		return filepath.Join(filepath.Dir(c.Database.Path), ".variant-goat-token")
	}
	return ".variant-goat-token"
}

// Write saves the config as YAML.
func Write(path string, c Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("unknown log.level %q", s)
	}
	return level, nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// Package config provides environment-based configuration for dataset-synth.
//
// Every setting has a default, so the tool runs with no environment at all.
// Per-run parameters (directories, scale ranges, visibility) are not read
// from the environment; they are passed as CLI flags or MCP tool arguments.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is prepended to every dataset-synth environment variable.
const EnvPrefix = "DATASET_SYNTH_"

// Config holds the process-wide configuration.
type Config struct {
	// LogLevel is "info" or "debug".
	LogLevel string

	// Workers is the default worker pool size for batch runs.
	Workers int

	// Format is the default output encoding, "jpg" or "png".
	Format string

	// JPEGQuality is used when Format is "jpg".
	JPEGQuality int

	// TimeBudget bounds the placement search for one background/foreground pair.
	TimeBudget time.Duration

	// AWSRegion and S3Bucket select the S3 output sink. An empty bucket
	// writes to the local filesystem.
	AWSRegion string
	S3Bucket  string
	S3Prefix  string

	// TessdataPrefix overrides where Tesseract looks for language data.
	TessdataPrefix string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	workers, err := getEnvInt(EnvPrefix+"WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	quality, err := getEnvInt(EnvPrefix+"JPEG_QUALITY", 95)
	if err != nil {
		return nil, err
	}
	budget, err := time.ParseDuration(getEnv(EnvPrefix+"TIME_BUDGET", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid %sTIME_BUDGET: %w", EnvPrefix, err)
	}

	cfg := &Config{
		LogLevel:       strings.ToLower(getEnv(EnvPrefix+"LOG_LEVEL", "info")),
		Workers:        workers,
		Format:         strings.ToLower(getEnv(EnvPrefix+"FORMAT", "jpg")),
		JPEGQuality:    quality,
		TimeBudget:     budget,
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:       getEnv(EnvPrefix+"S3_BUCKET", ""),
		S3Prefix:       strings.Trim(getEnv(EnvPrefix+"S3_PREFIX", ""), "/"),
		TessdataPrefix: getEnv("TESSDATA_PREFIX", ""),
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.New("invalid workers: must be at least 1")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("invalid jpeg quality: must be between 1 and 100")
	}
	switch c.Format {
	case "jpg", "jpeg", "png":
	default:
		return fmt.Errorf("invalid format %q: must be jpg or png", c.Format)
	}
	if c.TimeBudget <= 0 {
		return errors.New("invalid time budget: must be positive")
	}
	return nil
}

// Debug reports whether debug logging is enabled.
func (c *Config) Debug() bool {
	return c.LogLevel == "debug"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be a number", key)
	}
	return n, nil
}

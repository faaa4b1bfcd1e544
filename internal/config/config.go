// Package config loads runtime options for the converter from defaults, an
// optional YAML file and IMAGE_CONVERTER_* environment variables. A .env file
// in the working directory is read into the environment first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"image-converter/internal/codec"
	"image-converter/internal/conversion"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "IMAGE_CONVERTER_"

// Config contains runtime options for the converter.
type Config struct {
	Conversion ConversionConfig `yaml:"conversion"`
	Log        LogConfig        `yaml:"log"`
	// StartDir is where the input picker opens.
	StartDir string `yaml:"start_dir"`
}

// ConversionConfig tunes the conversion engine.
type ConversionConfig struct {
	ChunkSize   int           `yaml:"chunk_size"`
	ChunkDelay  time.Duration `yaml:"chunk_delay"`
	Compression string        `yaml:"compression"`
	Verify      bool          `yaml:"verify"`
}

// LogConfig selects the log level, format and destination.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
	File   string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Conversion: ConversionConfig{
			ChunkSize:   conversion.DefaultChunkSize,
			Compression: codec.CompressionDefault,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		StartDir: ".",
	}
}

// Load reads the YAML file at path (skipped when empty) over the defaults
// and applies environment overrides. Callers validate after applying their
// own overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Conversion.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be at least 1, got %d", c.Conversion.ChunkSize)
	}
	if c.Conversion.ChunkDelay < 0 {
		return fmt.Errorf("chunk delay must not be negative, got %s", c.Conversion.ChunkDelay)
	}
	if _, err := codec.ParseCompression(c.Conversion.Compression); err != nil {
		return err
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok := lookupEnv("CHUNK_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCHUNK_SIZE: %w", EnvPrefix, err)
		}
		cfg.Conversion.ChunkSize = n
	}
	if v, ok := lookupEnv("CHUNK_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCHUNK_DELAY: %w", EnvPrefix, err)
		}
		cfg.Conversion.ChunkDelay = d
	}
	if v, ok := lookupEnv("COMPRESSION"); ok {
		cfg.Conversion.Compression = v
	}
	if v, ok := lookupEnv("VERIFY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sVERIFY: %w", EnvPrefix, err)
		}
		cfg.Conversion.Verify = b
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookupEnv("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	if v, ok := lookupEnv("LOG_FILE"); ok {
		cfg.Log.File = v
	}
	if v, ok := lookupEnv("START_DIR"); ok {
		cfg.StartDir = v
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	return v, v != ""
}

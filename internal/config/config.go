package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
// Priority: environment variables override the config file, which overrides defaults.
type Config struct {
	// Server configuration
	Server struct {
		// URL is the default Audiobookshelf server URL offered at login.
		URL string `yaml:"url"`
	} `yaml:"server"`

	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// HTTP client settings
	HTTP struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"http"`

	// File paths
	Paths struct {
		DataDir      string `yaml:"data_dir"`
		DatabaseFile string `yaml:"database_file"`
	} `yaml:"paths"`

	// Palette settings for cover color extraction
	Palette struct {
		Colors int `yaml:"colors"`
	} `yaml:"palette"`
}

// Load loads configuration from a file (if specified) and environment variables.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.HTTP.Timeout = 30 * time.Second
	cfg.Paths.DataDir = "./data"
	cfg.Palette.Colors = 5

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if cfg.Paths.DatabaseFile == "" {
		cfg.Paths.DatabaseFile = filepath.Join(cfg.Paths.DataDir, "noira.db")
	}
	cfg.Server.URL = normalizeURL(cfg.Server.URL)

	return cfg, nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) {
	if url := os.Getenv("NOIRA_SERVER_URL"); url != "" {
		cfg.Server.URL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if timeout := os.Getenv("HTTP_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.HTTP.Timeout = d
		}
	}
	if dataDir := os.Getenv("NOIRA_DATA_DIR"); dataDir != "" {
		cfg.Paths.DataDir = dataDir
	}
	if dbFile := os.Getenv("NOIRA_DATABASE_FILE"); dbFile != "" {
		cfg.Paths.DatabaseFile = dbFile
	}
	if colors := os.Getenv("NOIRA_PALETTE_COLORS"); colors != "" {
		if n, err := strconv.Atoi(colors); err == nil && n > 0 {
			cfg.Palette.Colors = n
		}
	}
}

// normalizeURL strips surrounding whitespace and trailing slashes so stored
// URLs can be joined with request paths directly.
func normalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

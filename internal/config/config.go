package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations.
type Paths struct {
	KnowledgeFile string `toml:"knowledge_file"`
	HistoryDB     string `toml:"history_db"`
	LogDir        string `toml:"log_dir"`
}

// Learning contains configuration for sighting-based learning and the remote
// classifier.
type Learning struct {
	Enabled           bool   `toml:"enabled"`
	MinSightings      int    `toml:"min_sightings"`
	RateLimitSecs     int    `toml:"rate_limit_secs"`
	MaxPending        int    `toml:"max_pending"`
	StalePendingHours int    `toml:"stale_pending_hours"`
	ICAURL            string `toml:"ica_url"`
	SetecURL          string `toml:"setec_url"`
	ServiceName       string `toml:"service_name"`
	SecretName        string `toml:"secret_name"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RetryAttempts     int    `toml:"retry_attempts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for portkiller.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Learning Learning `toml:"learning"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error; defaults are returned with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

// MinSightings returns the promotion threshold, never below one.
func (c *Config) MinSightings() uint32 {
	if c.Learning.MinSightings < 1 {
		return 1
	}
	return uint32(c.Learning.MinSightings)
}

// RateLimit returns the minimum spacing between remote classifier calls.
func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.Learning.RateLimitSecs) * time.Second
}

// RequestTimeout returns the per-request timeout for the remote classifier.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Learning.TimeoutSeconds) * time.Second
}

// StalePendingAge returns how long a pending entry may go unseen before cleanup.
func (c *Config) StalePendingAge() time.Duration {
	return time.Duration(c.Learning.StalePendingHours) * time.Hour
}

// LockPath returns the advisory lock file guarding the knowledge file.
func (c *Config) LockPath() string {
	return c.Paths.KnowledgeFile + ".lock"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders cfg as TOML, as used by `config show`.
func Encode(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

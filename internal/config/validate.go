package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLearning(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.KnowledgeFile == "" {
		return errors.New("paths.knowledge_file must be set")
	}
	if c.Paths.HistoryDB == "" {
		return errors.New("paths.history_db must be set")
	}
	return nil
}

func (c *Config) validateLearning() error {
	if c.Learning.MinSightings < 1 {
		return errors.New("learning.min_sightings must be at least 1")
	}
	if c.Learning.MaxPending < 0 {
		return errors.New("learning.max_pending must not be negative")
	}
	if c.Learning.RateLimitSecs < 0 {
		return errors.New("learning.rate_limit_secs must not be negative")
	}
	if c.Learning.RetryAttempts > 10 {
		return errors.New("learning.retry_attempts must be 10 or fewer")
	}
	if err := validateURL("learning.ica_url", c.Learning.ICAURL); err != nil {
		return err
	}
	return validateURL("learning.setec_url", c.Learning.SetecURL)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func validateURL(field, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL, got %q", field, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}

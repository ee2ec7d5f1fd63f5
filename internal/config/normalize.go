package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLearning()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.KnowledgeFile) == "" {
		c.Paths.KnowledgeFile = defaultKnowledgeFile
	}
	if c.Paths.KnowledgeFile, err = expandPath(strings.TrimSpace(c.Paths.KnowledgeFile)); err != nil {
		return fmt.Errorf("paths.knowledge_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = defaultHistoryDB
	}
	if c.Paths.HistoryDB, err = expandPath(strings.TrimSpace(c.Paths.HistoryDB)); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	// An empty log_dir means stderr only.
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLearning() {
	c.Learning.ICAURL = strings.TrimRight(strings.TrimSpace(c.Learning.ICAURL), "/")
	if value, ok := os.LookupEnv(ICAURLEnv); ok && strings.TrimSpace(value) != "" {
		c.Learning.ICAURL = strings.TrimRight(strings.TrimSpace(value), "/")
	}
	if c.Learning.ICAURL == "" {
		c.Learning.ICAURL = defaultICAURL
	}
	c.Learning.SetecURL = strings.TrimSpace(c.Learning.SetecURL)
	if value, ok := os.LookupEnv(SetecURLEnv); ok && strings.TrimSpace(value) != "" {
		c.Learning.SetecURL = strings.TrimSpace(value)
	}
	if c.Learning.SetecURL == "" {
		c.Learning.SetecURL = defaultSetecURL
	}
	c.Learning.ServiceName = strings.TrimSpace(c.Learning.ServiceName)
	if c.Learning.ServiceName == "" {
		c.Learning.ServiceName = defaultServiceName
	}
	c.Learning.SecretName = strings.TrimSpace(c.Learning.SecretName)
	if c.Learning.SecretName == "" {
		c.Learning.SecretName = defaultSecretName
	}
	if c.Learning.TimeoutSeconds <= 0 {
		c.Learning.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Learning.RetryAttempts <= 0 {
		c.Learning.RetryAttempts = defaultRetryAttempts
	}
	if c.Learning.StalePendingHours <= 0 {
		c.Learning.StalePendingHours = defaultStalePendingHours
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

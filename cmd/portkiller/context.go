package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"portkiller/internal/config"
	"portkiller/internal/enrich"
	"portkiller/internal/journal"
	"portkiller/internal/knowledge"
	"portkiller/internal/learning"
	"portkiller/internal/logging"
	"portkiller/internal/secrets"
	"portkiller/internal/services/ica"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	sessionID    string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	credsOnce sync.Once
	creds     *secrets.Cached
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		sessionID:    journal.NewSessionID(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg, c.sessionID)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logging: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// credentials returns the process-wide cached service key provider:
// PORTKILLER_ICA_SERVICE_KEY first, then setec.
func (c *commandContext) credentials() *secrets.Cached {
	c.credsOnce.Do(func() {
		cfg := c.configValue()
		chain := secrets.Chain{secrets.EnvProvider{Variable: config.ServiceKeyEnv}}
		if cfg != nil {
			chain = append(chain, secrets.SetecProvider{
				ServerURL: cfg.Learning.SetecURL,
				Secret:    cfg.Learning.SecretName,
			})
		}
		c.creds = secrets.NewCached(chain)
	})
	return c.creds
}

// classifier returns the remote classifier, or nil when remote learning is
// disabled by config or flag.
func (c *commandContext) classifier(logger *slog.Logger, noRemote bool) learning.Classifier {
	cfg := c.configValue()
	if noRemote || cfg == nil || !cfg.Learning.Enabled {
		return nil
	}
	return ica.NewClient(ica.Config{
		BaseURL:        cfg.Learning.ICAURL,
		ServiceName:    cfg.Learning.ServiceName,
		TimeoutSeconds: cfg.Learning.TimeoutSeconds,
	}, c.credentials(),
		ica.WithRetryMaxAttempts(cfg.Learning.RetryAttempts),
		ica.WithLogger(logger))
}

func (c *commandContext) enricher(logger *slog.Logger) *enrich.Enricher {
	return enrich.New(enrich.WithLogger(logger))
}

func (c *commandContext) policy() knowledge.Policy {
	cfg := c.configValue()
	return knowledge.Policy{MinSightings: cfg.MinSightings(), MaxPending: cfg.Learning.MaxPending}
}

// openStore loads the knowledge file for reading. Creating or upgrading the
// file on disk is a write, so that step takes the lock; when another process
// holds it the in-memory view is returned and the file is left for that
// process.
func (c *commandContext) openStore(logger *slog.Logger) (*knowledge.Store, error) {
	store, err := c.loadStore(logger, knowledge.ReadOnly())
	if err != nil || !store.Dirty() {
		return store, err
	}
	cfg := c.configValue()
	lock, err := knowledge.AcquireLock(cfg.LockPath())
	if errors.Is(err, knowledge.ErrStoreLocked) {
		logger.Debug("knowledge file busy; using unsaved view", logging.String("path", cfg.Paths.KnowledgeFile))
		return store, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()
	return c.loadStore(logger)
}

func (c *commandContext) loadStore(logger *slog.Logger, opts ...knowledge.Option) (*knowledge.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	opts = append([]knowledge.Option{knowledge.WithLogger(logger)}, opts...)
	store, err := knowledge.Load(cfg.Paths.KnowledgeFile, opts...)
	if err != nil {
		return nil, fmt.Errorf("open knowledge file: %w", err)
	}
	return store, nil
}

// withLockedStore runs fn with the knowledge file lock held.
func (c *commandContext) withLockedStore(logger *slog.Logger, fn func(*knowledge.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock, err := knowledge.AcquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	store, err := c.loadStore(logger)
	if err != nil {
		return err
	}
	return fn(store)
}

func (c *commandContext) openJournal(ctx context.Context) (*journal.Journal, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(ctx, cfg.Paths.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return j, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

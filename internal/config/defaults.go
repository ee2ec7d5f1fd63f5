package config

const (
	defaultConfigPath        = "~/.config/portkiller/config.toml"
	defaultKnowledgeFile     = "~/.portkiller-knowledge.json"
	defaultHistoryDB         = "~/.local/share/portkiller/history.db"
	defaultLogDir            = "~/.local/share/portkiller/logs"
	defaultMinSightings      = 2
	defaultRateLimitSecs     = 5
	defaultMaxPending        = 20
	defaultStalePendingHours = 168
	defaultICAURL            = "https://ica.tailb726.ts.net"
	defaultSetecURL          = "https://setec.tailb726.ts.net"
	defaultServiceName       = "portkiller"
	defaultSecretName        = "ica/service-key"
	defaultTimeoutSeconds    = 30
	defaultRetryAttempts     = 1
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Environment variables consulted on top of the config file.
const (
	ICAURLEnv     = "PORTKILLER_ICA_URL"
	SetecURLEnv   = "PORTKILLER_SETEC_URL"
	ServiceKeyEnv = "PORTKILLER_ICA_SERVICE_KEY"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			KnowledgeFile: defaultKnowledgeFile,
			HistoryDB:     defaultHistoryDB,
			LogDir:        defaultLogDir,
		},
		Learning: Learning{
			Enabled:           true,
			MinSightings:      defaultMinSightings,
			RateLimitSecs:     defaultRateLimitSecs,
			MaxPending:        defaultMaxPending,
			StalePendingHours: defaultStalePendingHours,
			ICAURL:            defaultICAURL,
			SetecURL:          defaultSetecURL,
			ServiceName:       defaultServiceName,
			SecretName:        defaultSecretName,
			TimeoutSeconds:    defaultTimeoutSeconds,
			RetryAttempts:     defaultRetryAttempts,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/argus-labs/presence/pkg/storage"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

// config holds environment variable configuration for the presence service.
type config struct {
	// Path of the display config file. Empty runs with the built-in defaults.
	ConfigPath string `env:"PRESENCE_CONFIG_PATH"`

	HTTPPort   string `env:"PRESENCE_HTTP_PORT" envDefault:"4050"`
	StatsdAddr string `env:"PRESENCE_STATSD_ADDR"`

	// Subjects of the host event feed and surface hang off this prefix.
	SubjectPrefix string `env:"PRESENCE_SUBJECT_PREFIX" envDefault:"presence.default"`
	MaxPlayers    int    `env:"PRESENCE_MAX_PLAYERS" envDefault:"100"`

	// NATS and storage are dialed up to StartupAttempts times, backing off from StartupDelay.
	StartupAttempts uint          `env:"PRESENCE_STARTUP_ATTEMPTS" envDefault:"5"`
	StartupDelay    time.Duration `env:"PRESENCE_STARTUP_DELAY" envDefault:"1s"`

	Storage storage.Options
}

func loadConfig() (config, error) {
	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse environment variables")
	}
	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func (cfg *config) validate() error {
	port, err := strconv.Atoi(cfg.HTTPPort)
	if err != nil || port <= 0 || port > 65535 {
		return eris.Errorf("http port must be between 1 and 65535, got %q", cfg.HTTPPort)
	}
	if cfg.MaxPlayers <= 0 {
		return eris.New("max players must be positive")
	}
	if cfg.SubjectPrefix == "" {
		return eris.New("subject prefix cannot be empty")
	}
	if strings.ContainsAny(cfg.SubjectPrefix, "*> ") || strings.HasSuffix(cfg.SubjectPrefix, ".") {
		return eris.Errorf("subject prefix %q is not a literal NATS subject", cfg.SubjectPrefix)
	}
	if cfg.StartupAttempts == 0 {
		return eris.New("startup attempts must be at least 1")
	}
	if cfg.StartupDelay < 0 {
		return eris.New("startup delay must not be negative")
	}
	if storage.ParseType(cfg.Storage.Type) == storage.TypeUndefined {
		return eris.Errorf("invalid storage type: %q", cfg.Storage.Type)
	}
	return nil
}

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"tokendrop"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogVerbose  bool   `env:"LOG_VERBOSE" envDefault:"false"`

	PostgresDSN string `env:"POSTGRES_DSN"`

	// LedgerBaseURL is where the external value-transfer service listens.
	LedgerBaseURL string `env:"LEDGER_BASE_URL" envDefault:"http://localhost:9090"`
	// TreasuryAccount is the service's own ledger account, debited by
	// payouts and checked for solvency before a distribution run.
	TreasuryAccount string `env:"TREASURY_ACCOUNT"`
	// Controllers is the administrative allow-list; only these callers may
	// mutate allocation state or trigger distribution.
	Controllers []string `env:"CONTROLLERS" envSeparator:","`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"5s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

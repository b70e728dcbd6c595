package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	airdropservice "tokendrop/contexts/token-distribution/airdrop-service"
	eventsadapter "tokendrop/contexts/token-distribution/airdrop-service/adapters/events"
	"tokendrop/contexts/token-distribution/airdrop-service/adapters/ledger"
	postgresadapter "tokendrop/contexts/token-distribution/airdrop-service/adapters/postgres"
	"tokendrop/contexts/token-distribution/airdrop-service/adapters/staticauth"
	workerapp "tokendrop/contexts/token-distribution/airdrop-service/application/workers"
	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
	"tokendrop/internal/platform/config"
	"tokendrop/internal/platform/db"
	"tokendrop/internal/platform/httpserver"
	platformlogger "tokendrop/internal/platform/logger"
	"tokendrop/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  workerapp.OutboxRelay
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := platformlogger.New(cfg.ServiceName, cfg.LogVerbose).With("process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	if strings.TrimSpace(cfg.TreasuryAccount) == "" {
		return nil, errors.New("TREASURY_ACCOUNT is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module := airdropservice.NewModule(airdropservice.Dependencies{
		Repository:      repo,
		Ledger:          ledger.NewClient(cfg.LedgerBaseURL, logger),
		Gate:            staticauth.NewGate(controllerIdentities(cfg.Controllers)),
		Clock:           postgresadapter.SystemClock{},
		IDGen:           postgresadapter.UUIDGenerator{},
		Outbox:          repo,
		TreasuryAccount: valueobjects.Identity(strings.TrimSpace(cfg.TreasuryAccount)),
		Logger:          logger,
	})

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := platformlogger.New(cfg.ServiceName, cfg.LogVerbose).With("process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	bus, err := messaging.NewKafka(nil, logger)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	return &WorkerApp{
		postgres: pg,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: eventsadapter.NewPublisher(bus, logger),
			Clock:     postgresadapter.SystemClock{},
			BatchSize: cfg.OutboxBatchSize,
			Logger:    logger,
		},
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if err := w.outboxRelay.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func controllerIdentities(values []string) []valueobjects.Identity {
	identities := make([]valueobjects.Identity, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		identities = append(identities, valueobjects.Identity(value))
	}
	return identities
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}

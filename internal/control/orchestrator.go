// Package control wires the scraping engine together and exposes the
// operator HTTP surface.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/scraperd/internal/core/config"
	"github.com/vietddude/scraperd/internal/infra/apiclient"
	redisclient "github.com/vietddude/scraperd/internal/infra/redis"
	"github.com/vietddude/scraperd/internal/infra/storage"
	"github.com/vietddude/scraperd/internal/infra/storage/memory"
	"github.com/vietddude/scraperd/internal/infra/storage/postgres"
	"github.com/vietddude/scraperd/internal/scraping/health"
	"github.com/vietddude/scraperd/internal/scraping/patterns"
	"github.com/vietddude/scraperd/internal/scraping/ratelimit"
	"github.com/vietddude/scraperd/internal/scraping/recovery"
	"github.com/vietddude/scraperd/internal/scraping/risk"
	"github.com/vietddude/scraperd/internal/scraping/session"
)

// Orchestrator owns the engine's components and their lifecycles.
type Orchestrator struct {
	cfg      *config.AppConfig
	limiter  *ratelimit.Limiter
	analyzer *patterns.Analyzer
	health   *health.Monitor
	assessor *risk.Assessor
	manager  *session.Manager
	server   *Server

	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// New builds the engine from configuration.
func New(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Orchestrator, error) {
	if log == nil {
		log = slog.Default()
	}

	limits, err := cfg.Scraping.Limits()
	if err != nil {
		return nil, fmt.Errorf("scraping config: %w", err)
	}
	for _, w := range limits.Warnings() {
		log.Warn("scraping config warning", "warning", w)
	}

	// Storage
	var (
		sessionRepo storage.SessionRepository
		accountRepo storage.AccountRepository
		eventRepo   storage.EventLogRepository
		db          *postgres.DB
	)
	if cfg.Database.URL != "" {
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		sessionRepo = postgres.NewSessionRepo(db)
		accountRepo = postgres.NewAccountRepo(db)
		eventRepo = postgres.NewEventRepo(db)
		log.Info("using PostgreSQL storage")
	} else {
		store := memory.NewStorage()
		sessionRepo = memory.NewSessionRepo(store)
		accountRepo = memory.NewAccountRepo(store)
		eventRepo = memory.NewEventRepo(store)
		log.Info("using memory storage")
	}

	// Quarantine store: redis when configured, in-process otherwise.
	var (
		quarantine  health.Quarantiner
		redisClient *redisclient.Client
	)
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		quarantine = redisClient
		log.Info("using redis quarantine store")
	} else {
		quarantine = redisclient.NewMemoryQuarantine()
	}

	limiter := ratelimit.NewLimiter(limits)
	analyzer := patterns.NewAnalyzer(log)
	healthMon := health.NewMonitor(quarantine, log)
	selector := recovery.NewSelector(analyzer)

	weights := risk.DefaultWeights()
	if cfg.Risk != nil {
		weights = *cfg.Risk
	}
	assessor := risk.NewAssessor(weights, healthMon, analyzer, sessionRepo, limiter)

	apiCfg := cfg.API
	apiCfg.ReducedData = limits.UseReducedDataMode
	client := apiclient.NewHTTPClient(apiCfg)

	manager := session.NewManager(ctx,
		sessionRepo, accountRepo, eventRepo,
		limiter, selector, analyzer, healthMon, quarantine, assessor,
		client, log,
	)

	o := &Orchestrator{
		cfg:         cfg,
		limiter:     limiter,
		analyzer:    analyzer,
		health:      healthMon,
		assessor:    assessor,
		manager:     manager,
		db:          db,
		redisClient: redisClient,
		log:         log,
	}
	o.server = NewServer(o, cfg.Server.Port)
	return o, nil
}

// Start runs the background workers and the HTTP server. Blocks until the
// server stops.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.analyzer.Start(ctx)
	o.log.Info("control server listening", "port", o.cfg.Server.Port)
	return o.server.Start()
}

// Shutdown stops the HTTP server and closes connections.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if err := o.server.Stop(ctx); err != nil {
		return err
	}
	if o.redisClient != nil {
		_ = o.redisClient.Close()
	}
	if o.db != nil {
		_ = o.db.Close()
	}
	return nil
}

// Manager exposes the session manager for the HTTP layer and tests.
func (o *Orchestrator) Manager() *session.Manager { return o.manager }

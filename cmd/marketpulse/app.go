package main

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketpulse/internal/calibration"
	"github.com/sawpanic/marketpulse/internal/config"
	"github.com/sawpanic/marketpulse/internal/consistency"
	"github.com/sawpanic/marketpulse/internal/indexer"
	"github.com/sawpanic/marketpulse/internal/metrics"
	"github.com/sawpanic/marketpulse/internal/model"
	"github.com/sawpanic/marketpulse/internal/opportunity"
	"github.com/sawpanic/marketpulse/internal/orchestrator"
	"github.com/sawpanic/marketpulse/internal/persistence"
	"github.com/sawpanic/marketpulse/internal/persistence/postgres"
	"github.com/sawpanic/marketpulse/internal/providers"
	"github.com/sawpanic/marketpulse/internal/regime"
	"github.com/sawpanic/marketpulse/internal/signal"
)

// app wires configuration into the full pipeline. Every command builds one
// and closes it on exit.
type app struct {
	cfg      *config.Config
	db       *sqlx.DB
	redis    *redis.Client
	store    persistence.Store
	registry *metrics.Registry
	orch     *orchestrator.Orchestrator
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	timeout := cfg.Database.GetQueryTimeout()
	store := persistence.Store{
		Indicators: postgres.NewIndicatorRepo(db, timeout),
		Scores:     postgres.NewScoreRepo(db, timeout),
		Regimes:    postgres.NewRegimeRepo(db, timeout),
		Outcomes:   postgres.NewOutcomeRepo(db, timeout),
		Ledger:     postgres.NewLedgerRepo(db, timeout),
		Snapshots:  postgres.NewSnapshotRepo(db, timeout),
	}

	source := providers.NewIndicatorSource(store.Indicators, cfg.Source)
	registry := metrics.NewRegistry()

	var redisClient *redis.Client
	var models *model.Cache
	if cfg.Model.Key != "" {
		var paramStore model.ParamStore
		if cfg.Model.ParamsDir != "" {
			paramStore = model.NewFileParamStore(cfg.Model.ParamsDir)
		} else {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			paramStore = model.NewRedisParamStore(redisClient, cfg.Model.KeyPrefix)
		}
		models = model.NewCache(paramStore, cfg.Model.GetCacheTTL())
	} else {
		log.Warn().Msg("no model key configured, forecast component disabled")
	}

	orchCfg := cfg.Orchestrator
	if orchCfg == nil {
		orchCfg = orchestrator.DefaultConfig()
	}
	if orchCfg.Horizon == "" {
		orchCfg.Horizon = cfg.Horizon
	}
	orchCfg.ModelKey = cfg.Model.Key

	orch := orchestrator.New(orchestrator.Deps{
		Store:      store,
		Aggregator: indexer.NewAggregator(source, store.Scores, cfg.Indicators, cfg.Aggregator),
		Detector:   regime.NewDetector(source, cfg.Regime),
		Signals:    signal.NewEngine(cfg.Signal),
		Calibrator: calibration.NewEngine(cfg.Calibration),
		Gate:       opportunity.NewGateEvaluator(cfg.Gate),
		Checker:    consistency.NewChecker(cfg.Consistency),
		Conviction: cfg.Conviction,
		Models:     models,
		Metrics:    registry,
	}, cfg.Indicators, orchCfg)

	return &app{
		cfg:      cfg,
		db:       db,
		redis:    redisClient,
		store:    store,
		registry: registry,
		orch:     orch,
	}, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	}
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("database close failed")
	}
}

// parseDay parses a YYYY-MM-DD flag value.
func parseDay(value string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return day, nil
}

package commands

import (
	"context"
	"fmt"

	"github.com/wonny/smartflow/internal/brain"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/pkg/config"
	"github.com/wonny/smartflow/pkg/database"
	"github.com/wonny/smartflow/pkg/logger"
	"github.com/wonny/smartflow/pkg/metrics"
	"github.com/wonny/smartflow/pkg/redis"
)

// app bundles the dependencies every command builds the same way
type app struct {
	cfg      *config.Config
	pipeline *pipelineconfig.Config
	log      *logger.Logger
	metrics  *metrics.Recorder

	// 선택: DATABASE_URL / REDIS_ENABLED 가 있을 때만
	db    *database.DB
	redis *redis.Client
	cache *redis.Cache

	orchestrator *brain.Orchestrator
}

// newApp loads config, connects optional stores and wires the orchestrator
func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Pipeline config (YAML + env overrides)
	pcfg, err := pipelineconfig.Load(cfg.Pipeline.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load pipeline config: %w", err)
	}
	if err := pipelineconfig.ApplyEnv(pcfg, cfg.Pipeline); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	a := &app{
		cfg:      cfg,
		pipeline: pcfg,
		log:      log,
		metrics:  metrics.New(),
	}

	// 4. Orchestrator
	a.orchestrator, err = brain.NewOrchestrator(pcfg, cfg.Pipeline, a.metrics, log)
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	// 5. Optional Postgres
	if cfg.Database.Enabled() {
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		a.db = db
		a.orchestrator.WithDatabase(db.Pool)
		log.Info("Connected to database")
	}

	// 6. Optional Redis
	rc, err := redis.New(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rc
	if rc.Enabled() {
		a.cache = redis.NewCache(rc, "smartflow")
		a.orchestrator.WithCache(a.cache)
		log.Info("Connected to redis")
	}

	log.WithFields(map[string]interface{}{
		"env":         cfg.Env,
		"data_dir":    cfg.Pipeline.DataDir,
		"output_dir":  cfg.Pipeline.OutputDir,
		"config_hash": a.orchestrator.ConfigHash(),
		"database":    a.db != nil,
		"redis":       a.cache != nil,
	}).Debug("Application initialized")

	return a, nil
}

func (a *app) close() {
	a.db.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Redis close failed")
		}
	}
}

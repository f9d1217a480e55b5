package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/ats"
	"github.com/sells-group/jobintel/internal/clean"
	"github.com/sells-group/jobintel/internal/extract"
	"github.com/sells-group/jobintel/internal/extract/ai"
	"github.com/sells-group/jobintel/internal/extract/heuristic"
	"github.com/sells-group/jobintel/internal/fetch"
	"github.com/sells-group/jobintel/internal/monitoring"
	"github.com/sells-group/jobintel/internal/orchestrator"
	"github.com/sells-group/jobintel/internal/store"
	"github.com/sells-group/jobintel/pkg/anthropic"
)

// pipelineEnv holds the wired components shared by the commands.
type pipelineEnv struct {
	Store store.Store
	Orch  *orchestrator.Orchestrator
	Retry *orchestrator.RetryService
}

// initPipeline builds the store, the cascade, and the orchestrator from
// the loaded config.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	cleaner := clean.New(cfg.Clean)
	fetcher := fetch.New(st, cleaner, cfg.Fetch)

	extractors := []extract.Extractor{
		ats.NewStructuredExtractor(&http.Client{Timeout: 30 * time.Second}),
	}
	if cfg.Anthropic.Key != "" {
		extractors = append(extractors, ai.New(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic))
	}
	extractors = append(extractors, heuristic.New())

	alerter := monitoring.NewAlerter(cfg.Alert)
	orch := orchestrator.New(st, fetcher, extractors, alerter, cfg.Extract)

	return &pipelineEnv{
		Store: st,
		Orch:  orch,
		Retry: orchestrator.NewRetryService(st, orch, cfg.Extract),
	}, nil
}

// openStore selects the backend by config: postgres in production,
// sqlite for local runs.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "", "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (e *pipelineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

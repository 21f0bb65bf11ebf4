package commands

import (
	"fmt"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/internal/external/eodhd"
	"github.com/quantfold/nextday/internal/external/yahoo"
	"github.com/quantfold/nextday/internal/features"
	"github.com/quantfold/nextday/internal/model"
	"github.com/quantfold/nextday/internal/pipeline"
	"github.com/quantfold/nextday/internal/plan"
	"github.com/quantfold/nextday/internal/pnl"
	"github.com/quantfold/nextday/internal/pricestore"
	"github.com/quantfold/nextday/internal/sentiment"
	"github.com/quantfold/nextday/internal/tiering"
	"github.com/quantfold/nextday/internal/universe"
	"github.com/quantfold/nextday/internal/walkforward"
	"github.com/quantfold/nextday/pkg/config"
	"github.com/quantfold/nextday/pkg/httputil"
	"github.com/quantfold/nextday/pkg/logger"
)

// app bundles the wired components every command draws from.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	store     *pricestore.Store
	trainer   *model.Trainer
	generator *plan.Generator
	evaluator *walkforward.Evaluator
	ledger    *pnl.Ledger
	rec       *pnl.Reconciler
	universe  contracts.UniverseProvider
	sentiment *sentiment.Provider
	pipe      *pipeline.Pipeline
}

// buildApp loads config and wires the full component graph. Commands that
// need only a slice of it still share one construction path.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log := logger.New(level, cfg.LogFormat)

	httpClient := httputil.New(log, cfg.Data.HTTPTimeout, cfg.Data.RetryCount, cfg.Data.RetryBackoff)

	// EODHD leads when a key is configured; the keyless Yahoo chart API is
	// always present as fallback.
	var sources []contracts.PriceSource
	if cfg.EODHDAPIKey != "" {
		sources = append(sources, eodhd.NewClient(httpClient, log, cfg.EODHDAPIKey))
	}
	sources = append(sources, yahoo.NewClient(httpClient, log))

	store, err := pricestore.New(pricestore.Config{
		CacheDir:           cfg.CacheDir,
		CacheStalenessDays: cfg.Data.CacheStalenessDays,
	}, sources, log)
	if err != nil {
		return nil, fmt.Errorf("price store: %w", err)
	}

	trainer := model.NewTrainer(log)
	evaluator := walkforward.NewEvaluator(trainer, cfg.OutDir, log)

	newsClient := httputil.New(log, cfg.Data.HTTPTimeout, cfg.Data.RetryCount, cfg.Data.RetryBackoff).
		WithRateLimit(2, 1)
	sent := sentiment.NewProvider(newsClient, cfg.NewsFeeds, cfg.OutDir, log)

	var tiers contracts.CapTierClassifier
	if cfg.EODHDAPIKey != "" {
		tiers = tiering.NewClassifier(eodhd.NewClient(httpClient, log, cfg.EODHDAPIKey), cfg.OutDir, log)
	}

	generator := plan.NewGenerator(trainer, sent, tiers, cfg.OutDir, log)
	ledger := pnl.NewLedger(cfg.OutDir)
	rec := pnl.NewReconciler(store, ledger, log)
	uni := universe.NewProvider(cfg.OutDir, cfg.Data.UniverseSizeCap, log)
	eng := features.NewEngine()

	pipe := pipeline.New(cfg, store, eng, trainer, evaluator, generator, rec, uni, sent, log)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		trainer:   trainer,
		generator: generator,
		evaluator: evaluator,
		ledger:    ledger,
		rec:       rec,
		universe:  uni,
		sentiment: sent,
		pipe:      pipe,
	}, nil
}

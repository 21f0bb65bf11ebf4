package pipeline

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/internal/features"
	"github.com/quantfold/nextday/internal/model"
	"github.com/quantfold/nextday/internal/plan"
	"github.com/quantfold/nextday/internal/pnl"
	"github.com/quantfold/nextday/internal/pricestore"
	"github.com/quantfold/nextday/internal/walkforward"
	"github.com/quantfold/nextday/pkg/config"
	"github.com/quantfold/nextday/pkg/logger"
	"github.com/quantfold/nextday/pkg/metrics"
)

// warmable is implemented by sentiment providers that can pre-fill their
// cache for a batch of instruments.
type warmable interface {
	Warmup(ctx context.Context, instruments []string, date time.Time)
}

// Pipeline is the single parameterized daily run: universe → bars →
// features → train/eval → walk-forward → plan → reconcile. Collaborators
// are injected; there are no package-level knobs.
type Pipeline struct {
	cfg       *config.Config
	store     *pricestore.Store
	engine    *features.Engine
	trainer   *model.Trainer
	evaluator *walkforward.Evaluator
	generator *plan.Generator
	rec       *pnl.Reconciler
	universe  contracts.UniverseProvider
	sentiment contracts.SentimentProvider
	logger    *logger.Logger
}

// RunResult carries everything one daily run produced.
type RunResult struct {
	Date           time.Time
	UniverseSize   int
	InstrumentsOK  int
	FeatureRows    int
	HoldoutMetrics *model.Metrics
	Backtest       *walkforward.Result
	Plan           *contracts.Plan
	Reconciled     *pnl.Summary
}

// New wires a pipeline from its collaborators.
func New(
	cfg *config.Config,
	store *pricestore.Store,
	engine *features.Engine,
	trainer *model.Trainer,
	evaluator *walkforward.Evaluator,
	generator *plan.Generator,
	rec *pnl.Reconciler,
	universe contracts.UniverseProvider,
	sentiment contracts.SentimentProvider,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		engine:    engine,
		trainer:   trainer,
		evaluator: evaluator,
		generator: generator,
		rec:       rec,
		universe:  universe,
		sentiment: sentiment,
		logger:    log.WithField("component", "pipeline"),
	}
}

// Run executes the full daily pipeline.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	started := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(started).Seconds())
	}()

	if hash, err := p.cfg.Hash(); err == nil {
		p.logger.WithField("config_hash", hash).Info("pipeline run starting")
	}

	instruments, err := p.universe.ListInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list universe: %w", err)
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("list universe: %w", contracts.ErrEmptyFeatureSet)
	}

	vectors, kept := p.buildDataset(ctx, instruments)
	if len(vectors) == 0 {
		return nil, fmt.Errorf("build dataset: %w", contracts.ErrEmptyFeatureSet)
	}

	result := &RunResult{
		UniverseSize:  len(instruments),
		InstrumentsOK: kept,
		FeatureRows:   len(vectors),
	}

	latest := maxDate(vectors)
	result.Date = latest

	// Holdout split: everything up to a trailing buffer trains the plan
	// model, the remainder reports out-of-sample quality.
	m, err := p.trainAndEval(vectors, latest, result)
	if err != nil {
		return nil, err
	}

	bt, err := p.evaluator.Evaluate(ctx, vectors, p.cfg.Trading.BacktestDays, p.cfg.Trading.TopN)
	if err != nil {
		return nil, fmt.Errorf("walk-forward: %w", err)
	}
	result.Backtest = bt

	if w, ok := p.sentiment.(warmable); ok {
		w.Warmup(ctx, instrumentsAt(vectors, latest), latest)
	}

	pl, err := p.obtainPlan(ctx, m, vectors, latest)
	if err != nil {
		return nil, err
	}
	result.Plan = pl

	result.Reconciled = p.reconcilePriorPlan(latest)

	p.logger.WithFields(map[string]interface{}{
		"universe":  result.UniverseSize,
		"kept":      result.InstrumentsOK,
		"rows":      result.FeatureRows,
		"positions": len(pl.Positions),
		"duration":  time.Since(started),
	}).Info("pipeline run complete")

	return result, nil
}

// Dataset resolves the universe and returns the filtered, featurized
// training rows. Used by commands that need rows without a full run.
func (p *Pipeline) Dataset(ctx context.Context) ([]contracts.FeatureVector, error) {
	instruments, err := p.universe.ListInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list universe: %w", err)
	}
	vectors, _ := p.buildDataset(ctx, instruments)
	if len(vectors) == 0 {
		return nil, fmt.Errorf("build dataset: %w", contracts.ErrEmptyFeatureSet)
	}
	return vectors, nil
}

// buildDataset fetches, filters and featurizes the universe. Instruments
// failing history, price or liquidity screens are skipped, never fatal.
func (p *Pipeline) buildDataset(ctx context.Context, instruments []string) ([]contracts.FeatureVector, int) {
	series := p.store.FetchAll(ctx, instruments, p.cfg.Data.LookbackYears, p.cfg.Data.FetchWorkers)

	ordered := make([]string, 0, len(series))
	for instrument := range series {
		ordered = append(ordered, instrument)
	}
	sort.Strings(ordered)

	var vectors []contracts.FeatureVector
	kept := 0
	for _, instrument := range ordered {
		bars := series[instrument]

		if len(bars) < p.cfg.Data.MinHistoryRows {
			p.skip(instrument, "insufficient_history", contracts.ErrInsufficientHistory)
			continue
		}
		if bars[len(bars)-1].Close < p.cfg.Data.MinPrice {
			p.skip(instrument, "below_min_price", nil)
			continue
		}
		if avgVolume(bars, 20) < p.cfg.Data.MinAvgVolume {
			p.skip(instrument, "below_min_volume", nil)
			continue
		}

		fvs := p.engine.Featurize(bars)
		if len(fvs) == 0 {
			p.skip(instrument, "insufficient_history", contracts.ErrInsufficientHistory)
			continue
		}

		vectors = append(vectors, fvs...)
		kept++
	}

	return vectors, kept
}

func (p *Pipeline) skip(instrument, reason string, err error) {
	metrics.InstrumentsSkipped.WithLabelValues(reason).Inc()
	log := p.logger.WithField("instrument", instrument).WithField("reason", reason)
	if err != nil {
		log = log.WithError(err)
	}
	log.Debug("instrument skipped")
}

// trainAndEval fits the planning model on the pre-holdout partition and
// reports held-out metrics when the holdout is non-empty.
func (p *Pipeline) trainAndEval(vectors []contracts.FeatureVector, latest time.Time, result *RunResult) (*model.Model, error) {
	cutoff := latest.AddDate(0, 0, -(p.cfg.Trading.BacktestDays + 5))

	var train, holdout []contracts.FeatureVector
	for _, fv := range vectors {
		if fv.Date.After(cutoff) {
			holdout = append(holdout, fv)
		} else {
			train = append(train, fv)
		}
	}
	// A short history can leave the pre-cutoff partition empty; train on
	// everything rather than abort, as there is still a model to produce.
	if len(train) == 0 {
		train, holdout = vectors, nil
	}

	m, err := p.trainer.Fit(train)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	if met := p.trainer.Evaluate(m, holdout, p.cfg.Trading.ProbabilityThreshold); met != nil {
		result.HoldoutMetrics = met
		p.logger.WithFields(map[string]interface{}{
			"auc":       met.AUC,
			"accuracy":  met.Accuracy,
			"precision": met.Precision,
			"coverage":  met.Coverage,
			"rows":      met.Rows,
		}).Info("holdout evaluation")
	} else {
		p.logger.Warn("no holdout partition; trained on all rows")
	}

	return m, nil
}

// obtainPlan loads the already-persisted plan for the reference date, or
// generates a fresh one. Plans are immutable once persisted.
func (p *Pipeline) obtainPlan(ctx context.Context, m *model.Model, vectors []contracts.FeatureVector, latest time.Time) (*contracts.Plan, error) {
	if existing, err := plan.ReadPlan(p.cfg.OutDir, latest); err == nil {
		p.logger.WithField("date", latest.Format(contracts.DateFormat)).Info("plan already persisted, reusing")
		return existing, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read existing plan: %w", err)
	}

	pl, err := p.generator.Generate(ctx, m, vectors, plan.Config{
		TopN:            p.cfg.Trading.TopN,
		Capital:         p.cfg.Trading.Capital,
		SentimentWeight: p.cfg.Trading.SentimentWeight,
	})
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	return pl, nil
}

// reconcilePriorPlan settles the most recent plan dated before the
// current reference date, when one exists. Failure here never fails the
// run; reconciliation retries on the next run.
func (p *Pipeline) reconcilePriorPlan(latest time.Time) *pnl.Summary {
	prior, err := plan.LatestPlanDateBefore(p.cfg.OutDir, latest)
	if err != nil || prior.IsZero() {
		return nil
	}

	pl, err := plan.ReadPlan(p.cfg.OutDir, prior)
	if err != nil {
		p.logger.WithError(err).Warn("prior plan unreadable, skipping reconciliation")
		return nil
	}

	summary, err := p.rec.Reconcile(pl, 1)
	if err != nil {
		p.logger.WithError(err).Warn("reconciliation failed")
		return nil
	}
	return summary
}

func maxDate(vectors []contracts.FeatureVector) time.Time {
	latest := vectors[0].Date
	for _, fv := range vectors[1:] {
		if fv.Date.After(latest) {
			latest = fv.Date
		}
	}
	return latest
}

func instrumentsAt(vectors []contracts.FeatureVector, date time.Time) []string {
	var out []string
	for _, fv := range vectors {
		if contracts.SameDay(fv.Date, date) {
			out = append(out, fv.Instrument)
		}
	}
	sort.Strings(out)
	return out
}

func avgVolume(bars []contracts.Bar, window int) float64 {
	if len(bars) < window {
		window = len(bars)
	}
	var sum float64
	for _, b := range bars[len(bars)-window:] {
		sum += b.Volume
	}
	return sum / float64(window)
}

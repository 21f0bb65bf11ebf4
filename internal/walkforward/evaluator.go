package walkforward

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/internal/model"
	"github.com/quantfold/nextday/pkg/logger"
)

// Evaluator runs the repeated out-of-sample train/score protocol: for each
// cutoff date a fresh model is fitted on everything at or before the
// cutoff and scored on the cutoff's block. Audit files are written per
// cutoff so every selection can be replayed later.
type Evaluator struct {
	trainer *model.Trainer
	outDir  string
	logger  *logger.Logger
}

// TradeRecord is one realized (or unresolved) pick in the backtest ledger.
type TradeRecord struct {
	Date       time.Time
	Instrument string
	Close      float64
	Prob       float64
	Ret1D      float64 // Undefined() when the next-day join missed
}

// StepResult summarizes one cutoff.
type StepResult struct {
	Cutoff    time.Time
	TrainRows int
	TestRows  int
	Picks     int
	JoinMiss  int
}

// Result aggregates a full walk-forward run.
type Result struct {
	Days       int
	Steps      []StepResult
	Trades     []TradeRecord
	WinRate    float64 // fraction of resolved trades with positive return
	MeanReturn float64 // mean over resolved trades
	Resolved   int
}

// NewEvaluator creates an evaluator writing audit files under
// outDir/picks_history.
func NewEvaluator(trainer *model.Trainer, outDir string, log *logger.Logger) *Evaluator {
	return &Evaluator{
		trainer: trainer,
		outDir:  outDir,
		logger:  log.WithField("component", "walkforward"),
	}
}

// Evaluate runs numDays walk-forward steps over the trailing dates of the
// feature set, selecting topK instruments per step. Steps run in ascending
// date order; the training set at any cutoff is a strict subset of every
// later cutoff's training set.
func (e *Evaluator) Evaluate(ctx context.Context, vectors []contracts.FeatureVector, numDays, topK int) (*Result, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("walk-forward: %w", contracts.ErrEmptyFeatureSet)
	}

	if err := os.MkdirAll(filepath.Join(e.outDir, "picks_history"), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	byDate, dates := groupByDate(vectors)
	if len(dates) > numDays+1 {
		dates = dates[len(dates)-numDays-1:]
	}

	result := &Result{Days: len(dates) - 1}

	for _, cutoff := range dates[:len(dates)-1] {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		step, trades, err := e.runStep(vectors, byDate, cutoff, topK)
		if err != nil {
			return nil, err
		}

		result.Steps = append(result.Steps, step)
		result.Trades = append(result.Trades, trades...)
	}

	var sum float64
	wins := 0
	for _, tr := range result.Trades {
		if contracts.IsUndefined(tr.Ret1D) {
			continue
		}
		result.Resolved++
		sum += tr.Ret1D
		if tr.Ret1D > 0 {
			wins++
		}
	}
	if result.Resolved > 0 {
		result.WinRate = float64(wins) / float64(result.Resolved)
		result.MeanReturn = sum / float64(result.Resolved)
	}

	e.logger.WithFields(map[string]interface{}{
		"days":        result.Days,
		"trades":      len(result.Trades),
		"resolved":    result.Resolved,
		"win_rate":    result.WinRate,
		"mean_return": result.MeanReturn,
	}).Info("walk-forward complete")

	return result, nil
}

// runStep fits, scores and realizes one cutoff date.
func (e *Evaluator) runStep(vectors []contracts.FeatureVector, byDate map[string][]contracts.FeatureVector, cutoff time.Time, topK int) (StepResult, []TradeRecord, error) {
	cutoffKey := cutoff.Format(contracts.DateFormat)

	// Training set: every row at or before the cutoff. Rows after the
	// cutoff never leak in.
	var train []contracts.FeatureVector
	for _, fv := range vectors {
		if !fv.Date.After(cutoff) {
			train = append(train, fv)
		}
	}

	m, err := e.trainer.Fit(train)
	if err != nil {
		return StepResult{}, nil, fmt.Errorf("cutoff %s: %w", cutoffKey, err)
	}

	block := byDate[cutoffKey]
	probs := e.trainer.Score(m, block)
	picks := selectTopK(block, probs, topK)

	if err := e.writeAudit(cutoff, picks); err != nil {
		return StepResult{}, nil, err
	}

	// Realize each pick against the row one calendar day after the
	// cutoff. A weekend or missing bar yields an undefined return, kept
	// in the ledger as such.
	nextKey := cutoff.AddDate(0, 0, 1).Format(contracts.DateFormat)
	nextClose := make(map[string]float64)
	for _, fv := range byDate[nextKey] {
		nextClose[fv.Instrument] = fv.Close
	}

	step := StepResult{
		Cutoff:    cutoff,
		TrainRows: len(train),
		TestRows:  len(block),
		Picks:     len(picks),
	}

	trades := make([]TradeRecord, 0, len(picks))
	for _, p := range picks {
		tr := TradeRecord{
			Date:       cutoff,
			Instrument: p.row.Instrument,
			Close:      p.row.Close,
			Prob:       p.prob,
			Ret1D:      contracts.Undefined(),
		}
		if nc, ok := nextClose[p.row.Instrument]; ok {
			tr.Ret1D = nc/p.row.Close - 1
		} else {
			step.JoinMiss++
		}
		trades = append(trades, tr)
	}

	return step, trades, nil
}

// scoredRow ties a feature row to its model probability for selection.
type scoredRow struct {
	row  contracts.FeatureVector
	prob float64
}

// selectTopK returns the top k rows by probability descending, ties broken
// by instrument ascending so re-runs on identical scores produce identical
// orderings.
func selectTopK(block []contracts.FeatureVector, probs []float64, k int) []scoredRow {
	scored := make([]scoredRow, len(block))
	for i := range block {
		scored[i] = scoredRow{row: block[i], prob: probs[i]}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].prob != scored[b].prob {
			return scored[a].prob > scored[b].prob
		}
		return scored[a].row.Instrument < scored[b].row.Instrument
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// groupByDate indexes vectors by date key and returns the sorted unique
// dates.
func groupByDate(vectors []contracts.FeatureVector) (map[string][]contracts.FeatureVector, []time.Time) {
	byDate := make(map[string][]contracts.FeatureVector)
	seen := make(map[string]time.Time)
	for _, fv := range vectors {
		key := fv.Date.Format(contracts.DateFormat)
		byDate[key] = append(byDate[key], fv)
		seen[key] = fv.Date
	}

	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	return byDate, dates
}

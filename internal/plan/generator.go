package plan

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/internal/model"
	"github.com/quantfold/nextday/pkg/logger"
)

// Risk-bound caps. Stops and targets scale with recent volatility but
// never widen past these.
const (
	baseStopPct = 0.04
	maxStopPct  = 0.072
	baseTP1Pct  = 0.03
	maxTP1Pct   = 0.048
	baseTP2Pct  = 0.06
	maxTP2Pct   = 0.12
)

// Config holds plan generation parameters.
type Config struct {
	TopN            int
	Capital         float64
	SentimentWeight float64 // [0,1] weight of sentiment in the blend
}

// Generator ranks the latest feature block, blends model edge with
// external sentiment, sizes positions under an equal-capital risk budget
// and persists the resulting plan.
type Generator struct {
	trainer   *model.Trainer
	sentiment contracts.SentimentProvider
	tiers     contracts.CapTierClassifier
	outDir    string
	logger    *logger.Logger
}

// NewGenerator creates a plan generator. tiers may be nil; the band tag is
// display-only.
func NewGenerator(trainer *model.Trainer, sentiment contracts.SentimentProvider, tiers contracts.CapTierClassifier, outDir string, log *logger.Logger) *Generator {
	return &Generator{
		trainer:   trainer,
		sentiment: sentiment,
		tiers:     tiers,
		outDir:    outDir,
		logger:    log.WithField("component", "plan.generator"),
	}
}

// Generate builds and persists the trade plan for the latest date in the
// feature set. Fails before any capital math when the feature set is empty
// or has no rows at the maximum date.
func (g *Generator) Generate(ctx context.Context, m *model.Model, vectors []contracts.FeatureVector, cfg Config) (*contracts.Plan, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("generate plan: %w", contracts.ErrEmptyFeatureSet)
	}

	refDate := vectors[0].Date
	for _, fv := range vectors[1:] {
		if fv.Date.After(refDate) {
			refDate = fv.Date
		}
	}

	var block []contracts.FeatureVector
	for _, fv := range vectors {
		if contracts.SameDay(fv.Date, refDate) {
			block = append(block, fv)
		}
	}
	if len(block) == 0 {
		return nil, fmt.Errorf("generate plan: %w: no rows at latest date", contracts.ErrEmptyFeatureSet)
	}

	probs := g.trainer.Score(m, block)

	candidates := make([]contracts.Candidate, len(block))
	for i, fv := range block {
		sent := clamp(g.sentiment.Score(ctx, fv.Instrument, refDate), -1, 1)
		edge := (probs[i] - 0.5) / 0.5
		candidates[i] = contracts.Candidate{
			Instrument: fv.Instrument,
			Date:       refDate,
			Prob:       probs[i],
			Sentiment:  sent,
			Score:      (1-cfg.SentimentWeight)*edge + cfg.SentimentWeight*sent,
		}
	}

	order := rankCandidates(candidates)
	if len(order) > cfg.TopN {
		order = order[:cfg.TopN]
	}

	rowByInstrument := make(map[string]contracts.FeatureVector, len(block))
	for _, fv := range block {
		rowByInstrument[fv.Instrument] = fv
	}

	slotCapital := cfg.Capital / float64(cfg.TopN)

	p := &contracts.Plan{Date: refDate}
	for _, cand := range order {
		fv := rowByInstrument[cand.Instrument]
		pos := buildPosition(cand, fv, slotCapital)

		if float64(pos.Quantity)*pos.Entry > slotCapital {
			// A single share already exceeds the slot; the position
			// cannot be sized within its capital budget.
			g.logger.WithFields(map[string]interface{}{
				"instrument":   cand.Instrument,
				"close":        fv.Close,
				"slot_capital": slotCapital,
			}).Warn("position exceeds slot capital, dropping")
			continue
		}

		if g.tiers != nil {
			pos.Tier = g.tiers.Classify(ctx, cand.Instrument)
		}
		p.Positions = append(p.Positions, pos)
	}

	if err := WritePlan(g.outDir, p); err != nil {
		return nil, fmt.Errorf("persist plan: %w", err)
	}

	g.logger.WithFields(map[string]interface{}{
		"date":      refDate.Format(contracts.DateFormat),
		"positions": len(p.Positions),
		"capital":   cfg.Capital,
	}).Info("trade plan generated")

	return p, nil
}

// buildPosition applies the volatility-scaled risk bounds and the
// equal-capital sizing rule to one ranked candidate.
func buildPosition(cand contracts.Candidate, fv contracts.FeatureVector, slotCapital float64) contracts.Position {
	volK := 1 + math.Max(fv.Std20/fv.Close, 0)
	stopPct := math.Min(baseStopPct*volK, maxStopPct)
	tp1Pct := math.Min(baseTP1Pct*volK, maxTP1Pct)
	tp2Pct := math.Min(baseTP2Pct*volK, maxTP2Pct)

	qty := int64(math.Max(1, math.Floor(slotCapital/fv.Close)))

	return contracts.Position{
		Instrument: cand.Instrument,
		Close:      fv.Close,
		Score:      cand.Score,
		Prob:       cand.Prob,
		Sentiment:  cand.Sentiment,
		Entry:      fv.Close,
		Stop:       round4(fv.Close * (1 - stopPct)),
		Target1:    round4(fv.Close * (1 + tp1Pct)),
		Target2:    round4(fv.Close * (1 + tp2Pct)),
		Quantity:   qty,
		Capital:    round2(float64(qty) * fv.Close),
	}
}

// rankCandidates sorts descending by blended score, ties broken by
// probability descending, then instrument ascending for determinism.
func rankCandidates(candidates []contracts.Candidate) []contracts.Candidate {
	out := append([]contracts.Candidate(nil), candidates...)
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		if out[a].Prob != out[b].Prob {
			return out[a].Prob > out[b].Prob
		}
		return out[a].Instrument < out[b].Instrument
	})
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
func round2(v float64) float64 { return math.Round(v*1e2) / 1e2 }

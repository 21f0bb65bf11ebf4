package plan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/internal/model"
	"github.com/quantfold/nextday/pkg/logger"
)

type fixedSentiment struct {
	scores map[string]float64
}

func (f *fixedSentiment) Score(ctx context.Context, instrument string, date time.Time) float64 {
	return f.scores[instrument]
}

func testGenerator(t *testing.T, sent contracts.SentimentProvider) (*Generator, *model.Trainer, string) {
	t.Helper()
	log := logger.New("error", "console")
	hp := model.Hyperparameters{
		Trees: 20, MaxDepth: 2, LearningRate: 0.1,
		Subsample: 1, ColSample: 1, Lambda: 1, Seed: 42,
	}
	tr := model.NewTrainerWithParams(hp, log)
	outDir := t.TempDir()
	return NewGenerator(tr, sent, nil, outDir, log), tr, outDir
}

// trainingRows gives each instrument enough mixed-label history to fit on,
// with one row per instrument at the latest date for ranking.
func trainingRows(latest time.Time, closes map[string]float64) []contracts.FeatureVector {
	var rows []contracts.FeatureVector
	for instrument, close := range closes {
		for i := 20; i > 0; i-- {
			label := 0
			if i%2 == 0 {
				label = 1
			}
			rows = append(rows, contracts.FeatureVector{
				Instrument: instrument,
				Date:       latest.AddDate(0, 0, -i),
				Close:      close,
				Ret1:       0.01 * float64(label*2-1),
				MA5:        close, MA10: close, MA20: close,
				Std20: 0, Vol20: 0.01, RSI14: 50,
				Label: label,
			})
		}
		rows = append(rows, contracts.FeatureVector{
			Instrument: instrument,
			Date:       latest,
			Close:      close,
			Ret1:       0.01,
			MA5:        close, MA10: close, MA20: close,
			Std20: 0, Vol20: 0.01, RSI14: 50,
		})
	}
	return rows
}

func TestGenerate_EmptyFeatureSet(t *testing.T) {
	g, _, _ := testGenerator(t, &fixedSentiment{})
	_, err := g.Generate(context.Background(), &model.Model{}, nil, Config{TopN: 3, Capital: 3000})
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrEmptyFeatureSet)
}

func TestGenerate_EqualCapitalSizing(t *testing.T) {
	latest := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	closes := map[string]float64{"AAA.AX": 12, "BBB.AX": 45, "CCC.AX": 0.90}
	vectors := trainingRows(latest, closes)

	g, tr, _ := testGenerator(t, &fixedSentiment{})
	m, err := tr.Fit(vectors)
	require.NoError(t, err)

	p, err := g.Generate(context.Background(), m, vectors, Config{
		TopN: 3, Capital: 3000, SentimentWeight: 0.3,
	})
	require.NoError(t, err)
	require.Len(t, p.Positions, 3)

	// slot = 3000/3 = 1000 per position
	want := map[string]struct {
		qty     int64
		capital float64
	}{
		"AAA.AX": {83, 996.00},
		"BBB.AX": {22, 990.00},
		"CCC.AX": {1111, 999.90},
	}
	for _, pos := range p.Positions {
		w, ok := want[pos.Instrument]
		require.True(t, ok, "unexpected instrument %s", pos.Instrument)
		assert.Equal(t, w.qty, pos.Quantity, pos.Instrument)
		assert.InDelta(t, w.capital, pos.Capital, 1e-9, pos.Instrument)
		assert.LessOrEqual(t, float64(pos.Quantity)*pos.Entry, 1000.0+1e-9, pos.Instrument)
	}
}

func TestGenerate_DropsPositionExceedingSlot(t *testing.T) {
	latest := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	// One share of EXP.AX costs more than the 1000 slot.
	closes := map[string]float64{"AAA.AX": 12, "EXP.AX": 2500}
	vectors := trainingRows(latest, closes)

	g, tr, _ := testGenerator(t, &fixedSentiment{})
	m, err := tr.Fit(vectors)
	require.NoError(t, err)

	p, err := g.Generate(context.Background(), m, vectors, Config{
		TopN: 3, Capital: 3000, SentimentWeight: 0,
	})
	require.NoError(t, err)

	for _, pos := range p.Positions {
		assert.NotEqual(t, "EXP.AX", pos.Instrument)
	}
	require.Len(t, p.Positions, 1)
}

func TestGenerate_PlanImmutableOncePersisted(t *testing.T) {
	latest := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	vectors := trainingRows(latest, map[string]float64{"AAA.AX": 12})

	g, tr, _ := testGenerator(t, &fixedSentiment{})
	m, err := tr.Fit(vectors)
	require.NoError(t, err)

	cfg := Config{TopN: 1, Capital: 1000, SentimentWeight: 0}
	_, err = g.Generate(context.Background(), m, vectors, cfg)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), m, vectors, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already persisted")
}

func TestGenerate_SentimentShiftsRanking(t *testing.T) {
	latest := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	// Identical technicals so the model assigns equal probabilities;
	// sentiment alone decides the order.
	closes := map[string]float64{"AAA.AX": 10, "BBB.AX": 10}
	vectors := trainingRows(latest, closes)

	sent := &fixedSentiment{scores: map[string]float64{"AAA.AX": -0.8, "BBB.AX": 0.8}}
	g, tr, _ := testGenerator(t, sent)
	m, err := tr.Fit(vectors)
	require.NoError(t, err)

	p, err := g.Generate(context.Background(), m, vectors, Config{
		TopN: 1, Capital: 1000, SentimentWeight: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	assert.Equal(t, "BBB.AX", p.Positions[0].Instrument)
}

func TestBuildPosition_VolatilityScaledBounds(t *testing.T) {
	cand := contracts.Candidate{Instrument: "AAA.AX"}

	// Zero vol: base percentages apply.
	fv := contracts.FeatureVector{Close: 100, Std20: 0}
	pos := buildPosition(cand, fv, 1000)
	assert.InDelta(t, 96.0, pos.Stop, 1e-9)
	assert.InDelta(t, 103.0, pos.Target1, 1e-9)
	assert.InDelta(t, 106.0, pos.Target2, 1e-9)

	// std20/close = 0.5 → volK 1.5: stop 6%, tp1 capped at 4.8%, tp2 9%.
	fv = contracts.FeatureVector{Close: 100, Std20: 50}
	pos = buildPosition(cand, fv, 1000)
	assert.InDelta(t, 94.0, pos.Stop, 1e-9)
	assert.InDelta(t, 104.8, pos.Target1, 1e-9)
	assert.InDelta(t, 109.0, pos.Target2, 1e-9)

	// Extreme vol hits every cap.
	fv = contracts.FeatureVector{Close: 100, Std20: 500}
	pos = buildPosition(cand, fv, 1000)
	assert.InDelta(t, 100*(1-0.072), pos.Stop, 1e-9)
	assert.InDelta(t, 100*(1+0.048), pos.Target1, 1e-9)
	assert.InDelta(t, 100*(1+0.12), pos.Target2, 1e-9)
}

func TestRankCandidates_DeterministicTieBreak(t *testing.T) {
	in := []contracts.Candidate{
		{Instrument: "BBB.AX", Score: 0.4, Prob: 0.6},
		{Instrument: "AAA.AX", Score: 0.4, Prob: 0.6},
		{Instrument: "CCC.AX", Score: 0.4, Prob: 0.7},
		{Instrument: "DDD.AX", Score: 0.9, Prob: 0.5},
	}
	out := rankCandidates(in)
	require.Len(t, out, 4)
	assert.Equal(t, "DDD.AX", out[0].Instrument) // highest score
	assert.Equal(t, "CCC.AX", out[1].Instrument) // tie on score, higher prob
	assert.Equal(t, "AAA.AX", out[2].Instrument) // full tie, instrument asc
	assert.Equal(t, "BBB.AX", out[3].Instrument)
}

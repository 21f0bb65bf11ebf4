package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/pkg/logger"
)

func testTrainer() *Trainer {
	hp := Hyperparameters{
		Trees:        50,
		MaxDepth:     3,
		LearningRate: 0.1,
		Subsample:    1.0,
		ColSample:    1.0,
		Lambda:       1.0,
		Seed:         42,
	}
	return NewTrainerWithParams(hp, logger.New("error", "console"))
}

// separableRows builds a dataset where the sign of ret1 fully determines
// the label.
func separableRows(n int) []contracts.FeatureVector {
	rows := make([]contracts.FeatureVector, n)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		ret := 0.02
		label := 1
		if i%2 == 1 {
			ret = -0.02
			label = 0
		}
		rows[i] = contracts.FeatureVector{
			Instrument: "TST.AX",
			Date:       start.AddDate(0, 0, i),
			Close:      10,
			Ret1:       ret,
			Ret5:       ret * 3,
			MA5:        10,
			MA10:       10,
			MA20:       10,
			Std20:      0.2,
			Vol20:      0.01,
			RSI14:      50,
			Label:      label,
		}
	}
	return rows
}

func TestFit_EmptyTrainingSet(t *testing.T) {
	_, err := testTrainer().Fit(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrEmptyTrainingSet)
}

func TestFit_LearnsSeparableSignal(t *testing.T) {
	tr := testTrainer()
	rows := separableRows(200)

	m, err := tr.Fit(rows)
	require.NoError(t, err)

	probs := tr.Score(m, rows)
	var posSum, negSum float64
	var pos, neg int
	for i, fv := range rows {
		assert.GreaterOrEqual(t, probs[i], 0.0)
		assert.LessOrEqual(t, probs[i], 1.0)
		if fv.Label == 1 {
			posSum += probs[i]
			pos++
		} else {
			negSum += probs[i]
			neg++
		}
	}
	assert.Greater(t, posSum/float64(pos), negSum/float64(neg)+0.2,
		"model should separate up rows from down rows")

	met := tr.Evaluate(m, rows, 0.55)
	require.NotNil(t, met)
	assert.Greater(t, met.AUC, 0.9)
	assert.Greater(t, met.Accuracy, 0.9)
}

func TestFit_Deterministic(t *testing.T) {
	tr := testTrainer()
	rows := separableRows(120)

	m1, err := tr.Fit(rows)
	require.NoError(t, err)
	m2, err := tr.Fit(rows)
	require.NoError(t, err)

	p1 := tr.Score(m1, rows)
	p2 := tr.Score(m2, rows)
	for i := range p1 {
		assert.Equal(t, p1[i], p2[i], "row %d", i)
	}
}

func TestEvaluate_EmptyHoldout(t *testing.T) {
	tr := testTrainer()
	m, err := tr.Fit(separableRows(60))
	require.NoError(t, err)

	assert.Nil(t, tr.Evaluate(m, nil, 0.55))
}

func TestRocAUC_PerfectRanking(t *testing.T) {
	rows := []contracts.FeatureVector{
		{Label: 0}, {Label: 0}, {Label: 1}, {Label: 1},
	}
	probs := []float64{0.1, 0.2, 0.8, 0.9}
	assert.InDelta(t, 1.0, rocAUC(probs, rows), 1e-9)
}

func TestRocAUC_AllTied(t *testing.T) {
	rows := []contracts.FeatureVector{
		{Label: 0}, {Label: 1}, {Label: 0}, {Label: 1},
	}
	probs := []float64{0.5, 0.5, 0.5, 0.5}
	assert.InDelta(t, 0.5, rocAUC(probs, rows), 1e-9)
}

func TestRocAUC_SingleClass(t *testing.T) {
	rows := []contracts.FeatureVector{{Label: 1}, {Label: 1}}
	assert.Equal(t, 0.5, rocAUC([]float64{0.4, 0.6}, rows))
}

func TestBaseRate_Clamped(t *testing.T) {
	assert.False(t, math.IsInf(math.Log(baseRate([]int{1, 1, 1})/(1-baseRate([]int{1, 1, 1}))), 1))
}

package walkforward

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/internal/model"
	"github.com/quantfold/nextday/pkg/logger"
)

func testEvaluator(t *testing.T) (*Evaluator, string) {
	t.Helper()
	log := logger.New("error", "console")
	hp := model.Hyperparameters{
		Trees: 10, MaxDepth: 2, LearningRate: 0.1,
		Subsample: 1, ColSample: 1, Lambda: 1, Seed: 42,
	}
	outDir := t.TempDir()
	return NewEvaluator(model.NewTrainerWithParams(hp, log), outDir, log), outDir
}

// dailyRows builds numDays consecutive calendar days of rows for the given
// instruments with mixed labels.
func dailyRows(instruments []string, numDays int) []contracts.FeatureVector {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	var rows []contracts.FeatureVector
	for d := 0; d < numDays; d++ {
		for i, instrument := range instruments {
			label := (d + i) % 2
			rows = append(rows, contracts.FeatureVector{
				Instrument: instrument,
				Date:       start.AddDate(0, 0, d),
				Close:      10 + float64(i) + 0.1*float64(d),
				Ret1:       0.01 * float64(label*2-1),
				MA5:        10, MA10: 10, MA20: 10,
				Std20: 0.1, Vol20: 0.01, RSI14: 50,
				Label: label,
			})
		}
	}
	return rows
}

func TestEvaluate_EmptyFeatureSet(t *testing.T) {
	e, _ := testEvaluator(t)
	_, err := e.Evaluate(context.Background(), nil, 5, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrEmptyFeatureSet)
}

func TestEvaluate_StepShape(t *testing.T) {
	e, outDir := testEvaluator(t)
	instruments := []string{"AAA.AX", "BBB.AX", "CCC.AX"}
	rows := dailyRows(instruments, 12)

	res, err := e.Evaluate(context.Background(), rows, 5, 2)
	require.NoError(t, err)

	// 6 trailing dates yield 5 cutoffs; the final date serves only as the
	// realization day of the last step.
	assert.Equal(t, 5, res.Days)
	require.Len(t, res.Steps, 5)

	for _, step := range res.Steps {
		assert.Equal(t, len(instruments), step.TestRows)
		assert.Equal(t, 2, step.Picks)
		// Consecutive calendar days: every pick joins to a next-day row.
		assert.Equal(t, 0, step.JoinMiss)
	}
	assert.Len(t, res.Trades, 10)
	assert.Equal(t, 10, res.Resolved)

	// One audit file per cutoff.
	files, err := os.ReadDir(filepath.Join(outDir, "picks_history"))
	require.NoError(t, err)
	assert.Len(t, files, 5)
}

func TestEvaluate_TrainSetGrowsMonotonically(t *testing.T) {
	e, _ := testEvaluator(t)
	rows := dailyRows([]string{"AAA.AX", "BBB.AX"}, 15)

	res, err := e.Evaluate(context.Background(), rows, 6, 1)
	require.NoError(t, err)
	require.NotEmpty(t, res.Steps)

	for i := 1; i < len(res.Steps); i++ {
		assert.Greater(t, res.Steps[i].TrainRows, res.Steps[i-1].TrainRows,
			"training set must grow with each cutoff")
		assert.True(t, res.Steps[i].Cutoff.After(res.Steps[i-1].Cutoff))
	}
}

func TestEvaluate_CalendarGapIsJoinMiss(t *testing.T) {
	e, _ := testEvaluator(t)

	// 25 weekday rows: every Friday cutoff has no bar on Saturday.
	start := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC) // a Monday
	var rows []contracts.FeatureVector
	day := start
	for len(rows) < 25 {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			rows = append(rows, contracts.FeatureVector{
				Instrument: "AAA.AX",
				Date:       day,
				Close:      10,
				Ret1:       0.01,
				MA5:        10, MA10: 10, MA20: 10,
				Std20: 0.1, Vol20: 0.01, RSI14: 50,
				Label: len(rows) % 2,
			})
		}
		day = day.AddDate(0, 0, 1)
	}

	res, err := e.Evaluate(context.Background(), rows, 6, 1)
	require.NoError(t, err)

	missed := 0
	for _, step := range res.Steps {
		missed += step.JoinMiss
	}
	assert.Greater(t, missed, 0, "Friday picks cannot join to a Saturday bar")

	// Unresolved trades are kept but excluded from aggregates.
	undefinedTrades := 0
	for _, tr := range res.Trades {
		if contracts.IsUndefined(tr.Ret1D) {
			undefinedTrades++
		}
	}
	assert.Equal(t, missed, undefinedTrades)
	assert.Equal(t, len(res.Trades)-undefinedTrades, res.Resolved)
}

func TestSelectTopK_DeterministicTieBreak(t *testing.T) {
	block := []contracts.FeatureVector{
		{Instrument: "CCC.AX"},
		{Instrument: "AAA.AX"},
		{Instrument: "BBB.AX"},
	}
	probs := []float64{0.6, 0.6, 0.7}

	picks := selectTopK(block, probs, 2)
	require.Len(t, picks, 2)
	assert.Equal(t, "BBB.AX", picks[0].row.Instrument)
	assert.Equal(t, "AAA.AX", picks[1].row.Instrument)
}

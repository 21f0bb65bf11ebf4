package pnl

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/pkg/logger"
)

type stubBars struct {
	series map[string][]contracts.Bar
}

func (s *stubBars) CachedSeries(instrument string) ([]contracts.Bar, error) {
	bars, ok := s.series[instrument]
	if !ok {
		return nil, errors.New("no cache")
	}
	return bars, nil
}

func TestReconcile_ResolvedAndUnresolved(t *testing.T) {
	tradeDate := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	exitDate := tradeDate.AddDate(0, 0, 1)

	bars := &stubBars{series: map[string][]contracts.Bar{
		// AAA has a bar on the exit date, BBB's series stops the day
		// before, CCC has no cached series at all.
		"AAA.AX": {
			{Instrument: "AAA.AX", Date: tradeDate, Close: 10},
			{Instrument: "AAA.AX", Date: exitDate, Close: 10.5},
		},
		"BBB.AX": {
			{Instrument: "BBB.AX", Date: tradeDate, Close: 20},
		},
	}}

	ledger := NewLedger(t.TempDir())
	rec := NewReconciler(bars, ledger, logger.New("error", "console"))

	p := &contracts.Plan{
		Date: tradeDate,
		Positions: []contracts.Position{
			{Instrument: "AAA.AX", Entry: 10, Capital: 1000},
			{Instrument: "BBB.AX", Entry: 20, Capital: 1000},
			{Instrument: "CCC.AX", Entry: 5, Capital: 1000},
		},
	}

	s, err := rec.Reconcile(p, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 1, s.Resolved)
	assert.InDelta(t, 0.05, s.MeanRet, 1e-9)
	assert.InDelta(t, 50, s.TotalPnL, 1e-9)
	assert.InDelta(t, 1.0, s.WinRate, 1e-9)

	// Unresolved rows stay in the ledger as undefined, not dropped.
	got, err := ledger.Read()
	require.NoError(t, err)
	require.Len(t, got, 3)
	resolved := 0
	for _, e := range got {
		if e.Resolved() {
			resolved++
		} else {
			assert.True(t, contracts.IsUndefined(e.Return))
		}
	}
	assert.Equal(t, 1, resolved)
}

func TestReconcile_LaterRunResolvesMisses(t *testing.T) {
	tradeDate := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	exitDate := tradeDate.AddDate(0, 0, 1)

	bars := &stubBars{series: map[string][]contracts.Bar{
		"AAA.AX": {{Instrument: "AAA.AX", Date: tradeDate, Close: 10}},
	}}

	ledger := NewLedger(t.TempDir())
	rec := NewReconciler(bars, ledger, logger.New("error", "console"))

	p := &contracts.Plan{
		Date:      tradeDate,
		Positions: []contracts.Position{{Instrument: "AAA.AX", Entry: 10, Capital: 1000}},
	}

	s, err := rec.Reconcile(p, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Resolved)

	// The exit bar arrives later; re-reconciling upgrades the same row.
	bars.series["AAA.AX"] = append(bars.series["AAA.AX"],
		contracts.Bar{Instrument: "AAA.AX", Date: exitDate, Close: 10.2})

	s, err = rec.Reconcile(p, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Resolved)

	got, err := ledger.Read()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.02, got[0].Return, 1e-9)
}

func TestReconcile_ExitDateIsCalendarOffset(t *testing.T) {
	// A Friday plan with a 3-day offset exits on Monday.
	friday := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	monday := friday.AddDate(0, 0, 3)

	bars := &stubBars{series: map[string][]contracts.Bar{
		"AAA.AX": {
			{Instrument: "AAA.AX", Date: friday, Close: 10},
			{Instrument: "AAA.AX", Date: monday, Close: 11},
		},
	}}

	ledger := NewLedger(t.TempDir())
	rec := NewReconciler(bars, ledger, logger.New("error", "console"))

	p := &contracts.Plan{
		Date:      friday,
		Positions: []contracts.Position{{Instrument: "AAA.AX", Entry: 10, Capital: 1000}},
	}

	s, err := rec.Reconcile(p, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Resolved)

	got, err := ledger.Read()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, contracts.SameDay(monday, got[0].ExitDate))
	assert.InDelta(t, 0.1, got[0].Return, 1e-9)
}

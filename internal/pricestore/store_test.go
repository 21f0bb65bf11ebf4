package pricestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/pkg/logger"
)

// fakeSource serves a fixed series, counting calls.
type fakeSource struct {
	name  string
	bars  []contracts.Bar
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, instrument string, from, to time.Time) ([]contracts.Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

func seriesEndingAt(end time.Time, n int) []contracts.Bar {
	bars := make([]contracts.Bar, n)
	for i := range bars {
		bars[i] = contracts.Bar{
			Date:   end.AddDate(0, 0, i-n+1),
			Open:   10, High: 10.2, Low: 9.8, Close: 10,
			Volume: 50000,
		}
	}
	return bars
}

func newTestStore(t *testing.T, sources []contracts.PriceSource, now time.Time) *Store {
	t.Helper()
	s, err := New(Config{CacheDir: t.TempDir(), CacheStalenessDays: 3}, sources, logger.New("error", "console"))
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func TestGetSeries_FetchesThenServesFromCache(t *testing.T) {
	now := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)
	src := &fakeSource{name: "primary", bars: seriesEndingAt(now, 30)}
	s := newTestStore(t, []contracts.PriceSource{src}, now)

	bars, err := s.GetSeries(context.Background(), "AAA.AX", 1)
	require.NoError(t, err)
	assert.Len(t, bars, 30)
	assert.Equal(t, 1, src.calls)

	// Second call inside the staleness bound never touches the source.
	bars, err = s.GetSeries(context.Background(), "AAA.AX", 1)
	require.NoError(t, err)
	assert.Len(t, bars, 30)
	assert.Equal(t, 1, src.calls)
}

func TestGetSeries_StaleCacheRefetched(t *testing.T) {
	now := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)
	src := &fakeSource{name: "primary", bars: seriesEndingAt(now, 30)}
	s := newTestStore(t, []contracts.PriceSource{src}, now)

	_, err := s.GetSeries(context.Background(), "AAA.AX", 1)
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	// A week later the cached series is beyond the 3-day bound.
	later := now.AddDate(0, 0, 7)
	s.now = func() time.Time { return later }
	src.bars = seriesEndingAt(later, 30)

	_, err = s.GetSeries(context.Background(), "AAA.AX", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestGetSeries_FallbackChain(t *testing.T) {
	now := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)
	primary := &fakeSource{name: "primary", err: errors.New("upstream down")}
	secondary := &fakeSource{name: "secondary", bars: seriesEndingAt(now, 10)}
	s := newTestStore(t, []contracts.PriceSource{primary, secondary}, now)

	bars, err := s.GetSeries(context.Background(), "AAA.AX", 1)
	require.NoError(t, err)
	assert.Len(t, bars, 10)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestGetSeries_AllSourcesFail(t *testing.T) {
	now := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)
	primary := &fakeSource{name: "primary", err: errors.New("down")}
	secondary := &fakeSource{name: "secondary", err: errors.New("also down")}
	s := newTestStore(t, []contracts.PriceSource{primary, secondary}, now)

	_, err := s.GetSeries(context.Background(), "AAA.AX", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrSourceUnavailable)
}

func TestGetSeries_CorruptCacheIsMissNotFatal(t *testing.T) {
	now := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)
	src := &fakeSource{name: "primary", bars: seriesEndingAt(now, 10)}
	s := newTestStore(t, []contracts.PriceSource{src}, now)

	// A cache file with a wrong schema must behave as a miss.
	path := s.cachePath("AAA.AX")
	require.NoError(t, os.WriteFile(path, []byte("what,is,this\n1,2,3\n"), 0o644))

	bars, err := s.GetSeries(context.Background(), "AAA.AX", 1)
	require.NoError(t, err)
	assert.Len(t, bars, 10)
	assert.Equal(t, 1, src.calls)
}

func TestGetSeries_DropsInvalidBars(t *testing.T) {
	now := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)
	bars := seriesEndingAt(now, 10)
	bars[3].Close = 0
	bars[5].Volume = -1
	src := &fakeSource{name: "primary", bars: bars}
	s := newTestStore(t, []contracts.PriceSource{src}, now)

	got, err := s.GetSeries(context.Background(), "AAA.AX", 1)
	require.NoError(t, err)
	assert.Len(t, got, 8)
	for _, b := range got {
		assert.Greater(t, b.Close, 0.0)
		assert.GreaterOrEqual(t, b.Volume, 0.0)
		assert.Equal(t, "AAA.AX", b.Instrument)
	}
}

func TestFetchAll_PartialFailure(t *testing.T) {
	now := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)

	// The source fails for one instrument only.
	src := &conditionalSource{good: seriesEndingAt(now, 10), bad: "BBB.AX"}
	s := newTestStore(t, []contracts.PriceSource{src}, now)

	out := s.FetchAll(context.Background(), []string{"AAA.AX", "BBB.AX", "CCC.AX"}, 1, 2)
	assert.Len(t, out, 2)
	assert.Contains(t, out, "AAA.AX")
	assert.Contains(t, out, "CCC.AX")
	assert.NotContains(t, out, "BBB.AX")
}

type conditionalSource struct {
	good []contracts.Bar
	bad  string
}

func (c *conditionalSource) Name() string { return "conditional" }

func (c *conditionalSource) Fetch(ctx context.Context, instrument string, from, to time.Time) ([]contracts.Bar, error) {
	if instrument == c.bad {
		return nil, errors.New("no data")
	}
	return c.good, nil
}

func TestReadSeriesCSV_HeaderAliases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.csv")
	content := "Date,Open,High,Low,Adj Close,Volume\n" +
		"2026-08-20,10,10.5,9.9,10.2,50000\n" +
		"2026-08-21,10.2,10.6,10.1,10.4,60000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	bars, err := readSeriesCSV(path, "AAA.AX")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.InDelta(t, 10.2, bars[0].Close, 1e-9)
	assert.InDelta(t, 10.4, bars[1].Close, 1e-9)
}

func TestReadSeriesCSV_MissingColumnIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,open,high,low,volume\n2026-08-20,1,2,3,4\n"), 0o644))

	_, err := readSeriesCSV(path, "AAA.AX")
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrCacheCorrupt)
}

func TestReadSeriesCSV_BadRowsDropped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.csv")
	content := "date,open,high,low,close,volume\n" +
		"2026-08-20,10,10.5,9.9,10.2,50000\n" +
		"not-a-date,10,10.5,9.9,10.2,50000\n" +
		"2026-08-21,10,10.5,9.9,,50000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	bars, err := readSeriesCSV(path, "AAA.AX")
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}

func TestNormalizeSeries_SortAndDedupe(t *testing.T) {
	d1 := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	bars := []contracts.Bar{
		{Date: d2, Close: 11, Volume: 1},
		{Date: d1, Close: 10, Volume: 1},
		{Date: d2, Close: 12, Volume: 1}, // duplicate date, later write wins
	}
	out := normalizeSeries(bars)
	require.Len(t, out, 2)
	assert.True(t, contracts.SameDay(d1, out[0].Date))
	assert.InDelta(t, 12.0, out[1].Close, 1e-9)
}

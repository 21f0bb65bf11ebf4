package contracts

import (
	"context"
	"time"
)

// UniverseProvider supplies the ordered, deduplicated list of instrument
// identifiers the pipeline operates on.
type UniverseProvider interface {
	ListInstruments(ctx context.Context) ([]string, error)
}

// SentimentProvider scores external news sentiment for an instrument on a
// date. Implementations must return a value in [-1, 1] and 0 when no
// signal is available; they never fail the caller.
type SentimentProvider interface {
	Score(ctx context.Context, instrument string, date time.Time) float64
}

// CapTierClassifier tags an instrument with a market-cap band. The tag is
// display-only; sizing logic never consumes it.
type CapTierClassifier interface {
	Classify(ctx context.Context, instrument string) string
}

// PriceSource is one external provider of historical bars. Sources are
// tried in fixed priority order by the price store.
type PriceSource interface {
	Name() string
	Fetch(ctx context.Context, instrument string, from, to time.Time) ([]Bar, error)
}

// BarReader is the read side of the price store, used by components that
// only need cached series (e.g. PnL reconciliation).
type BarReader interface {
	CachedSeries(instrument string) ([]Bar, error)
}

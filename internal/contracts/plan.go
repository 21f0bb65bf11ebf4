package contracts

import "time"

// Position is one sized long entry within a Plan.
type Position struct {
	Instrument string  `json:"instrument"`
	Close      float64 `json:"close"`
	Score      float64 `json:"blended_score"`
	Prob       float64 `json:"prob"`
	Sentiment  float64 `json:"sentiment"`
	Entry      float64 `json:"entry"`
	Stop       float64 `json:"stop"`
	Target1    float64 `json:"target1"`
	Target2    float64 `json:"target2"`
	Quantity   int64   `json:"quantity"`
	Capital    float64 `json:"capital_committed"`
	Tier       string  `json:"tier,omitempty"` // display-only cap band
}

// Plan is the ordered set of positions for one reference date. Immutable
// once persisted.
type Plan struct {
	Date      time.Time  `json:"date"`
	Positions []Position `json:"positions"`
}

// LedgerEntry is one reconciled trade outcome, keyed by
// (TradeDate, Instrument). Return and PnL are Undefined() when the exit
// close could not be resolved; such rows stay in the ledger but are
// excluded from aggregates.
type LedgerEntry struct {
	TradeDate  time.Time `json:"trade_date"`
	ExitDate   time.Time `json:"exit_date"`
	Instrument string    `json:"instrument"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Return     float64   `json:"realized_return"`
	PnL        float64   `json:"realized_pnl"`
	Capital    float64   `json:"capital"`
}

// Resolved reports whether the entry carries a realized exit price.
func (e *LedgerEntry) Resolved() bool { return !IsUndefined(e.Return) }

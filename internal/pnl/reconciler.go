package pnl

import (
	"time"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/pkg/logger"
)

// Reconciler resolves realized exit prices for a persisted plan and
// appends the outcomes to the ledger. Exit dates are plain calendar-day
// offsets; a weekend or holiday exit shows up as an undefined return, not
// a zero.
type Reconciler struct {
	bars   contracts.BarReader
	ledger *Ledger
	logger *logger.Logger
}

// Summary aggregates one reconciled trade date. Undefined rows are
// excluded from the averages but counted in Trades.
type Summary struct {
	Trades   int
	Resolved int
	WinRate  float64
	MeanRet  float64
	TotalPnL float64
}

// NewReconciler creates a reconciler reading exit closes from the price
// store's cache.
func NewReconciler(bars contracts.BarReader, ledger *Ledger, log *logger.Logger) *Reconciler {
	return &Reconciler{
		bars:   bars,
		ledger: ledger,
		logger: log.WithField("component", "pnl.reconciler"),
	}
}

// Reconcile computes realized outcomes for every position of the plan and
// upserts them into the ledger by (trade_date, instrument). Reconciling
// the same plan again replaces the earlier rows with the latest
// computation.
func (r *Reconciler) Reconcile(p *contracts.Plan, exitOffsetDays int) (*Summary, error) {
	exitDate := p.Date.AddDate(0, 0, exitOffsetDays)

	entries := make([]contracts.LedgerEntry, 0, len(p.Positions))
	summary := &Summary{}
	wins := 0
	var retSum float64

	for _, pos := range p.Positions {
		entry := contracts.LedgerEntry{
			TradeDate:  p.Date,
			ExitDate:   exitDate,
			Instrument: pos.Instrument,
			EntryPrice: pos.Entry,
			ExitPrice:  contracts.Undefined(),
			Return:     contracts.Undefined(),
			PnL:        contracts.Undefined(),
			Capital:    pos.Capital,
		}

		if exitClose, ok := r.closeOn(pos.Instrument, exitDate); ok {
			entry.ExitPrice = exitClose
			entry.Return = exitClose/pos.Entry - 1
			entry.PnL = entry.Return * pos.Capital

			summary.Resolved++
			retSum += entry.Return
			summary.TotalPnL += entry.PnL
			if entry.Return > 0 {
				wins++
			}
		} else {
			r.logger.WithFields(map[string]interface{}{
				"instrument": pos.Instrument,
				"exit_date":  exitDate.Format(contracts.DateFormat),
				"error":      contracts.ErrJoinMiss.Error(),
			}).Warn("exit close unresolved")
		}

		entries = append(entries, entry)
	}

	if err := r.ledger.Upsert(entries); err != nil {
		return nil, err
	}

	summary.Trades = len(entries)
	if summary.Resolved > 0 {
		summary.WinRate = float64(wins) / float64(summary.Resolved)
		summary.MeanRet = retSum / float64(summary.Resolved)

		r.logger.WithFields(map[string]interface{}{
			"trade_date":  p.Date.Format(contracts.DateFormat),
			"exit_date":   exitDate.Format(contracts.DateFormat),
			"trades":      summary.Trades,
			"resolved":    summary.Resolved,
			"win_rate":    summary.WinRate,
			"mean_return": summary.MeanRet,
			"total_pnl":   summary.TotalPnL,
		}).Info("plan reconciled")
	} else {
		r.logger.WithFields(map[string]interface{}{
			"trade_date": p.Date.Format(contracts.DateFormat),
			"exit_date":  exitDate.Format(contracts.DateFormat),
		}).Warn("no exit closes resolvable yet")
	}

	return summary, nil
}

// closeOn looks up the cached close for an instrument on a calendar date.
func (r *Reconciler) closeOn(instrument string, date time.Time) (float64, bool) {
	bars, err := r.bars.CachedSeries(instrument)
	if err != nil {
		return 0, false
	}
	for _, b := range bars {
		if contracts.SameDay(b.Date, date) {
			return b.Close, true
		}
	}
	return 0, false
}

package pnl

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/quantfold/nextday/internal/contracts"
)

// ledgerHeader is the fixed ledger file schema. Undefined returns are
// written literally as NaN so they survive round-trips without being
// mistaken for realized zeros.
var ledgerHeader = []string{
	"trade_date", "exit_date", "instrument", "entry_price", "exit_price",
	"realized_return", "realized_pnl", "capital",
}

const ledgerFile = "performance.csv"

// Ledger is the append/upsert store of realized trade outcomes, keyed by
// (trade_date, instrument). Entries are never deleted, only replaced.
type Ledger struct {
	path string
}

// NewLedger opens (or will create) the ledger under outDir.
func NewLedger(outDir string) *Ledger {
	return &Ledger{path: filepath.Join(outDir, ledgerFile)}
}

// Upsert merges the given entries into the ledger. A later write for the
// same (trade_date, instrument) replaces the earlier one.
func (l *Ledger) Upsert(entries []contracts.LedgerEntry) error {
	existing, err := l.Read()
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	merged := make(map[string]contracts.LedgerEntry, len(existing)+len(entries))
	order := make([]string, 0, len(existing)+len(entries))

	add := func(e contracts.LedgerEntry) {
		key := e.TradeDate.Format(contracts.DateFormat) + "|" + e.Instrument
		if _, ok := merged[key]; !ok {
			order = append(order, key)
		}
		merged[key] = e
	}
	for _, e := range existing {
		add(e)
	}
	for _, e := range entries {
		add(e)
	}

	sort.Strings(order)

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(ledgerHeader); err != nil {
		f.Close()
		return err
	}
	for _, key := range order {
		e := merged[key]
		rec := []string{
			e.TradeDate.Format(contracts.DateFormat),
			e.ExitDate.Format(contracts.DateFormat),
			e.Instrument,
			fl(e.EntryPrice), fl(e.ExitPrice), fl(e.Return), fl(e.PnL), fl(e.Capital),
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Read loads all ledger entries. A missing file surfaces as
// os.ErrNotExist for the caller to treat as an empty ledger.
func (l *Ledger) Read() ([]contracts.LedgerEntry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	entries := make([]contracts.LedgerEntry, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(ledgerHeader) {
			return nil, fmt.Errorf("read ledger: malformed row with %d fields", len(rec))
		}
		tradeDate, err1 := time.Parse(contracts.DateFormat, rec[0])
		exitDate, err2 := time.Parse(contracts.DateFormat, rec[1])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("read ledger: bad date in row for %s", rec[2])
		}
		entries = append(entries, contracts.LedgerEntry{
			TradeDate:  tradeDate,
			ExitDate:   exitDate,
			Instrument: rec[2],
			EntryPrice: pl(rec[3]),
			ExitPrice:  pl(rec[4]),
			Return:     pl(rec[5]),
			PnL:        pl(rec[6]),
			Capital:    pl(rec[7]),
		})
	}
	return entries, nil
}

func fl(v float64) string {
	if contracts.IsUndefined(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func pl(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return contracts.Undefined()
	}
	return v
}

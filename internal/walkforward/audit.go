package walkforward

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/quantfold/nextday/internal/contracts"
)

// writeAudit persists one cutoff's selections so any backtest day can be
// reconstructed without re-running the models.
func (e *Evaluator) writeAudit(cutoff time.Time, picks []scoredRow) error {
	path := filepath.Join(e.outDir, "picks_history",
		fmt.Sprintf("picks_%s.csv", cutoff.Format(contracts.DateFormat)))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audit file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"instrument", "close", "probability"}); err != nil {
		return err
	}
	for _, p := range picks {
		rec := []string{
			p.row.Instrument,
			strconv.FormatFloat(p.row.Close, 'f', -1, 64),
			strconv.FormatFloat(p.prob, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

package plan

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/nextday/internal/contracts"
)

// planHeader is the fixed plan file schema.
var planHeader = []string{
	"instrument", "close", "blended_score", "prob", "sentiment",
	"entry", "stop", "target1", "target2", "quantity", "capital_committed",
}

// PlanPath returns the plan file path for a reference date.
func PlanPath(outDir string, date time.Time) string {
	return filepath.Join(outDir, fmt.Sprintf("trade_plan_%s.csv", date.Format(contracts.DateFormat)))
}

// WritePlan persists a plan keyed by its reference date. Plans are
// immutable once persisted: an existing file for the date is an error.
func WritePlan(outDir string, p *contracts.Plan) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	path := PlanPath(outDir, p.Date)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("plan for %s already persisted", p.Date.Format(contracts.DateFormat))
		}
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(planHeader); err != nil {
		return err
	}
	for _, pos := range p.Positions {
		rec := []string{
			pos.Instrument,
			ff(pos.Close), ff(pos.Score), ff(pos.Prob), ff(pos.Sentiment),
			ff(pos.Entry), ff(pos.Stop), ff(pos.Target1), ff(pos.Target2),
			strconv.FormatInt(pos.Quantity, 10),
			ff(pos.Capital),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadPlan loads a persisted plan for a reference date.
func ReadPlan(outDir string, date time.Time) (*contracts.Plan, error) {
	f, err := os.Open(PlanPath(outDir, date))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read plan: missing header")
	}

	p := &contracts.Plan{Date: date}
	for _, rec := range records[1:] {
		if len(rec) != len(planHeader) {
			return nil, fmt.Errorf("read plan: malformed row with %d fields", len(rec))
		}
		qty, err := strconv.ParseInt(rec[9], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("read plan: bad quantity %q", rec[9])
		}
		p.Positions = append(p.Positions, contracts.Position{
			Instrument: rec[0],
			Close:      pf(rec[1]),
			Score:      pf(rec[2]),
			Prob:       pf(rec[3]),
			Sentiment:  pf(rec[4]),
			Entry:      pf(rec[5]),
			Stop:       pf(rec[6]),
			Target1:    pf(rec[7]),
			Target2:    pf(rec[8]),
			Quantity:   qty,
			Capital:    pf(rec[10]),
		})
	}
	return p, nil
}

// LatestPlanDate scans outDir for persisted plans and returns the most
// recent reference date, or a zero time when none exist.
func LatestPlanDate(outDir string) (time.Time, error) {
	dates, err := planDates(outDir)
	if err != nil || len(dates) == 0 {
		return time.Time{}, err
	}
	return dates[len(dates)-1], nil
}

// LatestPlanDateBefore returns the most recent persisted plan date
// strictly before the given date, or a zero time when none qualifies.
func LatestPlanDateBefore(outDir string, before time.Time) (time.Time, error) {
	dates, err := planDates(outDir)
	if err != nil {
		return time.Time{}, err
	}
	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i].Before(before) && !contracts.SameDay(dates[i], before) {
			return dates[i], nil
		}
	}
	return time.Time{}, nil
}

// planDates lists persisted plan dates in ascending order.
func planDates(outDir string) ([]time.Time, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dates []time.Time
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasPrefix(name, "trade_plan_") || !strings.HasSuffix(name, ".csv") {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, "trade_plan_"), ".csv")
		if d, err := time.Parse(contracts.DateFormat, dateStr); err == nil {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func pf(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/internal/plan"
	"github.com/quantfold/nextday/internal/pnl"
	"github.com/quantfold/nextday/pkg/logger"
)

// ReportHandler serves persisted pipeline artifacts.
type ReportHandler struct {
	outDir   string
	ledger   *pnl.Ledger
	universe contracts.UniverseProvider
	logger   *logger.Logger
}

// NewReportHandler creates the reporting handler set.
func NewReportHandler(outDir string, ledger *pnl.Ledger, universe contracts.UniverseProvider, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		outDir:   outDir,
		ledger:   ledger,
		universe: universe,
		logger:   log.WithField("component", "api.handlers"),
	}
}

type planResponse struct {
	Date      string               `json:"date"`
	Positions []contracts.Position `json:"positions"`
}

// ledgerRow is the JSON shape of a ledger entry. Unresolved fields are
// null, never zero.
type ledgerRow struct {
	TradeDate  string   `json:"trade_date"`
	ExitDate   string   `json:"exit_date"`
	Instrument string   `json:"instrument"`
	EntryPrice float64  `json:"entry_price"`
	ExitPrice  *float64 `json:"exit_price"`
	Return     *float64 `json:"realized_return"`
	PnL        *float64 `json:"realized_pnl"`
	Capital    float64  `json:"capital"`
}

// LatestPlan returns the most recently persisted trade plan.
func (h *ReportHandler) LatestPlan(w http.ResponseWriter, r *http.Request) {
	date, err := plan.LatestPlanDate(h.outDir)
	if err != nil {
		h.logger.WithError(err).Error("scan plans")
		writeError(w, http.StatusInternalServerError, "failed to scan plans")
		return
	}
	if date.IsZero() {
		writeError(w, http.StatusNotFound, "no plan persisted yet")
		return
	}
	h.servePlan(w, date)
}

// PlanByDate returns the plan persisted for a specific date.
func (h *ReportHandler) PlanByDate(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["date"]
	date, err := time.Parse(contracts.DateFormat, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	h.servePlan(w, date)
}

func (h *ReportHandler) servePlan(w http.ResponseWriter, date time.Time) {
	p, err := plan.ReadPlan(h.outDir, date)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "no plan for "+date.Format(contracts.DateFormat))
			return
		}
		h.logger.WithError(err).Error("read plan")
		writeError(w, http.StatusInternalServerError, "failed to read plan")
		return
	}
	writeJSON(w, http.StatusOK, planResponse{
		Date:      p.Date.Format(contracts.DateFormat),
		Positions: p.Positions,
	})
}

// Ledger returns the full performance ledger.
func (h *ReportHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.Read()
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []ledgerRow{})
			return
		}
		h.logger.WithError(err).Error("read ledger")
		writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}

	rows := make([]ledgerRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, ledgerRow{
			TradeDate:  e.TradeDate.Format(contracts.DateFormat),
			ExitDate:   e.ExitDate.Format(contracts.DateFormat),
			Instrument: e.Instrument,
			EntryPrice: e.EntryPrice,
			ExitPrice:  maybe(e.ExitPrice),
			Return:     maybe(e.Return),
			PnL:        maybe(e.PnL),
			Capital:    e.Capital,
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

// Universe returns the current instrument universe.
func (h *ReportHandler) Universe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	instruments, err := h.universe.ListInstruments(ctx)
	if err != nil {
		h.logger.WithError(err).Error("list universe")
		writeError(w, http.StatusInternalServerError, "failed to list universe")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(instruments),
		"instruments": instruments,
	})
}

// maybe maps an undefined value to a JSON null.
func maybe(v float64) *float64 {
	if contracts.IsUndefined(v) {
		return nil
	}
	return &v
}

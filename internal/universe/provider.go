package universe

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quantfold/nextday/pkg/logger"
)

// fallbackASX is the hardcoded blue-chip universe used when no curated
// universe file exists.
var fallbackASX = []string{
	"CBA.AX", "BHP.AX", "CSL.AX", "NAB.AX", "WBC.AX", "ANZ.AX", "WES.AX", "MQG.AX", "GMG.AX", "FMG.AX",
	"TLS.AX", "WDS.AX", "TCL.AX", "ALL.AX", "RIO.AX", "WOW.AX", "WTC.AX", "BXB.AX", "REA.AX", "SIG.AX",
	"QBE.AX", "PME.AX", "COL.AX", "XRO.AX", "NST.AX", "STO.AX", "RMD.AX", "SUN.AX", "ORG.AX", "CPU.AX",
	"SCG.AX", "IAG.AX", "COH.AX", "FPH.AX", "QAN.AX", "EVN.AX", "SOL.AX", "SGP.AX", "CAR.AX", "MPL.AX",
	"LYC.AX", "TNE.AX", "JHX.AX", "S32.AX", "TLC.AX", "JBH.AX", "ASX.AX", "VCX.AX", "SHL.AX", "APA.AX",
}

// tickerAliases maps accepted ticker column headers to the canonical one.
// Declared once instead of fuzzy-matching column names at read time.
var tickerAliases = map[string]bool{
	"Ticker": true, "ticker": true,
	"Code": true, "code": true,
	"Symbol": true, "symbol": true,
}

// universeFiles are tried in priority order under outDir; the first file
// with a readable ticker column wins.
var universeFiles = []string{
	"universe_all_clean.ax.csv",
	"tier_combined.csv",
}

// Provider supplies the instrument universe from curated CSV files, with a
// blue-chip fallback. Identifiers are returned sorted, deduplicated and
// suffixed with the exchange qualifier.
type Provider struct {
	outDir  string
	sizeCap int
	logger  *logger.Logger
}

// NewProvider creates a universe provider. sizeCap 0 means uncapped.
func NewProvider(outDir string, sizeCap int, log *logger.Logger) *Provider {
	return &Provider{
		outDir:  outDir,
		sizeCap: sizeCap,
		logger:  log.WithField("component", "universe"),
	}
}

// ListInstruments returns the ordered, deduplicated universe.
func (p *Provider) ListInstruments(ctx context.Context) ([]string, error) {
	for _, name := range universeFiles {
		path := filepath.Join(p.outDir, name)
		tickers, err := loadTickerColumn(path)
		if err != nil {
			if !os.IsNotExist(err) {
				p.logger.WithError(err).WithField("file", name).Warn("universe file unreadable")
			}
			continue
		}
		if len(tickers) > 0 {
			p.logger.WithFields(map[string]interface{}{
				"file": name,
				"size": len(tickers),
			}).Info("universe loaded")
			return p.cap(tickers), nil
		}
	}

	p.logger.WithField("size", len(fallbackASX)).Info("using fallback universe")
	return p.cap(normalize(fallbackASX)), nil
}

func (p *Provider) cap(tickers []string) []string {
	if p.sizeCap > 0 && len(tickers) > p.sizeCap {
		return tickers[:p.sizeCap]
	}
	return tickers
}

// loadTickerColumn reads the ticker column of a universe CSV through the
// alias table.
func loadTickerColumn(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	col := -1
	for i, name := range records[0] {
		if tickerAliases[strings.TrimSpace(name)] {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%s: no ticker column", path)
	}

	var raw []string
	for _, rec := range records[1:] {
		if col < len(rec) {
			raw = append(raw, rec[col])
		}
	}
	return normalize(raw), nil
}

// normalize trims, enforces the .AX suffix, deduplicates and sorts.
func normalize(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasSuffix(t, ".AX") {
			t += ".AX"
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

package pricestore

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/nextday/internal/contracts"
)

// cacheHeader is the canonical cache file schema.
var cacheHeader = []string{"date", "open", "high", "low", "close", "volume"}

// columnAliases maps accepted header spellings to canonical column names.
// Applied once at the ingestion boundary; nothing downstream ever matches
// column names dynamically.
var columnAliases = map[string]string{
	"date": "date", "Date": "date",
	"open": "open", "Open": "open",
	"high": "high", "High": "high",
	"low": "low", "Low": "low",
	"close": "close", "Close": "close", "Adj Close": "close",
	"volume": "volume", "Volume": "volume",
}

// readSeriesCSV parses a cached bar series. A missing or unmappable column
// is a schema mismatch and reported as ErrCacheCorrupt; individual
// non-numeric cells become missing values and rows lacking close or volume
// are dropped.
func readSeriesCSV(path, instrument string) ([]contracts.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrCacheCorrupt, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header", contracts.ErrCacheCorrupt)
	}

	colIdx, err := mapHeader(records[0])
	if err != nil {
		return nil, err
	}

	bars := make([]contracts.Bar, 0, len(records)-1)
	for _, rec := range records[1:] {
		bar, ok := parseRow(rec, colIdx, instrument)
		if ok {
			bars = append(bars, bar)
		}
	}

	return normalizeSeries(bars), nil
}

// mapHeader resolves the header row through the alias table. Every
// canonical column must be present exactly once.
func mapHeader(header []string) (map[string]int, error) {
	colIdx := make(map[string]int, len(cacheHeader))
	for i, raw := range header {
		name, ok := columnAliases[strings.TrimSpace(raw)]
		if !ok {
			continue
		}
		if _, dup := colIdx[name]; !dup {
			colIdx[name] = i
		}
	}
	for _, name := range cacheHeader {
		if _, ok := colIdx[name]; !ok {
			return nil, fmt.Errorf("%w: column %q not found", contracts.ErrCacheCorrupt, name)
		}
	}
	return colIdx, nil
}

// parseRow coerces one record into a Bar. Rows with an unparseable date,
// close or volume are discarded; other price cells degrade to zero.
func parseRow(rec []string, colIdx map[string]int, instrument string) (contracts.Bar, bool) {
	get := func(name string) string {
		i := colIdx[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, err := parseDate(get("date"))
	if err != nil {
		return contracts.Bar{}, false
	}

	closePx, err1 := strconv.ParseFloat(get("close"), 64)
	volume, err2 := strconv.ParseFloat(get("volume"), 64)
	if err1 != nil || err2 != nil {
		return contracts.Bar{}, false
	}

	return contracts.Bar{
		Instrument: instrument,
		Date:       date,
		Open:       coerceFloat(get("open")),
		High:       coerceFloat(get("high")),
		Low:        coerceFloat(get("low")),
		Close:      closePx,
		Volume:     volume,
	}, true
}

func coerceFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseDate(s string) (time.Time, error) {
	// ISO-8601 date, with or without a time component.
	if t, err := time.Parse(contracts.DateFormat, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// writeSeriesCSV persists a bar series with the canonical header. The file
// is written atomically via a temp file so a crash never leaves a
// half-written cache behind.
func writeSeriesCSV(path string, bars []contracts.Bar) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(cacheHeader); err != nil {
		f.Close()
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Date.Format(contracts.DateFormat),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
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
	return os.Rename(tmp, path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// normalizeSeries sorts ascending by date and deduplicates by date with
// last write winning.
func normalizeSeries(bars []contracts.Bar) []contracts.Bar {
	if len(bars) == 0 {
		return bars
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})

	out := bars[:0:0]
	for _, b := range bars {
		if n := len(out); n > 0 && contracts.SameDay(out[n-1].Date, b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

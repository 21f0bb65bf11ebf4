package tiering

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/quantfold/nextday/pkg/logger"
)

// Market-cap bands in USD billions.
const (
	largeMinB = 15.0
	midMinB   = 5.0
)

const (
	cacheFile = "caps_cache.csv"
	cacheTTL  = 24 * time.Hour
)

// FundamentalsClient provides market capitalization lookups.
type FundamentalsClient interface {
	MarketCap(ctx context.Context, instrument string) (capB float64, sector string, err error)
}

// Classifier tags instruments with a market-cap band (large/mid/micro,
// unknown when no data is available). Display-only: nothing in sizing or
// ranking consumes the tag. Caps are cached with a TTL because market cap
// barely moves day to day.
type Classifier struct {
	client FundamentalsClient
	path   string
	logger *logger.Logger

	mu     sync.Mutex
	loaded bool
	caps   map[string]capEntry
}

type capEntry struct {
	capB    float64
	fetched time.Time
}

// NewClassifier creates a classifier caching under outDir.
func NewClassifier(client FundamentalsClient, outDir string, log *logger.Logger) *Classifier {
	return &Classifier{
		client: client,
		path:   filepath.Join(outDir, cacheFile),
		logger: log.WithField("component", "tiering"),
		caps:   make(map[string]capEntry),
	}
}

// Classify returns the cap band for an instrument.
func (c *Classifier) Classify(ctx context.Context, instrument string) string {
	capB, ok := c.lookup(ctx, instrument)
	if !ok {
		return "unknown"
	}
	switch {
	case capB >= largeMinB:
		return "large"
	case capB >= midMinB:
		return "mid"
	default:
		return "micro"
	}
}

func (c *Classifier) lookup(ctx context.Context, instrument string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.load()

	if e, ok := c.caps[instrument]; ok && time.Since(e.fetched) <= cacheTTL {
		return e.capB, true
	}

	capB, _, err := c.client.MarketCap(ctx, instrument)
	if err != nil {
		c.logger.WithError(err).WithField("instrument", instrument).Debug("market cap unavailable")
		return 0, false
	}

	c.caps[instrument] = capEntry{capB: capB, fetched: time.Now()}
	if err := c.flush(); err != nil {
		c.logger.WithError(err).Warn("caps cache write failed")
	}
	return capB, true
}

func (c *Classifier) load() {
	if c.loaded {
		return
	}
	c.loaded = true

	f, err := os.Open(c.path)
	if err != nil {
		return
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil || len(records) < 2 {
		return
	}

	for _, rec := range records[1:] {
		if len(rec) != 3 {
			continue
		}
		capB, err1 := strconv.ParseFloat(rec[1], 64)
		ts, err2 := strconv.ParseInt(rec[2], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		c.caps[rec[0]] = capEntry{capB: capB, fetched: time.Unix(ts, 0)}
	}
}

func (c *Classifier) flush() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	instruments := make([]string, 0, len(c.caps))
	for k := range c.caps {
		instruments = append(instruments, k)
	}
	sort.Strings(instruments)

	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write caps cache: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"instrument", "market_cap_b", "fetched_unix"}); err != nil {
		f.Close()
		return err
	}
	for _, instrument := range instruments {
		e := c.caps[instrument]
		rec := []string{
			instrument,
			strconv.FormatFloat(e.capB, 'f', -1, 64),
			strconv.FormatInt(e.fetched.Unix(), 10),
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
	return os.Rename(tmp, c.path)
}

package sentiment

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quantfold/nextday/internal/contracts"
)

const cacheFile = "news_sentiment.csv"

var cacheHeader = []string{"date", "instrument", "sentiment"}

// csvCache persists sentiment scores keyed by (date, instrument) with
// upsert-on-write semantics, mirroring the ledger style.
type csvCache struct {
	path string

	mu     sync.Mutex
	loaded bool
	scores map[string]float64
}

func newCSVCache(outDir string) *csvCache {
	return &csvCache{
		path:   filepath.Join(outDir, cacheFile),
		scores: make(map[string]float64),
	}
}

func cacheKey(instrument string, date time.Time) string {
	return date.Format(contracts.DateFormat) + "|" + instrument
}

func (c *csvCache) get(instrument string, date time.Time) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.load(); err != nil {
		return 0, false
	}
	s, ok := c.scores[cacheKey(instrument, date)]
	return s, ok
}

func (c *csvCache) put(instrument string, date time.Time, score float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.load(); err != nil {
		return err
	}
	c.scores[cacheKey(instrument, date)] = score
	return c.flush()
}

// load reads the cache file once; a corrupt file is discarded and rebuilt.
func (c *csvCache) load() error {
	if c.loaded {
		return nil
	}
	c.loaded = true

	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil || len(records) == 0 {
		return nil
	}

	for _, rec := range records[1:] {
		if len(rec) != len(cacheHeader) {
			continue
		}
		date, err := time.Parse(contracts.DateFormat, rec[0])
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			continue
		}
		c.scores[cacheKey(rec[1], date)] = score
	}
	return nil
}

func (c *csvCache) flush() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	keys := make([]string, 0, len(c.scores))
	for k := range c.scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write sentiment cache: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(cacheHeader); err != nil {
		f.Close()
		return err
	}
	for _, k := range keys {
		date, instrument, _ := splitKey(k)
		rec := []string{date, instrument, strconv.FormatFloat(c.scores[k], 'f', -1, 64)}
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

func splitKey(k string) (date, instrument string, ok bool) {
	return strings.Cut(k, "|")
}

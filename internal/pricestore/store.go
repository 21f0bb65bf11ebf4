package pricestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/pkg/logger"
	"github.com/quantfold/nextday/pkg/metrics"
)

// Store is the cached, fallback-chained historical bar store. The cache is
// one CSV file per instrument under cacheDir; external sources are tried
// in priority order behind per-source circuit breakers. All failures are
// reported as typed errors and are non-fatal to the caller.
type Store struct {
	cacheDir       string
	sources        []contracts.PriceSource
	stalenessBound time.Duration
	logger         *logger.Logger
	breakers       map[string]*gobreaker.CircuitBreaker

	// now is injectable for staleness tests.
	now func() time.Time
}

// Config holds store parameters.
type Config struct {
	CacheDir           string
	CacheStalenessDays int
}

// New creates a Store over the given source chain. The first source is the
// primary, the rest are fallbacks in order.
func New(cfg Config, sources []contracts.PriceSource, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(sources))
	for _, src := range sources {
		breakers[src.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    src.Name(),
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}

	return &Store{
		cacheDir:       cfg.CacheDir,
		sources:        sources,
		stalenessBound: time.Duration(cfg.CacheStalenessDays) * 24 * time.Hour,
		logger:         log.WithField("component", "pricestore"),
		breakers:       breakers,
		now:            time.Now,
	}, nil
}

// GetSeries returns the bar series for one instrument covering the
// lookback window. Cache first; on miss, stale or corrupt cache the source
// chain is walked and the first schema-valid non-empty result is persisted
// back. Errors wrap ErrSourceUnavailable when every source failed.
func (s *Store) GetSeries(ctx context.Context, instrument string, lookbackYears int) ([]contracts.Bar, error) {
	if bars, err := s.readCache(instrument); err == nil {
		metrics.CacheHits.Inc()
		return bars, nil
	} else if !os.IsNotExist(err) {
		s.logger.WithError(err).WithField("instrument", instrument).Debug("cache unusable, refetching")
	}
	metrics.CacheMisses.Inc()

	today := s.now()
	from := today.AddDate(-lookbackYears, 0, -7)
	to := today.AddDate(0, 0, 1)

	var lastErr error
	for _, src := range s.sources {
		bars, err := s.fetchFrom(ctx, src, instrument, from, to)
		if err != nil {
			metrics.SourceFetches.WithLabelValues(src.Name(), "error").Inc()
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"instrument": instrument,
				"source":     src.Name(),
			}).Warn("source fetch failed")
			lastErr = err
			continue
		}
		if len(bars) == 0 {
			metrics.SourceFetches.WithLabelValues(src.Name(), "empty").Inc()
			lastErr = fmt.Errorf("source %s returned no bars", src.Name())
			continue
		}
		metrics.SourceFetches.WithLabelValues(src.Name(), "ok").Inc()

		bars = normalizeSeries(cleanBars(bars, instrument))
		if len(bars) == 0 {
			lastErr = fmt.Errorf("source %s returned no valid bars", src.Name())
			continue
		}

		if err := writeSeriesCSV(s.cachePath(instrument), bars); err != nil {
			// Best-effort cache write; the fetched series is still good.
			s.logger.WithError(err).WithField("instrument", instrument).Warn("cache write failed")
		}
		return bars, nil
	}

	return nil, fmt.Errorf("%w: %s: %v", contracts.ErrSourceUnavailable, instrument, lastErr)
}

// CachedSeries reads the cache without any staleness check or network
// fallback. Used for exit-price lookups during reconciliation.
func (s *Store) CachedSeries(instrument string) ([]contracts.Bar, error) {
	bars, err := readSeriesCSV(s.cachePath(instrument), instrument)
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// FetchAll retrieves series for many instruments over a bounded worker
// pool. Per-instrument failures are logged and omitted from the result;
// one instrument never aborts the rest. Instruments map to distinct cache
// files, so workers need no shared locking.
func (s *Store) FetchAll(ctx context.Context, instruments []string, lookbackYears, workers int) map[string][]contracts.Bar {
	type fetchResult struct {
		instrument string
		bars       []contracts.Bar
	}

	jobCh := make(chan string)
	resultCh := make(chan fetchResult, len(instruments))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for instrument := range jobCh {
				bars, err := s.GetSeries(ctx, instrument, lookbackYears)
				if err != nil {
					s.logger.WithError(err).WithField("instrument", instrument).Warn("skipping instrument")
					metrics.InstrumentsSkipped.WithLabelValues("source_unavailable").Inc()
					continue
				}
				resultCh <- fetchResult{instrument: instrument, bars: bars}
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for _, instrument := range instruments {
			select {
			case jobCh <- instrument:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make(map[string][]contracts.Bar, len(instruments))
	for res := range resultCh {
		out[res.instrument] = res.bars
	}
	return out
}

// readCache returns the cached series when it parses to the required
// schema and its most recent bar is within the staleness bound.
func (s *Store) readCache(instrument string) ([]contracts.Bar, error) {
	bars, err := readSeriesCSV(s.cachePath(instrument), instrument)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: empty series", contracts.ErrCacheCorrupt)
	}

	latest := bars[len(bars)-1].Date
	if s.now().Sub(latest) > s.stalenessBound {
		return nil, fmt.Errorf("%w: last bar %s beyond staleness bound", contracts.ErrCacheCorrupt,
			latest.Format(contracts.DateFormat))
	}
	return bars, nil
}

// fetchFrom calls one source through its circuit breaker.
func (s *Store) fetchFrom(ctx context.Context, src contracts.PriceSource, instrument string, from, to time.Time) ([]contracts.Bar, error) {
	result, err := s.breakers[src.Name()].Execute(func() (interface{}, error) {
		return src.Fetch(ctx, instrument, from, to)
	})
	if err != nil {
		return nil, err
	}
	return result.([]contracts.Bar), nil
}

// cleanBars drops bars with non-positive close or negative volume and
// stamps the instrument.
func cleanBars(bars []contracts.Bar, instrument string) []contracts.Bar {
	out := bars[:0:0]
	for _, b := range bars {
		if b.Close <= 0 || b.Volume < 0 {
			continue
		}
		b.Instrument = instrument
		out = append(out, b)
	}
	return out
}

func (s *Store) cachePath(instrument string) string {
	safe := strings.ReplaceAll(instrument, "/", "_")
	return filepath.Join(s.cacheDir, safe+"_ohlc.csv")
}

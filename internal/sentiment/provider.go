package sentiment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/pkg/httputil"
	"github.com/quantfold/nextday/pkg/logger"
)

// Provider scores short-horizon news sentiment per (instrument, date).
// Scores come from harvested RSS headlines run through a finance lexicon,
// cached in a CSV so one run's fetches serve the next. The contract is
// soft: any failure degrades to a neutral 0, never an error.
type Provider struct {
	httpClient *httputil.Client
	feeds      []string // URL templates with %s for the bare ticker
	cache      *csvCache
	logger     *logger.Logger

	mu      sync.Mutex
	memo    map[string]float64
	harvest func(ctx context.Context, instrument string) []string
}

// NewProvider creates a sentiment provider. feeds may be empty, in which
// case only cached scores are served.
func NewProvider(httpClient *httputil.Client, feeds []string, outDir string, log *logger.Logger) *Provider {
	p := &Provider{
		httpClient: httpClient,
		feeds:      feeds,
		cache:      newCSVCache(outDir),
		logger:     log.WithField("component", "sentiment"),
		memo:       make(map[string]float64),
	}
	p.harvest = p.fetchHeadlines
	return p
}

// Score returns the sentiment for an instrument on a date, clamped to
// [-1, 1]; 0 when nothing is available.
func (p *Provider) Score(ctx context.Context, instrument string, date time.Time) float64 {
	key := date.Format(contracts.DateFormat) + "|" + instrument

	p.mu.Lock()
	if s, ok := p.memo[key]; ok {
		p.mu.Unlock()
		return s
	}
	p.mu.Unlock()

	if s, ok := p.cache.get(instrument, date); ok {
		p.remember(key, s)
		return s
	}

	headlines := p.harvest(ctx, instrument)
	score := clamp(scoreHeadlines(headlines))

	if err := p.cache.put(instrument, date, score); err != nil {
		p.logger.WithError(err).WithField("instrument", instrument).Warn("sentiment cache write failed")
	}
	p.remember(key, score)
	return score
}

// Warmup primes the cache for a set of instruments on one date, so plan
// generation hits only cached scores.
func (p *Provider) Warmup(ctx context.Context, instruments []string, date time.Time) {
	for _, instrument := range instruments {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.Score(ctx, instrument, date)
	}
}

func (p *Provider) remember(key string, s float64) {
	p.mu.Lock()
	p.memo[key] = s
	p.mu.Unlock()
}

// fetchHeadlines pulls item titles from each configured RSS feed. The
// feed URL is a template taking the bare ticker (exchange suffix
// stripped).
func (p *Provider) fetchHeadlines(ctx context.Context, instrument string) []string {
	base := strings.TrimSuffix(instrument, ".AX")

	var headlines []string
	for _, tmpl := range p.feeds {
		url := fmt.Sprintf(tmpl, base)
		resp, err := p.httpClient.Get(ctx, url, nil)
		if err != nil {
			p.logger.WithError(err).WithField("feed", url).Debug("feed fetch failed")
			continue
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			p.logger.WithError(err).WithField("feed", url).Debug("feed parse failed")
			continue
		}

		doc.Find("item title").Each(func(_ int, s *goquery.Selection) {
			if title := strings.TrimSpace(s.Text()); title != "" {
				headlines = append(headlines, title)
			}
		})
	}

	if len(headlines) > maxHeadlines {
		headlines = headlines[:maxHeadlines]
	}
	return headlines
}

const maxHeadlines = 8

func clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

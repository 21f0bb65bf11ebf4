package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/pkg/httputil"
	"github.com/quantfold/nextday/pkg/logger"
)

const defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Client fetches daily bars from the keyless Yahoo Finance chart API. Used
// as the secondary source behind EODHD.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a Yahoo chart client.
func NewClient(httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("component", "external.yahoo"),
		baseURL:    defaultBaseURL,
	}
}

// Name identifies this source in logs and metrics.
func (c *Client) Name() string { return "yahoo" }

// chartResponse is the subset of the chart API payload we consume. Price
// arrays use pointers because Yahoo emits null for halted sessions.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch retrieves daily bars for an instrument over [from, to].
func (c *Client) Fetch(ctx context.Context, instrument string, from, to time.Time) ([]contracts.Bar, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", from.Unix()))
	q.Set("period2", fmt.Sprintf("%d", to.Unix()))
	q.Set("interval", "1d")
	q.Set("events", "history")

	fullURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(instrument), q.Encode())

	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	}

	var resp chartResponse
	if err := c.httpClient.GetJSON(ctx, fullURL, headers, &resp); err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", instrument, err)
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %s", instrument, resp.Chart.Error.Code)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo fetch %s: empty result", instrument)
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]contracts.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil || quote.Volume[i] == nil {
			continue
		}
		bars = append(bars, contracts.Bar{
			Instrument: instrument,
			Date:       time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:       deref(quote.Open, i),
			High:       deref(quote.High, i),
			Low:        deref(quote.Low, i),
			Close:      *quote.Close[i],
			Volume:     *quote.Volume[i],
		})
	}

	c.logger.WithFields(map[string]interface{}{
		"instrument": instrument,
		"count":      len(bars),
	}).Debug("Fetched bars")
	return bars, nil
}

func deref(vals []*float64, i int) float64 {
	if i < len(vals) && vals[i] != nil {
		return *vals[i]
	}
	return 0
}

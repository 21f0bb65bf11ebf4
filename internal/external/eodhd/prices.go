package eodhd

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/quantfold/nextday/internal/contracts"
)

// eodRow is one record of the /eod endpoint response.
type eodRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Fetch retrieves daily bars for an instrument from the EODHD EOD endpoint.
func (c *Client) Fetch(ctx context.Context, instrument string, from, to time.Time) ([]contracts.Bar, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("eodhd: %w: no API key configured", contracts.ErrSourceUnavailable)
	}

	q := url.Values{}
	q.Set("api_token", c.apiKey)
	q.Set("fmt", "json")
	q.Set("period", "d")
	q.Set("from", from.Format(contracts.DateFormat))
	q.Set("to", to.Format(contracts.DateFormat))

	fullURL := fmt.Sprintf("%s/eod/%s?%s", c.baseURL, url.PathEscape(apiSymbol(instrument)), q.Encode())

	var rows []eodRow
	if err := c.httpClient.GetJSON(ctx, fullURL, nil, &rows); err != nil {
		return nil, fmt.Errorf("eodhd fetch %s: %w", instrument, err)
	}

	bars := make([]contracts.Bar, 0, len(rows))
	for _, r := range rows {
		d, err := time.Parse(contracts.DateFormat, r.Date)
		if err != nil {
			continue
		}
		bars = append(bars, contracts.Bar{
			Instrument: instrument,
			Date:       d,
			Open:       r.Open,
			High:       r.High,
			Low:        r.Low,
			Close:      r.Close,
			Volume:     r.Volume,
		})
	}

	c.logger.WithFields(map[string]interface{}{
		"instrument": instrument,
		"count":      len(bars),
	}).Debug("Fetched bars")
	return bars, nil
}

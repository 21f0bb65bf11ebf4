package eodhd

import (
	"context"
	"fmt"
	"net/url"
)

// fundamentalsResponse carries the slice of the payload we read.
type fundamentalsResponse struct {
	Highlights struct {
		MarketCapitalization float64 `json:"MarketCapitalization"`
	} `json:"Highlights"`
	General struct {
		Sector string `json:"Sector"`
	} `json:"General"`
}

// MarketCap returns the instrument's market capitalization in USD billions
// and its sector, from the fundamentals endpoint.
func (c *Client) MarketCap(ctx context.Context, instrument string) (capB float64, sector string, err error) {
	if c.apiKey == "" {
		return 0, "", fmt.Errorf("eodhd fundamentals: no API key configured")
	}

	q := url.Values{}
	q.Set("api_token", c.apiKey)
	q.Set("fmt", "json")

	fullURL := fmt.Sprintf("%s/fundamentals/%s?%s", c.baseURL, url.PathEscape(apiSymbol(instrument)), q.Encode())

	var resp fundamentalsResponse
	if err := c.httpClient.GetJSON(ctx, fullURL, nil, &resp); err != nil {
		return 0, "", fmt.Errorf("eodhd fundamentals %s: %w", instrument, err)
	}

	if resp.Highlights.MarketCapitalization <= 0 {
		return 0, resp.General.Sector, fmt.Errorf("eodhd fundamentals %s: no market cap", instrument)
	}

	return resp.Highlights.MarketCapitalization / 1e9, resp.General.Sector, nil
}

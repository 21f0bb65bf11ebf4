package eodhd

import (
	"strings"

	"github.com/quantfold/nextday/pkg/httputil"
	"github.com/quantfold/nextday/pkg/logger"
)

const defaultBaseURL = "https://eodhd.com/api"

// Client talks to the EODHD REST API (end-of-day bars and fundamentals).
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	apiKey     string
	baseURL    string
}

// NewClient creates an EODHD client. An empty apiKey is allowed; every
// call will then fail fast and the caller falls through to the next source.
func NewClient(httpClient *httputil.Client, log *logger.Logger, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("component", "external.eodhd"),
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
	}
}

// Name identifies this source in logs and metrics.
func (c *Client) Name() string { return "eodhd" }

// apiSymbol maps a Yahoo-style ASX ticker (BHP.AX) to EODHD's exchange
// suffix (BHP.AU).
func apiSymbol(instrument string) string {
	if s, ok := strings.CutSuffix(instrument, ".AX"); ok {
		return s + ".AU"
	}
	return instrument
}

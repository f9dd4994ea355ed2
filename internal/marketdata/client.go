// Package marketdata fetches the market volatility index and options chains over HTTP.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rewired-gh/optionlab/internal/logger"
	"github.com/rewired-gh/optionlab/internal/models"
)

const expirationLayout = "2006-01-02"

// Client provides access to a Yahoo Finance style quote API.
type Client struct {
	baseURL        string
	indexSymbol    string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// ClientConfig holds retry and connection pool settings for the HTTP client.
type ClientConfig struct {
	VolatilityIndexSymbol string
	MaxRetries            int
	RetryDelayBase        time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
}

// NewClient creates a new market data client.
func NewClient(baseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.VolatilityIndexSymbol == "" {
		cfg.VolatilityIndexSymbol = "^VIX"
	}
	return &Client{
		baseURL:     baseURL,
		indexSymbol: cfg.VolatilityIndexSymbol,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

type optionsResponse struct {
	OptionChain struct {
		Result []struct {
			UnderlyingSymbol string  `json:"underlyingSymbol"`
			ExpirationDates  []int64 `json:"expirationDates"`
			Options          []struct {
				ExpirationDate int64         `json:"expirationDate"`
				Calls          []contractRow `json:"calls"`
				Puts           []contractRow `json:"puts"`
			} `json:"options"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"optionChain"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// contractRow is the wire shape of one option contract.
type contractRow struct {
	Strike            float64  `json:"strike"`
	ImpliedVolatility float64  `json:"impliedVolatility"`
	Volume            *float64 `json:"volume"`
	OpenInterest      *float64 `json:"openInterest"`
}

// toChainRows is the only place wire field names meet models.OptionChainRow.
// Missing volume or open interest counts as zero.
func toChainRows(in []contractRow) []models.OptionChainRow {
	out := make([]models.OptionChainRow, 0, len(in))
	for _, c := range in {
		row := models.OptionChainRow{
			Strike:            c.Strike,
			ImpliedVolatility: c.ImpliedVolatility,
		}
		if c.Volume != nil {
			row.Volume = int64(*c.Volume)
		}
		if c.OpenInterest != nil {
			row.OpenInterest = int64(*c.OpenInterest)
		}
		out = append(out, row)
	}
	return out
}

// FetchVolatilityIndex returns the latest close of the configured volatility index.
// Every failure wraps models.ErrDataUnavailable.
func (c *Client) FetchVolatilityIndex(ctx context.Context) (float64, error) {
	u, err := url.Parse(c.baseURL + "/v8/finance/chart/" + url.PathEscape(c.indexSymbol))
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w: %w", err, models.ErrDataUnavailable)
	}
	q := u.Query()
	q.Set("range", "1d")
	q.Set("interval", "1d")
	u.RawQuery = q.Encode()

	var body chartResponse
	if err := c.getJSON(ctx, u.String(), &body); err != nil {
		return 0, fmt.Errorf("failed to fetch %s: %w: %w", c.indexSymbol, err, models.ErrDataUnavailable)
	}
	if body.Chart.Error != nil {
		return 0, fmt.Errorf("%s: %s: %w", c.indexSymbol, body.Chart.Error.Description, models.ErrDataUnavailable)
	}
	if len(body.Chart.Result) == 0 {
		return 0, fmt.Errorf("%s: empty chart result: %w", c.indexSymbol, models.ErrDataUnavailable)
	}

	res := body.Chart.Result[0]
	if len(res.Indicators.Quote) > 0 {
		closes := res.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i] != nil && *closes[i] > 0 {
				return roundCents(*closes[i]), nil
			}
		}
	}
	if res.Meta.RegularMarketPrice > 0 {
		return roundCents(res.Meta.RegularMarketPrice), nil
	}
	return 0, fmt.Errorf("%s: no close price: %w", c.indexSymbol, models.ErrDataUnavailable)
}

// VolatilityIndexOrFallback returns the live index, or fallback when it cannot be fetched.
func (c *Client) VolatilityIndexOrFallback(ctx context.Context, fallback float64) (float64, bool) {
	v, err := c.FetchVolatilityIndex(ctx)
	if err != nil {
		logger.Warn("Using fallback volatility index %.2f: %v", fallback, err)
		return fallback, true
	}
	return v, false
}

// FetchExpirations lists the expiration dates (YYYY-MM-DD) available for ticker.
func (c *Client) FetchExpirations(ctx context.Context, ticker string) ([]string, error) {
	body, err := c.fetchOptions(ctx, ticker, nil)
	if err != nil {
		return nil, err
	}
	dates := body.OptionChain.Result[0].ExpirationDates
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, time.Unix(d, 0).UTC().Format(expirationLayout))
	}
	return out, nil
}

// FetchChain returns the chain of ticker for one expiration, both sides sorted by strike.
func (c *Client) FetchChain(ctx context.Context, ticker, expiration string) (models.Chain, error) {
	exp, err := time.Parse(expirationLayout, expiration)
	if err != nil {
		return models.Chain{}, fmt.Errorf("invalid expiration %q: %w", expiration, err)
	}
	ts := exp.UTC().Unix()

	body, err := c.fetchOptions(ctx, ticker, &ts)
	if err != nil {
		return models.Chain{}, err
	}
	opts := body.OptionChain.Result[0].Options
	if len(opts) == 0 {
		return models.Chain{}, fmt.Errorf("%s %s: no options listed: %w", ticker, expiration, models.ErrDataUnavailable)
	}

	chain := models.Chain{
		Calls: toChainRows(opts[0].Calls),
		Puts:  toChainRows(opts[0].Puts),
	}
	chain.SortByStrike()
	return chain, nil
}

// FetchEntries builds chain entries for every ticker. An empty expiration means every listed
// expiration. Tickers or expirations that cannot be fetched are returned as failures.
func (c *Client) FetchEntries(ctx context.Context, tickers []string, expiration string) ([]models.ChainEntry, []models.CPIVFailure) {
	var entries []models.ChainEntry
	var failures []models.CPIVFailure

	for _, ticker := range tickers {
		expirations := []string{expiration}
		if expiration == "" {
			var err error
			expirations, err = c.FetchExpirations(ctx, ticker)
			if err != nil {
				logger.Warn("Failed to list expirations for %s: %v", ticker, err)
				failures = append(failures, models.CPIVFailure{Ticker: ticker, Err: err})
				continue
			}
		}

		for _, exp := range expirations {
			if ctx.Err() != nil {
				failures = append(failures, models.CPIVFailure{Ticker: ticker, Expiration: exp, Err: ctx.Err()})
				return entries, failures
			}
			chain, err := c.FetchChain(ctx, ticker, exp)
			if err != nil {
				logger.Warn("Failed to fetch chain %s %s: %v", ticker, exp, err)
				failures = append(failures, models.CPIVFailure{Ticker: ticker, Expiration: exp, Err: err})
				continue
			}
			entries = append(entries, models.ChainEntry{Ticker: ticker, Expiration: exp, Chain: chain})
		}
	}

	logger.Debug("Fetched %d chains for %d tickers (%d failures)", len(entries), len(tickers), len(failures))
	return entries, failures
}

func (c *Client) fetchOptions(ctx context.Context, ticker string, date *int64) (*optionsResponse, error) {
	u, err := url.Parse(c.baseURL + "/v7/finance/options/" + url.PathEscape(ticker))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if date != nil {
		q := u.Query()
		q.Set("date", strconv.FormatInt(*date, 10))
		u.RawQuery = q.Encode()
	}

	var body optionsResponse
	if err := c.getJSON(ctx, u.String(), &body); err != nil {
		return nil, fmt.Errorf("failed to fetch options for %s: %w: %w", ticker, err, models.ErrDataUnavailable)
	}
	if body.OptionChain.Error != nil {
		return nil, fmt.Errorf("%s: %s: %w", ticker, body.OptionChain.Error.Description, models.ErrDataUnavailable)
	}
	if len(body.OptionChain.Result) == 0 {
		return nil, fmt.Errorf("%s: empty options result: %w", ticker, models.ErrDataUnavailable)
	}
	return &body, nil
}

var errClient = errors.New("client error")

// getJSON performs a GET with linear-backoff retry on transport errors and 5xx responses.
func (c *Client) getJSON(ctx context.Context, urlStr string, out any) error {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "optionlab/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("%w: %d", errClient, resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

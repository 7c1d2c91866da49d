package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"SwingPull/internal/domain/models"
	drepo "SwingPull/internal/domain/repository"
	"SwingPull/internal/service/ratelimit"
	xhttp "SwingPull/pkg/http"
	"SwingPull/pkg/logger"
	"SwingPull/pkg/util"
)

const limiterKey = "marketdata"

// Client fetches daily OHLCV bars from a Yahoo-chart-compatible endpoint.
type Client struct {
	baseURL      string
	http         *xhttp.Client
	timeout      time.Duration
	limiter      *ratelimit.Limiter
	maxRPS       float64
	burst        float64
	retries      int
	retryBackoff time.Duration
	log          *logger.Logger
}

// Option configures Client.
type Option func(*Client)

// New creates a market-data client.
func New(baseURL string, log *logger.Logger, opts ...Option) drepo.MarketData {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		timeout:      15 * time.Second,
		limiter:      ratelimit.New(),
		maxRPS:       4,
		burst:        8,
		retries:      2,
		retryBackoff: 500 * time.Millisecond,
		log:          log,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = xhttp.NewClient(
		xhttp.WithClientTimeout(c.timeout),
		xhttp.WithUserAgent("Mozilla/5.0 (compatible; swingpull/1.0)"),
	)
	return c
}

// WithRateLimit sets the request rate and burst size.
func WithRateLimit(maxRPS float64, burst int) Option {
	return func(c *Client) {
		if maxRPS > 0 {
			c.maxRPS = maxRPS
		}
		if burst > 0 {
			c.burst = float64(burst)
		}
	}
}

// WithRetries sets retry count and backoff for transient failures.
func WithRetries(retries int, backoff time.Duration) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.retries = retries
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// chartResponse mirrors the provider's chart payload. Only the fields the
// ingest path reads are declared.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
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

// FetchBars downloads bars for every ticker in [from, to]. A ticker that
// fails after retries is skipped with a warning; the rest still return.
func (c *Client) FetchBars(ctx context.Context, tickers []string, from, to time.Time, interval string) ([]models.DayBar, error) {
	if interval == "" {
		interval = "1d"
	}

	bars := make([]models.DayBar, 0, len(tickers))
	failed := 0

	for _, ticker := range tickers {
		if err := c.limiter.Wait(ctx, limiterKey, c.burst, c.maxRPS); err != nil {
			return bars, err
		}

		tb, err := c.fetchTicker(ctx, ticker, from, to, interval)
		if err != nil {
			failed++
			c.log.Warn("market data fetch failed",
				logger.String("ticker", ticker),
				logger.Error(err),
			)
			continue
		}
		bars = append(bars, tb...)
	}

	if failed > 0 && failed == len(tickers) {
		return nil, fmt.Errorf("market data: all %d tickers failed", failed)
	}

	sort.Slice(bars, func(i, j int) bool {
		if !bars[i].Day.Equal(bars[j].Day) {
			return bars[i].Day.Before(bars[j].Day)
		}
		return bars[i].Ticker < bars[j].Ticker
	})
	return bars, nil
}

func (c *Client) fetchTicker(ctx context.Context, ticker string, from, to time.Time, interval string) ([]models.DayBar, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryBackoff * time.Duration(attempt)):
			}
		}

		var resp chartResponse
		err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    fmt.Sprintf("%s/v8/finance/chart/%s", c.baseURL, ticker),
			QueryParams: map[string][]string{
				"period1":  {strconv.FormatInt(from.Unix(), 10)},
				"period2":  {strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10)},
				"interval": {interval},
				"events":   {"history"},
			},
		}, &resp)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.Chart.Error != nil {
			return nil, fmt.Errorf("provider error %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
		}
		if len(resp.Chart.Result) == 0 {
			return nil, fmt.Errorf("empty chart result")
		}
		return c.toBars(ticker, interval, &resp), nil
	}
	return nil, lastErr
}

func (c *Client) toBars(ticker, interval string, resp *chartResponse) []models.DayBar {
	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]
	now := time.Now().UTC()

	bars := make([]models.DayBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		open := deref(quote.Open, i)
		high := deref(quote.High, i)
		low := deref(quote.Low, i)
		closePx := deref(quote.Close, i)
		volume := deref(quote.Volume, i)

		// Null slots mean the exchange reported no trade for that day.
		if open == 0 && closePx == 0 {
			continue
		}

		changePct := 0.0
		if open > 0 {
			changePct = (closePx - open) / open * 100
		}

		bars = append(bars, models.DayBar{
			Ticker:     ticker,
			Day:        util.Day(time.Unix(ts, 0).UTC()),
			Interval:   interval,
			Open:       open,
			High:       high,
			Low:        low,
			Close:      closePx,
			Volume:     volume,
			ChangePct:  changePct,
			IngestedAt: now,
		})
	}
	return bars
}

func deref(vals []*float64, i int) float64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	return *vals[i]
}

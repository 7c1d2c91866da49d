package universe

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	drepo "SwingPull/internal/domain/repository"
	xhttp "SwingPull/pkg/http"
	"SwingPull/pkg/cache"
	"SwingPull/pkg/logger"
	"SwingPull/pkg/util"
)

const (
	tickersCacheKey  = "universe:tickers"
	holidaysCacheKey = "universe:holidays"
)

// Service resolves the ticker universe from an NSE index constituent list
// and answers exchange-calendar questions. Both the constituent list and
// the holiday calendar are cached.
type Service struct {
	index      string
	watchlist  []string
	httpBase   string
	holidayURL string
	cacheTTL   time.Duration

	http  *xhttp.Client
	cache cache.Service
	log   *logger.Logger
}

// Option configures Service.
type Option func(*Service)

// New creates a universe service.
func New(index string, c cache.Service, log *logger.Logger, opts ...Option) drepo.Universe {
	s := &Service{
		index:      index,
		httpBase:   "https://archives.nseindia.com",
		holidayURL: "https://www.nseindia.com/api/holiday-master?type=trading",
		cacheTTL:   24 * time.Hour,
		http: xhttp.NewClient(
			xhttp.WithClientTimeout(20*time.Second),
			xhttp.WithUserAgent("Mozilla/5.0 (compatible; swingpull/1.0)"),
		),
		cache:      c,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithWatchlist overrides the index with a fixed ticker list.
func WithWatchlist(tickers []string) Option {
	return func(s *Service) {
		s.watchlist = tickers
	}
}

// WithHTTPBase sets the archive endpoint base URL.
func WithHTTPBase(base string) Option {
	return func(s *Service) {
		if base != "" {
			s.httpBase = strings.TrimRight(base, "/")
		}
	}
}

// WithHolidayURL sets the holiday-master endpoint.
func WithHolidayURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.holidayURL = url
		}
	}
}

// WithCacheTTL sets how long constituents and holidays stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// Tickers returns the universe and a label describing where it came from.
// A configured watchlist wins over the index constituents.
func (s *Service) Tickers(ctx context.Context) ([]string, string, error) {
	if len(s.watchlist) > 0 {
		return append([]string(nil), s.watchlist...), "watchlist", nil
	}

	var cached []string
	if err := s.cache.Get(ctx, tickersCacheKey, &cached); err == nil && len(cached) > 0 {
		return cached, fmt.Sprintf("index:%s (cached)", s.index), nil
	}

	tickers, err := s.fetchConstituents(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("universe: %w", err)
	}

	if err := s.cache.Set(ctx, tickersCacheKey, tickers, s.cacheTTL); err != nil {
		s.log.Warn("universe cache write failed", logger.Error(err))
	}
	return tickers, fmt.Sprintf("index:%s", s.index), nil
}

// TradingDay reports whether the exchange trades on the given date.
func (s *Service) TradingDay(ctx context.Context, day time.Time) (bool, string) {
	day = util.Day(day)
	if util.IsWeekend(day) {
		return false, "weekend"
	}

	holidays, err := s.holidays(ctx)
	if err != nil {
		// Calendar unavailable: assume open so a flaky endpoint never
		// silently drops trading days from a run.
		s.log.Warn("holiday calendar unavailable", logger.Error(err))
		return true, ""
	}

	if desc, ok := holidays[day.Format("2006-01-02")]; ok {
		return false, fmt.Sprintf("holiday: %s", desc)
	}
	return true, ""
}

// constituent CSV layout: Company Name, Industry, Symbol, Series, ISIN Code
func (s *Service) fetchConstituents(ctx context.Context) ([]string, error) {
	slug := strings.ToLower(strings.ReplaceAll(s.index, " ", ""))
	url := fmt.Sprintf("%s/content/indices/ind_%slist.csv", s.httpBase, slug)

	var raw []byte
	err := s.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    url,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("fetch constituents: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read constituents header: %w", err)
	}
	symbolCol := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "Symbol") {
			symbolCol = i
			break
		}
	}
	if symbolCol < 0 {
		return nil, fmt.Errorf("constituents csv: no Symbol column")
	}

	var tickers []string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read constituents row: %w", err)
		}
		if symbolCol >= len(rec) {
			continue
		}
		sym := strings.TrimSpace(rec[symbolCol])
		if sym == "" {
			continue
		}
		tickers = append(tickers, sym+".NS")
	}

	if len(tickers) == 0 {
		return nil, fmt.Errorf("constituents csv: no symbols")
	}
	sort.Strings(tickers)
	return tickers, nil
}

type holidayMaster struct {
	CM []struct {
		TradingDate string `json:"tradingDate"` // "02-Oct-2026"
		Description string `json:"description"`
	} `json:"CM"`
}

// holidays returns date -> description, keyed YYYY-MM-DD.
func (s *Service) holidays(ctx context.Context) (map[string]string, error) {
	var cached map[string]string
	if err := s.cache.Get(ctx, holidaysCacheKey, &cached); err == nil && len(cached) > 0 {
		return cached, nil
	}

	var master holidayMaster
	err := s.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.holidayURL,
		Headers: map[string]string{"Accept": "application/json"},
	}, &master)
	if err != nil {
		return nil, fmt.Errorf("fetch holidays: %w", err)
	}

	out := make(map[string]string)
	for _, h := range master.CM {
		if t, err := time.Parse("02-Jan-2006", h.TradingDate); err == nil {
			out[t.Format("2006-01-02")] = h.Description
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("holiday master: empty CM segment")
	}

	if err := s.cache.Set(ctx, holidaysCacheKey, out, s.cacheTTL); err != nil {
		s.log.Warn("holiday cache write failed", logger.Error(err))
	}
	return out, nil
}

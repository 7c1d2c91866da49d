package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"SwingPull/internal/domain/models"
	drepo "SwingPull/internal/domain/repository"
	"SwingPull/internal/funnel"
	"SwingPull/pkg/logger"
	"SwingPull/pkg/util"
)

// BacktestParams configures one backtest run.
type BacktestParams struct {
	From       time.Time
	To         time.Time
	Threshold  float64
	WindowDays int
	MaxUpPct   float64
	MaxDownPct float64
	VolumeHard bool
	Interval   string
}

// TickerOutcome tracks how one impulse candidate resolved.
type TickerOutcome struct {
	Ticker         string    `json:"ticker"`
	ImpulseDate    time.Time `json:"impulse_date"`
	ChangePct      float64   `json:"change_pct"`
	FinalState     models.State
	DaysToResolve  int    `json:"days_to_resolve"`
	FalloutReason  string `json:"fallout_reason,omitempty"`
}

// BacktestReport aggregates funnel outcomes over a historical range.
type BacktestReport struct {
	From              time.Time       `json:"from"`
	To                time.Time       `json:"to"`
	TradingDays       int             `json:"trading_days"`
	Impulses          int             `json:"impulses"`
	WatchlistHits     int             `json:"watchlist_hits"`
	Fallouts          int             `json:"fallouts"`
	Unresolved        int             `json:"unresolved"`
	ConversionPct     float64         `json:"conversion_pct"`
	AvgDaysToGraduate float64         `json:"avg_days_to_graduate"`
	Outcomes          []TickerOutcome `json:"outcomes"`
}

// Backtester replays the funnel over stored bars. It is strictly read-only:
// nothing it computes is persisted or published.
type Backtester struct {
	bars drepo.BarStore
	log  *logger.Logger
}

// NewBacktester creates a backtest usecase.
func NewBacktester(bars drepo.BarStore, log *logger.Logger) *Backtester {
	return &Backtester{bars: bars, log: log}
}

// Run replays detection and classification over [From, To] and reports how
// each impulse resolved. Every impulse is walked forward until it leaves
// CONSOLIDATING or the range ends.
func (b *Backtester) Run(ctx context.Context, params BacktestParams) (*BacktestReport, error) {
	cache, dates, err := loadBarCache(ctx, b.bars, params.From, params.To, params.Interval)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("backtest: no stored bars in %s..%s",
			params.From.Format("2006-01-02"), params.To.Format("2006-01-02"))
	}

	report := replay(ctx, cache, dates, params)
	b.log.Info("backtest complete",
		logger.Date("from", report.From),
		logger.Date("to", report.To),
		logger.Int("impulses", report.Impulses),
		logger.Int("watchlist", report.WatchlistHits),
		logger.Int("fallouts", report.Fallouts),
		logger.Float64("conversion_pct", report.ConversionPct),
	)
	return report, nil
}

// replay runs the funnel over cached bars. Shared with the trainer so a
// parameter sweep loads bars from storage exactly once.
func replay(ctx context.Context, cache *barCache, dates []time.Time, params BacktestParams) *BacktestReport {
	conditions := []funnel.Condition{
		funnel.Stability{MaxUpPct: params.MaxUpPct, MaxDownPct: params.MaxDownPct},
		funnel.Volume{Hard: params.VolumeHard},
	}
	engine := funnel.NewEngine(cache, conditions, params.WindowDays, params.Interval)
	lastDate := dates[len(dates)-1]

	report := &BacktestReport{
		From:        dates[0],
		To:          lastDate,
		TradingDays: len(dates),
	}

	var graduateDays int
	for _, day := range dates {
		signals := funnel.Detect(cache.forDate(day), params.Threshold)
		if len(signals) == 0 {
			continue
		}
		report.Impulses += len(signals)

		// Classify as of the end of the range: each signal's final state
		// within the backtest horizon.
		snaps, err := engine.Classify(ctx, lastDate, signals)
		if err != nil {
			// barCache lookups cannot fail
			continue
		}
		for _, s := range snaps {
			outcome := TickerOutcome{
				Ticker:        s.Ticker,
				ImpulseDate:   s.ImpulseDate,
				FinalState:    s.State,
				DaysToResolve: s.StableDays,
				FalloutReason: s.FailureReason,
			}
			for _, sig := range signals {
				if sig.Ticker == s.Ticker && sig.TradeDate.Equal(s.ImpulseDate) {
					outcome.ChangePct = sig.ChangePct
					break
				}
			}
			report.Outcomes = append(report.Outcomes, outcome)

			switch s.State {
			case models.StateWatchlist:
				report.WatchlistHits++
				graduateDays += s.StableDays
			case models.StateFallout:
				report.Fallouts++
			default:
				report.Unresolved++
			}
		}
	}

	if report.Impulses > 0 {
		report.ConversionPct = float64(report.WatchlistHits) / float64(report.Impulses) * 100
	}
	if report.WatchlistHits > 0 {
		report.AvgDaysToGraduate = float64(graduateDays) / float64(report.WatchlistHits)
	}

	sort.Slice(report.Outcomes, func(i, j int) bool {
		if !report.Outcomes[i].ImpulseDate.Equal(report.Outcomes[j].ImpulseDate) {
			return report.Outcomes[i].ImpulseDate.Before(report.Outcomes[j].ImpulseDate)
		}
		return report.Outcomes[i].Ticker < report.Outcomes[j].Ticker
	})
	return report
}

// barCache holds a date range of bars in memory, keyed for both per-date
// iteration and single-bar lookup. Implements funnel.BarSource.
type barCache struct {
	byKey  map[string]models.DayBar
	byDate map[time.Time][]models.DayBar
}

func loadBarCache(ctx context.Context, store drepo.BarStore, from, to time.Time, interval string) (*barCache, []time.Time, error) {
	dates, err := store.TradingDates(ctx, util.Day(from), util.Day(to), interval)
	if err != nil {
		return nil, nil, fmt.Errorf("trading dates: %w", err)
	}

	cache := &barCache{
		byKey:  make(map[string]models.DayBar),
		byDate: make(map[time.Time][]models.DayBar, len(dates)),
	}
	for _, day := range dates {
		bars, err := store.BarsForDate(ctx, day, interval)
		if err != nil {
			return nil, nil, fmt.Errorf("bars for %s: %w", day.Format("2006-01-02"), err)
		}
		cache.byDate[day] = bars
		for _, b := range bars {
			cache.byKey[barKey(b.Ticker, b.Day)] = b
		}
	}
	return cache, dates, nil
}

func (c *barCache) Bar(ctx context.Context, ticker string, day time.Time, interval string) (models.DayBar, bool, error) {
	b, ok := c.byKey[barKey(ticker, util.Day(day))]
	return b, ok, nil
}

func (c *barCache) forDate(day time.Time) []models.DayBar {
	return c.byDate[util.Day(day)]
}

func barKey(ticker string, day time.Time) string {
	return ticker + "|" + day.Format("2006-01-02")
}

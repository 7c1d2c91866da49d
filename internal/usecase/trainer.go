package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	drepo "SwingPull/internal/domain/repository"
	"SwingPull/pkg/logger"
)

// TrainerGrid is the parameter space a sweep explores. Empty dimensions
// fall back to a single value taken from the base params.
type TrainerGrid struct {
	Thresholds []float64
	Windows    []int
	Bands      []float64 // symmetric max up/down percent
}

// TrainerResult is one evaluated parameter combination.
type TrainerResult struct {
	Threshold     float64 `json:"threshold"`
	WindowDays    int     `json:"window_days"`
	BandPct       float64 `json:"band_pct"`
	Impulses      int     `json:"impulses"`
	WatchlistHits int     `json:"watchlist_hits"`
	Fallouts      int     `json:"fallouts"`
	ConversionPct float64 `json:"conversion_pct"`
}

// Trainer sweeps funnel parameters over stored history and ranks the
// combinations. Like the backtester it never writes anything.
type Trainer struct {
	bars drepo.BarStore
	log  *logger.Logger
}

// NewTrainer creates a trainer usecase.
func NewTrainer(bars drepo.BarStore, log *logger.Logger) *Trainer {
	return &Trainer{bars: bars, log: log}
}

// Run evaluates every grid combination over [base.From, base.To] and
// returns results ranked by watchlist hits, conversion rate, then the
// tighter band. Bars are loaded from storage once for the whole sweep.
func (t *Trainer) Run(ctx context.Context, base BacktestParams, grid TrainerGrid) ([]TrainerResult, error) {
	if len(grid.Thresholds) == 0 {
		grid.Thresholds = []float64{base.Threshold}
	}
	if len(grid.Windows) == 0 {
		grid.Windows = []int{base.WindowDays}
	}
	if len(grid.Bands) == 0 {
		grid.Bands = []float64{base.MaxDownPct}
	}

	cache, dates, err := loadBarCache(ctx, t.bars, base.From, base.To, base.Interval)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("trainer: no stored bars in %s..%s",
			base.From.Format("2006-01-02"), base.To.Format("2006-01-02"))
	}

	start := time.Now()
	results := make([]TrainerResult, 0, len(grid.Thresholds)*len(grid.Windows)*len(grid.Bands))
	for _, threshold := range grid.Thresholds {
		for _, window := range grid.Windows {
			for _, band := range grid.Bands {
				params := base
				params.Threshold = threshold
				params.WindowDays = window
				params.MaxUpPct = band
				params.MaxDownPct = band

				report := replay(ctx, cache, dates, params)
				results = append(results, TrainerResult{
					Threshold:     threshold,
					WindowDays:    window,
					BandPct:       band,
					Impulses:      report.Impulses,
					WatchlistHits: report.WatchlistHits,
					Fallouts:      report.Fallouts,
					ConversionPct: report.ConversionPct,
				})
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].WatchlistHits != results[j].WatchlistHits {
			return results[i].WatchlistHits > results[j].WatchlistHits
		}
		if results[i].ConversionPct != results[j].ConversionPct {
			return results[i].ConversionPct > results[j].ConversionPct
		}
		return results[i].BandPct < results[j].BandPct
	})

	t.log.Info("trainer sweep complete",
		logger.Int("combinations", len(results)),
		logger.Int("trading_days", len(dates)),
		logger.Duration("took_ms", time.Since(start)),
	)
	return results, nil
}

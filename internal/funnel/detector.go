package funnel

import (
	"sort"
	"time"

	"SwingPull/internal/domain/models"
)

// Detect scans one day's bars and returns an ImpulseSignal for every ticker
// whose open-to-close move meets or exceeds threshold percent. Detection is
// one-directional: only upward (BULL) moves are emitted. Bars with a
// non-positive open are skipped.
func Detect(bars []models.DayBar, threshold float64) []models.ImpulseSignal {
	now := time.Now().UTC()

	signals := make([]models.ImpulseSignal, 0, 8)
	for _, b := range bars {
		if b.Open <= 0 {
			continue
		}
		changePct := (b.Close - b.Open) / b.Open * 100
		if changePct < threshold {
			continue
		}
		signals = append(signals, models.ImpulseSignal{
			Ticker:     b.Ticker,
			TradeDate:  b.Day,
			Open:       b.Open,
			Close:      b.Close,
			ChangePct:  changePct,
			Direction:  models.DirectionBull,
			Interval:   b.Interval,
			DetectedAt: now,
		})
	}

	// Strongest movers first; ties broken by ticker for a stable order.
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].ChangePct != signals[j].ChangePct {
			return signals[i].ChangePct > signals[j].ChangePct
		}
		return signals[i].Ticker < signals[j].Ticker
	})
	return signals
}

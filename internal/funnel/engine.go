package funnel

import (
	"context"
	"fmt"
	"time"

	"SwingPull/internal/domain/models"
)

// BarSource is the engine's only external dependency: a read-only lookup of
// one (ticker, day, interval) bar. The second return is false when no bar
// exists for that day.
type BarSource interface {
	Bar(ctx context.Context, ticker string, day time.Time, interval string) (models.DayBar, bool, error)
}

// Engine derives the funnel state of every supplied impulse signal as of a
// snapshot date.
//
// The engine recomputes the full window from raw bars on every call instead
// of carrying a per-candidate progress counter. Incremental counters corrupt
// when past dates are re-run out of order; replaying from scratch keeps
// repeated and out-of-order processing safe.
type Engine struct {
	bars       BarSource
	conditions []Condition
	window     int
	interval   string
}

// NewEngine creates an engine. conditions run in the given order for every
// walked day; window is the number of stable days required to graduate to
// WATCHLIST (min 1).
func NewEngine(bars BarSource, conditions []Condition, window int, interval string) *Engine {
	if window < 1 {
		window = 1
	}
	return &Engine{bars: bars, conditions: conditions, window: window, interval: interval}
}

// Window returns the configured consolidation window length.
func (e *Engine) Window() int { return e.window }

// Classify computes one FunnelSnapshot per signal as of snapshotDate.
//
// For a signal with trigger date T:
//   - T == snapshotDate: IMPULSE, stableDays 0. The trigger day itself is
//     never checked against conditions.
//   - otherwise walk every calendar day from T+1 through snapshotDate in
//     order. Days without a bar (holiday, data gap) are skipped without
//     penalty. The first failing condition ends the walk in FALLOUT; a day
//     passing every condition increments the stable counter.
//   - a completed walk yields WATCHLIST at stableDays >= window,
//     CONSOLIDATING for a partial count, and degenerately IMPULSE when no
//     day was walkable at all.
//
// The result is a pure function of (snapshotDate, signals, bar data,
// condition configuration): no prior classification is read, nothing is
// written, and bar-lookup errors propagate unchanged.
func (e *Engine) Classify(ctx context.Context, snapshotDate time.Time, signals []models.ImpulseSignal) ([]models.FunnelSnapshot, error) {
	snapshots := make([]models.FunnelSnapshot, 0, len(signals))

	for _, sig := range signals {
		anchorHigh, anchorVol, err := e.anchor(ctx, sig)
		if err != nil {
			return nil, err
		}

		if sig.TradeDate.Equal(snapshotDate) {
			snapshots = append(snapshots, models.FunnelSnapshot{
				Ticker:       sig.Ticker,
				SnapshotDate: snapshotDate,
				ImpulseDate:  sig.TradeDate,
				State:        models.StateImpulse,
				AnchorHigh:   anchorHigh,
				AnchorVolume: anchorVol,
			})
			continue
		}

		stableDays := 0
		failure := ""

		for day := sig.TradeDate.AddDate(0, 0, 1); !day.After(snapshotDate); day = day.AddDate(0, 0, 1) {
			bar, ok, err := e.bars.Bar(ctx, sig.Ticker, day, e.interval)
			if err != nil {
				return nil, fmt.Errorf("bar lookup %s %s: %w", sig.Ticker, day.Format("2006-01-02"), err)
			}
			if !ok {
				continue
			}

			ec := Context{AnchorHigh: anchorHigh, AnchorVolume: anchorVol, StableDays: stableDays}
			for _, cond := range e.conditions {
				ok, note := cond.Evaluate(ec, bar)
				if !ok {
					failure = fmt.Sprintf("[%s] %s", cond.Name(), note)
					break
				}
			}
			if failure != "" {
				break
			}
			stableDays++
		}

		state := models.StateImpulse
		switch {
		case failure != "":
			state = models.StateFallout
		case stableDays >= e.window:
			state = models.StateWatchlist
		case stableDays > 0:
			state = models.StateConsolidating
		}

		snapshots = append(snapshots, models.FunnelSnapshot{
			Ticker:        sig.Ticker,
			SnapshotDate:  snapshotDate,
			ImpulseDate:   sig.TradeDate,
			State:         state,
			StableDays:    stableDays,
			AnchorHigh:    anchorHigh,
			AnchorVolume:  anchorVol,
			FailureReason: failure,
		})
	}

	return snapshots, nil
}

// anchor resolves the trigger-day high and volume for a signal. When the
// trigger-day bar is unavailable the signal's own close and zero volume are
// used — degraded but non-fatal.
func (e *Engine) anchor(ctx context.Context, sig models.ImpulseSignal) (float64, float64, error) {
	bar, ok, err := e.bars.Bar(ctx, sig.Ticker, sig.TradeDate, e.interval)
	if err != nil {
		return 0, 0, fmt.Errorf("anchor lookup %s %s: %w", sig.Ticker, sig.TradeDate.Format("2006-01-02"), err)
	}
	if !ok {
		return sig.Close, 0, nil
	}
	return bar.High, bar.Volume, nil
}

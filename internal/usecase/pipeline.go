package usecase

import (
	"context"
	"fmt"
	"time"

	"SwingPull/internal/domain/models"
	drepo "SwingPull/internal/domain/repository"
	"SwingPull/internal/funnel"
	"SwingPull/pkg/logger"
	"SwingPull/pkg/util"
)

// fetchBufferDays pads the provider fetch range so weekends and holidays
// inside the lookback still leave enough trading days.
const fetchBufferDays = 7

// RunStats summarizes one processed date.
type RunStats struct {
	Date             time.Time
	Skipped          bool
	SkipReason       string
	Tickers          int
	BarsWritten      int
	Impulses         int
	SnapshotsWritten int
	Watchlist        int
	Fallouts         int
}

// Pipeline runs the daily ingest -> detect -> classify -> persist flow.
type Pipeline struct {
	universe  drepo.Universe
	market    drepo.MarketData
	bars      drepo.BarStore
	signals   drepo.SignalStore
	snapshots drepo.SnapshotStore
	runs      drepo.RunLogStore
	publisher drepo.Publisher
	metrics   drepo.Metrics
	engine    *funnel.Engine
	log       *logger.Logger

	threshold  float64
	windowDays int
	interval   string
}

// NewPipeline creates a pipeline usecase.
func NewPipeline(
	universe drepo.Universe,
	market drepo.MarketData,
	bars drepo.BarStore,
	signals drepo.SignalStore,
	snapshots drepo.SnapshotStore,
	runs drepo.RunLogStore,
	publisher drepo.Publisher,
	metrics drepo.Metrics,
	engine *funnel.Engine,
	log *logger.Logger,
	threshold float64,
	windowDays int,
	interval string,
) *Pipeline {
	if interval == "" {
		interval = "1d"
	}
	return &Pipeline{
		universe:   universe,
		market:     market,
		bars:       bars,
		signals:    signals,
		snapshots:  snapshots,
		runs:       runs,
		publisher:  publisher,
		metrics:    metrics,
		engine:     engine,
		log:        log,
		threshold:  threshold,
		windowDays: windowDays,
		interval:   interval,
	}
}

// ProcessDate runs the full flow for one snapshot date. The date itself is
// skipped when the exchange was closed; force bypasses the calendar check
// but not the append-if-absent write guard.
func (p *Pipeline) ProcessDate(ctx context.Context, day time.Time, force bool) (RunStats, error) {
	day = util.Day(day)
	stats := RunStats{Date: day}
	start := time.Now()

	if open, reason := p.universe.TradingDay(ctx, day); !open && !force {
		stats.Skipped = true
		stats.SkipReason = reason
		p.log.Info("date skipped",
			logger.Date("date", day),
			logger.String("reason", reason),
		)
		return stats, nil
	}

	tickers, source, err := p.universe.Tickers(ctx)
	if err != nil {
		p.metrics.RecordError("universe")
		return stats, p.failRun(ctx, day, stats, fmt.Errorf("resolve universe: %w", err))
	}
	stats.Tickers = len(tickers)
	p.log.Info("universe resolved",
		logger.Date("date", day),
		logger.Int("tickers", len(tickers)),
		logger.String("source", source),
	)

	// Fetch enough history to cover every trigger date whose window can
	// still reach this snapshot date.
	fetchFrom := day.AddDate(0, 0, -(p.windowDays + fetchBufferDays))
	fetched, err := p.market.FetchBars(ctx, tickers, fetchFrom, day, p.interval)
	if err != nil {
		p.metrics.RecordError("marketdata")
		return stats, p.failRun(ctx, day, stats, fmt.Errorf("fetch bars: %w", err))
	}

	written, err := p.bars.UpsertBars(ctx, fetched)
	if err != nil {
		p.metrics.RecordError("bars")
		return stats, p.failRun(ctx, day, stats, fmt.Errorf("store bars: %w", err))
	}
	stats.BarsWritten = written
	p.metrics.RecordBarsIngested(written)

	// Re-detect impulses over the whole active window, not just the
	// snapshot date. Detection is deterministic over stored bars, so a
	// date processed out of order still sees every trigger that can reach
	// it. The extra two days absorb the tail where a candidate graduates
	// late because of mid-window market closures.
	signalFrom := day.AddDate(0, 0, -(p.windowDays + 2))
	for d := signalFrom; !d.After(day); d = d.AddDate(0, 0, 1) {
		dayBars, err := p.bars.BarsForDate(ctx, d, p.interval)
		if err != nil {
			p.metrics.RecordError("bars")
			return stats, p.failRun(ctx, day, stats, fmt.Errorf("read bars: %w", err))
		}

		detected := funnel.Detect(dayBars, p.threshold)
		if len(detected) > 0 {
			if _, err := p.signals.UpsertSignals(ctx, detected); err != nil {
				p.metrics.RecordError("signals")
				return stats, p.failRun(ctx, day, stats, fmt.Errorf("store signals: %w", err))
			}
		}
		if d.Equal(day) {
			stats.Impulses = len(detected)
			p.metrics.RecordImpulsesDetected(len(detected))
		}
	}

	active, err := p.signals.SignalsInWindow(ctx, signalFrom, day, p.interval)
	if err != nil {
		p.metrics.RecordError("signals")
		return stats, p.failRun(ctx, day, stats, fmt.Errorf("read signals: %w", err))
	}

	snaps, err := p.engine.Classify(ctx, day, active)
	if err != nil {
		p.metrics.RecordError("classify")
		return stats, p.failRun(ctx, day, stats, fmt.Errorf("classify: %w", err))
	}
	for _, s := range snaps {
		p.metrics.RecordSnapshot(s.State)
		switch s.State {
		case models.StateWatchlist:
			stats.Watchlist++
		case models.StateFallout:
			stats.Fallouts++
		}
	}

	appended, err := p.snapshots.Append(ctx, snaps)
	if err != nil {
		p.metrics.RecordError("snapshots")
		return stats, p.failRun(ctx, day, stats, fmt.Errorf("store snapshots: %w", err))
	}
	stats.SnapshotsWritten = appended

	// Publish only when this run actually wrote rows; a replay of an
	// already-stored date must not re-emit events.
	if appended > 0 {
		if err := p.publisher.PublishEvents(ctx, p.buildEvents(day, snaps)); err != nil {
			p.metrics.RecordError("publish")
			p.log.Warn("event publish failed",
				logger.Date("date", day),
				logger.Error(err),
			)
		}
	}

	if err := p.runs.Record(ctx, models.RunLog{
		RunDate:          day,
		Status:           "success",
		TickersProcessed: stats.Tickers,
		BarsWritten:      stats.BarsWritten,
		ImpulsesFound:    stats.Impulses,
		RanAt:            time.Now().UTC(),
	}); err != nil {
		p.log.Warn("run log write failed", logger.Date("date", day), logger.Error(err))
	}

	p.metrics.RecordLatency("process_date", time.Since(start).Seconds())
	p.log.Info("date processed",
		logger.Date("date", day),
		logger.Int("bars", stats.BarsWritten),
		logger.Int("impulses", stats.Impulses),
		logger.Int("snapshots", stats.SnapshotsWritten),
		logger.Int("watchlist", stats.Watchlist),
		logger.Int("fallouts", stats.Fallouts),
	)
	return stats, nil
}

// Run processes every date in [from, to] in order, skipping dates already
// marked successful unless force is set. A zero from starts at the day
// after the last successful run; a zero to ends today.
func (p *Pipeline) Run(ctx context.Context, from, to time.Time, force bool) ([]RunStats, error) {
	now := util.Day(time.Now().UTC())
	if to.IsZero() || util.Day(to).After(now) {
		to = now
	} else {
		to = util.Day(to)
	}

	if from.IsZero() {
		last, ok, err := p.runs.LastSuccess(ctx)
		if err != nil {
			return nil, fmt.Errorf("last success: %w", err)
		}
		if ok {
			from = last.AddDate(0, 0, 1)
		} else {
			from = to
		}
	} else {
		from = util.Day(from)
	}
	if from.After(to) {
		p.log.Info("nothing to catch up", logger.Date("from", from), logger.Date("to", to))
		return nil, nil
	}

	var done map[time.Time]bool
	if !force {
		var err error
		done, err = p.runs.CompletedDates(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("completed dates: %w", err)
		}
	}

	var all []RunStats
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if done[day] {
			continue
		}
		stats, err := p.ProcessDate(ctx, day, force)
		if err != nil {
			return all, err
		}
		all = append(all, stats)
	}
	return all, nil
}

func (p *Pipeline) buildEvents(day time.Time, snaps []models.FunnelSnapshot) []models.FunnelEvent {
	now := time.Now().UTC()
	events := make([]models.FunnelEvent, 0, len(snaps))
	for _, s := range snaps {
		var typ string
		switch {
		case s.State == models.StateImpulse:
			typ = "impulse"
		case s.State == models.StateFallout:
			typ = "fallout"
		case s.State == models.StateWatchlist && s.StableDays == p.engine.Window():
			// Report graduation once, the day the window completes.
			typ = "watchlist"
		default:
			continue
		}
		events = append(events, models.FunnelEvent{
			Type:         typ,
			Ticker:       s.Ticker,
			SnapshotDate: day.Format("2006-01-02"),
			ImpulseDate:  s.ImpulseDate.Format("2006-01-02"),
			State:        s.State,
			StableDays:   s.StableDays,
			AnchorHigh:   s.AnchorHigh,
			Reason:       s.FailureReason,
			EmittedAt:    now,
		})
	}
	return events
}

func (p *Pipeline) failRun(ctx context.Context, day time.Time, stats RunStats, cause error) error {
	if err := p.runs.Record(ctx, models.RunLog{
		RunDate:          day,
		Status:           "failed",
		TickersProcessed: stats.Tickers,
		BarsWritten:      stats.BarsWritten,
		ImpulsesFound:    stats.Impulses,
		RanAt:            time.Now().UTC(),
		Error:            cause.Error(),
	}); err != nil {
		p.log.Warn("run log write failed", logger.Date("date", day), logger.Error(err))
	}
	return cause
}

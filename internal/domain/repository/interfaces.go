package repository

import (
	"context"
	"time"

	"SwingPull/internal/domain/models"
)

// BarStore persists and reads daily OHLCV bars.
type BarStore interface {
	UpsertBars(ctx context.Context, bars []models.DayBar) (int, error)
	BarsForDate(ctx context.Context, day time.Time, interval string) ([]models.DayBar, error)
	// Bar returns the bar for one (ticker, day, interval) key; the second
	// return is false when no bar exists (holiday or data gap).
	Bar(ctx context.Context, ticker string, day time.Time, interval string) (models.DayBar, bool, error)
	TradingDates(ctx context.Context, from, to time.Time, interval string) ([]time.Time, error)
	CountForDate(ctx context.Context, day time.Time, interval string) (int, error)
	Health(ctx context.Context) error
}

// SignalStore persists and reads impulse signals.
type SignalStore interface {
	UpsertSignals(ctx context.Context, signals []models.ImpulseSignal) (int, error)
	// SignalsInWindow returns signals whose trade date falls in [from, to].
	SignalsInWindow(ctx context.Context, from, to time.Time, interval string) ([]models.ImpulseSignal, error)
}

// SnapshotStore persists funnel snapshots append-only. Append must be
// at-most-once per (ticker, snapshot date): existing rows are never
// overwritten, re-appending the same key is a silent no-op.
type SnapshotStore interface {
	Append(ctx context.Context, snapshots []models.FunnelSnapshot) (int, error)
	ForDate(ctx context.Context, day time.Time) ([]models.FunnelSnapshot, error)
	History(ctx context.Context, ticker string, limit int) ([]models.FunnelSnapshot, error)
	RecentFallouts(ctx context.Context, limit int) ([]models.FunnelSnapshot, error)
}

// RunLogStore records pipeline runs for catch-up scheduling.
type RunLogStore interface {
	Record(ctx context.Context, run models.RunLog) error
	LastSuccess(ctx context.Context) (time.Time, bool, error)
	CompletedDates(ctx context.Context, from, to time.Time) (map[time.Time]bool, error)
}

// MarketData fetches OHLCV bars from the external provider.
type MarketData interface {
	FetchBars(ctx context.Context, tickers []string, from, to time.Time, interval string) ([]models.DayBar, error)
}

// Universe resolves the ticker set and the exchange calendar.
type Universe interface {
	Tickers(ctx context.Context) ([]string, string, error) // tickers, source label
	// TradingDay reports whether the exchange is open on the given date,
	// with a human-readable reason when it is not.
	TradingDay(ctx context.Context, day time.Time) (bool, string)
}

// Publisher emits funnel events for downstream consumers.
type Publisher interface {
	PublishEvents(ctx context.Context, events []models.FunnelEvent) error
	Close() error
}

// Metrics records operational metrics.
type Metrics interface {
	RecordBarsIngested(n int)
	RecordImpulsesDetected(n int)
	RecordSnapshot(state models.State)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

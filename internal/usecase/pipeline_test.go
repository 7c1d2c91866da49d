package usecase

import (
	"context"
	"testing"
	"time"

	"SwingPull/internal/domain/models"
	"SwingPull/internal/funnel"
	"SwingPull/pkg/logger"
	"SwingPull/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory fakes ---

type fakeUniverse struct {
	tickers  []string
	holidays map[string]string
}

func (u *fakeUniverse) Tickers(ctx context.Context) ([]string, string, error) {
	return u.tickers, "test", nil
}

func (u *fakeUniverse) TradingDay(ctx context.Context, day time.Time) (bool, string) {
	if util.IsWeekend(day) {
		return false, "weekend"
	}
	if desc, ok := u.holidays[day.Format("2006-01-02")]; ok {
		return false, "holiday: " + desc
	}
	return true, ""
}

type fakeMarket struct {
	bars    []models.DayBar
	fetches int
}

func (m *fakeMarket) FetchBars(ctx context.Context, tickers []string, from, to time.Time, interval string) ([]models.DayBar, error) {
	m.fetches++
	var out []models.DayBar
	for _, b := range m.bars {
		if !b.Day.Before(from) && !b.Day.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

type memBarStore struct {
	m map[string]models.DayBar
}

func newMemBarStore() *memBarStore { return &memBarStore{m: make(map[string]models.DayBar)} }

func (s *memBarStore) UpsertBars(ctx context.Context, bars []models.DayBar) (int, error) {
	for _, b := range bars {
		s.m[barKey(b.Ticker, b.Day)] = b
	}
	return len(bars), nil
}

func (s *memBarStore) BarsForDate(ctx context.Context, day time.Time, interval string) ([]models.DayBar, error) {
	var out []models.DayBar
	for _, b := range s.m {
		if b.Day.Equal(util.Day(day)) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBarStore) Bar(ctx context.Context, ticker string, day time.Time, interval string) (models.DayBar, bool, error) {
	b, ok := s.m[barKey(ticker, util.Day(day))]
	return b, ok, nil
}

func (s *memBarStore) TradingDates(ctx context.Context, from, to time.Time, interval string) ([]time.Time, error) {
	seen := make(map[time.Time]bool)
	for _, b := range s.m {
		if !b.Day.Before(util.Day(from)) && !b.Day.After(util.Day(to)) {
			seen[b.Day] = true
		}
	}
	var out []time.Time
	for day := util.Day(from); !day.After(util.Day(to)); day = day.AddDate(0, 0, 1) {
		if seen[day] {
			out = append(out, day)
		}
	}
	return out, nil
}

func (s *memBarStore) CountForDate(ctx context.Context, day time.Time, interval string) (int, error) {
	bars, _ := s.BarsForDate(ctx, day, interval)
	return len(bars), nil
}

func (s *memBarStore) Health(ctx context.Context) error { return nil }

type memSignalStore struct {
	m map[string]models.ImpulseSignal
}

func newMemSignalStore() *memSignalStore {
	return &memSignalStore{m: make(map[string]models.ImpulseSignal)}
}

func (s *memSignalStore) UpsertSignals(ctx context.Context, signals []models.ImpulseSignal) (int, error) {
	for _, sig := range signals {
		s.m[barKey(sig.Ticker, sig.TradeDate)] = sig
	}
	return len(signals), nil
}

func (s *memSignalStore) SignalsInWindow(ctx context.Context, from, to time.Time, interval string) ([]models.ImpulseSignal, error) {
	var out []models.ImpulseSignal
	for day := util.Day(from); !day.After(util.Day(to)); day = day.AddDate(0, 0, 1) {
		for _, sig := range s.m {
			if sig.TradeDate.Equal(day) {
				out = append(out, sig)
			}
		}
	}
	return out, nil
}

type memSnapshotStore struct {
	rows map[string]models.FunnelSnapshot
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{rows: make(map[string]models.FunnelSnapshot)}
}

func (s *memSnapshotStore) Append(ctx context.Context, snapshots []models.FunnelSnapshot) (int, error) {
	written := 0
	for _, snap := range snapshots {
		key := barKey(snap.Ticker, snap.SnapshotDate)
		if _, exists := s.rows[key]; exists {
			continue
		}
		s.rows[key] = snap
		written++
	}
	return written, nil
}

func (s *memSnapshotStore) ForDate(ctx context.Context, day time.Time) ([]models.FunnelSnapshot, error) {
	var out []models.FunnelSnapshot
	for _, snap := range s.rows {
		if snap.SnapshotDate.Equal(util.Day(day)) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *memSnapshotStore) History(ctx context.Context, ticker string, limit int) ([]models.FunnelSnapshot, error) {
	var out []models.FunnelSnapshot
	for _, snap := range s.rows {
		if snap.Ticker == ticker {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *memSnapshotStore) RecentFallouts(ctx context.Context, limit int) ([]models.FunnelSnapshot, error) {
	var out []models.FunnelSnapshot
	for _, snap := range s.rows {
		if snap.State == models.StateFallout {
			out = append(out, snap)
		}
	}
	return out, nil
}

type memRunLog struct {
	runs []models.RunLog
}

func (s *memRunLog) Record(ctx context.Context, run models.RunLog) error {
	s.runs = append(s.runs, run)
	return nil
}

func (s *memRunLog) LastSuccess(ctx context.Context) (time.Time, bool, error) {
	var last time.Time
	found := false
	for _, r := range s.runs {
		if r.Status == "success" && r.RunDate.After(last) {
			last = r.RunDate
			found = true
		}
	}
	return last, found, nil
}

func (s *memRunLog) CompletedDates(ctx context.Context, from, to time.Time) (map[time.Time]bool, error) {
	out := make(map[time.Time]bool)
	for _, r := range s.runs {
		if r.Status == "success" && !r.RunDate.Before(util.Day(from)) && !r.RunDate.After(util.Day(to)) {
			out[r.RunDate] = true
		}
	}
	return out, nil
}

type capturePublisher struct {
	batches [][]models.FunnelEvent
}

func (p *capturePublisher) PublishEvents(ctx context.Context, events []models.FunnelEvent) error {
	p.batches = append(p.batches, events)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordBarsIngested(n int)               {}
func (nopMetrics) RecordImpulsesDetected(n int)           {}
func (nopMetrics) RecordSnapshot(state models.State)      {}
func (nopMetrics) RecordError(kind string)                {}
func (nopMetrics) RecordLatency(op string, seconds float64) {}

// --- fixtures ---

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(ticker string, day time.Time, open, high, low, closePx, volume float64) models.DayBar {
	return models.DayBar{
		Ticker: ticker, Day: day, Interval: "1d",
		Open: open, High: high, Low: low, Close: closePx, Volume: volume,
		ChangePct: (closePx - open) / open * 100,
	}
}

// triggerWeek returns a +10% trigger bar on Mon Jan 5 followed by quiet
// bars Tue..Fri inside a 2% band of the 110 anchor high.
func triggerWeek(ticker string) []models.DayBar {
	return []models.DayBar{
		bar(ticker, day(2026, 1, 5), 100, 110, 99, 110, 1000),
		bar(ticker, day(2026, 1, 6), 109, 110.5, 108.5, 109.5, 500),
		bar(ticker, day(2026, 1, 7), 109.5, 110.2, 108.2, 109, 450),
		bar(ticker, day(2026, 1, 8), 109, 111, 108, 110, 400),
		bar(ticker, day(2026, 1, 9), 110, 111.5, 109, 110.5, 350),
	}
}

type pipelineFixture struct {
	pipeline  *Pipeline
	market    *fakeMarket
	bars      *memBarStore
	signals   *memSignalStore
	snapshots *memSnapshotStore
	runs      *memRunLog
	publisher *capturePublisher
}

func newPipelineFixture(t *testing.T, marketBars []models.DayBar) *pipelineFixture {
	t.Helper()

	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	f := &pipelineFixture{
		market:    &fakeMarket{bars: marketBars},
		bars:      newMemBarStore(),
		signals:   newMemSignalStore(),
		snapshots: newMemSnapshotStore(),
		runs:      &memRunLog{},
		publisher: &capturePublisher{},
	}

	conditions := []funnel.Condition{
		funnel.Stability{MaxUpPct: 2, MaxDownPct: 2},
		funnel.Volume{},
	}
	engine := funnel.NewEngine(f.bars, conditions, 4, "1d")

	f.pipeline = NewPipeline(
		&fakeUniverse{tickers: []string{"ACME.NS"}},
		f.market,
		f.bars,
		f.signals,
		f.snapshots,
		f.runs,
		f.publisher,
		nopMetrics{},
		engine,
		log,
		8.0, 4, "1d",
	)
	return f
}

// --- tests ---

func TestProcessDateDetectsImpulse(t *testing.T) {
	f := newPipelineFixture(t, triggerWeek("ACME.NS"))

	stats, err := f.pipeline.ProcessDate(context.Background(), day(2026, 1, 5), false)
	require.NoError(t, err)

	assert.False(t, stats.Skipped)
	assert.Equal(t, 1, stats.Impulses)
	assert.Equal(t, 1, stats.SnapshotsWritten)

	snaps, err := f.snapshots.ForDate(context.Background(), day(2026, 1, 5))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, models.StateImpulse, snaps[0].State)
	assert.Equal(t, 110.0, snaps[0].AnchorHigh)
	assert.Equal(t, 1000.0, snaps[0].AnchorVolume)

	require.Len(t, f.publisher.batches, 1)
	require.Len(t, f.publisher.batches[0], 1)
	assert.Equal(t, "impulse", f.publisher.batches[0][0].Type)
}

func TestProcessDateGraduatesToWatchlist(t *testing.T) {
	f := newPipelineFixture(t, triggerWeek("ACME.NS"))

	for d := day(2026, 1, 5); !d.After(day(2026, 1, 9)); d = d.AddDate(0, 0, 1) {
		_, err := f.pipeline.ProcessDate(context.Background(), d, false)
		require.NoError(t, err)
	}

	snaps, err := f.snapshots.ForDate(context.Background(), day(2026, 1, 9))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, models.StateWatchlist, snaps[0].State)
	assert.Equal(t, 4, snaps[0].StableDays)

	// Friday's batch carries the graduation event.
	last := f.publisher.batches[len(f.publisher.batches)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "watchlist", last[0].Type)
}

func TestProcessDateIntermediateConsolidating(t *testing.T) {
	f := newPipelineFixture(t, triggerWeek("ACME.NS"))

	for d := day(2026, 1, 5); !d.After(day(2026, 1, 7)); d = d.AddDate(0, 0, 1) {
		_, err := f.pipeline.ProcessDate(context.Background(), d, false)
		require.NoError(t, err)
	}

	snaps, err := f.snapshots.ForDate(context.Background(), day(2026, 1, 7))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, models.StateConsolidating, snaps[0].State)
	assert.Equal(t, 2, snaps[0].StableDays)
}

func TestProcessDateReplayIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t, triggerWeek("ACME.NS"))

	first, err := f.pipeline.ProcessDate(context.Background(), day(2026, 1, 5), false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SnapshotsWritten)

	before, err := f.snapshots.ForDate(context.Background(), day(2026, 1, 5))
	require.NoError(t, err)

	second, err := f.pipeline.ProcessDate(context.Background(), day(2026, 1, 5), true)
	require.NoError(t, err)
	assert.Equal(t, 0, second.SnapshotsWritten)

	after, err := f.snapshots.ForDate(context.Background(), day(2026, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// No rows written means no events re-published.
	assert.Len(t, f.publisher.batches, 1)
}

func TestProcessDateOutOfOrderBackfill(t *testing.T) {
	forward := newPipelineFixture(t, triggerWeek("ACME.NS"))
	backward := newPipelineFixture(t, triggerWeek("ACME.NS"))

	dates := []time.Time{day(2026, 1, 5), day(2026, 1, 6), day(2026, 1, 7), day(2026, 1, 8), day(2026, 1, 9)}
	for _, d := range dates {
		_, err := forward.pipeline.ProcessDate(context.Background(), d, false)
		require.NoError(t, err)
	}
	for i := len(dates) - 1; i >= 0; i-- {
		_, err := backward.pipeline.ProcessDate(context.Background(), dates[i], false)
		require.NoError(t, err)
	}

	for _, d := range dates {
		fwd, err := forward.snapshots.ForDate(context.Background(), d)
		require.NoError(t, err)
		bwd, err := backward.snapshots.ForDate(context.Background(), d)
		require.NoError(t, err)
		assert.Equal(t, fwd, bwd, "snapshots for %s diverge", d.Format("2006-01-02"))
	}
}

func TestProcessDateSkipsWeekend(t *testing.T) {
	f := newPipelineFixture(t, triggerWeek("ACME.NS"))

	// 2026-01-10 is a Saturday
	stats, err := f.pipeline.ProcessDate(context.Background(), day(2026, 1, 10), false)
	require.NoError(t, err)
	assert.True(t, stats.Skipped)
	assert.Equal(t, "weekend", stats.SkipReason)
	assert.Equal(t, 0, f.market.fetches)
}

func TestProcessDateFalloutPublishesReason(t *testing.T) {
	bars := []models.DayBar{
		bar("ACME.NS", day(2026, 1, 5), 100, 110, 99, 110, 1000),
		// Tuesday crashes through the floor (110 * 0.98 = 107.8)
		bar("ACME.NS", day(2026, 1, 6), 108, 109, 104, 105, 900),
	}
	f := newPipelineFixture(t, bars)

	_, err := f.pipeline.ProcessDate(context.Background(), day(2026, 1, 5), false)
	require.NoError(t, err)
	_, err = f.pipeline.ProcessDate(context.Background(), day(2026, 1, 6), false)
	require.NoError(t, err)

	snaps, err := f.snapshots.ForDate(context.Background(), day(2026, 1, 6))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, models.StateFallout, snaps[0].State)
	assert.Contains(t, snaps[0].FailureReason, "[Stability]")

	last := f.publisher.batches[len(f.publisher.batches)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "fallout", last[0].Type)
	assert.Contains(t, last[0].Reason, "Day 1")
}

func TestRunSkipsCompletedDates(t *testing.T) {
	f := newPipelineFixture(t, triggerWeek("ACME.NS"))

	_, err := f.pipeline.ProcessDate(context.Background(), day(2026, 1, 5), false)
	require.NoError(t, err)
	fetchesAfterFirst := f.market.fetches

	all, err := f.pipeline.Run(context.Background(), day(2026, 1, 5), day(2026, 1, 7), false)
	require.NoError(t, err)

	// Jan 5 already succeeded, so only Jan 6 and 7 are processed.
	require.Len(t, all, 2)
	assert.Equal(t, day(2026, 1, 6), all[0].Date)
	assert.Equal(t, day(2026, 1, 7), all[1].Date)
	assert.Equal(t, fetchesAfterFirst+2, f.market.fetches)
}

func TestRunCatchUpFromLastSuccess(t *testing.T) {
	f := newPipelineFixture(t, triggerWeek("ACME.NS"))

	_, err := f.pipeline.ProcessDate(context.Background(), day(2026, 1, 5), false)
	require.NoError(t, err)

	all, err := f.pipeline.Run(context.Background(), time.Time{}, day(2026, 1, 8), false)
	require.NoError(t, err)

	require.Len(t, all, 3)
	assert.Equal(t, day(2026, 1, 6), all[0].Date)
	assert.Equal(t, day(2026, 1, 8), all[2].Date)
}

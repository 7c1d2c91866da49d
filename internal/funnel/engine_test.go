package funnel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SwingPull/internal/domain/models"
)

// fakeBars is an in-memory BarSource keyed by ticker and day.
type fakeBars struct {
	bars map[string]models.DayBar
	err  error
}

func newFakeBars() *fakeBars { return &fakeBars{bars: make(map[string]models.DayBar)} }

func (f *fakeBars) add(b models.DayBar) {
	f.bars[b.Ticker+"|"+b.Day.Format("2006-01-02")] = b
}

func (f *fakeBars) Bar(_ context.Context, ticker string, day time.Time, _ string) (models.DayBar, bool, error) {
	if f.err != nil {
		return models.DayBar{}, false, f.err
	}
	b, ok := f.bars[ticker+"|"+day.Format("2006-01-02")]
	return b, ok, nil
}

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// bar inside the ±2% band around an anchor high of 110, with quiet volume.
func quietBar(ticker string, day time.Time) models.DayBar {
	return models.DayBar{
		Ticker: ticker, Day: day, Interval: "1d",
		Open: 108, High: 109.5, Low: 108.5, Close: 109, Volume: 500,
	}
}

func testSignal(ticker string, trigger time.Time) models.ImpulseSignal {
	return models.ImpulseSignal{
		Ticker: ticker, TradeDate: trigger,
		Open: 100, Close: 108, ChangePct: 8, Direction: models.DirectionBull, Interval: "1d",
	}
}

func testEngine(bars BarSource, window int) *Engine {
	return NewEngine(bars, []Condition{Stability{MaxUpPct: 2, MaxDownPct: 2}, Volume{}}, window, "1d")
}

// trigger bar: high 110 volume 1000 → floor 107.8, ceiling 112.2
func triggerBar(ticker string, day time.Time) models.DayBar {
	return models.DayBar{
		Ticker: ticker, Day: day, Interval: "1d",
		Open: 100, High: 110, Low: 99, Close: 108, Volume: 1000,
	}
}

func TestTriggerDayIsImpulse(t *testing.T) {
	trigger := utcDay(2026, 2, 2)
	bars := newFakeBars()
	bars.add(triggerBar("RELIANCE.NS", trigger))

	snaps, err := testEngine(bars, 4).Classify(context.Background(), trigger,
		[]models.ImpulseSignal{testSignal("RELIANCE.NS", trigger)})
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	assert.Equal(t, models.StateImpulse, snaps[0].State)
	assert.Equal(t, 0, snaps[0].StableDays)
	assert.Equal(t, 110.0, snaps[0].AnchorHigh)
	assert.Equal(t, 1000.0, snaps[0].AnchorVolume)
	assert.Empty(t, snaps[0].FailureReason)
}

func TestGraduation(t *testing.T) {
	trigger := utcDay(2026, 2, 2) // Monday
	bars := newFakeBars()
	bars.add(triggerBar("RELIANCE.NS", trigger))
	for i := 1; i <= 4; i++ {
		bars.add(quietBar("RELIANCE.NS", trigger.AddDate(0, 0, i)))
	}

	eng := testEngine(bars, 4)
	sig := []models.ImpulseSignal{testSignal("RELIANCE.NS", trigger)}

	// Three clean days: still consolidating.
	snaps, err := eng.Classify(context.Background(), trigger.AddDate(0, 0, 3), sig)
	require.NoError(t, err)
	assert.Equal(t, models.StateConsolidating, snaps[0].State)
	assert.Equal(t, 3, snaps[0].StableDays)

	// Fourth clean day: graduates.
	snaps, err = eng.Classify(context.Background(), trigger.AddDate(0, 0, 4), sig)
	require.NoError(t, err)
	assert.Equal(t, models.StateWatchlist, snaps[0].State)
	assert.Equal(t, 4, snaps[0].StableDays)
}

func TestFalloutTiming(t *testing.T) {
	trigger := utcDay(2026, 2, 2)
	bars := newFakeBars()
	bars.add(triggerBar("RELIANCE.NS", trigger))
	bars.add(quietBar("RELIANCE.NS", trigger.AddDate(0, 0, 1)))

	// Day 2 breaks the floor (107.8).
	breach := quietBar("RELIANCE.NS", trigger.AddDate(0, 0, 2))
	breach.Low = 104
	bars.add(breach)
	// Day 3 would be clean, but must never be examined.
	bars.add(quietBar("RELIANCE.NS", trigger.AddDate(0, 0, 3)))

	snaps, err := testEngine(bars, 4).Classify(context.Background(), trigger.AddDate(0, 0, 3),
		[]models.ImpulseSignal{testSignal("RELIANCE.NS", trigger)})
	require.NoError(t, err)

	assert.Equal(t, models.StateFallout, snaps[0].State)
	assert.Equal(t, 1, snaps[0].StableDays)
	assert.Contains(t, snaps[0].FailureReason, "[Stability]")
	assert.Contains(t, snaps[0].FailureReason, "Day 2")
}

func TestGapHandling(t *testing.T) {
	trigger := utcDay(2026, 2, 2) // Monday
	bars := newFakeBars()
	bars.add(triggerBar("RELIANCE.NS", trigger))
	// Tuesday missing entirely; Wednesday clean.
	bars.add(quietBar("RELIANCE.NS", trigger.AddDate(0, 0, 2)))

	snaps, err := testEngine(bars, 4).Classify(context.Background(), trigger.AddDate(0, 0, 2),
		[]models.ImpulseSignal{testSignal("RELIANCE.NS", trigger)})
	require.NoError(t, err)

	assert.Equal(t, models.StateConsolidating, snaps[0].State)
	assert.Equal(t, 1, snaps[0].StableDays)
}

func TestAllGapsStaysImpulse(t *testing.T) {
	trigger := utcDay(2026, 2, 2)
	bars := newFakeBars()
	bars.add(triggerBar("RELIANCE.NS", trigger))

	snaps, err := testEngine(bars, 4).Classify(context.Background(), trigger.AddDate(0, 0, 2),
		[]models.ImpulseSignal{testSignal("RELIANCE.NS", trigger)})
	require.NoError(t, err)

	assert.Equal(t, models.StateImpulse, snaps[0].State)
	assert.Equal(t, 0, snaps[0].StableDays)
}

func TestAnchorFallback(t *testing.T) {
	trigger := utcDay(2026, 2, 2)
	bars := newFakeBars() // trigger-day bar absent

	snaps, err := testEngine(bars, 4).Classify(context.Background(), trigger,
		[]models.ImpulseSignal{testSignal("RELIANCE.NS", trigger)})
	require.NoError(t, err)

	assert.Equal(t, 108.0, snaps[0].AnchorHigh) // signal close
	assert.Equal(t, 0.0, snaps[0].AnchorVolume)
}

func TestIdempotence(t *testing.T) {
	trigger := utcDay(2026, 2, 2)
	bars := newFakeBars()
	bars.add(triggerBar("RELIANCE.NS", trigger))
	bars.add(quietBar("RELIANCE.NS", trigger.AddDate(0, 0, 1)))

	eng := testEngine(bars, 4)
	sig := []models.ImpulseSignal{testSignal("RELIANCE.NS", trigger)}
	snap := trigger.AddDate(0, 0, 1)

	first, err := eng.Classify(context.Background(), snap, sig)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := eng.Classify(context.Background(), snap, sig)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestOrderIndependence(t *testing.T) {
	trigger := utcDay(2026, 2, 2)
	bars := newFakeBars()
	bars.add(triggerBar("RELIANCE.NS", trigger))
	for i := 1; i <= 4; i++ {
		bars.add(quietBar("RELIANCE.NS", trigger.AddDate(0, 0, i)))
	}

	eng := testEngine(bars, 4)
	sig := []models.ImpulseSignal{testSignal("RELIANCE.NS", trigger)}
	d1 := trigger.AddDate(0, 0, 2)
	d2 := trigger.AddDate(0, 0, 4)

	// Forward: D1 then D2.
	fwd1, err := eng.Classify(context.Background(), d1, sig)
	require.NoError(t, err)
	_, err = eng.Classify(context.Background(), d2, sig)
	require.NoError(t, err)

	// Reverse: D2 then D1.
	_, err = eng.Classify(context.Background(), d2, sig)
	require.NoError(t, err)
	rev1, err := eng.Classify(context.Background(), d1, sig)
	require.NoError(t, err)

	assert.Equal(t, fwd1, rev1)
}

func TestSignalIndependence(t *testing.T) {
	t1 := utcDay(2026, 2, 2)
	t2 := utcDay(2026, 2, 4)
	bars := newFakeBars()
	bars.add(triggerBar("RELIANCE.NS", t1))
	bars.add(quietBar("RELIANCE.NS", t1.AddDate(0, 0, 1)))
	// Day 2 after t1 is itself a fresh impulse day and breaks t1's ceiling.
	second := models.DayBar{
		Ticker: "RELIANCE.NS", Day: t2, Interval: "1d",
		Open: 109, High: 120, Low: 108.5, Close: 118, Volume: 3000,
	}
	bars.add(second)
	// Clean day inside the second signal's band (anchor high 120).
	bars.add(models.DayBar{
		Ticker: "RELIANCE.NS", Day: t2.AddDate(0, 0, 1), Interval: "1d",
		Open: 118, High: 119, Low: 118, Close: 118.5, Volume: 1000,
	})

	sigs := []models.ImpulseSignal{testSignal("RELIANCE.NS", t1), testSignal("RELIANCE.NS", t2)}
	snaps, err := testEngine(bars, 4).Classify(context.Background(), t2.AddDate(0, 0, 1), sigs)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	// First attempt fell out on its own window; second is consolidating.
	assert.Equal(t, models.StateFallout, snaps[0].State)
	assert.True(t, snaps[0].ImpulseDate.Equal(t1))
	assert.Equal(t, models.StateConsolidating, snaps[1].State)
	assert.True(t, snaps[1].ImpulseDate.Equal(t2))
	assert.Equal(t, 1, snaps[1].StableDays)
}

func TestVolumeHardFallout(t *testing.T) {
	trigger := utcDay(2026, 2, 2)
	bars := newFakeBars()
	bars.add(triggerBar("RELIANCE.NS", trigger))
	loud := quietBar("RELIANCE.NS", trigger.AddDate(0, 0, 1))
	loud.Volume = 5000
	bars.add(loud)

	soft := NewEngine(bars, []Condition{Stability{MaxUpPct: 2, MaxDownPct: 2}, Volume{}}, 4, "1d")
	hard := NewEngine(bars, []Condition{Stability{MaxUpPct: 2, MaxDownPct: 2}, Volume{Hard: true}}, 4, "1d")
	sig := []models.ImpulseSignal{testSignal("RELIANCE.NS", trigger)}
	snap := trigger.AddDate(0, 0, 1)

	snaps, err := soft.Classify(context.Background(), snap, sig)
	require.NoError(t, err)
	assert.Equal(t, models.StateConsolidating, snaps[0].State)

	snaps, err = hard.Classify(context.Background(), snap, sig)
	require.NoError(t, err)
	assert.Equal(t, models.StateFallout, snaps[0].State)
	assert.Contains(t, snaps[0].FailureReason, "[Volume]")
}

func TestBarLookupErrorPropagates(t *testing.T) {
	bars := newFakeBars()
	bars.err = errors.New("connection refused")

	_, err := testEngine(bars, 4).Classify(context.Background(), utcDay(2026, 2, 3),
		[]models.ImpulseSignal{testSignal("RELIANCE.NS", utcDay(2026, 2, 2))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

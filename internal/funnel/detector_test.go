package funnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SwingPull/internal/domain/models"
)

func dayBar(ticker string, day time.Time, open, close float64) models.DayBar {
	return models.DayBar{
		Ticker:   ticker,
		Day:      day,
		Interval: "1d",
		Open:     open,
		High:     close,
		Low:      open,
		Close:    close,
		Volume:   1000,
	}
}

func TestDetectThresholdIsInclusive(t *testing.T) {
	d := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	bars := []models.DayBar{
		dayBar("RELIANCE.NS", d, 100, 108),   // exactly +8%
		dayBar("TCS.NS", d, 100, 107.9),      // just under
		dayBar("INFY.NS", d, 100, 95),        // down move, never emitted
		dayBar("TEJASNET.NS", d, 100, 112.5), // +12.5%
	}

	signals := Detect(bars, 8.0)
	require.Len(t, signals, 2)

	// Sorted by change pct descending.
	assert.Equal(t, "TEJASNET.NS", signals[0].Ticker)
	assert.Equal(t, "RELIANCE.NS", signals[1].Ticker)
	assert.InDelta(t, 8.0, signals[1].ChangePct, 1e-9)
	assert.Equal(t, models.DirectionBull, signals[1].Direction)
	assert.True(t, signals[1].TradeDate.Equal(d))
}

func TestDetectSkipsZeroOpen(t *testing.T) {
	d := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	bars := []models.DayBar{
		{Ticker: "BAD.NS", Day: d, Open: 0, Close: 50},
		{Ticker: "NEG.NS", Day: d, Open: -1, Close: 50},
	}

	assert.Empty(t, Detect(bars, 1.0))
}

func TestDetectEmptyInput(t *testing.T) {
	assert.Empty(t, Detect(nil, 8.0))
}

package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"SwingPull/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartJSON(symbol string, ts []int64) string {
	var stamps, opens, highs, lows, closes, vols []string
	for i, t := range ts {
		stamps = append(stamps, fmt.Sprintf("%d", t))
		opens = append(opens, fmt.Sprintf("%g", 100.0+float64(i)))
		highs = append(highs, fmt.Sprintf("%g", 111.0+float64(i)))
		lows = append(lows, fmt.Sprintf("%g", 99.0+float64(i)))
		closes = append(closes, fmt.Sprintf("%g", 110.0+float64(i)))
		vols = append(vols, "1000")
	}
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"symbol":%q},"timestamp":[%s],
		"indicators":{"quote":[{"open":[%s],"high":[%s],"low":[%s],"close":[%s],"volume":[%s]}]}}],"error":null}}`,
		symbol,
		strings.Join(stamps, ","), strings.Join(opens, ","), strings.Join(highs, ","),
		strings.Join(lows, ","), strings.Join(closes, ","), strings.Join(vols, ","))
}

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func TestFetchBarsParsesChart(t *testing.T) {
	ts := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v8/finance/chart/ACME.NS")
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(chartJSON("ACME.NS", []int64{ts})))
	}))
	defer srv.Close()

	md := New(srv.URL, testLog(t), WithRateLimit(100, 100))
	bars, err := md.FetchBars(context.Background(),
		[]string{"ACME.NS"},
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
		"1d",
	)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	b := bars[0]
	assert.Equal(t, "ACME.NS", b.Ticker)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), b.Day)
	assert.Equal(t, 100.0, b.Open)
	assert.Equal(t, 111.0, b.High)
	assert.Equal(t, 110.0, b.Close)
	assert.InDelta(t, 10.0, b.ChangePct, 0.001)
}

func TestFetchBarsSkipsFailedTicker(t *testing.T) {
	ts := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "BAD.NS") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(chartJSON("ACME.NS", []int64{ts})))
	}))
	defer srv.Close()

	md := New(srv.URL, testLog(t), WithRateLimit(100, 100), WithRetries(0, time.Millisecond))
	bars, err := md.FetchBars(context.Background(),
		[]string{"ACME.NS", "BAD.NS"},
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
		"1d",
	)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "ACME.NS", bars[0].Ticker)
}

func TestFetchBarsAllFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	md := New(srv.URL, testLog(t), WithRateLimit(100, 100), WithRetries(0, time.Millisecond))
	_, err := md.FetchBars(context.Background(),
		[]string{"A.NS", "B.NS"},
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
		"1d",
	)
	assert.Error(t, err)
}

func TestFetchBarsRetriesTransientFailure(t *testing.T) {
	ts := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC).Unix()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "throttled", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(chartJSON("ACME.NS", []int64{ts})))
	}))
	defer srv.Close()

	md := New(srv.URL, testLog(t), WithRateLimit(100, 100), WithRetries(2, time.Millisecond))
	bars, err := md.FetchBars(context.Background(),
		[]string{"ACME.NS"},
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
		"1d",
	)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

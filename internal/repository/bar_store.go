package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SwingPull/internal/domain/models"
	domrepo "SwingPull/internal/domain/repository"
	pkgch "SwingPull/pkg/clickhouse"
	applogger "SwingPull/pkg/logger"
	"SwingPull/pkg/util"
)

const barInsertChunk = 2000

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHBarStore creates a ClickHouse bar store.
func NewCHBarStore(ch *pkgch.Client, table string) domrepo.BarStore {
	return &CHBarStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHBarStore) UpsertBars(ctx context.Context, bars []models.DayBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	written := 0
	for start := 0; start < len(bars); start += barInsertChunk {
		end := start + barInsertChunk
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*10)
		for _, b := range bars[start:end] {
			if b.Ticker == "" || b.Day.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				b.Ticker,
				b.Day,
				b.Interval,
				b.Open,
				b.High,
				b.Low,
				b.Close,
				b.Volume,
				b.ChangePct,
				b.IngestedAt,
			)
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf(
			"INSERT INTO %s (ticker, day, interval, open, high, low, close, volume, change_pct, ingested_at) VALUES %s",
			s.table, strings.Join(values, ","),
		)
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse bars insert error", applogger.Error(err))
			}
			return written, fmt.Errorf("insert bars: %w", err)
		}
		written += len(values)
	}
	return written, nil
}

func (s *CHBarStore) BarsForDate(ctx context.Context, day time.Time, interval string) ([]models.DayBar, error) {
	q := fmt.Sprintf(`
        SELECT ticker, day, interval, open, high, low, close, volume, change_pct, ingested_at
        FROM %s FINAL
        WHERE day = ? AND interval = ?
        ORDER BY ticker ASC
    `, s.table)

	rows, err := s.db.QueryContext(ctx, q, util.Day(day), interval)
	if err != nil {
		return nil, fmt.Errorf("bars for date: %w", err)
	}
	defer rows.Close()

	out := make([]models.DayBar, 0, 256)
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *CHBarStore) Bar(ctx context.Context, ticker string, day time.Time, interval string) (models.DayBar, bool, error) {
	q := fmt.Sprintf(`
        SELECT ticker, day, interval, open, high, low, close, volume, change_pct, ingested_at
        FROM %s FINAL
        WHERE ticker = ? AND day = ? AND interval = ?
        LIMIT 1
    `, s.table)

	rows, err := s.db.QueryContext(ctx, q, ticker, util.Day(day), interval)
	if err != nil {
		return models.DayBar{}, false, fmt.Errorf("get bar: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return models.DayBar{}, false, rows.Err()
	}
	b, err := scanBar(rows)
	if err != nil {
		return models.DayBar{}, false, err
	}
	return b, true, rows.Err()
}

func (s *CHBarStore) TradingDates(ctx context.Context, from, to time.Time, interval string) ([]time.Time, error) {
	q := fmt.Sprintf(`
        SELECT DISTINCT day
        FROM %s
        WHERE day >= ? AND day <= ? AND interval = ?
        ORDER BY day ASC
    `, s.table)

	rows, err := s.db.QueryContext(ctx, q, util.Day(from), util.Day(to), interval)
	if err != nil {
		return nil, fmt.Errorf("trading dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan trading date: %w", err)
		}
		out = append(out, util.Day(d))
	}
	return out, rows.Err()
}

func (s *CHBarStore) CountForDate(ctx context.Context, day time.Time, interval string) (int, error) {
	q := fmt.Sprintf("SELECT count(DISTINCT ticker) FROM %s WHERE day = ? AND interval = ?", s.table)

	var n int
	if err := s.db.QueryRowContext(ctx, q, util.Day(day), interval).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bars: %w", err)
	}
	return n, nil
}

func (s *CHBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBar(rows rowScanner) (models.DayBar, error) {
	var b models.DayBar
	if err := rows.Scan(
		&b.Ticker, &b.Day, &b.Interval,
		&b.Open, &b.High, &b.Low, &b.Close,
		&b.Volume, &b.ChangePct, &b.IngestedAt,
	); err != nil {
		return models.DayBar{}, fmt.Errorf("scan bar: %w", err)
	}
	b.Day = util.Day(b.Day)
	return b, nil
}

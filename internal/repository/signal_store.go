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

// CHSignalStore implements SignalStore backed by ClickHouse.
type CHSignalStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHSignalStore creates a ClickHouse signal store.
func NewCHSignalStore(ch *pkgch.Client, table string) domrepo.SignalStore {
	return &CHSignalStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHSignalStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHSignalStore) UpsertSignals(ctx context.Context, signals []models.ImpulseSignal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}

	values := make([]string, 0, len(signals))
	args := make([]interface{}, 0, len(signals)*8)
	for _, sig := range signals {
		if sig.Ticker == "" || sig.TradeDate.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			sig.Ticker,
			sig.TradeDate,
			sig.Interval,
			sig.Open,
			sig.Close,
			sig.ChangePct,
			string(sig.Direction),
			sig.DetectedAt,
		)
	}
	if len(values) == 0 {
		return 0, nil
	}

	q := fmt.Sprintf(
		"INSERT INTO %s (ticker, trade_date, interval, open, close, change_pct, direction, detected_at) VALUES %s",
		s.table, strings.Join(values, ","),
	)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse signals insert error", applogger.Error(err))
		}
		return 0, fmt.Errorf("insert signals: %w", err)
	}
	return len(values), nil
}

func (s *CHSignalStore) SignalsInWindow(ctx context.Context, from, to time.Time, interval string) ([]models.ImpulseSignal, error) {
	q := fmt.Sprintf(`
        SELECT ticker, trade_date, interval, open, close, change_pct, direction, detected_at
        FROM %s FINAL
        WHERE trade_date >= ? AND trade_date <= ? AND interval = ?
        ORDER BY trade_date ASC, ticker ASC
    `, s.table)

	rows, err := s.db.QueryContext(ctx, q, util.Day(from), util.Day(to), interval)
	if err != nil {
		return nil, fmt.Errorf("signals in window: %w", err)
	}
	defer rows.Close()

	out := make([]models.ImpulseSignal, 0, 64)
	for rows.Next() {
		var sig models.ImpulseSignal
		var dir string
		if err := rows.Scan(
			&sig.Ticker, &sig.TradeDate, &sig.Interval,
			&sig.Open, &sig.Close, &sig.ChangePct,
			&dir, &sig.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.TradeDate = util.Day(sig.TradeDate)
		sig.Direction = models.Direction(dir)
		out = append(out, sig)
	}
	return out, rows.Err()
}

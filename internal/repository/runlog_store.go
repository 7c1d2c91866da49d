package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SwingPull/internal/domain/models"
	domrepo "SwingPull/internal/domain/repository"
	pkgch "SwingPull/pkg/clickhouse"
	"SwingPull/pkg/util"
)

// CHRunLogStore implements RunLogStore backed by ClickHouse.
type CHRunLogStore struct {
	db    *sql.DB
	table string
}

// NewCHRunLogStore creates a ClickHouse run-log store.
func NewCHRunLogStore(ch *pkgch.Client, table string) domrepo.RunLogStore {
	return &CHRunLogStore{db: ch.DB(), table: table}
}

func (s *CHRunLogStore) Record(ctx context.Context, run models.RunLog) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (run_date, status, tickers_processed, bars_written, impulses_found, ran_at, error) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.table,
	)
	_, err := s.db.ExecContext(ctx, q,
		util.Day(run.RunDate),
		run.Status,
		run.TickersProcessed,
		run.BarsWritten,
		run.ImpulsesFound,
		run.RanAt,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *CHRunLogStore) LastSuccess(ctx context.Context) (time.Time, bool, error) {
	q := fmt.Sprintf("SELECT max(run_date) FROM %s FINAL WHERE status = 'success'", s.table)

	var d time.Time
	if err := s.db.QueryRowContext(ctx, q).Scan(&d); err != nil {
		return time.Time{}, false, fmt.Errorf("last success: %w", err)
	}
	// ClickHouse max() over an empty set yields the zero Date.
	if d.Year() <= 1970 {
		return time.Time{}, false, nil
	}
	return util.Day(d), true, nil
}

func (s *CHRunLogStore) CompletedDates(ctx context.Context, from, to time.Time) (map[time.Time]bool, error) {
	q := fmt.Sprintf(`
        SELECT DISTINCT run_date
        FROM %s FINAL
        WHERE run_date >= ? AND run_date <= ? AND status = 'success'
    `, s.table)

	rows, err := s.db.QueryContext(ctx, q, util.Day(from), util.Day(to))
	if err != nil {
		return nil, fmt.Errorf("completed dates: %w", err)
	}
	defer rows.Close()

	out := make(map[time.Time]bool)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan run date: %w", err)
		}
		out[util.Day(d)] = true
	}
	return out, rows.Err()
}

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

// CHSnapshotStore implements SnapshotStore backed by ClickHouse. Snapshots
// are write-once per (ticker, snapshot date): Append reads the keys already
// stored for the date and inserts only the missing rows, so re-running a
// date never revises history.
type CHSnapshotStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHSnapshotStore creates a ClickHouse snapshot store.
func NewCHSnapshotStore(ch *pkgch.Client, table string) domrepo.SnapshotStore {
	return &CHSnapshotStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHSnapshotStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHSnapshotStore) Append(ctx context.Context, snapshots []models.FunnelSnapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	// All snapshots in one Append share a snapshot date; group by date to
	// stay correct if a caller ever mixes dates.
	byDate := make(map[time.Time][]models.FunnelSnapshot)
	for _, snap := range snapshots {
		d := util.Day(snap.SnapshotDate)
		byDate[d] = append(byDate[d], snap)
	}

	written := 0
	for day, snaps := range byDate {
		n, err := s.appendForDate(ctx, day, snaps)
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (s *CHSnapshotStore) appendForDate(ctx context.Context, day time.Time, snapshots []models.FunnelSnapshot) (int, error) {
	existing, err := s.existingTickers(ctx, day)
	if err != nil {
		return 0, err
	}

	values := make([]string, 0, len(snapshots))
	args := make([]interface{}, 0, len(snapshots)*8)
	seen := make(map[string]bool, len(snapshots))
	for _, snap := range snapshots {
		if snap.Ticker == "" || existing[snap.Ticker] || seen[snap.Ticker] {
			continue
		}
		seen[snap.Ticker] = true
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			snap.Ticker,
			day,
			util.Day(snap.ImpulseDate),
			string(snap.State),
			snap.StableDays,
			snap.AnchorHigh,
			snap.AnchorVolume,
			snap.FailureReason,
		)
	}
	if len(values) == 0 {
		return 0, nil
	}

	q := fmt.Sprintf(
		"INSERT INTO %s (ticker, snapshot_date, impulse_date, state, stable_days, anchor_high, anchor_volume, failure_reason) VALUES %s",
		s.table, strings.Join(values, ","),
	)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse snapshots insert error",
				applogger.Date("snapshot_date", day),
				applogger.Error(err),
			)
		}
		return 0, fmt.Errorf("insert snapshots: %w", err)
	}
	return len(values), nil
}

func (s *CHSnapshotStore) existingTickers(ctx context.Context, day time.Time) (map[string]bool, error) {
	q := fmt.Sprintf("SELECT DISTINCT ticker FROM %s WHERE snapshot_date = ?", s.table)

	rows, err := s.db.QueryContext(ctx, q, day)
	if err != nil {
		return nil, fmt.Errorf("existing snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan snapshot ticker: %w", err)
		}
		out[t] = true
	}
	return out, rows.Err()
}

func (s *CHSnapshotStore) ForDate(ctx context.Context, day time.Time) ([]models.FunnelSnapshot, error) {
	q := fmt.Sprintf(`
        SELECT ticker, snapshot_date, impulse_date, state, stable_days, anchor_high, anchor_volume, failure_reason
        FROM %s
        WHERE snapshot_date = ?
        ORDER BY ticker ASC
    `, s.table)

	rows, err := s.db.QueryContext(ctx, q, util.Day(day))
	if err != nil {
		return nil, fmt.Errorf("snapshots for date: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (s *CHSnapshotStore) History(ctx context.Context, ticker string, limit int) ([]models.FunnelSnapshot, error) {
	q := fmt.Sprintf(`
        SELECT ticker, snapshot_date, impulse_date, state, stable_days, anchor_high, anchor_volume, failure_reason
        FROM %s
        WHERE ticker = ?
        ORDER BY snapshot_date DESC
        LIMIT ?
    `, s.table)

	rows, err := s.db.QueryContext(ctx, q, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot history: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (s *CHSnapshotStore) RecentFallouts(ctx context.Context, limit int) ([]models.FunnelSnapshot, error) {
	q := fmt.Sprintf(`
        SELECT ticker, snapshot_date, impulse_date, state, stable_days, anchor_high, anchor_volume, failure_reason
        FROM %s
        WHERE state = ?
        ORDER BY snapshot_date DESC, ticker ASC
        LIMIT ?
    `, s.table)

	rows, err := s.db.QueryContext(ctx, q, string(models.StateFallout), limit)
	if err != nil {
		return nil, fmt.Errorf("recent fallouts: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func scanSnapshots(rows *sql.Rows) ([]models.FunnelSnapshot, error) {
	out := make([]models.FunnelSnapshot, 0, 64)
	for rows.Next() {
		var snap models.FunnelSnapshot
		var state string
		if err := rows.Scan(
			&snap.Ticker, &snap.SnapshotDate, &snap.ImpulseDate,
			&state, &snap.StableDays, &snap.AnchorHigh,
			&snap.AnchorVolume, &snap.FailureReason,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.SnapshotDate = util.Day(snap.SnapshotDate)
		snap.ImpulseDate = util.Day(snap.ImpulseDate)
		snap.State = models.State(state)
		out = append(out, snap)
	}
	return out, rows.Err()
}

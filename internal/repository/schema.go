package repository

// SchemaStatements returns idempotent DDL for all swing tables. Bars and
// signals use ReplacingMergeTree so re-ingesting a date collapses to the
// newest row; snapshots use plain MergeTree because the append-if-absent
// guard in CHSnapshotStore keeps them write-once.
func SchemaStatements(database string) []string {
	return []string{
		`CREATE DATABASE IF NOT EXISTS ` + database,

		`CREATE TABLE IF NOT EXISTS ` + database + `.bars (
			ticker      String,
			day         Date,
			interval    LowCardinality(String),
			open        Float64,
			high        Float64,
			low         Float64,
			close       Float64,
			volume      Float64,
			change_pct  Float64,
			ingested_at DateTime
		) ENGINE = ReplacingMergeTree(ingested_at)
		PARTITION BY toYYYYMM(day)
		ORDER BY (ticker, day, interval)`,

		`CREATE TABLE IF NOT EXISTS ` + database + `.impulse_signals (
			ticker      String,
			trade_date  Date,
			interval    LowCardinality(String),
			open        Float64,
			close       Float64,
			change_pct  Float64,
			direction   LowCardinality(String),
			detected_at DateTime
		) ENGINE = ReplacingMergeTree(detected_at)
		PARTITION BY toYYYYMM(trade_date)
		ORDER BY (ticker, trade_date, interval)`,

		`CREATE TABLE IF NOT EXISTS ` + database + `.funnel_snapshots (
			ticker         String,
			snapshot_date  Date,
			impulse_date   Date,
			state          LowCardinality(String),
			stable_days    Int32,
			anchor_high    Float64,
			anchor_volume  Float64,
			failure_reason String
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(snapshot_date)
		ORDER BY (snapshot_date, ticker)`,

		`CREATE TABLE IF NOT EXISTS ` + database + `.run_log (
			run_date          Date,
			status            LowCardinality(String),
			tickers_processed Int32,
			bars_written      Int32,
			impulses_found    Int32,
			ran_at            DateTime,
			error             String
		) ENGINE = ReplacingMergeTree(ran_at)
		ORDER BY run_date`,
	}
}

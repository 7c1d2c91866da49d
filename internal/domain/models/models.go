package models

import "time"

// State is the funnel bucket a candidate sits in on a given trading day.
type State string

const (
	StateImpulse       State = "impulse"       // day 0 — just hit the threshold
	StateConsolidating State = "consolidating" // stable, accumulating inside the window
	StateWatchlist     State = "watchlist"     // window completed — ready for entry
	StateFallout       State = "fallout"       // broke a condition, out of the funnel
)

// Direction of an impulse move. Only BULL signals are emitted today; the
// BEAR variant exists so downward detection can be added without a schema
// change.
type Direction string

const (
	DirectionBull Direction = "BULL"
	DirectionBear Direction = "BEAR"
)

// DayBar is one ticker's OHLCV for a single trading day. Bars are supplied
// by the market-data provider and are read-only once ingested.
type DayBar struct {
	Ticker     string
	Day        time.Time // UTC midnight
	Interval   string
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	ChangePct  float64 // open -> close, percent
	IngestedAt time.Time
}

// ImpulseSignal records a stock that moved at least the configured
// threshold percent on a given date. Immutable after detection.
type ImpulseSignal struct {
	Ticker     string
	TradeDate  time.Time
	Open       float64
	Close      float64
	ChangePct  float64
	Direction  Direction
	Interval   string
	DetectedAt time.Time
}

// FunnelSnapshot is the computed state of one candidate on one trading
// date. One row per (ticker, snapshot date), append-only: rows are written
// at most once and never revised, so re-processing any date in any order
// leaves the stored history identical.
type FunnelSnapshot struct {
	Ticker        string    `json:"ticker"`
	SnapshotDate  time.Time `json:"snapshot_date"`
	ImpulseDate   time.Time `json:"impulse_date"`
	State         State     `json:"state"`
	StableDays    int       `json:"stable_days"`
	AnchorHigh    float64   `json:"anchor_high"`   // trigger-day high, the stability anchor
	AnchorVolume  float64   `json:"anchor_volume"` // trigger-day volume, baseline for volume checks
	FailureReason string    `json:"failure_reason,omitempty"`
}

// RunLog tracks each pipeline run so missed days can be caught up.
type RunLog struct {
	RunDate          time.Time
	Status           string // "success" or "failed"
	TickersProcessed int
	BarsWritten      int
	ImpulsesFound    int
	RanAt            time.Time
	Error            string
}

// FunnelEvent is published to Kafka after a date is processed. One event
// per newly observed impulse or watchlist graduation.
type FunnelEvent struct {
	Type         string    `json:"type"` // "impulse" | "watchlist" | "fallout"
	Ticker       string    `json:"ticker"`
	SnapshotDate string    `json:"snapshot_date"`
	ImpulseDate  string    `json:"impulse_date"`
	State        State     `json:"state"`
	StableDays   int       `json:"stable_days"`
	AnchorHigh   float64   `json:"anchor_high"`
	Reason       string    `json:"reason,omitempty"`
	EmittedAt    time.Time `json:"emitted_at"`
}

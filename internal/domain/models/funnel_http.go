package models

// Requests for the dashboard HTTP endpoints. Defined in domain for
// consistency and reuse.

type FunnelRequest struct {
	Date  string `query:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
	State string `query:"state" json:"state" validate:"omitempty,oneof=impulse consolidating watchlist fallout"`
}

type WatchlistRequest struct {
	Date string `query:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type HistoryRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"90" validate:"gte=1,lte=1000"`
}

type FalloutsRequest struct {
	Limit int `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=200"`
}

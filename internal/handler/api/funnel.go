package api

import (
	"context"
	"time"

	"SwingPull/internal/domain/models"
	drepo "SwingPull/internal/domain/repository"
	"SwingPull/internal/realtime"
	"SwingPull/pkg/cache"
	xhttp "SwingPull/pkg/http"
	xlogger "SwingPull/pkg/logger"
	"SwingPull/pkg/util"

	"github.com/labstack/echo/v4"
)

const statsCacheTTL = 30 * time.Second

// FunnelHandler serves the dashboard read API over the snapshot store.
type FunnelHandler struct {
	logger    *xlogger.Logger
	snapshots drepo.SnapshotStore
	bars      drepo.BarStore
	runs      drepo.RunLogStore
	cache     cache.Service
	broker    *realtime.Broker
}

// NewFunnelHandler creates the dashboard handler.
func NewFunnelHandler(
	logger *xlogger.Logger,
	snapshots drepo.SnapshotStore,
	bars drepo.BarStore,
	runs drepo.RunLogStore,
	c cache.Service,
	broker *realtime.Broker,
) *FunnelHandler {
	return &FunnelHandler{
		logger:    logger,
		snapshots: snapshots,
		bars:      bars,
		runs:      runs,
		cache:     c,
		broker:    broker,
	}
}

func (h *FunnelHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	g := e.Group("/api")
	g.GET("/funnel", h.Funnel)
	g.GET("/watchlist", h.Watchlist)
	g.GET("/history", h.History)
	g.GET("/fallouts", h.Fallouts)
	g.GET("/stats", h.Stats)
	g.GET("/live", h.Live)
}

// Funnel returns every snapshot for a date, optionally filtered by state.
func (h *FunnelHandler) Funnel(c echo.Context) error {
	req := &models.FunnelRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	day := h.resolveDate(c.Request().Context(), req.Date)

	snaps, err := h.snapshots.ForDate(c.Request().Context(), day)
	if err != nil {
		h.logger.Error("funnel query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if req.State != "" {
		filtered := snaps[:0]
		for _, s := range snaps {
			if s.State == models.State(req.State) {
				filtered = append(filtered, s)
			}
		}
		snaps = filtered
	}
	return xhttp.ListResponse(c, snaps, int64(len(snaps)))
}

// Watchlist returns only the graduated candidates for a date.
func (h *FunnelHandler) Watchlist(c echo.Context) error {
	req := &models.WatchlistRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	day := h.resolveDate(c.Request().Context(), req.Date)

	snaps, err := h.snapshots.ForDate(c.Request().Context(), day)
	if err != nil {
		h.logger.Error("watchlist query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	out := make([]models.FunnelSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.State == models.StateWatchlist {
			out = append(out, s)
		}
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

// History returns one ticker's snapshot trail, newest first.
func (h *FunnelHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snaps, err := h.snapshots.History(c.Request().Context(), req.Ticker, req.Limit)
	if err != nil {
		h.logger.Error("history query error",
			xlogger.String("ticker", req.Ticker),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, err)
	}
	if len(snaps) == 0 {
		return xhttp.NotFoundResponse(c, "no snapshots for "+req.Ticker)
	}
	return xhttp.ListResponse(c, snaps, int64(len(snaps)))
}

// Fallouts returns the most recent ejections with their failure reasons.
func (h *FunnelHandler) Fallouts(c echo.Context) error {
	req := &models.FalloutsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snaps, err := h.snapshots.RecentFallouts(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("fallouts query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, snaps, int64(len(snaps)))
}

type funnelStats struct {
	Date          string         `json:"date"`
	Counts        map[string]int `json:"counts"`
	Total         int            `json:"total"`
	LastRun       string         `json:"last_run,omitempty"`
	LiveClients   int            `json:"live_clients"`
	ConversionPct float64        `json:"conversion_pct"`
}

// Stats returns per-state counts for the latest processed date. Cached
// briefly since dashboards poll it.
func (h *FunnelHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	day := h.resolveDate(ctx, "")
	cacheKey := "stats:" + day.Format("2006-01-02")

	var cached funnelStats
	if err := h.cache.Get(ctx, cacheKey, &cached); err == nil && cached.Total > 0 {
		cached.LiveClients = h.broker.ClientCount()
		return xhttp.SuccessResponse(c, cached)
	}

	snaps, err := h.snapshots.ForDate(ctx, day)
	if err != nil {
		h.logger.Error("stats query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	stats := funnelStats{
		Date:        day.Format("2006-01-02"),
		Counts:      make(map[string]int, 4),
		Total:       len(snaps),
		LiveClients: h.broker.ClientCount(),
	}
	for _, s := range snaps {
		stats.Counts[string(s.State)]++
	}
	if n := stats.Counts[string(models.StateWatchlist)]; stats.Total > 0 {
		stats.ConversionPct = float64(n) / float64(stats.Total) * 100
	}
	if last, ok, err := h.runs.LastSuccess(ctx); err == nil && ok {
		stats.LastRun = last.Format("2006-01-02")
	}

	if err := h.cache.Set(ctx, cacheKey, stats, statsCacheTTL); err != nil {
		h.logger.Warn("stats cache write failed", xlogger.Error(err))
	}
	return xhttp.SuccessResponse(c, stats)
}

// Live upgrades to WebSocket and streams funnel events.
func (h *FunnelHandler) Live(c echo.Context) error {
	return h.broker.Serve(c.Response(), c.Request())
}

// Healthz reports storage health.
func (h *FunnelHandler) Healthz(c echo.Context) error {
	if err := h.bars.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("storage unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// resolveDate parses an explicit date or falls back to the last successful
// run, then to today.
func (h *FunnelHandler) resolveDate(ctx context.Context, raw string) time.Time {
	if raw != "" {
		if d, ok := util.ParseDay(raw); ok {
			return d
		}
	}
	if last, ok, err := h.runs.LastSuccess(ctx); err == nil && ok {
		return last
	}
	return util.Day(time.Now().UTC())
}

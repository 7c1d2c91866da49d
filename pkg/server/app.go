package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	drepo "SwingPull/internal/domain/repository"
	"SwingPull/internal/realtime"
	"SwingPull/internal/usecase"
	"SwingPull/pkg/cache"
	pkgch "SwingPull/pkg/clickhouse"
	"SwingPull/pkg/config"
	xhttp "SwingPull/pkg/http"
	applogger "SwingPull/pkg/logger"
	"SwingPull/pkg/util"
)

// serveCatchUpInterval is how often serve mode looks for unprocessed dates.
const serveCatchUpInterval = time.Hour

// App encapsulates the application lifecycle across all run modes.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	pipeline   *usecase.Pipeline
	backtester *usecase.Backtester
	trainer    *usecase.Trainer
	handler    xhttp.Handler
	broker     *realtime.Broker
	publisher  drepo.Publisher
	chClient   *pkgch.Client
	cache      cache.Service
	httpServer *xhttp.Server
}

// New creates an App with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	pipeline *usecase.Pipeline,
	backtester *usecase.Backtester,
	trainer *usecase.Trainer,
	handler xhttp.Handler,
	broker *realtime.Broker,
	publisher drepo.Publisher,
	chClient *pkgch.Client,
	c cache.Service,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		pipeline:   pipeline,
		backtester: backtester,
		trainer:    trainer,
		handler:    handler,
		broker:     broker,
		publisher:  publisher,
		chClient:   chClient,
		cache:      c,
	}
}

// RunPipeline processes [from, to] once and exits. Empty from resumes from
// the last successful run; empty to ends today.
func (a *App) RunPipeline(ctx context.Context, from, to string, force bool) error {
	defer a.close()

	fromDay, _ := util.ParseDay(from)
	toDay, _ := util.ParseDay(to)

	all, err := a.pipeline.Run(ctx, fromDay, toDay, force)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	processed := 0
	for _, stats := range all {
		if !stats.Skipped {
			processed++
		}
	}
	a.log.Info("pipeline run finished",
		applogger.Int("dates", len(all)),
		applogger.Int("processed", processed),
	)
	return nil
}

// RunBacktest replays the funnel over stored history and writes the report
// to stdout as JSON.
func (a *App) RunBacktest(ctx context.Context, from, to string) error {
	defer a.close()

	params, err := a.backtestParams(from, to)
	if err != nil {
		return err
	}

	report, err := a.backtester.Run(ctx, params)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// RunTrainer sweeps the parameter grid and writes ranked results to stdout
// as JSON.
func (a *App) RunTrainer(ctx context.Context, from, to string, grid usecase.TrainerGrid) error {
	defer a.close()

	params, err := a.backtestParams(from, to)
	if err != nil {
		return err
	}

	results, err := a.trainer.Run(ctx, params, grid)
	if err != nil {
		return fmt.Errorf("trainer: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// Serve runs the dashboard API with the live WebSocket feed and a
// background catch-up loop, blocking until interrupted.
func (a *App) Serve(ctx context.Context) error {
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.broker.Run(ctx)

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogging(a.log, time.Second),
	)
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	a.log.Info("dashboard serving", applogger.Int("port", a.cfg.Server.Port))

	go a.catchUpLoop(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		a.log.Info("shutdown signal received")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return a.httpServer.Stop(shutdownCtx)
}

// catchUpLoop keeps stored snapshots current while serving and pushes run
// summaries to connected dashboards.
func (a *App) catchUpLoop(ctx context.Context) {
	run := func() {
		all, err := a.pipeline.Run(ctx, time.Time{}, time.Time{}, false)
		if err != nil {
			a.log.Error("catch-up run failed", applogger.Error(err))
			return
		}
		for _, stats := range all {
			if stats.Skipped {
				continue
			}
			a.broker.Broadcast("run", stats)
		}
	}

	run()
	ticker := time.NewTicker(serveCatchUpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (a *App) backtestParams(from, to string) (usecase.BacktestParams, error) {
	fromDay, ok := util.ParseDay(from)
	if !ok {
		return usecase.BacktestParams{}, fmt.Errorf("from date required (YYYY-MM-DD)")
	}
	toDay, ok := util.ParseDay(to)
	if !ok {
		toDay = util.Day(time.Now().UTC())
	}
	return usecase.BacktestParams{
		From:       fromDay,
		To:         toDay,
		Threshold:  a.cfg.Funnel.Threshold,
		WindowDays: a.cfg.Funnel.WindowDays,
		MaxUpPct:   a.cfg.Funnel.MaxUpPct,
		MaxDownPct: a.cfg.Funnel.MaxDownPct,
		VolumeHard: a.cfg.Funnel.VolumeHard,
		Interval:   a.cfg.Funnel.Interval,
	}, nil
}

func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
}

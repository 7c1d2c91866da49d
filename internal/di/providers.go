package di

import (
	"context"
	"fmt"
	"time"

	drepo "SwingPull/internal/domain/repository"
	"SwingPull/internal/funnel"
	"SwingPull/internal/handler/api"
	"SwingPull/internal/realtime"
	internalrepo "SwingPull/internal/repository"
	"SwingPull/internal/service/marketdata"
	"SwingPull/internal/service/universe"
	"SwingPull/internal/usecase"
	"SwingPull/pkg/cache"
	pkgch "SwingPull/pkg/clickhouse"
	"SwingPull/pkg/config"
	xhttp "SwingPull/pkg/http"
	pkgkafka "SwingPull/pkg/kafka"
	applogger "SwingPull/pkg/logger"
	"SwingPull/pkg/metrics"
	"SwingPull/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the
// schema exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCache creates the cache service: Redis when enabled, in-process
// memory otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithPassword(cfg.Redis.Password),
		cache.WithDB(cfg.Redis.DB),
		cache.WithPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideBroker creates the live dashboard broker.
func ProvideBroker(log *applogger.Logger) *realtime.Broker {
	return realtime.NewBroker(log)
}

// ProvidePublisher creates the funnel-event publisher: Kafka plus the live
// broker when Kafka is enabled, broker only otherwise.
func ProvidePublisher(cfg *config.Config, broker *realtime.Broker) (drepo.Publisher, error) {
	live := realtime.NewEventSink(broker)
	if !cfg.Kafka.Enabled {
		return internalrepo.NewMultiPublisher(internalrepo.NopPublisher{}, live), nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewMultiPublisher(
		internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic),
		live,
	), nil
}

// ProvideBarStore creates the ClickHouse bar store.
func ProvideBarStore(ch *pkgch.Client, cfg *config.Config, log *applogger.Logger) drepo.BarStore {
	s := internalrepo.NewCHBarStore(ch, cfg.ClickHouse.Database+".bars")
	s.(*internalrepo.CHBarStore).SetLogger(log.Component("bar_store"))
	return s
}

// ProvideSignalStore creates the ClickHouse signal store.
func ProvideSignalStore(ch *pkgch.Client, cfg *config.Config, log *applogger.Logger) drepo.SignalStore {
	s := internalrepo.NewCHSignalStore(ch, cfg.ClickHouse.Database+".impulse_signals")
	s.(*internalrepo.CHSignalStore).SetLogger(log.Component("signal_store"))
	return s
}

// ProvideSnapshotStore creates the ClickHouse snapshot store.
func ProvideSnapshotStore(ch *pkgch.Client, cfg *config.Config, log *applogger.Logger) drepo.SnapshotStore {
	s := internalrepo.NewCHSnapshotStore(ch, cfg.ClickHouse.Database+".funnel_snapshots")
	s.(*internalrepo.CHSnapshotStore).SetLogger(log.Component("snapshot_store"))
	return s
}

// ProvideRunLogStore creates the ClickHouse run-log store.
func ProvideRunLogStore(ch *pkgch.Client, cfg *config.Config) drepo.RunLogStore {
	return internalrepo.NewCHRunLogStore(ch, cfg.ClickHouse.Database+".run_log")
}

// ProvideMarketData creates the rate-limited market-data client.
func ProvideMarketData(cfg *config.Config, log *applogger.Logger) drepo.MarketData {
	return marketdata.New(cfg.MarketData.BaseURL, log.Component("marketdata"),
		marketdata.WithRateLimit(cfg.MarketData.MaxRPS, int(cfg.MarketData.BurstSize)),
		marketdata.WithRetries(cfg.MarketData.Retries, cfg.MarketData.RetryBackoff),
		marketdata.WithTimeout(cfg.MarketData.Timeout),
	)
}

// ProvideUniverse creates the cached universe service.
func ProvideUniverse(cfg *config.Config, c cache.Service, log *applogger.Logger) drepo.Universe {
	return universe.New(cfg.Universe.Index, c, log.Component("universe"),
		universe.WithWatchlist(cfg.Universe.Watchlist),
		universe.WithHTTPBase(cfg.Universe.HTTPBase),
		universe.WithHolidayURL(cfg.Universe.HolidayURL),
		universe.WithCacheTTL(cfg.Universe.CacheTTL),
	)
}

// ProvideEngine creates the funnel engine with the configured conditions.
func ProvideEngine(bars drepo.BarStore, cfg *config.Config) *funnel.Engine {
	conditions := []funnel.Condition{
		funnel.Stability{MaxUpPct: cfg.Funnel.MaxUpPct, MaxDownPct: cfg.Funnel.MaxDownPct},
		funnel.Volume{Hard: cfg.Funnel.VolumeHard},
	}
	return funnel.NewEngine(bars, conditions, cfg.Funnel.WindowDays, cfg.Funnel.Interval)
}

// ProvidePipeline creates the daily pipeline usecase.
func ProvidePipeline(
	uni drepo.Universe,
	market drepo.MarketData,
	bars drepo.BarStore,
	signals drepo.SignalStore,
	snapshots drepo.SnapshotStore,
	runs drepo.RunLogStore,
	publisher drepo.Publisher,
	m drepo.Metrics,
	engine *funnel.Engine,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.Pipeline {
	return usecase.NewPipeline(
		uni, market, bars, signals, snapshots, runs, publisher, m, engine, log,
		cfg.Funnel.Threshold, cfg.Funnel.WindowDays, cfg.Funnel.Interval,
	)
}

// ProvideBacktester creates the backtest usecase.
func ProvideBacktester(bars drepo.BarStore, log *applogger.Logger) *usecase.Backtester {
	return usecase.NewBacktester(bars, log)
}

// ProvideTrainer creates the trainer usecase.
func ProvideTrainer(bars drepo.BarStore, log *applogger.Logger) *usecase.Trainer {
	return usecase.NewTrainer(bars, log)
}

// ProvideHandler creates the dashboard HTTP handler.
func ProvideHandler(
	log *applogger.Logger,
	snapshots drepo.SnapshotStore,
	bars drepo.BarStore,
	runs drepo.RunLogStore,
	c cache.Service,
	broker *realtime.Broker,
) xhttp.Handler {
	return api.NewFunnelHandler(log, snapshots, bars, runs, c, broker)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	pipeline *usecase.Pipeline,
	backtester *usecase.Backtester,
	trainer *usecase.Trainer,
	handler xhttp.Handler,
	broker *realtime.Broker,
	publisher drepo.Publisher,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	return server.New(cfg, log, pipeline, backtester, trainer, handler, broker, publisher, ch, c)
}

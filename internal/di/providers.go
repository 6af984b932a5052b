package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tickwatch/internal/domain/repository"
	"tickwatch/internal/handler/api"
	"tickwatch/internal/instrument"
	internalrepo "tickwatch/internal/repository"
	"tickwatch/internal/service/smartstream"
	"tickwatch/internal/service/telegram"
	"tickwatch/internal/usecase"
	"tickwatch/pkg/cache"
	pkgch "tickwatch/pkg/clickhouse"
	"tickwatch/pkg/config"
	xhttp "tickwatch/pkg/http"
	pkgkafka "tickwatch/pkg/kafka"
	applogger "tickwatch/pkg/logger"
	"tickwatch/pkg/metrics"
	"tickwatch/pkg/postgres"
	"tickwatch/pkg/server"
)

const signalsTable = "signals"

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache connects to Redis, or keeps state in process when addr is "memory".
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if strings.EqualFold(cfg.Redis.Addr, "memory") {
		return cache.NewMemoryCache(cache.MemoryConfig{}), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

// ProvidePostgresPool opens the pool backing the alert-rule store.
func ProvidePostgresPool(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN,
		postgres.WithMaxConns(cfg.Postgres.MaxConns, cfg.Postgres.MinConns),
		postgres.WithMaxConnLifetime(cfg.Postgres.MaxConnLifetime),
		postgres.WithApplicationName("tickwatch"),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return pool, nil
}

// ProvideClickHouseClient connects and creates the candle and signal tables.
// Returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx, pkgch.Config{
		Host:         cfg.ClickHouse.Host,
		Port:         cfg.ClickHouse.Port,
		Database:     cfg.ClickHouse.Database,
		User:         cfg.ClickHouse.User,
		Password:     cfg.ClickHouse.Password,
		DialTimeout:  cfg.ClickHouse.DialTimeout,
		ReadTimeout:  cfg.ClickHouse.ReadTimeout,
		UseHTTP:      cfg.ClickHouse.UseHTTP,
		AsyncInsert:  cfg.ClickHouse.AsyncInsert,
		WaitForAsync: cfg.ClickHouse.WaitForAsync,
		MaxExecTime:  cfg.ClickHouse.MaxExecutionTime,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database, cfg.Baseline.Table, signalsTable)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Acks:         cfg.Kafka.Acks,
		Compression:  cfg.Kafka.Compression,
		MaxAttempts:  cfg.Kafka.Producer.MaxAttempts,
		WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
		ReadTimeout:  cfg.Kafka.Producer.ReadTimeout,
		BatchSize:    cfg.Kafka.Producer.BatchSize,
		BatchBytes:   cfg.Kafka.Producer.BatchBytes,
		BatchTimeout: cfg.Kafka.Producer.Linger,
		Async:        cfg.Kafka.Producer.Async,
		HashByKey:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher returns nil when there is no producer.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SignalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic)
}

// ProvideKafkaConsumer reads the signal topic into the archive. It needs both
// Kafka and ClickHouse; otherwise nil.
func ProvideKafkaConsumer(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || ch == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cfg.Kafka.Consumer.GroupID,
		WorkerCount: cfg.Kafka.Consumer.Workers,
		BufferSize:  cfg.Kafka.Consumer.BufferSize,
		RetryMax:    cfg.Kafka.Consumer.RetryMax,
		BackoffMin:  cfg.Kafka.Consumer.BackoffMin,
		BackoffMax:  cfg.Kafka.Consumer.BackoffMax,
		DLQTopic:    cfg.Kafka.Consumer.DLQTopic,
		MinBytes:    cfg.Kafka.Consumer.MinBytes,
		MaxBytes:    cfg.Kafka.Consumer.MaxBytes,
	}, l)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideSignalArchiveHandler returns nil when ClickHouse is disabled.
func ProvideSignalArchiveHandler(ch *pkgch.Client, m repository.Metrics, cfg *config.Config) pkgkafka.MessageHandler {
	if ch == nil {
		return nil
	}
	archive := internalrepo.NewCHSignalArchive(ch.DB(), ch.Database()+"."+signalsTable)
	return usecase.NewSignalArchiveHandler(cfg.Kafka.SignalsTopic, archive, m)
}

// ProvideDirectory loads instruments from the configured file, then inline items.
func ProvideDirectory(cfg *config.Config) (*instrument.Directory, error) {
	var entries []instrument.Entry
	if cfg.Instruments.File != "" {
		fromFile, err := instrument.LoadFile(cfg.Instruments.File)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fromFile...)
	}
	for _, it := range cfg.Instruments.Items {
		entries = append(entries, instrument.Entry{Symbol: it.Symbol, Token: it.Token})
	}
	dir, err := instrument.New(entries)
	if err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}
	return dir, nil
}

func ProvideSnapshotStore(c cache.Service) repository.SnapshotStore {
	return internalrepo.NewRedisSnapshotStore(c)
}

// ProvideBaselineStore expires baselines after three refresh periods when this
// process refreshes them; externally written baselines never expire.
func ProvideBaselineStore(c cache.Service, cfg *config.Config) repository.BaselineStore {
	var ttl time.Duration
	if cfg.ClickHouse.Enabled {
		ttl = 3 * cfg.Baseline.Interval
	}
	return internalrepo.NewRedisBaselineStore(c, ttl)
}

func ProvideCooldownStore(c cache.Service) repository.CooldownStore {
	return internalrepo.NewRedisCooldownStore(c)
}

func ProvideSubscriberStore(c cache.Service) repository.SubscriberStore {
	return internalrepo.NewRedisSubscriberStore(c)
}

func ProvideRuleStore(pool *pgxpool.Pool, l *applogger.Logger) repository.RuleStore {
	return internalrepo.NewPostgresRuleStore(pool, l.With("rule-store"))
}

// ProvideCandleStore returns nil when ClickHouse is disabled.
func ProvideCandleStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.CandleStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHCandleStore(ch.DB(), ch.Database()+"."+cfg.Baseline.Table, l.With("candle-store"))
}

func ProvideNotifier(cfg *config.Config) (repository.Notifier, error) {
	n, err := telegram.New(telegram.Config{
		BaseURL:    cfg.Telegram.BaseURL,
		BotToken:   cfg.Telegram.BotToken,
		Timeout:    cfg.Telegram.Timeout,
		RatePerSec: cfg.Telegram.RatePerSec,
		Burst:      cfg.Telegram.RateBurst,
		Retries:    cfg.Telegram.Retries,
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func ProvideDispatcher(
	subs repository.SubscriberStore,
	cooldowns repository.CooldownStore,
	notifier repository.Notifier,
	publisher repository.SignalPublisher,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.NotificationDispatcher {
	return usecase.NewNotificationDispatcher(subs, cooldowns, notifier, publisher, usecase.DispatcherConfig{
		Workers:           cfg.Dispatcher.Workers,
		QueueSize:         cfg.Dispatcher.QueueSize,
		RecipientCooldown: cfg.Dispatcher.RecipientCooldown,
		DedupTTL:          cfg.Dispatcher.DedupTTL,
		GlobalCategory:    cfg.Dispatcher.GlobalCategory,
		SendTimeout:       cfg.Dispatcher.SendTimeout,
	}, m, l)
}

func ProvideBreakoutDetector(
	baselines repository.BaselineStore,
	cooldowns repository.CooldownStore,
	dispatcher *usecase.NotificationDispatcher,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.BreakoutDetector {
	return usecase.NewBreakoutDetector(baselines, cooldowns, dispatcher, usecase.BreakoutConfig{
		VolumeFactor: cfg.Breakout.VolumeFactor,
		CooldownTTL:  cfg.Breakout.CooldownTTL,
	}, m, l)
}

func ProvideTickIngester(
	dir *instrument.Directory,
	snapshots repository.SnapshotStore,
	detector *usecase.BreakoutDetector,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.TickIngester {
	return usecase.NewTickIngester(dir, snapshots, detector, m, l)
}

// ProvideFeeds creates one SmartStream connection per credential set.
func ProvideFeeds(cfg *config.Config, l *applogger.Logger) []repository.FeedConn {
	feeds := make([]repository.FeedConn, 0, len(cfg.SmartStream.Credentials))
	for i, cred := range cfg.SmartStream.Credentials {
		feeds = append(feeds, smartstream.New(cfg.SmartStream.URL,
			smartstream.Credentials{
				ClientCode: cred.ClientCode,
				APIKey:     cred.APIKey,
				FeedToken:  cred.FeedToken,
				JWTToken:   cred.JWTToken,
			},
			smartstream.WithHeartbeat(cfg.SmartStream.HeartbeatInterval),
			smartstream.WithLogger(l.With(fmt.Sprintf("smartstream-%d", i))),
		))
	}
	return feeds
}

func ProvideConnectionPool(
	cfg *config.Config,
	feeds []repository.FeedConn,
	ingester *usecase.TickIngester,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ConnectionPool {
	return usecase.NewConnectionPool(usecase.PoolConfig{
		MaxTokensPerConn: cfg.SmartStream.MaxTokensPerConn,
		ChunkSize:        cfg.SmartStream.ChunkSize,
		Mode:             cfg.SmartStream.Mode,
		ExchangeType:     cfg.SmartStream.ExchangeType,
		BackoffMin:       cfg.SmartStream.BackoffMin,
		BackoffMax:       cfg.SmartStream.BackoffMax,
	}, feeds, ingester, m, l)
}

func ProvideAlertEvaluator(
	rules repository.RuleStore,
	snapshots repository.SnapshotStore,
	dispatcher *usecase.NotificationDispatcher,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.AlertEvaluator {
	return usecase.NewAlertEvaluator(rules, snapshots, dispatcher, usecase.AlertConfig{
		Interval:     cfg.Alerts.Interval,
		SweepTimeout: cfg.Alerts.SweepTimeout,
	}, m, l)
}

// ProvideBaselineRefresher returns nil without a candle source.
func ProvideBaselineRefresher(
	dir *instrument.Directory,
	candles repository.CandleStore,
	baselines repository.BaselineStore,
	snapshots repository.SnapshotStore,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.BaselineRefresher {
	if candles == nil {
		return nil
	}
	return usecase.NewBaselineRefresher(dir, candles, baselines, snapshots, usecase.BaselineConfig{
		Interval:     cfg.Baseline.Interval,
		Candles:      cfg.Baseline.Candles,
		VolumeWindow: cfg.Baseline.VolumeWindow,
		RSIPeriod:    cfg.Baseline.RSIPeriod,
	}, m, l)
}

func ProvideAdminHandler(
	l *applogger.Logger,
	pool *usecase.ConnectionPool,
	dir *instrument.Directory,
	snapshots repository.SnapshotStore,
	subs repository.SubscriberStore,
) *api.AdminEchoHandler {
	return api.NewAdminEchoHandler(l, pool, dir, snapshots, subs)
}

func ProvideHTTPServer(cfg *config.Config, h *api.AdminEchoHandler, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp assembles the lifecycle. When a producer and a collector topic
// are configured, aggregated error logs are shipped to Kafka.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	dir *instrument.Directory,
	pool *usecase.ConnectionPool,
	dispatcher *usecase.NotificationDispatcher,
	evaluator *usecase.AlertEvaluator,
	refresher *usecase.BaselineRefresher,
	consumer *pkgkafka.Consumer,
	archive pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
	store cache.Service,
	pg *pgxpool.Pool,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
) *server.App {
	var closers []server.NamedCloser
	if producer != nil && cfg.Logging.CollectorTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Logging.CollectorInterval,
			Topic:        cfg.Logging.CollectorTopic,
			Publisher:    producer,
		})
		closers = append(closers, server.NamedCloser{Name: "log collector", Closer: server.CloserFunc(func() error {
			l.RemoveCollector()
			return nil
		})})
	}
	if producer != nil {
		closers = append(closers, server.NamedCloser{Name: "kafka producer", Closer: producer})
	}
	if ch != nil {
		closers = append(closers, server.NamedCloser{Name: "clickhouse", Closer: ch})
	}
	closers = append(closers,
		server.NamedCloser{Name: "postgres", Closer: server.CloserFunc(func() error {
			pg.Close()
			return nil
		})},
		server.NamedCloser{Name: "redis", Closer: store},
	)

	return server.New(cfg, l, server.Components{
		Directory:  dir,
		Pool:       pool,
		Dispatcher: dispatcher,
		Evaluator:  evaluator,
		Refresher:  refresher,
		Consumer:   consumer,
		Archive:    archive,
		HTTP:       httpServer,
		Closers:    closers,
	})
}

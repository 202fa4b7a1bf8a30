package di

import (
	"context"
	"fmt"
	"time"

	"EnviroPulse/internal/domain/repository"
	"EnviroPulse/internal/handler/api"
	"EnviroPulse/internal/handler/ws"
	mid "EnviroPulse/internal/middleware"
	internalrepo "EnviroPulse/internal/repository"
	"EnviroPulse/internal/service/cache"
	"EnviroPulse/internal/service/ratelimit"
	"EnviroPulse/internal/services/bundle"
	"EnviroPulse/internal/services/forecast"
	"EnviroPulse/internal/services/timenorm"
	"EnviroPulse/internal/usecase"
	pkgch "EnviroPulse/pkg/clickhouse"
	"EnviroPulse/pkg/config"
	xhttp "EnviroPulse/pkg/http"
	"EnviroPulse/pkg/http/middleware"
	pkgkafka "EnviroPulse/pkg/kafka"
	applogger "EnviroPulse/pkg/logger"
	"EnviroPulse/pkg/metrics"
	"EnviroPulse/pkg/objectstore"
	"EnviroPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideClickHouseClient creates a ClickHouse client and makes sure the
// readings table exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithConnMaxLifetime(cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := append([]string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database},
		internalrepo.ReadingsSchema(cfg.ReadingsTable())...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideReadingStore creates the ClickHouse readings repository. It serves
// as reading store, history source and query repository.
func ProvideReadingStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) *internalrepo.CHReadingStore {
	s := internalrepo.NewCHReadingStore(ch.DB(), cfg.ReadingsTable(), cfg.Backend.BatchSize)
	s.SetLogger(l.With("clickhouse"))
	return s
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
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
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideReadingPublisher creates the readings topic publisher, or nil
// without a producer.
func ProvideReadingPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ReadingPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.ReadingsTopic)
}

// ProvideForecastPublisher creates the forecast events publisher, or nil
// when events are disabled.
func ProvideForecastPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ForecastPublisher {
	if producer == nil || !cfg.Forecast.PublishEvents {
		return nil
	}
	return internalrepo.NewKafkaForecastPublisher(producer, cfg.Kafka.ForecastTopic)
}

func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l.With("ws"))
}

// ProvideCache creates the shared Redis cache when enabled, an in-process
// cache otherwise.
func ProvideCache(cfg *config.Config) cache.BytesCache {
	if cfg.Redis.Enabled {
		return cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	}
	return cache.NewTTLCache(10000)
}

// ProvideBundleStore selects the local directory or the object store.
func ProvideBundleStore(cfg *config.Config) (repository.BundleStore, error) {
	if cfg.Bundles.Backend == "object" {
		oc := cfg.Bundles.ObjectStore
		client, err := objectstore.New(
			objectstore.WithEndpoint(oc.Endpoint),
			objectstore.WithCredentials(oc.AccessKey, oc.SecretKey),
			objectstore.WithBucket(oc.Bucket),
			objectstore.WithSecure(oc.Secure),
			objectstore.WithMaxObjectBytes(oc.MaxBytes),
		)
		if err != nil {
			return nil, fmt.Errorf("bundle object store: %w", err)
		}
		return internalrepo.NewObjectBundleStore(client, oc.Prefix), nil
	}
	return internalrepo.NewFileBundleStore(cfg.Bundles.Dir), nil
}

func ProvideRegistry(store repository.BundleStore, m repository.Metrics, l *applogger.Logger) *bundle.Registry {
	return bundle.NewRegistry(store, bundle.WithLogger(l.With("bundles")), bundle.WithMetrics(m))
}

func ProvideNormalizer(cfg *config.Config) (*timenorm.Normalizer, error) {
	n, err := timenorm.New(cfg.Forecast.Zone)
	if err != nil {
		return nil, fmt.Errorf("time normalizer: %w", err)
	}
	return n, nil
}

func ProvideForecastService(
	store *internalrepo.CHReadingStore,
	reg *bundle.Registry,
	norm *timenorm.Normalizer,
	cfg *config.Config,
	l *applogger.Logger,
) *forecast.Service {
	return forecast.NewService(store, reg, norm,
		forecast.WithLookback(time.Duration(cfg.Forecast.LookbackHours)*time.Hour),
		forecast.WithHistoryLimit(cfg.Forecast.HistoryLimit),
		forecast.WithLogger(l.With("forecast")),
	)
}

func ProvideSensorsUseCase(store *internalrepo.CHReadingStore) *usecase.SensorsUseCase {
	return usecase.NewSensorsUseCase(store)
}

func ProvideForecastUseCase(
	svc *forecast.Service,
	reg *bundle.Registry,
	sensors *usecase.SensorsUseCase,
	c cache.BytesCache,
	events repository.ForecastPublisher,
	hub *ws.Hub,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.ForecastUseCase {
	return usecase.NewForecastUseCase(svc, reg, sensors,
		usecase.WithForecastCache(c, cfg.Forecast.CacheTTL),
		usecase.WithForecastEvents(events),
		usecase.WithForecastFeed(hub),
		usecase.WithForecastMetrics(m),
		usecase.WithConcurrency(cfg.Forecast.Concurrency),
		usecase.WithForecastLogger(l.With("forecast_usecase")),
	)
}

func ProvideDashboardUseCase(
	store *internalrepo.CHReadingStore,
	norm *timenorm.Normalizer,
	c cache.BytesCache,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.DashboardUseCase {
	return usecase.NewDashboardUseCase(store, norm, c, usecase.DashboardConfig{
		Window:   time.Duration(cfg.Dashboard.WindowHours) * time.Hour,
		RowLimit: cfg.Dashboard.RowLimit,
		CacheTTL: cfg.Dashboard.CacheTTL,
	}, l.With("dashboard"))
}

// ProvideReadingProcessor creates the reading processor use case.
func ProvideReadingProcessor(
	pub repository.ReadingPublisher,
	store *internalrepo.CHReadingStore,
	hub *ws.Hub,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.ReadingProcessor {
	return usecase.NewReadingProcessor(pub, store, hub, m, cfg.Backend.Type)
}

// ProvideIngestPipeline builds the middleware between the ingest API and the
// processor.
func ProvideIngestPipeline(proc *usecase.ReadingProcessor, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *mid.IngestPipeline {
	return mid.NewIngestPipeline(proc, m,
		mid.WithMaxRPS(cfg.Ingest.MaxRPSPerSensor),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
		mid.WithFlush(cfg.Backend.BatchSize, cfg.Backend.BatchTimeout),
		mid.WithPipelineLogger(l.With("ingest")),
	)
}

// ProvideKafkaConsumer creates a Kafka consumer when readings arrive over
// Kafka, nil otherwise.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil, nil
	}
	cl := l.With("kafka_consumer")
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(cl),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook{}, pkgkafka.LoggingHook{L: cl}))
	return consumer, nil
}

// ProvideKafkaReadingsHandler registers handler for the readings topic.
func ProvideKafkaReadingsHandler(store *internalrepo.CHReadingStore, hub *ws.Hub, m repository.Metrics, cfg *config.Config) *usecase.KafkaReadingsHandler {
	return usecase.NewKafkaReadingsHandler(cfg.Kafka.ReadingsTopic, store, hub, m)
}

// ProvideHTTPServer builds the echo server with every route group.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	fuc *usecase.ForecastUseCase,
	duc *usecase.DashboardUseCase,
	suc *usecase.SensorsUseCase,
	pipe *mid.IngestPipeline,
	hub *ws.Hub,
	ch *pkgch.Client,
) *xhttp.Server {
	hl := l.With("http")
	handlers := []xhttp.Handler{
		api.NewForecastEchoHandler(hl, fuc),
		api.NewDashboardEchoHandler(hl, duc),
		api.NewSensorsEchoHandler(hl, suc),
		api.NewReadingsEchoHandler(hl, pipe),
		api.NewHealthHandler(map[string]api.Pinger{"clickhouse": ch}),
		ws.NewHandler(hub, cfg.Server.CORSOrigins, hl),
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithMetrics(cfg.Metrics.Enabled, time.Second),
		xhttp.WithLogger(hl),
	}
	if cfg.Server.RateLimit.Enabled {
		rl := ratelimit.New(cfg.Server.RateLimit.RPS, float64(cfg.Server.RateLimit.Burst))
		opts = append(opts, xhttp.WithMiddleware(middleware.RateLimit(rl, "/api")))
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(cfg *config.Config, c server.Components) *server.App {
	return server.New(cfg, c)
}

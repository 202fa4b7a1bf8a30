package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EnviroPulse/internal/domain/models"
	"EnviroPulse/internal/handler/ws"
	mid "EnviroPulse/internal/middleware"
	"EnviroPulse/internal/service/cache"
	"EnviroPulse/internal/services/bundle"
	"EnviroPulse/internal/usecase"
	pkgch "EnviroPulse/pkg/clickhouse"
	"EnviroPulse/pkg/config"
	xhttp "EnviroPulse/pkg/http"
	pkgkafka "EnviroPulse/pkg/kafka"
	applogger "EnviroPulse/pkg/logger"
)

// Components are the long-lived parts the App starts and stops. Consumer
// and Producer are nil when Kafka is not in use.
type Components struct {
	Logger     *applogger.Logger
	HTTP       *xhttp.Server
	Pipeline   *mid.IngestPipeline
	Processor  *usecase.ReadingProcessor
	Consumer   *pkgkafka.Consumer
	Readings   *usecase.KafkaReadingsHandler
	Registry   *bundle.Registry
	Hub        *ws.Hub
	ClickHouse *pkgch.Client
	Producer   *pkgkafka.Producer
	Cache      cache.BytesCache
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	c   Components
	l   *applogger.Logger
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, c Components) *App {
	l := c.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, c: c, l: l}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		a.shutdown(ctx)
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	a.shutdown(ctx)
	return nil
}

func (a *App) start(ctx context.Context) error {
	// Ship aggregated error logs to Kafka
	if a.cfg.Log.Collect && a.c.Producer != nil {
		a.l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   a.cfg.Log.FlushInterval,
			CountThreshold: a.cfg.Log.FlushCount,
			Topic:          a.cfg.Kafka.LogsTopic,
			Publisher:      a.c.Producer,
			Source:         "enviropulse",
		})
	}

	if a.cfg.Forecast.Preload && a.c.Registry != nil {
		pctx, pcancel := context.WithTimeout(ctx, 30*time.Second)
		err := a.c.Registry.Preload(pctx, models.ForecastMetrics)
		pcancel()
		if err != nil {
			// Requests for the affected metric fail until the bundle is fixed.
			a.l.Error("bundle preload failed", applogger.Error(err))
		} else {
			a.l.Info("bundles loaded", applogger.Int("count", len(a.c.Registry.Loaded())))
		}
	}

	if a.c.Pipeline != nil {
		a.c.Pipeline.Start(ctx)
	}

	// Start consumer if configured
	if a.c.Consumer != nil && a.c.Readings != nil {
		a.c.Consumer.RegisterHandler(a.c.Readings)
		if err := a.c.Consumer.Start(); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.c.Readings.Topic()))
	}

	if err := a.c.HTTP.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("enviropulse started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.Int("port", a.cfg.Server.Port),
	)
	return nil
}

// shutdown stops intake first, then drains buffers, then closes clients.
func (a *App) shutdown(ctx context.Context) {
	a.l.Info("shutting down...")

	// Shutdown HTTP server
	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.c.Pipeline != nil {
		a.c.Pipeline.Stop()
	}

	// Stop consumer
	if a.c.Consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.c.Consumer.Stop(stopCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
		cancel()
	}

	if a.c.Hub != nil {
		a.c.Hub.Close()
	}

	// Collector flushes through the producer.
	a.l.RemoveCollector()

	if a.c.Processor != nil {
		a.c.Processor.Close()
	}
	if a.c.Producer != nil {
		if err := a.c.Producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if cl, ok := a.c.Cache.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}

	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
}

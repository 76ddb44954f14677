package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SessionBreak/internal/usecase"
	"SessionBreak/pkg/cache"
	pkgch "SessionBreak/pkg/clickhouse"
	"SessionBreak/pkg/config"
	xhttp "SessionBreak/pkg/http"
	pkgkafka "SessionBreak/pkg/kafka"
	applogger "SessionBreak/pkg/logger"
	"SessionBreak/pkg/queue"
)

// Components are the long-running parts of the process. Optional parts are nil
// when their backend is disabled.
type Components struct {
	Runner     *usecase.EngineRunner
	Collector  *usecase.QuoteCollector
	Consumer   *pkgkafka.Consumer
	HTTP       *xhttp.Server
	AlertQueue *queue.RedisQueue
	Producer   *pkgkafka.Producer
	ClickHouse *pkgch.Client
	Redis      *cache.RedisCache
}

// App owns the process lifecycle: warmup, start order and reverse shutdown.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components
}

func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	return &App{cfg: cfg, log: log, c: c}
}

// Run starts everything and blocks until SIGINT/SIGTERM or an HTTP listen failure.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		_ = a.shutdown()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-sigCh:
		a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case runErr = <-a.c.HTTP.Err():
	}
	cancel()

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) start(ctx context.Context) error {
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := a.c.Runner.Warmup(warmCtx, a.cfg.Strategy.WarmupBars)
	cancel()
	if err != nil {
		// a cold start only delays the trend filter
		a.log.Warn("warmup failed, starting cold", applogger.Error(err))
	}

	if a.c.AlertQueue != nil {
		if err := a.c.AlertQueue.Start(ctx); err != nil {
			return fmt.Errorf("alert queue: %w", err)
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.Strings("brokers", a.cfg.Kafka.Brokers))
	}
	if a.c.Collector != nil {
		if err := a.c.Collector.Start(ctx); err != nil {
			return fmt.Errorf("quote collector: %w", err)
		}
		a.log.Info("quote collector started", applogger.String("feed_symbol", a.cfg.Feed.Symbol))
	}
	if err := a.c.HTTP.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	a.log.Info("engine running",
		applogger.Strings("sessions", a.c.Runner.Labels()),
		applogger.String("venue", a.cfg.Venue.Type),
		applogger.String("timeframe", a.cfg.Strategy.Timeframe),
	)
	return nil
}

// shutdown stops producers of work before the stores they write to.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.log.Info("shutting down")

	var firstErr error
	keep := func(what string, err error) {
		if err == nil {
			return
		}
		a.log.Warn(what+" stop error", applogger.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	if a.c.Collector != nil {
		keep("collector", a.c.Collector.Shutdown(ctx))
	}
	if a.c.Consumer != nil {
		keep("kafka consumer", a.c.Consumer.Stop(ctx))
	}
	keep("http server", a.c.HTTP.Stop(ctx))

	a.log.RemoveCollector()
	if a.c.AlertQueue != nil {
		keep("alert queue", a.c.AlertQueue.Stop(ctx))
	}
	// the producer serves both the collector and the kafka venue
	if a.c.Producer != nil {
		keep("kafka producer", a.c.Producer.Close())
	}
	if a.c.ClickHouse != nil {
		keep("clickhouse", a.c.ClickHouse.Close())
	}
	if a.c.Redis != nil {
		keep("redis", a.c.Redis.Close())
	}

	a.log.Info("shutdown complete")
	return firstErr
}

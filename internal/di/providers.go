package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/internal/handler/api"
	mid "SessionBreak/internal/middleware"
	internalrepo "SessionBreak/internal/repository"
	"SessionBreak/internal/service/feed"
	imetrics "SessionBreak/internal/service/metrics"
	"SessionBreak/internal/services/features"
	"SessionBreak/internal/services/venue"
	"SessionBreak/internal/usecase"
	"SessionBreak/pkg/cache"
	pkgch "SessionBreak/pkg/clickhouse"
	"SessionBreak/pkg/config"
	xhttp "SessionBreak/pkg/http"
	pkgkafka "SessionBreak/pkg/kafka"
	"SessionBreak/pkg/logger"
	"SessionBreak/pkg/metrics"
	"SessionBreak/pkg/queue"
	"SessionBreak/pkg/server"
)

func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment), logger.String("symbol", cfg.Strategy.Symbol)), nil
}

// The Kafka client metrics register on the default registry, so everything shares it.
func ProvideRegisterer() prometheus.Registerer { return prometheus.DefaultRegisterer }
func ProvideGatherer() prometheus.Gatherer     { return prometheus.DefaultGatherer }

func ProvideMetrics(reg prometheus.Registerer) domrepo.Metrics {
	return metrics.NewWithRegisterer(reg)
}

func ProvideAPIMetrics(reg prometheus.Registerer) *imetrics.APIMetrics {
	return imetrics.NewAPIMetrics(reg)
}

// ProvideRedisCache returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache prefers Redis and falls back to the in-process cache.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc != nil {
		return rc
	}
	return cache.NewMemoryCache()
}

func ProvideAlertBook() *queue.AlertBook { return queue.NewAlertBook(500) }

// ProvideAlertQueue routes collected error logs to the alert book, through
// Redis when it is available.
func ProvideAlertQueue(cfg *config.Config, log *logger.Logger, rc *cache.RedisCache, book *queue.AlertBook) *queue.RedisQueue {
	topic := cfg.Logger.Collector.Topic
	var (
		q   *queue.RedisQueue
		pub logger.Publisher = book
	)
	if rc != nil {
		q = queue.NewRedisQueue(log, queue.QueueConfig{Workers: 1, RetryLimit: 3, RetryDelay: 5 * time.Second}, rc.Client(),
			queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"),
		)
		q.Register(queue.NewAlertJob(topic, book))
		pub = q
	}
	if cfg.Logger.Collector.Enabled {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logger.Collector.Interval,
			CountThreshold: cfg.Logger.Collector.Threshold,
			Topic:          topic,
			Publisher:      pub,
		})
	}
	return q
}

// ProvideClickHouseClient returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func ProvideBarStore(cfg *config.Config, ch *pkgch.Client, log *logger.Logger) domrepo.BarStore {
	if ch == nil {
		return nil
	}
	tf := domrepo.NormalizeTimeframe(cfg.Strategy.Timeframe)
	return internalrepo.NewClickHouseBarStore(ch, cfg.ClickHouse.Database, tf, log)
}

func ProvideJournal(cfg *config.Config, ch *pkgch.Client) domrepo.Journal {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseJournal(ch, cfg.ClickHouse.Database)
}

// ProvideStateStore persists session state only when it can outlive the process.
func ProvideStateStore(cfg *config.Config, rc *cache.RedisCache) domrepo.StateStore {
	if rc == nil {
		return nil
	}
	return internalrepo.NewCacheStateStore(rc, cfg.Redis.StateTTL)
}

// ProvideKafkaProducer returns nil without brokers.
func ProvideKafkaProducer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvidePositionBook(cfg *config.Config, c cache.Service) *internalrepo.CachePositionBook {
	return internalrepo.NewCachePositionBook(c, cfg.Strategy.Symbol, cfg.Redis.StateTTL)
}

func ProvidePaperVenue(cfg *config.Config, log *logger.Logger) *venue.PaperVenue {
	return venue.NewPaperVenue(cfg.Instrument.PipSize, log.With(logger.String("venue", "paper")))
}

func ProvideVenue(
	cfg *config.Config,
	paper *venue.PaperVenue,
	producer *pkgkafka.Producer,
	book *internalrepo.CachePositionBook,
	c cache.Service,
	log *logger.Logger,
) (domrepo.Venue, error) {
	if cfg.Venue.Type != "kafka" {
		return paper, nil
	}
	if producer == nil {
		return nil, fmt.Errorf("kafka venue: no producer")
	}
	return venue.NewKafkaVenue(producer, cfg.Kafka.Topics.Orders, book, c, cfg.Instrument.PipSize,
		log.With(logger.String("venue", "kafka"))), nil
}

func ProvideBarSeries(cfg *config.Config) *features.BarSeries {
	return features.NewBarSeries(cfg.Strategy.SeriesCapacity)
}

// EngineConfig maps the strategy and instrument sections onto the engine.
func EngineConfig(cfg *config.Config) usecase.EngineConfig {
	s := cfg.Strategy
	sessions := make([]usecase.SessionConfig, 0, len(s.Sessions))
	for _, sc := range s.Sessions {
		sessions = append(sessions, usecase.SessionConfig{
			Label:     sc.Label,
			Enabled:   sc.Enabled,
			StartHour: sc.StartHour,
			EndHour:   sc.EndHour,
		})
	}
	return usecase.EngineConfig{
		Symbol:         s.Symbol,
		Sessions:       sessions,
		TimeZoneOffset: s.TimeZoneOffset,
		RiskAmount:     s.RiskAmount,
		Instrument: models.Instrument{
			Symbol:     s.Symbol,
			PipSize:    cfg.Instrument.PipSize,
			PipValue:   cfg.Instrument.PipValue,
			LotSize:    cfg.Instrument.LotSize,
			VolumeStep: cfg.Instrument.VolumeStep,
			VolumeMin:  cfg.Instrument.VolumeMin,
			VolumeMax:  cfg.Instrument.VolumeMax,
		},
		UseTrendFilter:          s.UseTrendFilter,
		TrendPeriod:             s.TrendPeriod,
		MoveToBreakEven:         s.MoveToBreakEven,
		BreakEvenMultiple:       s.BreakEvenMultiple,
		StopLossRatio:           s.StopLossRatio,
		TakeProfitRatio:         s.TakeProfitRatio,
		MinRange:                s.MinRange,
		MaxEntriesPerOccurrence: s.MaxEntriesPerOccurrence,
	}
}

func ProvideEngine(cfg *config.Config, series *features.BarSeries, v domrepo.Venue, log *logger.Logger, m domrepo.Metrics) (*usecase.StrategyEngine, error) {
	e, err := usecase.NewStrategyEngine(EngineConfig(cfg), series, v,
		usecase.WithEngineLogger(log.With(logger.String("component", "engine"))),
		usecase.WithEngineMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("strategy engine: %w", err)
	}
	return e, nil
}

func ProvideRunner(
	cfg *config.Config,
	engine *usecase.StrategyEngine,
	series *features.BarSeries,
	store domrepo.BarStore,
	journal domrepo.Journal,
	states domrepo.StateStore,
	paper *venue.PaperVenue,
	log *logger.Logger,
	m domrepo.Metrics,
) *usecase.EngineRunner {
	opts := []usecase.RunnerOption{
		usecase.WithRunnerLogger(log.With(logger.String("component", "runner"))),
		usecase.WithRunnerMetrics(m),
	}
	if store != nil {
		opts = append(opts, usecase.WithBarStore(store))
	}
	if journal != nil {
		opts = append(opts, usecase.WithJournal(journal))
	}
	if states != nil {
		opts = append(opts, usecase.WithStateStore(states))
	}
	if cfg.Venue.Type != "kafka" {
		opts = append(opts, usecase.WithQuoteListener(paper))
	}
	return usecase.NewEngineRunner(engine, series, domrepo.NormalizeTimeframe(cfg.Strategy.Timeframe), opts...)
}

func ProvideBarHistory(cfg *config.Config, store domrepo.BarStore) *usecase.BarHistory {
	return usecase.NewBarHistory(store, cfg.Strategy.Symbol)
}

// ProvidePositions reads from the venue that actually holds the positions.
func ProvidePositions(cfg *config.Config, paper *venue.PaperVenue, book *internalrepo.CachePositionBook, runner *usecase.EngineRunner) api.PositionsFunc {
	if cfg.Venue.Type == "kafka" {
		return func(ctx context.Context) ([]models.Position, error) {
			return book.List(ctx, runner.Labels())
		}
	}
	return paper.Positions
}

func ProvideStrategyHandler(
	log *logger.Logger,
	runner *usecase.EngineRunner,
	history *usecase.BarHistory,
	positions api.PositionsFunc,
	alerts *queue.AlertBook,
	m *imetrics.APIMetrics,
) *api.StrategyEchoHandler {
	return api.NewStrategyEchoHandler(log.With(logger.String("component", "api")), runner, history, positions, alerts, m)
}

func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, h *api.StrategyEchoHandler, reg prometheus.Registerer, gatherer prometheus.Gatherer) *xhttp.Server {
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer(log, h,
		xhttp.WithAddress("0.0.0.0", cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(path, reg, gatherer),
	)
}

func ProvideQuotesHandler(cfg *config.Config, runner *usecase.EngineRunner, m domrepo.Metrics) *usecase.KafkaQuotesHandler {
	return usecase.NewKafkaQuotesHandler(cfg.Kafka.Topics.Quotes, runner, m)
}

func ProvideExecutionsHandler(cfg *config.Config, book *internalrepo.CachePositionBook, m domrepo.Metrics, log *logger.Logger) *usecase.KafkaExecutionsHandler {
	return usecase.NewKafkaExecutionsHandler(cfg.Kafka.Topics.Executions, book, m, log)
}

// ProvideKafkaConsumer returns nil without brokers. Executions are consumed
// only when the Kafka venue is in use.
func ProvideKafkaConsumer(
	cfg *config.Config,
	log *logger.Logger,
	m domrepo.Metrics,
	quotes *usecase.KafkaQuotesHandler,
	executions *usecase.KafkaExecutionsHandler,
) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.RejectEmpty(),
		pkgkafka.TimingHook(func(topic string, seconds float64) {
			m.RecordLatency("consume:"+topic, seconds)
		}),
	))
	consumer.RegisterHandler(quotes)
	if cfg.Venue.Type == "kafka" {
		consumer.RegisterHandler(executions)
	}
	return consumer, nil
}

// ProvideFeed returns nil when the live feed is disabled.
func ProvideFeed(cfg *config.Config, log *logger.Logger) *feed.Client {
	if !cfg.Feed.Enabled {
		return nil
	}
	return feed.New(feed.Config{
		APIKey:         cfg.Feed.APIKey,
		URL:            cfg.Feed.WebSocketURL,
		Symbols:        []string{cfg.Feed.Symbol},
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		PingInterval:   cfg.Feed.PingInterval,
		BufferSize:     cfg.Feed.BufferSize,
	}, log.With(logger.String("component", "feed")))
}

func ProvideQuoteCollector(
	cfg *config.Config,
	stream *feed.Client,
	producer *pkgkafka.Producer,
	store domrepo.BarStore,
	m domrepo.Metrics,
	log *logger.Logger,
) *usecase.QuoteCollector {
	if stream == nil || producer == nil {
		return nil
	}
	pub := internalrepo.NewKafkaQuotePublisher(producer, cfg.Kafka.Topics.Quotes)
	tf := domrepo.NormalizeTimeframe(cfg.Strategy.Timeframe)
	proc := usecase.NewQuoteProcessor(pub, store, m, tf, log)
	symbol := cfg.Strategy.Symbol
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithRateLimit(cfg.Feed.RateCapacity, cfg.Feed.RateRefill),
		mid.WithBufferSize(2000),
		mid.WithTransform(func(q *models.Quote) *models.Quote {
			out := *q
			out.Symbol = symbol
			return &out
		}),
	)
	return usecase.NewQuoteCollector(stream, proc, m, pipe, log)
}

func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	runner *usecase.EngineRunner,
	collector *usecase.QuoteCollector,
	consumer *pkgkafka.Consumer,
	httpServer *xhttp.Server,
	alertQueue *queue.RedisQueue,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *cache.RedisCache,
) *server.App {
	return server.New(cfg, log, server.Components{
		Runner:     runner,
		Collector:  collector,
		Consumer:   consumer,
		HTTP:       httpServer,
		AlertQueue: alertQueue,
		Producer:   producer,
		ClickHouse: ch,
		Redis:      rc,
	})
}

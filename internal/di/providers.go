package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	domsvc "SignalDesk/internal/domain/service"
	"SignalDesk/internal/handler/api"
	mid "SignalDesk/internal/middleware"
	internalrepo "SignalDesk/internal/repository"
	"SignalDesk/internal/service/finnhub"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/service/scheduler"
	"SignalDesk/internal/services/analytics"
	"SignalDesk/internal/services/providers"
	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/cache"
	pkgch "SignalDesk/pkg/clickhouse"
	"SignalDesk/pkg/config"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
	"SignalDesk/pkg/server"
	xutil "SignalDesk/pkg/util"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

func ProvideClock() domrepo.Clock {
	return domrepo.SystemClock{}
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
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

	if cfg.ClickHouse.InitSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, []string{
			internalrepo.BarsSchema(cfg.ClickHouse.BarsTable),
			internalrepo.SignalsSchema(cfg.ClickHouse.SignalsTable),
		}); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}

	l.Info("clickhouse ready",
		applogger.String("database", cfg.ClickHouse.Database),
		applogger.String("bars_table", cfg.ClickHouse.BarsTable),
	)
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
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
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideCache creates the Redis cache when enabled, an in-process cache otherwise.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		l.Info("redis disabled, using memory cache")
		return cache.NewMemoryCache(), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideQuoteBook sizes the book to hold HistoryBars bars of the engine timeframe.
func ProvideQuoteBook(cfg *config.Config) *internalrepo.QuoteBook {
	tf := domrepo.NormalizeTimeframe(cfg.Engine.Timeframe)
	perBar := int(tf.Duration() / time.Minute)
	if perBar < 1 {
		perBar = 1
	}
	return internalrepo.NewQuoteBook(cfg.Engine.HistoryBars * perBar)
}

func ProvideCHMarketData(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) *internalrepo.CHMarketData {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHMarketData(ch, cfg.ClickHouse.BarsTable, cfg.ClickHouse.ReadTimeout, l)
}

// ProvideMarketData reads history from ClickHouse when configured, falling
// back to the in-memory quote book.
func ProvideMarketData(cfg *config.Config, book *internalrepo.QuoteBook, ch *internalrepo.CHMarketData, l *applogger.Logger) domrepo.MarketDataSource {
	opts := []internalrepo.MarketDataOption{
		internalrepo.WithQuotes(book),
		internalrepo.WithTimeframe(domrepo.NormalizeTimeframe(cfg.Engine.Timeframe)),
		internalrepo.WithQuoteFromHistory(cfg.Engine.QuoteFromHistory),
		internalrepo.WithMarketDataLogger(l),
	}
	if ch == nil {
		return internalrepo.NewMarketData(book, opts...)
	}
	opts = append(opts, internalrepo.WithFallbackHistory(book))
	return internalrepo.NewMarketData(ch, opts...)
}

func ProvideSentimentSource(c cache.Service, cfg *config.Config, clock domrepo.Clock) *internalrepo.CacheSentimentSource {
	return internalrepo.NewCacheSentimentSource(c, 2*cfg.Engine.SentimentMaxAge, cfg.Engine.SentimentMaxAge, clock)
}

// ProvidePredictor uses the remote model service when one is configured.
func ProvidePredictor(cfg *config.Config) domsvc.Predictor {
	if cfg.Analytics.PythonServiceURL != "" {
		return analytics.NewHTTPPredictor(cfg.Analytics.PythonServiceURL, cfg.Analytics.Timeout)
	}
	return providers.NewTrendPredictor()
}

func ProvideDemoFallback(cfg *config.Config) *providers.DemoFallback {
	return providers.NewDemoFallback(cfg.Engine.DemoFallback, cfg.Engine.Seed)
}

// ProvideProviders registers the signal providers in evaluation order.
func ProvideProviders(
	sentiment *internalrepo.CacheSentimentSource,
	predictor domsvc.Predictor,
	fallback *providers.DemoFallback,
	clock domrepo.Clock,
) []domsvc.SignalProvider {
	return []domsvc.SignalProvider{
		providers.NewTechnicalProvider(clock, fallback),
		providers.NewSentimentProvider(sentiment, clock, fallback),
		providers.NewMLPredictionProvider(predictor, clock, fallback),
	}
}

// ProvideSignalArchive returns the ClickHouse archive, or nil without ClickHouse.
func ProvideSignalArchive(ch *pkgch.Client, cfg *config.Config) domrepo.SignalArchive {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHSignalArchive(ch.DB(), cfg.ClickHouse.SignalsTable)
}

// ProvideSinks collects the configured signal sinks.
func ProvideSinks(producer *pkgkafka.Producer, archive domrepo.SignalArchive, cfg *config.Config) []domrepo.SignalSink {
	var sinks []domrepo.SignalSink
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic))
	}
	if archive != nil {
		sinks = append(sinks, archive)
	}
	return sinks
}

// ProvideSignalEngine creates the signal engine.
func ProvideSignalEngine(
	cfg *config.Config,
	data domrepo.MarketDataSource,
	provs []domsvc.SignalProvider,
	sinks []domrepo.SignalSink,
	m domrepo.Metrics,
	clock domrepo.Clock,
	l *applogger.Logger,
) *usecase.SignalEngine {
	return usecase.NewSignalEngine(data, provs,
		usecase.WithClock(clock),
		usecase.WithEngineMetrics(m),
		usecase.WithEngineLogger(l),
		usecase.WithSinks(sinks...),
		usecase.WithHistoryBars(cfg.Engine.HistoryBars),
		usecase.WithConcurrency(cfg.Engine.Concurrency),
		usecase.WithHistoryLimit(cfg.Engine.HistoryLimit),
		usecase.WithSinkTimeout(cfg.Engine.SinkTimeout),
		usecase.WithIDSource(signalIDs(cfg)),
	)
}

func signalIDs(cfg *config.Config) models.IDSource {
	if cfg.Engine.DeterministicIDs {
		return models.NewSeededIDs(cfg.Engine.Seed)
	}
	return models.RandomIDs{}
}

// ProvideSessionGate builds the gate from configured sessions and seeds the
// news calendar.
func ProvideSessionGate(cfg *config.Config, m domrepo.Metrics, clock domrepo.Clock, l *applogger.Logger) (*usecase.SessionGate, error) {
	sessions := make([]models.TradingSession, 0, len(cfg.Sessions))
	for _, s := range cfg.Sessions {
		sessions = append(sessions, models.TradingSession{
			Name:     s.Name,
			Start:    s.Start,
			End:      s.End,
			Timezone: s.Timezone,
			Symbols:  s.Symbols,
			Active:   s.IsActive(),
		})
	}
	gate, err := usecase.NewSessionGate(sessions,
		usecase.WithGateClock(clock),
		usecase.WithGateMetrics(m),
		usecase.WithGateLogger(l),
		usecase.WithDefaultBuffer(cfg.News.DefaultBufferMinutes),
	)
	if err != nil {
		return nil, fmt.Errorf("session gate: %w", err)
	}

	for i, ev := range cfg.News.Calendar {
		at, ok := xutil.ParseTime(ev.Time)
		if !ok {
			return nil, fmt.Errorf("news.calendar[%d]: invalid time %q", i, ev.Time)
		}
		if _, err := gate.AddNewsEvent(models.NewsEvent{
			Time:          at,
			Currency:      ev.Currency,
			Impact:        ev.Impact,
			Title:         ev.Title,
			BufferMinutes: ev.BufferMinutes,
		}); err != nil {
			return nil, fmt.Errorf("news.calendar[%d]: %w", i, err)
		}
	}
	return gate, nil
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
}

func ProvideHandler(l *applogger.Logger, engine *usecase.SignalEngine, gate *usecase.SessionGate, archive domrepo.SignalArchive, limiter *ratelimit.Limiter) *api.Handler {
	return api.NewHandler(l, engine, gate, archive, limiter)
}

func ProvideNewsEventsHandler(cfg *config.Config, gate *usecase.SessionGate, m domrepo.Metrics) *usecase.NewsEventsHandler {
	return usecase.NewNewsEventsHandler(cfg.News.Topic, gate, m)
}

func ProvideSentimentHandler(cfg *config.Config, source *internalrepo.CacheSentimentSource, m domrepo.Metrics) *usecase.SentimentHandler {
	return usecase.NewSentimentHandler(cfg.Kafka.SentimentTopic, source, m)
}

// ProvideScheduler schedules the periodic signal cycle.
func ProvideScheduler(cfg *config.Config, engine *usecase.SignalEngine, l *applogger.Logger) (*scheduler.Scheduler, error) {
	s := scheduler.New(l, cfg.Engine.CycleTimeout)
	job := usecase.NewSignalCycleJob(engine, cfg.Engine.Symbols, cfg.Engine.Schedule, cfg.Engine.CycleTimeout, l)
	if err := s.AddJob(job); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideQuoteCollector streams Finnhub quotes into the quote book, or returns
// nil when the feed is disabled. Closed bars are written to ClickHouse when
// it is configured.
func ProvideQuoteCollector(
	cfg *config.Config,
	book *internalrepo.QuoteBook,
	ch *internalrepo.CHMarketData,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.QuoteCollector {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	feed := make(map[string]string, len(cfg.Engine.Symbols))
	for _, sym := range cfg.Engine.Symbols {
		feed[sym] = sym
	}
	for sym, remote := range cfg.Finnhub.Symbols {
		feed[strings.ToUpper(sym)] = remote
	}
	stream := finnhub.New(
		cfg.Finnhub.APIKey,
		cfg.Finnhub.WebSocketURL,
		feed,
		cfg.Finnhub.ReconnectDelay,
		cfg.Finnhub.PingInterval,
		l,
	)

	var bars domrepo.BarWriter
	if ch != nil {
		bars = ch
	}
	return usecase.NewQuoteCollector(stream, book, bars, m, l,
		mid.WithSymbols(cfg.Engine.Symbols),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.Handler,
	engine *usecase.SignalEngine,
	sched *scheduler.Scheduler,
	collector *usecase.QuoteCollector,
	consumer *pkgkafka.Consumer,
	news *usecase.NewsEventsHandler,
	sentiment *usecase.SentimentHandler,
	chClient *pkgch.Client,
	c cache.Service,
) *server.App {
	if consumer != nil {
		consumer.RegisterHandler(news)
		consumer.RegisterHandler(sentiment)
	}
	return server.New(cfg, l, handler, engine, sched,
		server.WithCollector(collector),
		server.WithConsumer(consumer),
		server.WithClickHouse(chClient),
		server.WithCache(c),
	)
}

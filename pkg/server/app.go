package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"SignalDesk/internal/handler/api"
	"SignalDesk/internal/service/scheduler"
	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/cache"
	pkgch "SignalDesk/pkg/clickhouse"
	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	handler    *api.Handler
	engine     *usecase.SignalEngine
	scheduler  *scheduler.Scheduler
	collector  *usecase.QuoteCollector
	consumer   *pkgkafka.Consumer
	chClient   *pkgch.Client
	cache      cache.Service
	httpServer *xhttp.Server
}

// Option attaches an optional component to the App.
type Option func(*App)

// WithCollector sets the live quote collector.
func WithCollector(c *usecase.QuoteCollector) Option {
	return func(a *App) { a.collector = c }
}

// WithConsumer sets the Kafka consumer. Handlers must already be registered.
func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

func WithClickHouse(c *pkgch.Client) Option {
	return func(a *App) { a.chClient = c }
}

func WithCache(c cache.Service) Option {
	return func(a *App) { a.cache = c }
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.Handler,
	engine *usecase.SignalEngine,
	sched *scheduler.Scheduler,
	opts ...Option,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{
		cfg:       cfg,
		l:         l,
		handler:   handler,
		engine:    engine,
		scheduler: sched,
	}
	for _, opt := range opts {
		opt(a)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(handler, l,
		xhttp.WithAddr(cfg.Server.Host, cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetrics(metricsPath, prometheus.DefaultGatherer),
		xhttp.WithSlowRequestThreshold(cfg.Server.SlowRequest),
	)
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start launches every component in the background.
func (a *App) Start(ctx context.Context) error {
	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			a.l.Error("quote collector start failed", applogger.Error(err))
		} else {
			a.l.Info("quote collector started", applogger.Strings("symbols", a.cfg.Engine.Symbols))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.l.Info("kafka consumer started",
			applogger.String("news_topic", a.cfg.News.Topic),
			applogger.String("sentiment_topic", a.cfg.Kafka.SentimentTopic),
		)
	}

	a.scheduler.Start()
	a.l.Info("signal cycle scheduled",
		applogger.String("schedule", a.cfg.Engine.Schedule),
		applogger.Strings("symbols", a.cfg.Engine.Symbols),
	)
	if a.cfg.Engine.RunOnStart {
		go a.warmUp()
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// warmUp runs the first signal cycle immediately.
func (a *App) warmUp() {
	res, err := a.scheduler.RunNow(usecase.SignalCycleJobName)
	if err != nil {
		a.l.Warn("initial signal cycle not run", applogger.Error(err))
		return
	}
	a.l.Info("initial signal cycle done",
		applogger.Bool("success", res.Success),
		applogger.Duration("duration_ms", res.Duration),
	)
}

// Shutdown stops producers of work first, then closes sinks and clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.scheduler.Stop(ctx); err != nil {
		a.l.Warn("scheduler stop error", applogger.Error(err))
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.l.Warn("quote collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Sinks flush through the producer and ClickHouse, so close them first.
	if err := a.engine.Close(); err != nil {
		a.l.Warn("signal sinks close error", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}

// HTTPServer exposes the HTTP server.
func (a *App) HTTPServer() *xhttp.Server {
	return a.httpServer
}

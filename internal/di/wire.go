//go:build wireinject
// +build wireinject

package di

import (
	"SignalDesk/pkg/config"
	"SignalDesk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideClock,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Repositories
		ProvideQuoteBook,
		ProvideCHMarketData,
		ProvideMarketData,
		ProvideSentimentSource,
		ProvideSignalArchive,
		ProvideSinks,

		// Providers
		ProvidePredictor,
		ProvideDemoFallback,
		ProvideProviders,

		// Use cases
		ProvideSignalEngine,
		ProvideSessionGate,
		ProvideNewsEventsHandler,
		ProvideSentimentHandler,
		ProvideScheduler,
		ProvideQuoteCollector,

		// Transport
		ProvideRateLimiter,
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

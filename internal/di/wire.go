//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SessionBreak/pkg/config"
	"SessionBreak/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideRegisterer,
		ProvideGatherer,
		ProvideMetrics,
		ProvideAPIMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideAlertBook,
		ProvideAlertQueue,
		ProvideBarStore,
		ProvideJournal,
		ProvideStateStore,
		ProvidePositionBook,

		// Execution
		ProvidePaperVenue,
		ProvideVenue,

		// Use cases
		ProvideBarSeries,
		ProvideEngine,
		ProvideRunner,
		ProvideBarHistory,
		ProvideQuotesHandler,
		ProvideExecutionsHandler,
		ProvideKafkaConsumer,
		ProvideFeed,
		ProvideQuoteCollector,

		// HTTP
		ProvidePositions,
		ProvideStrategyHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}

//go:build wireinject
// +build wireinject

package di

import (
	"EnviroPulse/pkg/config"
	"EnviroPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,
		ProvideBundleStore,

		// Repositories
		ProvideReadingStore,
		ProvideReadingPublisher,
		ProvideForecastPublisher,
		ProvideHub,

		// Domain services
		ProvideRegistry,
		ProvideNormalizer,
		ProvideForecastService,

		// Use cases
		ProvideSensorsUseCase,
		ProvideForecastUseCase,
		ProvideDashboardUseCase,
		ProvideReadingProcessor,
		ProvideIngestPipeline,
		ProvideKafkaReadingsHandler,

		// Application server
		ProvideHTTPServer,
		wire.Struct(new(server.Components), "*"),
		ProvideApp,
	)
	return &server.App{}, nil
}

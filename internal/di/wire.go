//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"tickwatch/pkg/config"
	applogger "tickwatch/pkg/logger"
	"tickwatch/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config, l *applogger.Logger) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvidePostgresPool,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideDirectory,
		ProvideSnapshotStore,
		ProvideBaselineStore,
		ProvideCooldownStore,
		ProvideSubscriberStore,
		ProvideRuleStore,
		ProvideCandleStore,
		ProvideSignalPublisher,
		ProvideNotifier,
		ProvideFeeds,

		// Use cases
		ProvideDispatcher,
		ProvideBreakoutDetector,
		ProvideTickIngester,
		ProvideConnectionPool,
		ProvideAlertEvaluator,
		ProvideBaselineRefresher,
		ProvideSignalArchiveHandler,

		// HTTP
		ProvideAdminHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

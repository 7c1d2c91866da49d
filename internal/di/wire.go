//go:build wireinject
// +build wireinject

package di

import (
	"SwingPull/pkg/config"
	"SwingPull/pkg/server"

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
		ProvideCache,
		ProvideBroker,
		ProvidePublisher,

		// Repositories
		ProvideBarStore,
		ProvideSignalStore,
		ProvideSnapshotStore,
		ProvideRunLogStore,

		// External services
		ProvideMarketData,
		ProvideUniverse,

		// Use cases
		ProvideEngine,
		ProvidePipeline,
		ProvideBacktester,
		ProvideTrainer,

		// HTTP
		ProvideHandler,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}

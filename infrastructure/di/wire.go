//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/gpazevedo/alex/application/services"
	"github.com/gpazevedo/alex/infrastructure/config"
)

// StoreSet provides the tables and the repositories built on them
var StoreSet = wire.NewSet(
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideIndexNames,
	ProvideTables,
	ProvideUserRepository,
	ProvideAccountRepository,
	ProvideInstrumentRepository,
	ProvidePriceHistory,
	ProvidePositionHistory,
	ProvideJobLedger,
)

// ServiceSet provides the application services
var ServiceSet = wire.NewSet(
	ProvideEventBridgeClient,
	ProvideEventPublisher,
	services.NewPriceService,
	services.NewPortfolioService,
	services.NewJobService,
	ProvideValuationService,
	ProvideSeeder,
	ProvideVerifier,
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideTracerProvider,
	StoreSet,
	ServiceSet,
	ProvideErrorHandler,
	ProvideAuthenticator,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The cleanup function
// flushes traces.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}

// InitializeStore wires the tables, repositories and offline tools
func InitializeStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		StoreSet,
		ProvideEventBridgeClient,
		ProvideEventPublisher,
		services.NewJobService,
		ProvideValuationService,
		ProvideSeeder,
		ProvideVerifier,
		wire.Struct(new(Store), "*"),
	)
	return nil, nil
}

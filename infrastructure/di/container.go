package di

import (
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/application/seeding"
	"github.com/gpazevedo/alex/application/services"
	"github.com/gpazevedo/alex/application/verification"
	"github.com/gpazevedo/alex/infrastructure/config"
	"github.com/gpazevedo/alex/interfaces/http/rest"
	"github.com/gpazevedo/alex/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Tables    Tables
	Metrics   *observability.Collector
	Tracer    *observability.TracerProvider
	Publisher ports.EventPublisher

	Users       ports.UserRepository
	Accounts    ports.AccountRepository
	Instruments ports.InstrumentRepository
	Prices      ports.PriceHistory
	Positions   ports.PositionHistory
	Jobs        ports.JobLedger

	PriceService     *services.PriceService
	PortfolioService *services.PortfolioService
	ValuationService *services.ValuationService
	JobService       *services.JobService

	Seeder   *seeding.Seeder
	Verifier *verification.Verifier
	Router   *rest.Router
}

// Store holds the data-access layer without the HTTP surface. It backs the
// command line tools.
type Store struct {
	Config *config.Config
	Logger *zap.Logger
	Tables Tables

	Accounts         ports.AccountRepository
	Instruments      ports.InstrumentRepository
	Positions        ports.PositionHistory
	ValuationService *services.ValuationService
	JobService       *services.JobService

	Seeder   *seeding.Seeder
	Verifier *verification.Verifier
}

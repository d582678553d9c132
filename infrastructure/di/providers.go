package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/application/seeding"
	"github.com/gpazevedo/alex/application/services"
	"github.com/gpazevedo/alex/application/verification"
	"github.com/gpazevedo/alex/infrastructure/config"
	"github.com/gpazevedo/alex/infrastructure/messaging/eventbridge"
	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
	"github.com/gpazevedo/alex/infrastructure/persistence/dynamodb"
	"github.com/gpazevedo/alex/infrastructure/persistence/repositories"
	"github.com/gpazevedo/alex/infrastructure/persistence/schema"
	"github.com/gpazevedo/alex/interfaces/http/rest"
	"github.com/gpazevedo/alex/interfaces/http/rest/handlers"
	"github.com/gpazevedo/alex/interfaces/http/rest/middleware"
	"github.com/gpazevedo/alex/pkg/auth"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/observability"
)

// Tables groups the two DynamoDB tables of the planner
type Tables struct {
	Users       *dynamodb.Table
	Instruments *dynamodb.Table
}

// All returns both tables for health and verification checks
func (t Tables) All() []abstractions.Table {
	return []abstractions.Table{t.Users, t.Instruments}
}

// Authenticator guards the /api/v1 routes
type Authenticator func(http.Handler) http.Handler

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() || cfg.IsLambda {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}

// ProvideAWSConfig creates AWS configuration. Lambda deployments get X-Ray
// subsegments for every SDK call.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.IsLambda {
		observability.InstrumentAWS(&awsCfg)
	}
	return awsCfg, nil
}

// ProvideDynamoDBClient creates a DynamoDB client, pointed at DynamoDB Local
// when DYNAMODB_ENDPOINT is set
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideMetrics creates the Prometheus collector, or nil when metrics are
// disabled. A nil collector records nothing.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector("alex_planner")
}

// ProvideIndexNames reads the index names from configuration
func ProvideIndexNames(cfg *config.Config) schema.IndexNames {
	return schema.IndexNames{
		GSI2: cfg.GSI2IndexName,
		LSI1: cfg.LSI1IndexName,
	}
}

// ProvideTables wraps both tables with retries, the circuit breaker, metrics
// and tracing
func ProvideTables(client *awsdynamodb.Client, cfg *config.Config, idx schema.IndexNames, metrics *observability.Collector, logger *zap.Logger) Tables {
	retry := dynamodb.DefaultRetryConfig()
	retry.MaxAttempts = cfg.StoreMaxRetries
	retry.BaseDelay = cfg.StoreRetryBaseDelay

	opts := []dynamodb.Option{dynamodb.WithRetryConfig(retry), dynamodb.WithMetrics(metrics)}
	return Tables{
		Users:       dynamodb.NewTable(client, schema.UsersTable(cfg.UsersTable, idx), logger, opts...),
		Instruments: dynamodb.NewTable(client, schema.InstrumentsTable(cfg.InstrumentsTable), logger, opts...),
	}
}

// ProvideEventPublisher publishes to EventBridge, or drops events when they
// are disabled
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if !cfg.EnableEvents {
		return eventbridge.NoopPublisher{}
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideUserRepository creates the user repository
func ProvideUserRepository(tables Tables, logger *zap.Logger) ports.UserRepository {
	return repositories.NewUserRepository(tables.Users, logger)
}

// ProvideAccountRepository creates the account repository
func ProvideAccountRepository(tables Tables, logger *zap.Logger) ports.AccountRepository {
	return repositories.NewAccountRepository(tables.Users, logger)
}

// ProvideInstrumentRepository creates the instrument repository
func ProvideInstrumentRepository(tables Tables, logger *zap.Logger) ports.InstrumentRepository {
	return repositories.NewInstrumentRepository(tables.Instruments, logger)
}

// ProvidePriceHistory creates the price history store
func ProvidePriceHistory(tables Tables, logger *zap.Logger) ports.PriceHistory {
	return repositories.NewPriceRepository(tables.Instruments, logger)
}

// ProvidePositionHistory creates the position history store
func ProvidePositionHistory(tables Tables, idx schema.IndexNames, logger *zap.Logger) ports.PositionHistory {
	return repositories.NewPositionRepository(tables.Users, idx, logger)
}

// ProvideJobLedger creates the job ledger
func ProvideJobLedger(tables Tables, idx schema.IndexNames, logger *zap.Logger) ports.JobLedger {
	return repositories.NewJobRepository(tables.Users, idx, logger)
}

// ProvideValuationService creates the valuation engine
func ProvideValuationService(positions ports.PositionHistory, prices ports.PriceHistory, logger *zap.Logger) *services.ValuationService {
	return services.NewValuationService(positions, prices, logger)
}

// ProvideSeeder creates the seeder. Seeded prices are tagged with the seed
// source.
func ProvideSeeder(tables Tables, instruments ports.InstrumentRepository, logger *zap.Logger) *seeding.Seeder {
	prices := repositories.NewPriceRepository(tables.Instruments, logger).WithSource(repositories.SourceSeed)
	return seeding.NewSeeder(instruments, prices, logger)
}

// ProvideVerifier creates the deployment verifier
func ProvideVerifier(
	tables Tables,
	users ports.UserRepository,
	accounts ports.AccountRepository,
	instruments ports.InstrumentRepository,
	positions ports.PositionHistory,
	logger *zap.Logger,
) *verification.Verifier {
	return verification.NewVerifier(tables.All(), users, accounts, instruments, positions, logger)
}

// ProvideErrorHandler creates the HTTP error handler. Development builds
// include error details in responses.
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideAuthenticator trusts API Gateway claims on Lambda and validates the
// bearer token everywhere else
func ProvideAuthenticator(cfg *config.Config, logger *zap.Logger) (Authenticator, error) {
	if cfg.IsLambda {
		return middleware.AuthenticateForLambda(logger), nil
	}

	jwtCfg := auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
	}
	if cfg.JWTPublicKey != "" {
		jwtCfg.SigningMethod = "RS256"
		jwtCfg.PublicKey = cfg.JWTPublicKey
	}
	validator, err := auth.NewJWTValidator(jwtCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT validator: %w", err)
	}
	return middleware.Authenticate(validator, logger), nil
}

// ProvideRouter assembles the handlers into the REST router
func ProvideRouter(
	cfg *config.Config,
	tables Tables,
	prices *services.PriceService,
	portfolio *services.PortfolioService,
	valuation *services.ValuationService,
	jobs *services.JobService,
	authenticate Authenticator,
	errorHandler *pkgerrors.ErrorHandler,
	metrics *observability.Collector,
	logger *zap.Logger,
) *rest.Router {
	var opts []rest.Option
	if metrics != nil {
		opts = append(opts, rest.WithMetrics(metrics))
	}
	if cfg.EnableCORS {
		opts = append(opts, rest.WithCORS(corsOrigins(cfg)...))
	}

	return rest.NewRouter(
		handlers.NewInstrumentHandler(prices, errorHandler, logger),
		handlers.NewPortfolioHandler(portfolio, valuation, errorHandler, logger),
		handlers.NewJobHandler(jobs, errorHandler, logger),
		handlers.NewHealthHandler(tables.All(), logger),
		authenticate,
		errorHandler,
		logger,
		opts...,
	)
}

func corsOrigins(cfg *config.Config) []string {
	if cfg.IsProduction() {
		return []string{"https://*.alexplanner.com"}
	}
	return []string{"http://localhost:3000"}
}

// ProvideTracerProvider installs the OTLP tracer when tracing is enabled.
// The returned cleanup flushes pending spans.
func ProvideTracerProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	if !cfg.EnableTracing {
		return nil, func() {}, nil
	}
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: "alex-planner",
		Environment: cfg.Environment,
		SampleRate:  0.1,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

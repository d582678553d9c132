package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/interfaces/http/rest/handlers"
	"github.com/gpazevedo/alex/interfaces/http/rest/middleware"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/observability"
)

// Router creates and configures the HTTP router
type Router struct {
	instruments *handlers.InstrumentHandler
	portfolio   *handlers.PortfolioHandler
	jobs        *handlers.JobHandler
	health      *handlers.HealthHandler

	authenticate func(http.Handler) http.Handler
	errors       *pkgerrors.ErrorHandler
	metrics      *observability.Collector
	corsOrigins  []string
	logger       *zap.Logger
}

// Option customizes a Router
type Option func(*Router)

// WithMetrics records request metrics and serves them on /metrics
func WithMetrics(metrics *observability.Collector) Option {
	return func(rt *Router) { rt.metrics = metrics }
}

// WithCORS allows browser requests from the given origins
func WithCORS(origins ...string) Option {
	return func(rt *Router) { rt.corsOrigins = origins }
}

// NewRouter creates a new router instance. authenticate guards every
// /api/v1 route.
func NewRouter(
	instruments *handlers.InstrumentHandler,
	portfolio *handlers.PortfolioHandler,
	jobs *handlers.JobHandler,
	health *handlers.HealthHandler,
	authenticate func(http.Handler) http.Handler,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
	opts ...Option,
) *Router {
	rt := &Router{
		instruments:  instruments,
		portfolio:    portfolio,
		jobs:         jobs,
		health:       health,
		authenticate: authenticate,
		errors:       errorHandler,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errors.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.metrics != nil {
		router.Use(rt.metrics.Middleware)
	}
	if len(rt.corsOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.HandleStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Get("/health", rt.health.Health)
	router.Get("/ready", rt.health.Ready)
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authenticate)

		r.Route("/instruments", func(r chi.Router) {
			r.Get("/", rt.instruments.ListInstruments)
			r.Get("/{symbol}", rt.instruments.GetInstrument)
			r.Get("/{symbol}/prices", rt.instruments.PriceHistory)
			r.Post("/{symbol}/prices", rt.instruments.RecordPrice)
			r.Get("/{symbol}/price", rt.instruments.PriceAt)
		})

		r.Get("/me", rt.portfolio.GetProfile)
		r.Put("/me", rt.portfolio.SaveProfile)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", rt.portfolio.ListAccounts)
			r.Post("/", rt.portfolio.CreateAccount)
			r.Route("/{accountID}", func(r chi.Router) {
				r.Get("/", rt.portfolio.GetAccount)
				r.Get("/positions", rt.portfolio.Positions)
				r.Post("/positions", rt.portfolio.RecordPosition)
				r.Get("/positions/{symbol}/history", rt.portfolio.History)
				r.Get("/value", rt.portfolio.Value)
			})
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", rt.jobs.ListJobs)
			r.Post("/", rt.jobs.CreateJob)
			r.Get("/{jobID}", rt.jobs.GetJob)
			r.Patch("/{jobID}/status", rt.jobs.UpdateStatus)
			r.Put("/{jobID}/{stage}", rt.jobs.UpdatePayload)
		})
	})

	return router
}

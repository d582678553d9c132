package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/domain/events"
)

// UserRepository defines the interface for user persistence
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type UserRepository interface {
	// Create writes the user metadata record
	Create(ctx context.Context, user *entities.User) error

	// FindByClerkID returns nil, nil when the user does not exist
	FindByClerkID(ctx context.Context, clerkUserID string) (*entities.User, error)

	// Update applies a partial update and returns the number of records
	// changed (0 when the user does not exist)
	Update(ctx context.Context, clerkUserID string, update entities.UserUpdate) (int, error)
}

// AccountRepository defines the interface for account persistence
type AccountRepository interface {
	// Create assigns an id when empty and writes the account
	Create(ctx context.Context, account *entities.Account) error

	// FindByUser lists the accounts of one user
	FindByUser(ctx context.Context, clerkUserID string) ([]*entities.Account, error)

	// FindByID resolves an account through its id index; nil, nil when absent
	FindByID(ctx context.Context, accountID string) (*entities.Account, error)
}

// InstrumentRepository defines the interface for instrument metadata
type InstrumentRepository interface {
	// Create validates and writes (overwrites) the instrument metadata
	Create(ctx context.Context, instrument *entities.Instrument) error

	// FindBySymbol returns nil, nil when the instrument does not exist
	FindBySymbol(ctx context.Context, symbol string) (*entities.Instrument, error)

	// FindAll lists every instrument ordered by symbol
	FindAll(ctx context.Context) ([]*entities.Instrument, error)

	// BatchGetBySymbols loads many instruments; unknown symbols are omitted
	BatchGetBySymbols(ctx context.Context, symbols []string) (map[string]*entities.Instrument, error)
}

// PriceHistory is the append-only price series of every instrument
type PriceHistory interface {
	// RecordPrice appends a price point then refreshes the instrument's
	// cached current price
	RecordPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time, volume *int64) (*entities.PricePoint, error)

	// PriceAt returns the latest price point at or before at; nil, nil when none
	PriceAt(ctx context.Context, symbol string, at time.Time) (*entities.PricePoint, error)

	// PriceHistory returns the price points in [start, end], oldest first
	PriceHistory(ctx context.Context, symbol string, start, end time.Time) ([]*entities.PricePoint, error)
}

// PositionHistory is the append-only position log of every account plus
// its current-holdings projection
type PositionHistory interface {
	// RecordPosition appends an event then overwrites the current position.
	// A nil timestamp means now.
	RecordPosition(ctx context.Context, accountID, symbol string, quantity decimal.Decimal, action valueobjects.PositionAction, at *time.Time) (*entities.PositionEvent, error)

	// CurrentPositions reads the projection with a strongly consistent read
	CurrentPositions(ctx context.Context, accountID string) ([]*entities.CurrentPosition, error)

	// PositionsAsOf rebuilds the holdings at a past instant from history only
	PositionsAsOf(ctx context.Context, accountID string, at time.Time) ([]*entities.CurrentPosition, error)

	// EventsFor lists one symbol's events in [start, end], oldest first.
	// Nil bounds default to the epoch and now.
	EventsFor(ctx context.Context, accountID, symbol string, start, end *time.Time) ([]*entities.PositionEvent, error)
}

// JobFilter narrows FindByUser
type JobFilter struct {
	Status *valueobjects.JobStatus
	// Limit defaults to 20 when zero
	Limit int
}

// JobLedger defines the interface for background job records. Update
// methods return the number of records changed: 0 when the job is unknown.
type JobLedger interface {
	Create(ctx context.Context, job *entities.Job) error

	// FindByID returns nil, nil when the job does not exist
	FindByID(ctx context.Context, jobID string) (*entities.Job, error)

	// FindByUser lists a user's jobs newest first
	FindByUser(ctx context.Context, clerkUserID string, filter JobFilter) ([]*entities.Job, error)

	// FindAll lists jobs of every user, unordered; a limit of 0 reads all
	FindAll(ctx context.Context, limit int) ([]*entities.Job, error)

	UpdateStatus(ctx context.Context, jobID string, status valueobjects.JobStatus, errorMessage string) (int, error)
	UpdateReport(ctx context.Context, jobID string, payload entities.Payload) (int, error)
	UpdateCharts(ctx context.Context, jobID string, payload entities.Payload) (int, error)
	UpdateRetirement(ctx context.Context, jobID string, payload entities.Payload) (int, error)
	UpdateSummary(ctx context.Context, jobID string, payload entities.Payload) (int, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

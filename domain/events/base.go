package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gpazevedo/alex/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Source identifies this application on the event bus
const Source = "planner.datastore"

const (
	TypePriceRecorded    = "price.recorded"
	TypePositionRecorded = "position.recorded"
	TypeJobStatusChanged = "job.status_changed"
)

// PriceRecorded is raised after a price point is appended
type PriceRecorded struct {
	BaseEvent
	Symbol  string          `json:"symbol"`
	Price   decimal.Decimal `json:"price"`
	Volume  *int64          `json:"volume,omitempty"`
	EventID string          `json:"event_id"`
}

// NewPriceRecorded creates a PriceRecorded event
func NewPriceRecorded(symbol string, price decimal.Decimal, volume *int64, eventID string, timestamp time.Time) PriceRecorded {
	return PriceRecorded{
		BaseEvent: BaseEvent{
			AggregateID: symbol,
			EventType:   TypePriceRecorded,
			Timestamp:   timestamp,
			Version:     1,
		},
		Symbol:  symbol,
		Price:   price,
		Volume:  volume,
		EventID: eventID,
	}
}

// PositionRecorded is raised after a position event is appended and the
// current projection overwritten
type PositionRecorded struct {
	BaseEvent
	AccountID string                      `json:"account_id"`
	Symbol    string                      `json:"symbol"`
	Quantity  decimal.Decimal             `json:"quantity"`
	Action    valueobjects.PositionAction `json:"action"`
	EventID   string                      `json:"event_id"`
}

// NewPositionRecorded creates a PositionRecorded event
func NewPositionRecorded(accountID, symbol string, quantity decimal.Decimal, action valueobjects.PositionAction, eventID string, timestamp time.Time) PositionRecorded {
	return PositionRecorded{
		BaseEvent: BaseEvent{
			AggregateID: accountID,
			EventType:   TypePositionRecorded,
			Timestamp:   timestamp,
			Version:     1,
		},
		AccountID: accountID,
		Symbol:    symbol,
		Quantity:  quantity,
		Action:    action,
		EventID:   eventID,
	}
}

// JobStatusChanged is raised after a job status update
type JobStatusChanged struct {
	BaseEvent
	JobID        string                 `json:"job_id"`
	UserID       string                 `json:"user_id"`
	Status       valueobjects.JobStatus `json:"status"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// NewJobStatusChanged creates a JobStatusChanged event
func NewJobStatusChanged(jobID, userID string, status valueobjects.JobStatus, errorMessage string, timestamp time.Time) JobStatusChanged {
	return JobStatusChanged{
		BaseEvent: BaseEvent{
			AggregateID: jobID,
			EventType:   TypeJobStatusChanged,
			Timestamp:   timestamp,
			Version:     1,
		},
		JobID:        jobID,
		UserID:       userID,
		Status:       status,
		ErrorMessage: errorMessage,
	}
}

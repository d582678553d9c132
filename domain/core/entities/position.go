package entities

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gpazevedo/alex/domain/core/valueobjects"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/utils"
)

// PositionEvent is one append-only entry of an account's position log.
// Quantity is the resulting holding, not the delta.
type PositionEvent struct {
	AccountID string                      `json:"account_id"`
	Symbol    string                      `json:"symbol"`
	Quantity  decimal.Decimal             `json:"quantity"`
	Action    valueobjects.PositionAction `json:"action"`
	Timestamp time.Time                   `json:"timestamp"`
	AsOfDate  string                      `json:"as_of_date"`
	EventID   string                      `json:"event_id"`
}

// Validate checks the event before it is appended
func (e *PositionEvent) Validate() error {
	if e.AccountID == "" {
		return pkgerrors.NewValidationError("account_id is required")
	}
	if err := utils.ValidateVar(e.AccountID, "keysafe"); err != nil {
		return pkgerrors.NewValidationError("account_id must not contain '#'")
	}
	if err := valueobjects.ValidateSymbol(e.Symbol); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	if e.Quantity.IsNegative() {
		return pkgerrors.NewValidationError("quantity must not be negative")
	}
	if !e.Action.IsValid() {
		return pkgerrors.NewValidationErrorf("invalid action %q", e.Action)
	}
	if e.Timestamp.IsZero() {
		return pkgerrors.NewValidationError("timestamp is required")
	}
	return nil
}

// Current projects the event into the account's current holding
func (e *PositionEvent) Current() CurrentPosition {
	return CurrentPosition{
		AccountID:  e.AccountID,
		Symbol:     e.Symbol,
		Quantity:   e.Quantity,
		LastAction: e.Action,
		Timestamp:  e.Timestamp,
		AsOfDate:   e.AsOfDate,
		EventID:    e.EventID,
	}
}

// CurrentPosition is the latest PositionEvent for an (account, symbol) pair
type CurrentPosition struct {
	AccountID  string                      `json:"account_id"`
	Symbol     string                      `json:"symbol"`
	Quantity   decimal.Decimal             `json:"quantity"`
	LastAction valueobjects.PositionAction `json:"last_action,omitempty"`
	Timestamp  time.Time                   `json:"timestamp"`
	AsOfDate   string                      `json:"as_of_date"`
	EventID    string                      `json:"event_id,omitempty"`
}

// AsOfDate renders the calendar day of t in UTC
func AsOfDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

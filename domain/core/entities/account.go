package entities

import (
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/utils"
)

// Account is an investment account owned by a user
type Account struct {
	ID           string          `json:"id" validate:"required,keysafe"`
	ClerkUserID  string          `json:"clerk_user_id" validate:"required,keysafe"`
	Name         string          `json:"account_name" validate:"required,max=200"`
	Purpose      string          `json:"account_purpose,omitempty" validate:"max=500"`
	CashBalance  decimal.Decimal `json:"cash_balance"`
	CashInterest decimal.Decimal `json:"cash_interest"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Validate checks the account record
func (a *Account) Validate() error {
	if err := utils.ValidateStruct(a); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	if a.CashInterest.IsNegative() {
		return pkgerrors.NewValidationError("cash_interest must not be negative")
	}
	return nil
}

// OwnedBy reports whether the account belongs to the user
func (a *Account) OwnedBy(userID string) bool {
	return a.ClerkUserID == userID
}

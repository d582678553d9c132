package entities

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gpazevedo/alex/domain/core/valueobjects"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/utils"
)

// User is keyed by the external (Clerk) identity
type User struct {
	ClerkUserID            string                  `json:"clerk_user_id" validate:"required,keysafe"`
	DisplayName            string                  `json:"display_name,omitempty" validate:"max=200"`
	YearsUntilRetirement   *int                    `json:"years_until_retirement,omitempty" validate:"omitempty,min=0,max=100"`
	TargetRetirementIncome *decimal.Decimal        `json:"target_retirement_income,omitempty"`
	AssetClassTargets      valueobjects.Allocation `json:"asset_class_targets,omitempty"`
	RegionTargets          valueobjects.Allocation `json:"region_targets,omitempty"`
	CreatedAt              time.Time               `json:"created_at"`
	UpdatedAt              time.Time               `json:"updated_at"`
}

// Validate checks the user record
func (u *User) Validate() error {
	if err := utils.ValidateStruct(u); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	if u.TargetRetirementIncome != nil && u.TargetRetirementIncome.IsNegative() {
		return pkgerrors.NewValidationError("target_retirement_income must not be negative")
	}
	return nil
}

// UserUpdate is a partial update; nil fields are left untouched
type UserUpdate struct {
	DisplayName            *string                 `json:"display_name,omitempty" validate:"omitempty,max=200"`
	YearsUntilRetirement   *int                    `json:"years_until_retirement,omitempty" validate:"omitempty,min=0,max=100"`
	TargetRetirementIncome *decimal.Decimal        `json:"target_retirement_income,omitempty"`
	AssetClassTargets      valueobjects.Allocation `json:"asset_class_targets,omitempty"`
	RegionTargets          valueobjects.Allocation `json:"region_targets,omitempty"`
}

// Validate checks the update
func (u *UserUpdate) Validate() error {
	if err := utils.ValidateStruct(u); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	if u.TargetRetirementIncome != nil && u.TargetRetirementIncome.IsNegative() {
		return pkgerrors.NewValidationError("target_retirement_income must not be negative")
	}
	return nil
}

// IsEmpty reports whether the update sets nothing
func (u *UserUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.YearsUntilRetirement == nil && u.TargetRetirementIncome == nil &&
		u.AssetClassTargets == nil && u.RegionTargets == nil
}

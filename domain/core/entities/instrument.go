package entities

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gpazevedo/alex/domain/core/valueobjects"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/utils"
)

// InstrumentType classifies a tradable instrument
type InstrumentType string

const (
	InstrumentTypeETF    InstrumentType = "etf"
	InstrumentTypeStock  InstrumentType = "stock"
	InstrumentTypeBond   InstrumentType = "bond"
	InstrumentTypeFund   InstrumentType = "mutual_fund"
	InstrumentTypeCrypto InstrumentType = "crypto"
)

// Instrument is a tradable security. CurrentPrice caches the latest
// recorded PricePoint.
type Instrument struct {
	Symbol               string                  `json:"symbol" validate:"required,symbol"`
	Name                 string                  `json:"name" validate:"required,max=200"`
	Type                 InstrumentType          `json:"instrument_type" validate:"required,oneof=etf stock bond mutual_fund crypto"`
	CurrentPrice         decimal.Decimal         `json:"current_price"`
	AllocationRegions    valueobjects.Allocation `json:"allocation_regions"`
	AllocationSectors    valueobjects.Allocation `json:"allocation_sectors"`
	AllocationAssetClass valueobjects.Allocation `json:"allocation_asset_class"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

// Validate checks structural rules. Allocation totals are not enforced here.
func (i *Instrument) Validate() error {
	if err := utils.ValidateStruct(i); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	if i.CurrentPrice.IsNegative() {
		return pkgerrors.NewValidationError("current_price must not be negative")
	}
	for name, alloc := range map[string]valueobjects.Allocation{
		"allocation_regions":     i.AllocationRegions,
		"allocation_sectors":     i.AllocationSectors,
		"allocation_asset_class": i.AllocationAssetClass,
	} {
		for bucket, pct := range alloc {
			if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
				return pkgerrors.NewValidationErrorf("%s.%s must be between 0 and 100", name, bucket)
			}
		}
	}
	return nil
}

// PricePoint is one observation in an instrument's price series
type PricePoint struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Volume    *int64          `json:"volume,omitempty"`
	Source    string          `json:"source,omitempty"`
	EventID   string          `json:"event_id"`
}

// Validate checks the price point before it is appended
func (p *PricePoint) Validate() error {
	if err := valueobjects.ValidateSymbol(p.Symbol); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	if p.Price.IsNegative() {
		return pkgerrors.NewValidationError("price must not be negative")
	}
	if p.Volume != nil && *p.Volume < 0 {
		return pkgerrors.NewValidationError("volume must not be negative")
	}
	if p.Timestamp.IsZero() {
		return pkgerrors.NewValidationError("timestamp is required")
	}
	return nil
}

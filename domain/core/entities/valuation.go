package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Valuation summarizes an account's worth at a point in time
type Valuation struct {
	AccountID    string          `json:"account_id"`
	TotalValue   decimal.Decimal `json:"total_value"`
	NumPositions int             `json:"num_positions"`
	TotalShares  decimal.Decimal `json:"total_shares"`
	AsOf         time.Time       `json:"as_of_date"`
	Positions    []PositionValue `json:"positions"`
}

// PositionValue is the contribution of one holding. Price is nil when no
// price was recorded at or before the valuation time.
type PositionValue struct {
	Symbol   string           `json:"symbol"`
	Quantity decimal.Decimal  `json:"quantity"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	PricedAt *time.Time       `json:"priced_at,omitempty"`
	Value    decimal.Decimal  `json:"value"`
}

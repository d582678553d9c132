package valueobjects

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Allocation maps a bucket (region, sector, asset class) to a percentage.
// Values are expected to sum to 100, which callers check with SumsTo100.
type Allocation map[string]decimal.Decimal

// Total sums every percentage
func (a Allocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, pct := range a {
		total = total.Add(pct)
	}
	return total
}

// SumsTo100 reports whether the percentages add up to 100 within tolerance
func (a Allocation) SumsTo100(tolerance decimal.Decimal) bool {
	return a.Total().Sub(hundred).Abs().LessThanOrEqual(tolerance)
}

// Keys returns the buckets in sorted order
func (a Allocation) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal compares two allocations numerically
func (a Allocation) Equal(other Allocation) bool {
	if len(a) != len(other) {
		return false
	}
	for k, v := range a {
		o, ok := other[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

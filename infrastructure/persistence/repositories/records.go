// Package repositories maps planner entities onto the single-table layout
// described in package keys. Repositories depend only on abstractions.Table,
// so the same code runs against DynamoDB and the in-memory table.
package repositories

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/infrastructure/persistence/keys"
)

// Number stores a decimal as a DynamoDB N attribute without going through
// float64.
type Number struct {
	decimal.Decimal
}

func num(d decimal.Decimal) Number { return Number{Decimal: d} }

func numPtr(d *decimal.Decimal) *Number {
	if d == nil {
		return nil
	}
	return &Number{Decimal: *d}
}

// MarshalDynamoDBAttributeValue implements attributevalue.Marshaler
func (n Number) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: n.Decimal.String()}, nil
}

// UnmarshalDynamoDBAttributeValue implements attributevalue.Unmarshaler
func (n *Number) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	case *types.AttributeValueMemberNULL:
		n.Decimal = decimal.Zero
		return nil
	default:
		return fmt.Errorf("cannot decode %T as a number", av)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", raw, err)
	}
	n.Decimal = d
	return nil
}

func numberMap(a valueobjects.Allocation) map[string]Number {
	if a == nil {
		return nil
	}
	out := make(map[string]Number, len(a))
	for k, v := range a {
		out[k] = num(v)
	}
	return out
}

func allocation(m map[string]Number) valueobjects.Allocation {
	if m == nil {
		return nil
	}
	out := make(valueobjects.Allocation, len(m))
	for k, v := range m {
		out[k] = v.Decimal
	}
	return out
}

func decimalPtr(n *Number) *decimal.Decimal {
	if n == nil {
		return nil
	}
	d := n.Decimal
	return &d
}

// Timestamps are stored in key format so stored values sort like keys.

func formatTime(t time.Time) string { return keys.FormatTimestamp(t) }

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return keys.FormatTimestamp(*t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := keys.ParseTimestamp(s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

// Option configures a repository
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock replaces time.Now, mainly for tests
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func applyOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) now() time.Time {
	return o.clock().UTC()
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

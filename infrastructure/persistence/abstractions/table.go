package abstractions

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a raw table record as produced by attributevalue.MarshalMap.
type Item = map[string]types.AttributeValue

// ErrConditionFailed is returned when a conditional write finds the record
// absent (or present, for create-only writes).
var ErrConditionFailed = errors.New("conditional check failed")

// ErrStale is returned when an UpdateInput.Guard rejects the update because
// the record already holds a newer value.
var ErrStale = errors.New("record holds a newer value")

// TableStatusActive is the status reported by a ready table.
const TableStatusActive = "ACTIVE"

// Table provides the key-value/range-query primitives the repositories need.
// Implementations must return items ordered by sort key for Query.
type Table interface {
	// Schema describes the key attributes and indexes of the table
	Schema() TableSchema

	// Get reads a single record; a missing record yields (nil, nil)
	Get(ctx context.Context, key Key, consistent bool) (Item, error)

	// Put writes (overwrites) a full record
	Put(ctx context.Context, item Item) error

	// Update sets individual attributes on a record
	Update(ctx context.Context, input UpdateInput) error

	// Query reads records of one partition (of the table or of an index)
	Query(ctx context.Context, input QueryInput) ([]Item, error)

	// Scan reads the whole table, optionally filtered on the sort key
	Scan(ctx context.Context, input ScanInput) ([]Item, error)

	// BatchGet reads many records by primary key; missing keys are skipped
	BatchGet(ctx context.Context, keys []Key) ([]Item, error)

	// Status reports the table status (ACTIVE when ready)
	Status(ctx context.Context) (string, error)
}

// TableSchema names the key attributes of a table and its indexes.
type TableSchema struct {
	Name         string
	PartitionKey string
	SortKey      string
	Indexes      map[string]IndexSchema
}

// IndexSchema describes a secondary index. Local indexes share the table's
// partition key and support strongly consistent reads.
type IndexSchema struct {
	PartitionKey string
	SortKey      string
	Local        bool
}

// Index returns the key attributes used by the named index ("" is the table).
func (s TableSchema) Index(name string) (IndexSchema, bool) {
	if name == "" {
		return IndexSchema{PartitionKey: s.PartitionKey, SortKey: s.SortKey, Local: true}, true
	}
	idx, ok := s.Indexes[name]
	return idx, ok
}

// Key is a primary key value pair.
type Key struct {
	PartitionKey string
	SortKey      string
}

// SortOperator defines a sort key condition
type SortOperator string

const (
	SortAny            SortOperator = ""
	SortEqual          SortOperator = "eq"
	SortBeginsWith     SortOperator = "begins_with"
	SortBetween        SortOperator = "between"
	SortLessOrEqual    SortOperator = "lte"
	SortGreaterOrEqual SortOperator = "gte"
)

// SortCondition restricts the sort key of a query or scan.
type SortCondition struct {
	Operator SortOperator
	Value    string
	Upper    string
}

func Equal(v string) SortCondition          { return SortCondition{Operator: SortEqual, Value: v} }
func BeginsWith(p string) SortCondition     { return SortCondition{Operator: SortBeginsWith, Value: p} }
func Between(lo, hi string) SortCondition   { return SortCondition{Operator: SortBetween, Value: lo, Upper: hi} }
func LessOrEqual(v string) SortCondition    { return SortCondition{Operator: SortLessOrEqual, Value: v} }
func GreaterOrEqual(v string) SortCondition { return SortCondition{Operator: SortGreaterOrEqual, Value: v} }

// Matches reports whether a sort key value satisfies the condition.
func (c SortCondition) Matches(v string) bool {
	switch c.Operator {
	case SortAny:
		return true
	case SortEqual:
		return v == c.Value
	case SortBeginsWith:
		return len(v) >= len(c.Value) && v[:len(c.Value)] == c.Value
	case SortBetween:
		return v >= c.Value && v <= c.Upper
	case SortLessOrEqual:
		return v <= c.Value
	case SortGreaterOrEqual:
		return v >= c.Value
	default:
		return false
	}
}

// QueryInput describes a single-partition range query.
type QueryInput struct {
	// Index is the secondary index name, empty for the base table
	Index          string
	PartitionValue string
	Sort           SortCondition
	Descending     bool
	// Limit caps the number of returned items; 0 reads every page
	Limit          int
	ConsistentRead bool
}

// ScanInput describes a full table scan.
type ScanInput struct {
	Sort  SortCondition
	Limit int
}

// UpdateInput sets attributes on one record. Values are plain Go values
// marshaled with attributevalue.
type UpdateInput struct {
	Key Key
	Set map[string]interface{}
	// RequireExists fails with ErrConditionFailed when the record is absent
	RequireExists bool
	// Guard, when set, skips the update with ErrStale unless the guarded
	// attribute is absent or not greater than the guard value
	Guard *Guard
}

// Guard orders updates by a string attribute, such as a fixed-width
// timestamp.
type Guard struct {
	Attribute string
	Value     string
}

// Allows reports whether a record whose guarded attribute holds stored (ok
// false when absent) may be updated.
func (g *Guard) Allows(stored string, ok bool) bool {
	return g == nil || !ok || stored <= g.Value
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
)

// Table provides an in-memory implementation of abstractions.Table. It keeps
// DynamoDB semantics that the repositories rely on: sort-key ordering,
// sparse secondary indexes and conditional updates.
type Table struct {
	mu     sync.RWMutex
	schema abstractions.TableSchema
	items  map[string]map[string]abstractions.Item

	failures map[string][]error
}

var _ abstractions.Table = (*Table)(nil)

// NewTable creates an empty in-memory table
func NewTable(schema abstractions.TableSchema) *Table {
	return &Table{
		schema:   schema,
		items:    make(map[string]map[string]abstractions.Item),
		failures: make(map[string][]error),
	}
}

// FailNext makes the next call of the named operation ("Get", "Put",
// "Update", "Query", "Scan", "BatchGet", "Status") return err.
func (t *Table) FailNext(operation string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[operation] = append(t.failures[operation], err)
}

// Len returns the number of stored records
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, partition := range t.items {
		n += len(partition)
	}
	return n
}

func (t *Table) Schema() abstractions.TableSchema {
	return t.schema
}

func (t *Table) Get(ctx context.Context, key abstractions.Key, consistent bool) (abstractions.Item, error) {
	if err := t.injected("Get"); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	item, ok := t.items[key.PartitionKey][key.SortKey]
	if !ok {
		return nil, nil
	}
	return copyItem(item), nil
}

func (t *Table) Put(ctx context.Context, item abstractions.Item) error {
	if err := t.injected("Put"); err != nil {
		return err
	}

	key, err := t.keyOf(item)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.store(key, copyItem(item))
	return nil
}

func (t *Table) Update(ctx context.Context, input abstractions.UpdateInput) error {
	if err := t.injected("Update"); err != nil {
		return err
	}

	values := make(abstractions.Item, len(input.Set))
	for name, v := range input.Set {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", name, err)
		}
		values[name] = av
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.items[input.Key.PartitionKey][input.Key.SortKey]
	if !ok {
		if input.RequireExists {
			return abstractions.ErrConditionFailed
		}
		existing = abstractions.Item{
			t.schema.PartitionKey: &types.AttributeValueMemberS{Value: input.Key.PartitionKey},
			t.schema.SortKey:      &types.AttributeValueMemberS{Value: input.Key.SortKey},
		}
	}

	if input.Guard != nil {
		stored, ok := stringAttr(existing, input.Guard.Attribute)
		if !input.Guard.Allows(stored, ok) {
			return abstractions.ErrStale
		}
	}

	updated := copyItem(existing)
	for name, av := range values {
		updated[name] = av
	}
	t.store(input.Key, updated)
	return nil
}

func (t *Table) Query(ctx context.Context, input abstractions.QueryInput) ([]abstractions.Item, error) {
	if err := t.injected("Query"); err != nil {
		return nil, err
	}

	index, ok := t.schema.Index(input.Index)
	if !ok {
		return nil, fmt.Errorf("unknown index %q on table %s", input.Index, t.schema.Name)
	}

	t.mu.RLock()
	var matches []abstractions.Item
	for _, partition := range t.items {
		for _, item := range partition {
			pk, ok := stringAttr(item, index.PartitionKey)
			if !ok || pk != input.PartitionValue {
				continue
			}
			sk, ok := stringAttr(item, index.SortKey)
			if !ok || !input.Sort.Matches(sk) {
				continue
			}
			matches = append(matches, copyItem(item))
		}
	}
	t.mu.RUnlock()

	t.order(matches, index, input.Descending)

	if input.Limit > 0 && len(matches) > input.Limit {
		matches = matches[:input.Limit]
	}
	return matches, nil
}

func (t *Table) Scan(ctx context.Context, input abstractions.ScanInput) ([]abstractions.Item, error) {
	if err := t.injected("Scan"); err != nil {
		return nil, err
	}

	t.mu.RLock()
	var matches []abstractions.Item
	for _, partition := range t.items {
		for sk, item := range partition {
			if input.Sort.Matches(sk) {
				matches = append(matches, copyItem(item))
			}
		}
	}
	t.mu.RUnlock()

	base, _ := t.schema.Index("")
	t.order(matches, base, false)

	if input.Limit > 0 && len(matches) > input.Limit {
		matches = matches[:input.Limit]
	}
	return matches, nil
}

func (t *Table) BatchGet(ctx context.Context, keys []abstractions.Key) ([]abstractions.Item, error) {
	if err := t.injected("BatchGet"); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []abstractions.Item
	for _, key := range keys {
		if item, ok := t.items[key.PartitionKey][key.SortKey]; ok {
			out = append(out, copyItem(item))
		}
	}
	return out, nil
}

func (t *Table) Status(ctx context.Context) (string, error) {
	if err := t.injected("Status"); err != nil {
		return "", err
	}
	return abstractions.TableStatusActive, nil
}

func (t *Table) injected(operation string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	queue := t.failures[operation]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	t.failures[operation] = queue[1:]
	return err
}

func (t *Table) keyOf(item abstractions.Item) (abstractions.Key, error) {
	pk, ok := stringAttr(item, t.schema.PartitionKey)
	if !ok {
		return abstractions.Key{}, fmt.Errorf("item is missing partition key %s", t.schema.PartitionKey)
	}
	sk, ok := stringAttr(item, t.schema.SortKey)
	if !ok {
		return abstractions.Key{}, fmt.Errorf("item is missing sort key %s", t.schema.SortKey)
	}
	return abstractions.Key{PartitionKey: pk, SortKey: sk}, nil
}

// store must be called with the write lock held
func (t *Table) store(key abstractions.Key, item abstractions.Item) {
	partition, ok := t.items[key.PartitionKey]
	if !ok {
		partition = make(map[string]abstractions.Item)
		t.items[key.PartitionKey] = partition
	}
	partition[key.SortKey] = item
}

// order sorts by the index sort key, then by the table key so that
// duplicates on an index are returned deterministically.
func (t *Table) order(items []abstractions.Item, index abstractions.IndexSchema, descending bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a := sortTuple(items[i], index.SortKey, t.schema.PartitionKey, t.schema.SortKey)
		b := sortTuple(items[j], index.SortKey, t.schema.PartitionKey, t.schema.SortKey)
		for k := range a {
			if a[k] != b[k] {
				if descending {
					return a[k] > b[k]
				}
				return a[k] < b[k]
			}
		}
		return false
	})
}

func sortTuple(item abstractions.Item, names ...string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i], _ = stringAttr(item, name)
	}
	return out
}

func stringAttr(item abstractions.Item, name string) (string, bool) {
	s, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func copyItem(item abstractions.Item) abstractions.Item {
	out := make(abstractions.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

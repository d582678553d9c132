package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/observability"
)

// maxBatchGetKeys is the BatchGetItem request limit.
const maxBatchGetKeys = 100

// Table implements abstractions.Table on top of a DynamoDB table. Every call
// goes through a circuit breaker and is retried with backoff when DynamoDB
// reports a transient failure.
type Table struct {
	api     API
	schema  abstractions.TableSchema
	logger  *zap.Logger
	retry   RetryConfig
	breaker *gobreaker.CircuitBreaker
	// breakerTimeout is how long the breaker stays open
	breakerTimeout time.Duration
	metrics *observability.Collector
	tracer  trace.Tracer
}

var _ abstractions.Table = (*Table)(nil)

// Option configures a Table
type Option func(*Table)

// WithRetryConfig overrides the default retry policy
func WithRetryConfig(cfg RetryConfig) Option {
	return func(t *Table) { t.retry = cfg }
}

// WithMetrics records per-operation metrics
func WithMetrics(c *observability.Collector) Option {
	return func(t *Table) { t.metrics = c }
}

// WithTracer sets the tracer used for store spans
func WithTracer(tr trace.Tracer) Option {
	return func(t *Table) { t.tracer = tr }
}

// WithBreakerSettings replaces the circuit breaker settings
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(t *Table) {
		t.breaker = gobreaker.NewCircuitBreaker(settings)
		t.breakerTimeout = settings.Timeout
	}
}

// NewTable creates a DynamoDB-backed table
func NewTable(api API, schema abstractions.TableSchema, logger *zap.Logger, opts ...Option) *Table {
	t := &Table{
		api:    api,
		schema: schema,
		logger: logger,
		retry:  DefaultRetryConfig(),
		tracer: observability.Tracer("github.com/gpazevedo/alex/infrastructure/persistence/dynamodb"),
	}
	settings := DefaultBreakerSettings(schema.Name, logger)
	t.breaker = gobreaker.NewCircuitBreaker(settings)
	t.breakerTimeout = settings.Timeout

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DefaultBreakerSettings opens the breaker after repeated transient failures.
// Conditional check failures and validation errors do not count.
func DefaultBreakerSettings(name string, logger *zap.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "dynamodb-" + name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryableAWSError(err)
		},
	}
}

func (t *Table) Schema() abstractions.TableSchema {
	return t.schema
}

func (t *Table) Get(ctx context.Context, key abstractions.Key, consistent bool) (abstractions.Item, error) {
	var out *dynamodb.GetItemOutput
	err := t.execute(ctx, "GetItem", func(ctx context.Context) error {
		var err error
		out, err = t.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(t.schema.Name),
			Key:            t.keyItem(key),
			ConsistentRead: aws.Bool(consistent),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

func (t *Table) Put(ctx context.Context, item abstractions.Item) error {
	return t.execute(ctx, "PutItem", func(ctx context.Context) error {
		_, err := t.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(t.schema.Name),
			Item:      item,
		})
		return err
	})
}

func (t *Table) Update(ctx context.Context, input abstractions.UpdateInput) error {
	if len(input.Set) == 0 {
		return pkgerrors.NewValidationError("update requires at least one attribute")
	}

	names := make([]string, 0, len(input.Set))
	for name := range input.Set {
		names = append(names, name)
	}
	sort.Strings(names)

	update := expression.Set(expression.Name(names[0]), expression.Value(input.Set[names[0]]))
	for _, name := range names[1:] {
		update = update.Set(expression.Name(name), expression.Value(input.Set[name]))
	}

	builder := expression.NewBuilder().WithUpdate(update)
	if cond, ok := t.updateCondition(input); ok {
		builder = builder.WithCondition(cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build update expression: %w", err)
	}

	req := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.schema.Name),
		Key:                       t.keyItem(input.Key),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if input.Guard != nil {
		// the old item tells a guard rejection apart from a missing record
		req.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	}

	stale := false
	err = t.execute(ctx, "UpdateItem", func(ctx context.Context) error {
		_, err := t.api.UpdateItem(ctx, req)
		var conditionFailed *types.ConditionalCheckFailedException
		if input.Guard != nil && errors.As(err, &conditionFailed) && len(conditionFailed.Item) > 0 {
			stale = true
		}
		return err
	})
	if stale && errors.Is(err, abstractions.ErrConditionFailed) {
		return abstractions.ErrStale
	}
	return err
}

func (t *Table) updateCondition(input abstractions.UpdateInput) (expression.ConditionBuilder, bool) {
	var cond expression.ConditionBuilder
	ok := false
	if input.RequireExists {
		cond = expression.AttributeExists(expression.Name(t.schema.PartitionKey))
		ok = true
	}
	if input.Guard != nil {
		attr := expression.Name(input.Guard.Attribute)
		guard := expression.AttributeNotExists(attr).Or(attr.LessThanEqual(expression.Value(input.Guard.Value)))
		if ok {
			cond = cond.And(guard)
		} else {
			cond = guard
		}
		ok = true
	}
	return cond, ok
}

func (t *Table) Query(ctx context.Context, input abstractions.QueryInput) ([]abstractions.Item, error) {
	index, ok := t.schema.Index(input.Index)
	if !ok {
		return nil, pkgerrors.NewValidationErrorf("unknown index %q on table %s", input.Index, t.schema.Name)
	}

	keyCond := expression.Key(index.PartitionKey).Equal(expression.Value(input.PartitionValue))
	if sortCond, ok := keySortCondition(index.SortKey, input.Sort); ok {
		keyCond = keyCond.And(sortCond)
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	req := &dynamodb.QueryInput{
		TableName:                 aws.String(t.schema.Name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!input.Descending),
	}
	if input.Index != "" {
		req.IndexName = aws.String(input.Index)
	}
	// Global indexes cannot serve strongly consistent reads
	if input.ConsistentRead && index.Local {
		req.ConsistentRead = aws.Bool(true)
	}

	var items []abstractions.Item
	for {
		if input.Limit > 0 {
			req.Limit = aws.Int32(int32(input.Limit - len(items)))
		}

		var out *dynamodb.QueryOutput
		err := t.execute(ctx, "Query", func(ctx context.Context) error {
			var err error
			out, err = t.api.Query(ctx, req)
			return err
		})
		if err != nil {
			return nil, err
		}

		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 || (input.Limit > 0 && len(items) >= input.Limit) {
			break
		}
		req.ExclusiveStartKey = out.LastEvaluatedKey
	}

	if input.Limit > 0 && len(items) > input.Limit {
		items = items[:input.Limit]
	}

	t.logger.Debug("Queried table",
		zap.String("table", t.schema.Name),
		zap.String("index", input.Index),
		zap.Int("count", len(items)),
	)
	return items, nil
}

func (t *Table) Scan(ctx context.Context, input abstractions.ScanInput) ([]abstractions.Item, error) {
	req := &dynamodb.ScanInput{
		TableName: aws.String(t.schema.Name),
	}
	if filter, ok := filterSortCondition(t.schema.SortKey, input.Sort); ok {
		expr, err := expression.NewBuilder().WithFilter(filter).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build scan filter: %w", err)
		}
		req.FilterExpression = expr.Filter()
		req.ExpressionAttributeNames = expr.Names()
		req.ExpressionAttributeValues = expr.Values()
	}

	var items []abstractions.Item
	for {
		var out *dynamodb.ScanOutput
		err := t.execute(ctx, "Scan", func(ctx context.Context) error {
			var err error
			out, err = t.api.Scan(ctx, req)
			return err
		})
		if err != nil {
			return nil, err
		}

		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 || (input.Limit > 0 && len(items) >= input.Limit) {
			break
		}
		req.ExclusiveStartKey = out.LastEvaluatedKey
	}

	if input.Limit > 0 && len(items) > input.Limit {
		items = items[:input.Limit]
	}
	return items, nil
}

func (t *Table) BatchGet(ctx context.Context, keys []abstractions.Key) ([]abstractions.Item, error) {
	var items []abstractions.Item

	for start := 0; start < len(keys); start += maxBatchGetKeys {
		end := start + maxBatchGetKeys
		if end > len(keys) {
			end = len(keys)
		}

		requestKeys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, key := range keys[start:end] {
			requestKeys = append(requestKeys, t.keyItem(key))
		}

		pending := map[string]types.KeysAndAttributes{
			t.schema.Name: {Keys: requestKeys},
		}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt >= t.retry.MaxAttempts && attempt > 0 {
				return nil, pkgerrors.NewTransientError("BatchGetItem",
					fmt.Errorf("%d keys left unprocessed", len(pending[t.schema.Name].Keys)))
			}
			if attempt > 0 {
				if err := sleep(ctx, t.retry.calculateDelay(attempt-1)); err != nil {
					return nil, err
				}
			}

			var out *dynamodb.BatchGetItemOutput
			err := t.execute(ctx, "BatchGetItem", func(ctx context.Context) error {
				var err error
				out, err = t.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
				return err
			})
			if err != nil {
				return nil, err
			}

			items = append(items, out.Responses[t.schema.Name]...)
			pending = out.UnprocessedKeys
		}
	}

	return items, nil
}

func (t *Table) Status(ctx context.Context) (string, error) {
	var out *dynamodb.DescribeTableOutput
	err := t.execute(ctx, "DescribeTable", func(ctx context.Context) error {
		var err error
		out, err = t.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.schema.Name)})
		return err
	})
	if err != nil {
		return "", err
	}
	if out.Table == nil {
		return "", pkgerrors.NewNotFoundError("table " + t.schema.Name)
	}
	return string(out.Table.TableStatus), nil
}

// CreateIfMissing provisions the table when it does not exist yet. It is
// meant for local endpoints; deployed tables are managed outside the app.
func (t *Table) CreateIfMissing(ctx context.Context, input *dynamodb.CreateTableInput) (bool, error) {
	_, err := t.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.schema.Name)})
	if err == nil {
		return false, nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return false, pkgerrors.NewDatabaseError("DescribeTable", err)
	}

	if _, err := t.api.CreateTable(ctx, input); err != nil {
		return false, pkgerrors.NewDatabaseError("CreateTable", err)
	}
	t.logger.Info("Created table", zap.String("table", t.schema.Name))
	return true, nil
}

// execute runs one DynamoDB call with tracing, metrics, the circuit breaker
// and retries, then classifies the resulting error.
func (t *Table) execute(ctx context.Context, operation string, call func(ctx context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, "dynamodb."+operation, trace.WithAttributes(
		attribute.String("db.system", "dynamodb"),
		attribute.String("db.operation", operation),
		attribute.String("aws.dynamodb.table_names", t.schema.Name),
	))
	start := time.Now()

	err := retryWithBackoff(ctx, t.retry, isRetryableAWSError,
		func(attempt int, err error) {
			t.metrics.RecordStoreRetry(operation, t.schema.Name)
			t.logger.Warn("Retrying DynamoDB operation",
				zap.String("operation", operation),
				zap.String("table", t.schema.Name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
		func() error {
			_, err := t.breaker.Execute(func() (interface{}, error) {
				return nil, call(ctx)
			})
			return err
		},
	)

	err = t.classify(operation, err)
	t.metrics.RecordStoreOperation(operation, t.schema.Name, time.Since(start), err)
	observability.EndSpan(span, err)
	return err
}

func (t *Table) classify(operation string, err error) error {
	if err == nil {
		return nil
	}

	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return abstractions.ErrConditionFailed
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.NewCircuitOpenError(operation, err, t.breakerTimeout)
	}

	if isRetryableAWSError(err) {
		t.logger.Error("DynamoDB operation failed after retries",
			zap.String("operation", operation),
			zap.String("table", t.schema.Name),
			zap.Error(err),
		)
		return pkgerrors.NewTransientError(operation, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return pkgerrors.NewDatabaseError(operation, err)
}

func (t *Table) keyItem(key abstractions.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		t.schema.PartitionKey: &types.AttributeValueMemberS{Value: key.PartitionKey},
		t.schema.SortKey:      &types.AttributeValueMemberS{Value: key.SortKey},
	}
}

func keySortCondition(attr string, cond abstractions.SortCondition) (expression.KeyConditionBuilder, bool) {
	key := expression.Key(attr)
	switch cond.Operator {
	case abstractions.SortEqual:
		return key.Equal(expression.Value(cond.Value)), true
	case abstractions.SortBeginsWith:
		return key.BeginsWith(cond.Value), true
	case abstractions.SortBetween:
		return key.Between(expression.Value(cond.Value), expression.Value(cond.Upper)), true
	case abstractions.SortLessOrEqual:
		return key.LessThanEqual(expression.Value(cond.Value)), true
	case abstractions.SortGreaterOrEqual:
		return key.GreaterThanEqual(expression.Value(cond.Value)), true
	default:
		return expression.KeyConditionBuilder{}, false
	}
}

func filterSortCondition(attr string, cond abstractions.SortCondition) (expression.ConditionBuilder, bool) {
	name := expression.Name(attr)
	switch cond.Operator {
	case abstractions.SortEqual:
		return name.Equal(expression.Value(cond.Value)), true
	case abstractions.SortBeginsWith:
		return name.BeginsWith(cond.Value), true
	case abstractions.SortBetween:
		return name.Between(expression.Value(cond.Value), expression.Value(cond.Upper)), true
	case abstractions.SortLessOrEqual:
		return name.LessThanEqual(expression.Value(cond.Value)), true
	case abstractions.SortGreaterOrEqual:
		return name.GreaterThanEqual(expression.Value(cond.Value)), true
	default:
		return expression.ConditionBuilder{}, false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
	"github.com/gpazevedo/alex/infrastructure/persistence/keys"
	"github.com/gpazevedo/alex/infrastructure/persistence/schema"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
)

// PositionRepository stores an account's position log (HISTORY#) and its
// current-holdings projection (CURRENT#) in the account partition. LSI1
// orders the log by time across symbols.
type PositionRepository struct {
	table   abstractions.Table
	indexes schema.IndexNames
	logger  *zap.Logger
	opts    options
}

var _ ports.PositionHistory = (*PositionRepository)(nil)

// NewPositionRepository creates a new PositionRepository
func NewPositionRepository(table abstractions.Table, indexes schema.IndexNames, logger *zap.Logger, opts ...Option) *PositionRepository {
	return &PositionRepository{table: table, indexes: indexes, logger: loggerOrNop(logger), opts: applyOptions(opts)}
}

type positionEventItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	LSI1SK    string `dynamodbav:"LSI1SK"`
	AccountID string `dynamodbav:"account_id"`
	Symbol    string `dynamodbav:"symbol"`
	Quantity  Number `dynamodbav:"quantity"`
	Action    string `dynamodbav:"action"`
	Timestamp string `dynamodbav:"timestamp"`
	AsOfDate  string `dynamodbav:"as_of_date"`
	EventID   string `dynamodbav:"event_id"`
}

func (i positionEventItem) toEntity() *entities.PositionEvent {
	return &entities.PositionEvent{
		AccountID: i.AccountID,
		Symbol:    i.Symbol,
		Quantity:  i.Quantity.Decimal,
		Action:    valueobjects.PositionAction(i.Action),
		Timestamp: parseTime(i.Timestamp),
		AsOfDate:  i.AsOfDate,
		EventID:   i.EventID,
	}
}

type currentPositionItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	AccountID string `dynamodbav:"account_id"`
	Symbol    string `dynamodbav:"symbol"`
	Quantity  Number `dynamodbav:"quantity"`
	Action    string `dynamodbav:"last_action,omitempty"`
	Timestamp string `dynamodbav:"timestamp"`
	AsOfDate  string `dynamodbav:"as_of_date"`
	EventID   string `dynamodbav:"event_id,omitempty"`
}

func (i currentPositionItem) toEntity() *entities.CurrentPosition {
	return &entities.CurrentPosition{
		AccountID:  i.AccountID,
		Symbol:     i.Symbol,
		Quantity:   i.Quantity.Decimal,
		LastAction: valueobjects.PositionAction(i.Action),
		Timestamp:  parseTime(i.Timestamp),
		AsOfDate:   i.AsOfDate,
		EventID:    i.EventID,
	}
}

// RecordPosition appends a PositionEvent, then overwrites the CURRENT#
// projection with the same timestamp. A failure between the two writes
// leaves the history ahead of the projection; PositionsAsOf reads history
// only and is unaffected.
func (r *PositionRepository) RecordPosition(ctx context.Context, accountID, symbol string, quantity decimal.Decimal, action valueobjects.PositionAction, at *time.Time) (*entities.PositionEvent, error) {
	ts := r.opts.now()
	if at != nil {
		ts = at.UTC()
	}
	if action == "" {
		action = valueobjects.ActionUpdate
	}

	event := &entities.PositionEvent{
		AccountID: accountID,
		Symbol:    keys.NormalizeSymbol(symbol),
		Quantity:  quantity,
		Action:    action,
		Timestamp: ts,
		AsOfDate:  entities.AsOfDate(ts),
		EventID:   keys.NewEventID(),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	history, err := attributevalue.MarshalMap(positionEventItem{
		PK:        keys.AccountPK(event.AccountID),
		SK:        keys.PositionHistorySK(event.Symbol, event.Timestamp, event.EventID),
		LSI1SK:    keys.PositionHistoryLSISK(event.Timestamp, event.Symbol, event.EventID),
		AccountID: event.AccountID,
		Symbol:    event.Symbol,
		Quantity:  num(event.Quantity),
		Action:    string(event.Action),
		Timestamp: formatTime(event.Timestamp),
		AsOfDate:  event.AsOfDate,
		EventID:   event.EventID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal position event: %w", err)
	}

	current, err := attributevalue.MarshalMap(currentPositionItem{
		PK:        keys.AccountPK(event.AccountID),
		SK:        keys.CurrentSK(event.Symbol),
		AccountID: event.AccountID,
		Symbol:    event.Symbol,
		Quantity:  num(event.Quantity),
		Action:    string(event.Action),
		Timestamp: formatTime(event.Timestamp),
		AsOfDate:  event.AsOfDate,
		EventID:   event.EventID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal current position: %w", err)
	}

	if err := r.table.Put(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to append position event: %w", err)
	}

	if err := r.table.Put(ctx, current); err != nil {
		r.logger.Warn("Position event appended but projection not updated",
			zap.String("accountID", event.AccountID),
			zap.String("symbol", event.Symbol),
			zap.String("eventID", event.EventID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to update current position: %w", err)
	}

	r.logger.Info("Position recorded",
		zap.String("accountID", event.AccountID),
		zap.String("symbol", event.Symbol),
		zap.String("quantity", event.Quantity.String()),
		zap.String("action", string(event.Action)),
	)
	return event, nil
}

// CurrentPositions reads the CURRENT# projection with a strongly consistent
// read, ordered by symbol.
func (r *PositionRepository) CurrentPositions(ctx context.Context, accountID string) ([]*entities.CurrentPosition, error) {
	if err := keys.ValidateIdentifier("account_id", accountID); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	items, err := r.table.Query(ctx, abstractions.QueryInput{
		PartitionValue: keys.AccountPK(accountID),
		Sort:           abstractions.BeginsWith(keys.CurrentPrefix),
		ConsistentRead: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query current positions: %w", err)
	}

	positions := make([]*entities.CurrentPosition, 0, len(items))
	for _, item := range items {
		var record currentPositionItem
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal current position: %w", err)
		}
		positions = append(positions, record.toEntity())
	}
	return positions, nil
}

// PositionsAsOf rebuilds the holdings at an instant by reducing every event
// with timestamp <= at, keeping the latest per symbol. It never reads the
// projection.
func (r *PositionRepository) PositionsAsOf(ctx context.Context, accountID string, at time.Time) ([]*entities.CurrentPosition, error) {
	if err := keys.ValidateIdentifier("account_id", accountID); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	lower, upper := keys.HistoryAsOfRange(at)
	items, err := r.table.Query(ctx, abstractions.QueryInput{
		Index:          r.indexes.LSI1,
		PartitionValue: keys.AccountPK(accountID),
		Sort:           abstractions.Between(lower, upper),
		ConsistentRead: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query position history: %w", err)
	}

	latest := make(map[string]*entities.PositionEvent)
	for _, item := range items {
		var record positionEventItem
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal position event: %w", err)
		}
		event := record.toEntity()
		if event.Timestamp.After(at) {
			continue
		}
		prev, ok := latest[event.Symbol]
		if !ok || laterEvent(event, prev) {
			latest[event.Symbol] = event
		}
	}

	positions := make([]*entities.CurrentPosition, 0, len(latest))
	for _, event := range latest {
		position := event.Current()
		positions = append(positions, &position)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	r.logger.Debug("Positions rebuilt from history",
		zap.String("accountID", accountID),
		zap.Time("asOf", at),
		zap.Int("events", len(items)),
		zap.Int("positions", len(positions)),
	)
	return positions, nil
}

// laterEvent orders events by timestamp, then by their time-ordered id
func laterEvent(a, b *entities.PositionEvent) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.EventID > b.EventID
}

// EventsFor lists one symbol's events in [start, end], oldest first.
// Nil bounds default to the epoch and now.
func (r *PositionRepository) EventsFor(ctx context.Context, accountID, symbol string, start, end *time.Time) ([]*entities.PositionEvent, error) {
	if err := keys.ValidateIdentifier("account_id", accountID); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	symbol = keys.NormalizeSymbol(symbol)
	if err := keys.ValidateSymbol(symbol); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	from := time.Unix(0, 0).UTC()
	if start != nil {
		from = start.UTC()
	}
	to := r.opts.now()
	if end != nil {
		to = end.UTC()
	}
	if to.Before(from) {
		return nil, pkgerrors.NewValidationError("end must not be before start")
	}

	lower, upper := keys.SymbolHistoryRange(symbol, from, to)
	items, err := r.table.Query(ctx, abstractions.QueryInput{
		PartitionValue: keys.AccountPK(accountID),
		Sort:           abstractions.Between(lower, upper),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query position events: %w", err)
	}

	events := make([]*entities.PositionEvent, 0, len(items))
	for _, item := range items {
		var record positionEventItem
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal position event: %w", err)
		}
		events = append(events, record.toEntity())
	}
	return events, nil
}

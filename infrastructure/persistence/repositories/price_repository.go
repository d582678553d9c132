package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
	"github.com/gpazevedo/alex/infrastructure/persistence/keys"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
)

// Price point sources
const (
	SourceUpdate = "update"
	SourceSeed   = "seed"
)

// PriceRepository keeps each instrument's price series next to its metadata:
// <symbol> / PRICE#<ts>#<eventID>.
type PriceRepository struct {
	table  abstractions.Table
	logger *zap.Logger
	opts   options
	source string
}

var _ ports.PriceHistory = (*PriceRepository)(nil)

// NewPriceRepository creates a new PriceRepository
func NewPriceRepository(table abstractions.Table, logger *zap.Logger, opts ...Option) *PriceRepository {
	return &PriceRepository{table: table, logger: loggerOrNop(logger), opts: applyOptions(opts), source: SourceUpdate}
}

// WithSource returns a copy that tags new price points with source
func (r *PriceRepository) WithSource(source string) *PriceRepository {
	clone := *r
	clone.source = source
	return &clone
}

type pricePointItem struct {
	Symbol    string `dynamodbav:"symbol"`
	SK        string `dynamodbav:"SK"`
	Price     Number `dynamodbav:"price"`
	Volume    *int64 `dynamodbav:"volume,omitempty"`
	Source    string `dynamodbav:"source,omitempty"`
	Timestamp string `dynamodbav:"timestamp"`
	EventID   string `dynamodbav:"event_id"`
}

func (i pricePointItem) toEntity() (*entities.PricePoint, error) {
	ts, eventID, err := keys.ParsePriceSK(i.SK)
	if err != nil {
		return nil, err
	}
	if i.EventID != "" {
		eventID = i.EventID
	}
	return &entities.PricePoint{
		Symbol:    i.Symbol,
		Timestamp: ts,
		Price:     i.Price.Decimal,
		Volume:    i.Volume,
		Source:    i.Source,
		EventID:   eventID,
	}, nil
}

// RecordPrice appends a price point, then refreshes the instrument's
// current_price unless a later point already set it. The two writes are not
// atomic: if the second fails the point is kept and the error is returned.
func (r *PriceRepository) RecordPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time, volume *int64) (*entities.PricePoint, error) {
	point := &entities.PricePoint{
		Symbol:    keys.NormalizeSymbol(symbol),
		Timestamp: at.UTC(),
		Price:     price,
		Volume:    volume,
		Source:    r.source,
		EventID:   keys.NewEventID(),
	}
	if err := point.Validate(); err != nil {
		return nil, err
	}

	existing, err := r.table.Get(ctx, instrumentKey(point.Symbol), true)
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	if existing == nil {
		return nil, pkgerrors.NewNotFoundError("instrument " + point.Symbol)
	}

	item, err := attributevalue.MarshalMap(pricePointItem{
		Symbol:    point.Symbol,
		SK:        keys.PriceSK(point.Timestamp, point.EventID),
		Price:     num(point.Price),
		Volume:    point.Volume,
		Source:    point.Source,
		Timestamp: formatTime(point.Timestamp),
		EventID:   point.EventID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal price point: %w", err)
	}

	if err := r.table.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to append price point: %w", err)
	}

	pointTimestamp := keys.FormatTimestamp(point.Timestamp)
	err = r.table.Update(ctx, abstractions.UpdateInput{
		Key: instrumentKey(point.Symbol),
		Set: map[string]interface{}{
			"current_price":   num(point.Price),
			"price_timestamp": pointTimestamp,
			"updated_at":      formatTime(r.opts.now()),
		},
		RequireExists: true,
		Guard:         &abstractions.Guard{Attribute: "price_timestamp", Value: pointTimestamp},
	})
	if errors.Is(err, abstractions.ErrStale) {
		r.logger.Debug("Back-dated price point kept in history only",
			zap.String("symbol", point.Symbol),
			zap.Time("timestamp", point.Timestamp),
		)
		return point, nil
	}
	if errors.Is(err, abstractions.ErrConditionFailed) {
		return nil, pkgerrors.NewNotFoundError("instrument " + point.Symbol)
	}
	if err != nil {
		r.logger.Warn("Price point appended but current price not refreshed",
			zap.String("symbol", point.Symbol),
			zap.String("eventID", point.EventID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to update current price: %w", err)
	}

	r.logger.Info("Price recorded",
		zap.String("symbol", point.Symbol),
		zap.String("price", point.Price.String()),
		zap.Time("timestamp", point.Timestamp),
	)
	return point, nil
}

// PriceAt returns the latest price point at or before at; nil, nil when none
func (r *PriceRepository) PriceAt(ctx context.Context, symbol string, at time.Time) (*entities.PricePoint, error) {
	symbol = keys.NormalizeSymbol(symbol)
	if err := keys.ValidateSymbol(symbol); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	lower, upper := keys.PriceAsOfRange(at)
	items, err := r.table.Query(ctx, abstractions.QueryInput{
		PartitionValue: symbol,
		Sort:           abstractions.Between(lower, upper),
		Descending:     true,
		Limit:          1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query price: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	var record pricePointItem
	if err := attributevalue.UnmarshalMap(items[0], &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal price point: %w", err)
	}
	return record.toEntity()
}

// PriceHistory returns the price points in [start, end], oldest first
func (r *PriceRepository) PriceHistory(ctx context.Context, symbol string, start, end time.Time) ([]*entities.PricePoint, error) {
	symbol = keys.NormalizeSymbol(symbol)
	if err := keys.ValidateSymbol(symbol); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	if end.Before(start) {
		return nil, pkgerrors.NewValidationError("end must not be before start")
	}

	lower, upper := keys.PriceRange(start, end)
	items, err := r.table.Query(ctx, abstractions.QueryInput{
		PartitionValue: symbol,
		Sort:           abstractions.Between(lower, upper),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}

	points := make([]*entities.PricePoint, 0, len(items))
	for _, item := range items {
		var record pricePointItem
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal price point: %w", err)
		}
		point, err := record.toEntity()
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}

	r.logger.Debug("Price history loaded", zap.String("symbol", symbol), zap.Int("count", len(points)))
	return points, nil
}

package repositories

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
	"github.com/gpazevedo/alex/infrastructure/persistence/keys"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
)

// InstrumentRepository stores instrument metadata under <symbol> / METADATA
// on the instruments table.
type InstrumentRepository struct {
	table  abstractions.Table
	logger *zap.Logger
	opts   options
}

var _ ports.InstrumentRepository = (*InstrumentRepository)(nil)

// NewInstrumentRepository creates a new InstrumentRepository
func NewInstrumentRepository(table abstractions.Table, logger *zap.Logger, opts ...Option) *InstrumentRepository {
	return &InstrumentRepository{table: table, logger: loggerOrNop(logger), opts: applyOptions(opts)}
}

type instrumentItem struct {
	Symbol               string            `dynamodbav:"symbol"`
	SK                   string            `dynamodbav:"SK"`
	Name                 string            `dynamodbav:"name"`
	InstrumentType       string            `dynamodbav:"instrument_type"`
	CurrentPrice         Number            `dynamodbav:"current_price"`
	AllocationRegions    map[string]Number `dynamodbav:"allocation_regions,omitempty"`
	AllocationSectors    map[string]Number `dynamodbav:"allocation_sectors,omitempty"`
	AllocationAssetClass map[string]Number `dynamodbav:"allocation_asset_class,omitempty"`
	CreatedAt            string            `dynamodbav:"created_at"`
	UpdatedAt            string            `dynamodbav:"updated_at"`
}

func (i instrumentItem) toEntity() *entities.Instrument {
	return &entities.Instrument{
		Symbol:               i.Symbol,
		Name:                 i.Name,
		Type:                 entities.InstrumentType(i.InstrumentType),
		CurrentPrice:         i.CurrentPrice.Decimal,
		AllocationRegions:    allocation(i.AllocationRegions),
		AllocationSectors:    allocation(i.AllocationSectors),
		AllocationAssetClass: allocation(i.AllocationAssetClass),
		CreatedAt:            parseTime(i.CreatedAt),
		UpdatedAt:            parseTime(i.UpdatedAt),
	}
}

func instrumentKey(symbol string) abstractions.Key {
	return abstractions.Key{PartitionKey: symbol, SortKey: keys.Metadata}
}

// Create validates and writes the instrument metadata
func (r *InstrumentRepository) Create(ctx context.Context, instrument *entities.Instrument) error {
	instrument.Symbol = keys.NormalizeSymbol(instrument.Symbol)
	if err := instrument.Validate(); err != nil {
		return err
	}

	now := r.opts.now()
	if instrument.CreatedAt.IsZero() {
		instrument.CreatedAt = now
	}
	instrument.UpdatedAt = now

	item, err := attributevalue.MarshalMap(instrumentItem{
		Symbol:               instrument.Symbol,
		SK:                   keys.Metadata,
		Name:                 instrument.Name,
		InstrumentType:       string(instrument.Type),
		CurrentPrice:         num(instrument.CurrentPrice),
		AllocationRegions:    numberMap(instrument.AllocationRegions),
		AllocationSectors:    numberMap(instrument.AllocationSectors),
		AllocationAssetClass: numberMap(instrument.AllocationAssetClass),
		CreatedAt:            formatTime(instrument.CreatedAt),
		UpdatedAt:            formatTime(instrument.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal instrument: %w", err)
	}

	if err := r.table.Put(ctx, item); err != nil {
		return fmt.Errorf("failed to save instrument: %w", err)
	}

	r.logger.Info("Instrument saved", zap.String("symbol", instrument.Symbol))
	return nil
}

// FindBySymbol returns nil, nil when the instrument does not exist
func (r *InstrumentRepository) FindBySymbol(ctx context.Context, symbol string) (*entities.Instrument, error) {
	symbol = keys.NormalizeSymbol(symbol)
	if err := keys.ValidateSymbol(symbol); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	item, err := r.table.Get(ctx, instrumentKey(symbol), true)
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	if item == nil {
		return nil, nil
	}

	var record instrumentItem
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instrument: %w", err)
	}
	return record.toEntity(), nil
}

// FindAll scans the metadata records, skipping price history
func (r *InstrumentRepository) FindAll(ctx context.Context) ([]*entities.Instrument, error) {
	items, err := r.table.Scan(ctx, abstractions.ScanInput{Sort: abstractions.Equal(keys.Metadata)})
	if err != nil {
		return nil, fmt.Errorf("failed to scan instruments: %w", err)
	}

	instruments := make([]*entities.Instrument, 0, len(items))
	for _, item := range items {
		var record instrumentItem
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal instrument: %w", err)
		}
		instruments = append(instruments, record.toEntity())
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i].Symbol < instruments[j].Symbol })

	r.logger.Debug("Instruments loaded", zap.Int("count", len(instruments)))
	return instruments, nil
}

// BatchGetBySymbols loads many instruments; unknown symbols are omitted.
// The table adapter splits the keys into batches of 100.
func (r *InstrumentRepository) BatchGetBySymbols(ctx context.Context, symbols []string) (map[string]*entities.Instrument, error) {
	result := make(map[string]*entities.Instrument, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	seen := make(map[string]struct{}, len(symbols))
	batch := make([]abstractions.Key, 0, len(symbols))
	for _, s := range symbols {
		symbol := keys.NormalizeSymbol(s)
		if err := keys.ValidateSymbol(symbol); err != nil {
			return nil, pkgerrors.NewValidationError(err.Error())
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		batch = append(batch, instrumentKey(symbol))
	}

	items, err := r.table.BatchGet(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to batch get instruments: %w", err)
	}

	for _, item := range items {
		var record instrumentItem
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal instrument: %w", err)
		}
		result[record.Symbol] = record.toEntity()
	}
	return result, nil
}

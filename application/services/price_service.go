package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/events"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/observability"
)

// PriceService exposes instruments and their price series
type PriceService struct {
	instruments ports.InstrumentRepository
	prices      ports.PriceHistory
	metrics     *observability.Collector
	events      eventEmitter
	logger      *zap.Logger
}

// NewPriceService creates a new price service. publisher and metrics may be nil.
func NewPriceService(
	instruments ports.InstrumentRepository,
	prices ports.PriceHistory,
	publisher ports.EventPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *PriceService {
	return &PriceService{
		instruments: instruments,
		prices:      prices,
		metrics:     metrics,
		events:      eventEmitter{publisher: publisher, metrics: metrics, logger: logger},
		logger:      logger,
	}
}

// ListInstruments returns every instrument ordered by symbol
func (s *PriceService) ListInstruments(ctx context.Context) ([]*entities.Instrument, error) {
	return s.instruments.FindAll(ctx)
}

// GetInstrument returns a NotFound error for unknown symbols
func (s *PriceService) GetInstrument(ctx context.Context, symbol string) (*entities.Instrument, error) {
	instrument, err := s.instruments.FindBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if instrument == nil {
		return nil, pkgerrors.NewNotFoundError("instrument " + symbol)
	}
	return instrument, nil
}

// RecordPrice appends a price point and publishes PriceRecorded
func (s *PriceService) RecordPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time, volume *int64) (*entities.PricePoint, error) {
	point, err := s.prices.RecordPrice(ctx, symbol, price, at, volume)
	if err != nil {
		return nil, err
	}
	s.metrics.PriceRecorded()
	s.events.emit(ctx, events.NewPriceRecorded(point.Symbol, point.Price, point.Volume, point.EventID, point.Timestamp))
	return point, nil
}

// PriceAt returns a NotFound error when no price exists at or before at
func (s *PriceService) PriceAt(ctx context.Context, symbol string, at time.Time) (*entities.PricePoint, error) {
	point, err := s.prices.PriceAt(ctx, symbol, at)
	if err != nil {
		return nil, err
	}
	if point == nil {
		return nil, pkgerrors.NewNotFoundError(fmt.Sprintf("price for %s at %s", symbol, at.UTC().Format(time.RFC3339)))
	}
	return point, nil
}

// PriceHistory returns the points in [start, end], oldest first
func (s *PriceService) PriceHistory(ctx context.Context, symbol string, start, end time.Time) ([]*entities.PricePoint, error) {
	return s.prices.PriceHistory(ctx, symbol, start, end)
}

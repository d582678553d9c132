package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
)

// DefaultPriceLookups bounds concurrent PriceAt calls per valuation
const DefaultPriceLookups = 8

// ValuationService values an account at a point in time from its position
// history and the instruments' price series.
type ValuationService struct {
	positions ports.PositionHistory
	prices    ports.PriceHistory
	logger    *zap.Logger
	clock     func() time.Time
	lookups   int
}

// ValuationOption configures a ValuationService
type ValuationOption func(*ValuationService)

// WithValuationClock replaces time.Now
func WithValuationClock(clock func() time.Time) ValuationOption {
	return func(s *ValuationService) { s.clock = clock }
}

// WithPriceLookups sets how many price lookups run in parallel
func WithPriceLookups(n int) ValuationOption {
	return func(s *ValuationService) {
		if n > 0 {
			s.lookups = n
		}
	}
}

// NewValuationService creates a new valuation service
func NewValuationService(
	positions ports.PositionHistory,
	prices ports.PriceHistory,
	logger *zap.Logger,
	opts ...ValuationOption,
) *ValuationService {
	s := &ValuationService{
		positions: positions,
		prices:    prices,
		logger:    logger,
		clock:     time.Now,
		lookups:   DefaultPriceLookups,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValueAt values the account at the given instant. A nil instant means now,
// in which case the current-positions projection is used instead of
// replaying history. Positions without a price at or before the instant
// contribute zero but are still counted.
func (s *ValuationService) ValueAt(ctx context.Context, accountID string, at *time.Time) (*entities.Valuation, error) {
	var (
		asOf      time.Time
		positions []*entities.CurrentPosition
		err       error
	)
	if at == nil {
		asOf = s.clock().UTC()
		positions, err = s.positions.CurrentPositions(ctx, accountID)
	} else {
		asOf = at.UTC()
		positions, err = s.positions.PositionsAsOf(ctx, accountID, asOf)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	valuation := &entities.Valuation{
		AccountID:    accountID,
		TotalValue:   decimal.Zero,
		TotalShares:  decimal.Zero,
		NumPositions: len(positions),
		AsOf:         asOf,
		Positions:    make([]entities.PositionValue, len(positions)),
	}
	if len(positions) == 0 {
		return valuation, nil
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.lookups)
	for i, position := range positions {
		i, position := i, position
		g.Go(func() error {
			point, err := s.prices.PriceAt(gctx, position.Symbol, asOf)
			if err != nil {
				return fmt.Errorf("failed to price %s: %w", position.Symbol, err)
			}

			value := entities.PositionValue{
				Symbol:   position.Symbol,
				Quantity: position.Quantity,
				Value:    decimal.Zero,
			}
			if point != nil {
				price := point.Price
				pricedAt := point.Timestamp
				value.Price = &price
				value.PricedAt = &pricedAt
				value.Value = position.Quantity.Mul(price)
			}
			valuation.Positions[i] = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if pkgerrors.IsTransient(err) {
			s.logger.Warn("Valuation aborted by transient store failure",
				zap.String("accountID", accountID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	unpriced := 0
	for _, pv := range valuation.Positions {
		valuation.TotalShares = valuation.TotalShares.Add(pv.Quantity)
		valuation.TotalValue = valuation.TotalValue.Add(pv.Value)
		if pv.Price == nil {
			unpriced++
		}
	}

	s.logger.Debug("Account valued",
		zap.String("accountID", accountID),
		zap.Time("asOf", asOf),
		zap.Int("positions", valuation.NumPositions),
		zap.Int("unpriced", unpriced),
		zap.String("totalValue", valuation.TotalValue.String()),
	)
	return valuation, nil
}

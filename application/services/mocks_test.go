package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/events"
)

// MockEventPublisher is a mock implementation of ports.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	args := m.Called(ctx, evts)
	return args.Error(0)
}

// MockPriceHistory is a mock implementation of ports.PriceHistory
type MockPriceHistory struct {
	mock.Mock
}

func (m *MockPriceHistory) RecordPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time, volume *int64) (*entities.PricePoint, error) {
	args := m.Called(ctx, symbol, price, at, volume)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PricePoint), args.Error(1)
}

func (m *MockPriceHistory) PriceAt(ctx context.Context, symbol string, at time.Time) (*entities.PricePoint, error) {
	args := m.Called(ctx, symbol, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PricePoint), args.Error(1)
}

func (m *MockPriceHistory) PriceHistory(ctx context.Context, symbol string, start, end time.Time) ([]*entities.PricePoint, error) {
	args := m.Called(ctx, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PricePoint), args.Error(1)
}

package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/domain/events"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/observability"
)

// PortfolioService manages a user's profile, accounts and positions. Every
// account operation checks that the caller owns the account.
type PortfolioService struct {
	users     ports.UserRepository
	accounts  ports.AccountRepository
	positions ports.PositionHistory
	metrics   *observability.Collector
	events    eventEmitter
	logger    *zap.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(
	users ports.UserRepository,
	accounts ports.AccountRepository,
	positions ports.PositionHistory,
	publisher ports.EventPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *PortfolioService {
	return &PortfolioService{
		users:     users,
		accounts:  accounts,
		positions: positions,
		metrics:   metrics,
		events:    eventEmitter{publisher: publisher, metrics: metrics, logger: logger},
		logger:    logger,
	}
}

// GetProfile returns the caller's user record
func (s *PortfolioService) GetProfile(ctx context.Context, userID string) (*entities.User, error) {
	user, err := s.users.FindByClerkID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, pkgerrors.NewNotFoundError("user " + userID)
	}
	return user, nil
}

// SaveProfile applies a partial update, creating the user on first use
func (s *PortfolioService) SaveProfile(ctx context.Context, userID string, update entities.UserUpdate) (*entities.User, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	n, err := s.users.Update(ctx, userID, update)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		user := &entities.User{
			ClerkUserID:            userID,
			YearsUntilRetirement:   update.YearsUntilRetirement,
			TargetRetirementIncome: update.TargetRetirementIncome,
			AssetClassTargets:      update.AssetClassTargets,
			RegionTargets:          update.RegionTargets,
		}
		if update.DisplayName != nil {
			user.DisplayName = *update.DisplayName
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("User created on first profile save", zap.String("clerkUserID", userID))
	}
	return s.GetProfile(ctx, userID)
}

// CreateAccount opens an account for the caller
func (s *PortfolioService) CreateAccount(ctx context.Context, userID, name, purpose string, cashBalance, cashInterest decimal.Decimal) (*entities.Account, error) {
	account := &entities.Account{
		ClerkUserID:  userID,
		Name:         name,
		Purpose:      purpose,
		CashBalance:  cashBalance,
		CashInterest: cashInterest,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// ListAccounts returns the caller's accounts
func (s *PortfolioService) ListAccounts(ctx context.Context, userID string) ([]*entities.Account, error) {
	return s.accounts.FindByUser(ctx, userID)
}

// GetAccount returns NotFound for unknown accounts and Forbidden for
// accounts owned by someone else
func (s *PortfolioService) GetAccount(ctx context.Context, userID, accountID string) (*entities.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, pkgerrors.NewNotFoundError("account " + accountID)
	}
	if !account.OwnedBy(userID) {
		return nil, pkgerrors.NewForbiddenError("account belongs to another user")
	}
	return account, nil
}

// RecordPosition records the resulting holding of a symbol and publishes
// PositionRecorded
func (s *PortfolioService) RecordPosition(ctx context.Context, userID, accountID, symbol string, quantity decimal.Decimal, action valueobjects.PositionAction, at *time.Time) (*entities.PositionEvent, error) {
	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}

	event, err := s.positions.RecordPosition(ctx, accountID, symbol, quantity, action, at)
	if err != nil {
		return nil, err
	}
	s.metrics.PositionRecorded()
	s.events.emit(ctx, events.NewPositionRecorded(event.AccountID, event.Symbol, event.Quantity, event.Action, event.EventID, event.Timestamp))
	return event, nil
}

// Positions returns the current holdings, or the holdings as of at when given
func (s *PortfolioService) Positions(ctx context.Context, userID, accountID string, at *time.Time) ([]*entities.CurrentPosition, error) {
	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	if at == nil {
		return s.positions.CurrentPositions(ctx, accountID)
	}
	return s.positions.PositionsAsOf(ctx, accountID, *at)
}

// History lists one symbol's events in the window, oldest first
func (s *PortfolioService) History(ctx context.Context, userID, accountID, symbol string, start, end *time.Time) ([]*entities.PositionEvent, error) {
	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.positions.EventsFor(ctx, accountID, symbol, start, end)
}

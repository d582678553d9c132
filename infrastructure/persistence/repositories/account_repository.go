package repositories

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
	"github.com/gpazevedo/alex/infrastructure/persistence/keys"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
)

// AccountRepository stores each account twice: under its owner's partition
// for listing and as ACCOUNT#<id> / METADATA for lookups by id. Both copies
// are immutable once written.
type AccountRepository struct {
	table  abstractions.Table
	logger *zap.Logger
	opts   options
}

var _ ports.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(table abstractions.Table, logger *zap.Logger, opts ...Option) *AccountRepository {
	return &AccountRepository{table: table, logger: loggerOrNop(logger), opts: applyOptions(opts)}
}

type accountItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	ID             string `dynamodbav:"id"`
	ClerkUserID    string `dynamodbav:"clerk_user_id"`
	AccountName    string `dynamodbav:"account_name"`
	AccountPurpose string `dynamodbav:"account_purpose,omitempty"`
	CashBalance    Number `dynamodbav:"cash_balance"`
	CashInterest   Number `dynamodbav:"cash_interest"`
	CreatedAt      string `dynamodbav:"created_at"`
	UpdatedAt      string `dynamodbav:"updated_at"`
}

func (i accountItem) toEntity() *entities.Account {
	return &entities.Account{
		ID:           i.ID,
		ClerkUserID:  i.ClerkUserID,
		Name:         i.AccountName,
		Purpose:      i.AccountPurpose,
		CashBalance:  i.CashBalance.Decimal,
		CashInterest: i.CashInterest.Decimal,
		CreatedAt:    parseTime(i.CreatedAt),
		UpdatedAt:    parseTime(i.UpdatedAt),
	}
}

// Create assigns an id when empty and writes the account. The by-id record
// goes first so that a listed account can always be resolved.
func (r *AccountRepository) Create(ctx context.Context, account *entities.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if err := account.Validate(); err != nil {
		return err
	}

	now := r.opts.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	record := accountItem{
		PK:             keys.AccountPK(account.ID),
		SK:             keys.Metadata,
		ID:             account.ID,
		ClerkUserID:    account.ClerkUserID,
		AccountName:    account.Name,
		AccountPurpose: account.Purpose,
		CashBalance:    num(account.CashBalance),
		CashInterest:   num(account.CashInterest),
		CreatedAt:      formatTime(account.CreatedAt),
		UpdatedAt:      formatTime(account.UpdatedAt),
	}
	listed := record
	listed.PK = keys.UserPK(account.ClerkUserID)
	listed.SK = keys.AccountSK(account.ID)

	for _, rec := range []accountItem{record, listed} {
		item, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal account: %w", err)
		}
		if err := r.table.Put(ctx, item); err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}
	}

	r.logger.Info("Account saved",
		zap.String("accountID", account.ID),
		zap.String("clerkUserID", account.ClerkUserID),
	)
	return nil
}

// FindByUser lists the accounts of one user ordered by id
func (r *AccountRepository) FindByUser(ctx context.Context, clerkUserID string) ([]*entities.Account, error) {
	if err := keys.ValidateIdentifier("clerk_user_id", clerkUserID); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	items, err := r.table.Query(ctx, abstractions.QueryInput{
		PartitionValue: keys.UserPK(clerkUserID),
		Sort:           abstractions.BeginsWith(keys.AccountPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	accounts := make([]*entities.Account, 0, len(items))
	for _, item := range items {
		var record accountItem
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal account: %w", err)
		}
		accounts = append(accounts, record.toEntity())
	}

	r.logger.Debug("Accounts loaded", zap.String("clerkUserID", clerkUserID), zap.Int("count", len(accounts)))
	return accounts, nil
}

// FindByID reads the account's by-id record with a consistent read; nil, nil
// when absent
func (r *AccountRepository) FindByID(ctx context.Context, accountID string) (*entities.Account, error) {
	if err := keys.ValidateIdentifier("account_id", accountID); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	item, err := r.table.Get(ctx, abstractions.Key{PartitionKey: keys.AccountPK(accountID), SortKey: keys.Metadata}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if item == nil {
		return nil, nil
	}

	var record accountItem
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return record.toEntity(), nil
}

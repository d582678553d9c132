package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
	"github.com/gpazevedo/alex/infrastructure/persistence/keys"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
)

// UserRepository stores user metadata under USER#<id> / METADATA
type UserRepository struct {
	table  abstractions.Table
	logger *zap.Logger
	opts   options
}

var _ ports.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository
func NewUserRepository(table abstractions.Table, logger *zap.Logger, opts ...Option) *UserRepository {
	return &UserRepository{table: table, logger: loggerOrNop(logger), opts: applyOptions(opts)}
}

type userItem struct {
	PK                     string            `dynamodbav:"PK"`
	SK                     string            `dynamodbav:"SK"`
	ClerkUserID            string            `dynamodbav:"clerk_user_id"`
	DisplayName            string            `dynamodbav:"display_name,omitempty"`
	YearsUntilRetirement   *int              `dynamodbav:"years_until_retirement,omitempty"`
	TargetRetirementIncome *Number           `dynamodbav:"target_retirement_income,omitempty"`
	AssetClassTargets      map[string]Number `dynamodbav:"asset_class_targets,omitempty"`
	RegionTargets          map[string]Number `dynamodbav:"region_targets,omitempty"`
	CreatedAt              string            `dynamodbav:"created_at"`
	UpdatedAt              string            `dynamodbav:"updated_at"`
}

func (i userItem) toEntity() *entities.User {
	return &entities.User{
		ClerkUserID:            i.ClerkUserID,
		DisplayName:            i.DisplayName,
		YearsUntilRetirement:   i.YearsUntilRetirement,
		TargetRetirementIncome: decimalPtr(i.TargetRetirementIncome),
		AssetClassTargets:      allocation(i.AssetClassTargets),
		RegionTargets:          allocation(i.RegionTargets),
		CreatedAt:              parseTime(i.CreatedAt),
		UpdatedAt:              parseTime(i.UpdatedAt),
	}
}

// Create writes the user metadata record, overwriting any previous one
func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	now := r.opts.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	item, err := attributevalue.MarshalMap(userItem{
		PK:                     keys.UserPK(user.ClerkUserID),
		SK:                     keys.Metadata,
		ClerkUserID:            user.ClerkUserID,
		DisplayName:            user.DisplayName,
		YearsUntilRetirement:   user.YearsUntilRetirement,
		TargetRetirementIncome: numPtr(user.TargetRetirementIncome),
		AssetClassTargets:      numberMap(user.AssetClassTargets),
		RegionTargets:          numberMap(user.RegionTargets),
		CreatedAt:              formatTime(user.CreatedAt),
		UpdatedAt:              formatTime(user.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if err := r.table.Put(ctx, item); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	r.logger.Info("User saved", zap.String("clerkUserID", user.ClerkUserID))
	return nil
}

// FindByClerkID returns nil, nil when the user does not exist
func (r *UserRepository) FindByClerkID(ctx context.Context, clerkUserID string) (*entities.User, error) {
	if err := keys.ValidateIdentifier("clerk_user_id", clerkUserID); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	item, err := r.table.Get(ctx, abstractions.Key{
		PartitionKey: keys.UserPK(clerkUserID),
		SortKey:      keys.Metadata,
	}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if item == nil {
		return nil, nil
	}

	var record userItem
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return record.toEntity(), nil
}

// Update sets the non-nil fields and updated_at. It returns 0 when the user
// does not exist.
func (r *UserRepository) Update(ctx context.Context, clerkUserID string, update entities.UserUpdate) (int, error) {
	if err := keys.ValidateIdentifier("clerk_user_id", clerkUserID); err != nil {
		return 0, pkgerrors.NewValidationError(err.Error())
	}
	if err := update.Validate(); err != nil {
		return 0, err
	}

	set := map[string]interface{}{
		"updated_at": formatTime(r.opts.now()),
	}
	if update.DisplayName != nil {
		set["display_name"] = *update.DisplayName
	}
	if update.YearsUntilRetirement != nil {
		set["years_until_retirement"] = *update.YearsUntilRetirement
	}
	if update.TargetRetirementIncome != nil {
		set["target_retirement_income"] = num(*update.TargetRetirementIncome)
	}
	if update.AssetClassTargets != nil {
		set["asset_class_targets"] = numberMap(update.AssetClassTargets)
	}
	if update.RegionTargets != nil {
		set["region_targets"] = numberMap(update.RegionTargets)
	}

	err := r.table.Update(ctx, abstractions.UpdateInput{
		Key:           abstractions.Key{PartitionKey: keys.UserPK(clerkUserID), SortKey: keys.Metadata},
		Set:           set,
		RequireExists: true,
	})
	if errors.Is(err, abstractions.ErrConditionFailed) {
		r.logger.Debug("User not found for update", zap.String("clerkUserID", clerkUserID))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update user: %w", err)
	}

	r.logger.Info("User updated", zap.String("clerkUserID", clerkUserID), zap.Int("fields", len(set)))
	return 1, nil
}

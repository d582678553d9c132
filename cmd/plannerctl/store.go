package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gpazevedo/alex/infrastructure/config"
	"github.com/gpazevedo/alex/infrastructure/di"
	"github.com/gpazevedo/alex/pkg/utils"
)

// openStore loads the configuration and wires the store
func openStore(ctx context.Context) (*di.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	store, err := di.InitializeStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return store, nil
}

// parseAt reads an optional -at flag. A date covers the whole day.
func parseAt(raw string) (*time.Time, error) {
	t, err := utils.ParseOptionalTime(raw)
	if err != nil || t == nil {
		return t, err
	}
	end := utils.EndOfDay(raw, *t)
	return &end, nil
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// requireAccount fails for unknown accounts so that an empty listing always
// means an account without holdings
func requireAccount(ctx context.Context, store *di.Store, accountID string) error {
	account, err := store.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("account %s not found", accountID)
	}
	return nil
}

// Package verification runs read-mostly sanity checks against a deployed
// store: tables are up, the catalog is seeded and basic writes round-trip.
package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
)

// MinInstruments is the catalog size expected after seeding
const MinInstruments = 22

// Check names
const (
	CheckTables     = "tables"
	CheckSeedData   = "seed_data"
	CheckOperations = "operations"
)

// CheckResult is the outcome of one named check
type CheckResult struct {
	Name   string
	Passed bool
	Detail string
	Err    error
}

// Report collects the check results in run order
type Report struct {
	Checks []CheckResult
}

// OK reports whether every check passed
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return len(r.Checks) > 0
}

// Verifier checks a deployed store
type Verifier struct {
	tables      []abstractions.Table
	users       ports.UserRepository
	accounts    ports.AccountRepository
	instruments ports.InstrumentRepository
	positions   ports.PositionHistory
	logger      *zap.Logger
	clock       func() time.Time
}

// NewVerifier creates a new verifier over the given tables and repositories
func NewVerifier(
	tables []abstractions.Table,
	users ports.UserRepository,
	accounts ports.AccountRepository,
	instruments ports.InstrumentRepository,
	positions ports.PositionHistory,
	logger *zap.Logger,
) *Verifier {
	return &Verifier{
		tables:      tables,
		users:       users,
		accounts:    accounts,
		instruments: instruments,
		positions:   positions,
		logger:      logger,
		clock:       time.Now,
	}
}

// Run executes every check. Later checks are skipped once the tables check
// fails.
func (v *Verifier) Run(ctx context.Context) Report {
	var report Report

	tables := v.record(v.checkTables(ctx))
	report.Checks = append(report.Checks, tables)
	if !tables.Passed {
		return report
	}

	report.Checks = append(report.Checks, v.record(v.checkSeedData(ctx)))
	report.Checks = append(report.Checks, v.record(v.checkOperations(ctx)))
	return report
}

func (v *Verifier) record(result CheckResult) CheckResult {
	if result.Passed {
		v.logger.Info("Verification check passed", zap.String("check", result.Name), zap.String("detail", result.Detail))
	} else {
		v.logger.Error("Verification check failed", zap.String("check", result.Name), zap.String("detail", result.Detail), zap.Error(result.Err))
	}
	return result
}

func (v *Verifier) checkTables(ctx context.Context) CheckResult {
	result := CheckResult{Name: CheckTables}
	for _, table := range v.tables {
		name := table.Schema().Name
		status, err := table.Status(ctx)
		if err != nil {
			result.Detail = fmt.Sprintf("table %s unreachable", name)
			result.Err = err
			return result
		}
		if status != abstractions.TableStatusActive {
			result.Detail = fmt.Sprintf("table %s is %s", name, status)
			return result
		}
	}
	result.Passed = true
	result.Detail = fmt.Sprintf("%d tables active", len(v.tables))
	return result
}

func (v *Verifier) checkSeedData(ctx context.Context) CheckResult {
	result := CheckResult{Name: CheckSeedData}

	all, err := v.instruments.FindAll(ctx)
	if err != nil {
		result.Detail = "failed to list instruments"
		result.Err = err
		return result
	}
	if len(all) < MinInstruments {
		result.Detail = fmt.Sprintf("found %d instruments, expected at least %d", len(all), MinInstruments)
		return result
	}

	spy, err := v.instruments.FindBySymbol(ctx, "SPY")
	if err != nil {
		result.Detail = "failed to load SPY"
		result.Err = err
		return result
	}
	if spy == nil {
		result.Detail = "SPY is missing"
		return result
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("%d instruments, SPY at %s", len(all), spy.CurrentPrice.String())
	return result
}

// checkOperations writes a throwaway user, account and position and reads
// them back through every access path.
func (v *Verifier) checkOperations(ctx context.Context) CheckResult {
	result := CheckResult{Name: CheckOperations}
	fail := func(detail string, err error) CheckResult {
		result.Detail = detail
		result.Err = err
		return result
	}

	userID := "test_verify_" + v.clock().UTC().Format("20060102150405")
	if err := v.users.Create(ctx, &entities.User{ClerkUserID: userID, DisplayName: "Verification Test User"}); err != nil {
		return fail("create user", err)
	}
	user, err := v.users.FindByClerkID(ctx, userID)
	if err != nil || user == nil {
		return fail("read user back", err)
	}

	account := &entities.Account{ClerkUserID: userID, Name: "Test Account", CashBalance: decimal.NewFromInt(1000)}
	if err := v.accounts.Create(ctx, account); err != nil {
		return fail("create account", err)
	}
	found, err := v.accounts.FindByID(ctx, account.ID)
	if err != nil || found == nil {
		return fail("find account by id", err)
	}

	if _, err := v.positions.RecordPosition(ctx, account.ID, "SPY", decimal.NewFromInt(10), valueobjects.ActionBuy, nil); err != nil {
		return fail("record position", err)
	}
	current, err := v.positions.CurrentPositions(ctx, account.ID)
	if err != nil {
		return fail("read current positions", err)
	}
	if len(current) != 1 || current[0].Symbol != "SPY" {
		return fail(fmt.Sprintf("expected one SPY position, got %d", len(current)), nil)
	}
	history, err := v.positions.EventsFor(ctx, account.ID, "SPY", nil, nil)
	if err != nil {
		return fail("read position history", err)
	}
	if len(history) < 1 {
		return fail("position history is empty", nil)
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("user %s, account %s", userID, account.ID)
	return result
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/domain/events"
	"github.com/gpazevedo/alex/infrastructure/persistence/memory"
	"github.com/gpazevedo/alex/infrastructure/persistence/repositories"
	"github.com/gpazevedo/alex/infrastructure/persistence/schema"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/observability"
)

var (
	t0 = time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
	t2 = t1.Add(24 * time.Hour)
	t3 = t2.Add(24 * time.Hour)
)

type env struct {
	now time.Time

	instruments *repositories.InstrumentRepository
	prices      *repositories.PriceRepository
	positions   *repositories.PositionRepository
	accounts    *repositories.AccountRepository
	users       *repositories.UserRepository
	jobs        *repositories.JobRepository
	usersTable  *memory.Table
}

func newEnv() *env {
	e := &env{now: t3}
	clock := repositories.WithClock(func() time.Time { return e.now })
	logger := zap.NewNop()
	idx := schema.DefaultIndexNames()

	e.usersTable = memory.NewTable(schema.UsersTable("users", idx))
	instrumentsTable := memory.NewTable(schema.InstrumentsTable("instruments"))

	e.instruments = repositories.NewInstrumentRepository(instrumentsTable, logger, clock)
	e.prices = repositories.NewPriceRepository(instrumentsTable, logger, clock)
	e.positions = repositories.NewPositionRepository(e.usersTable, idx, logger, clock)
	e.accounts = repositories.NewAccountRepository(e.usersTable, logger, clock)
	e.users = repositories.NewUserRepository(e.usersTable, logger, clock)
	e.jobs = repositories.NewJobRepository(e.usersTable, idx, logger, clock)
	return e
}

func (e *env) valuation() *ValuationService {
	return NewValuationService(e.positions, e.prices, zap.NewNop(), WithValuationClock(func() time.Time { return e.now }))
}

func (e *env) instrument(t *testing.T, symbol string, prices map[time.Time]string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.instruments.Create(ctx, &entities.Instrument{
		Symbol: symbol,
		Name:   symbol,
		Type:   entities.InstrumentTypeETF,
	}))
	for at, p := range prices {
		_, err := e.prices.RecordPrice(ctx, symbol, decimal.RequireFromString(p), at, nil)
		require.NoError(t, err)
	}
}

func (e *env) hold(t *testing.T, accountID, symbol, qty string, at time.Time) {
	t.Helper()
	_, err := e.positions.RecordPosition(context.Background(), accountID, symbol, decimal.RequireFromString(qty), valueobjects.ActionBuy, &at)
	require.NoError(t, err)
}

func TestValuationService_EmptyAccount(t *testing.T) {
	e := newEnv()

	v, err := e.valuation().ValueAt(context.Background(), "acct-empty", &t1)
	require.NoError(t, err)
	assert.True(t, v.TotalValue.IsZero())
	assert.Equal(t, 0, v.NumPositions)
	assert.True(t, v.TotalShares.IsZero())
	assert.Equal(t, t1, v.AsOf)

	v, err = e.valuation().ValueAt(context.Background(), "acct-empty", nil)
	require.NoError(t, err)
	assert.True(t, v.TotalValue.IsZero())
	assert.Equal(t, t3, v.AsOf)
}

func TestValuationService_UsesPriceAtValuationTime(t *testing.T) {
	e := newEnv()
	e.instrument(t, "SPY", map[time.Time]string{t1: "100", t2: "110"})
	e.hold(t, "acct-1", "SPY", "10", t1)

	v, err := e.valuation().ValueAt(context.Background(), "acct-1", &t1)
	require.NoError(t, err)
	assert.Equal(t, "1000", v.TotalValue.String())
	assert.Equal(t, 1, v.NumPositions)
	assert.Equal(t, "10", v.TotalShares.String())
	require.Len(t, v.Positions, 1)
	assert.Equal(t, "100", v.Positions[0].Price.String())
	assert.Equal(t, t1, *v.Positions[0].PricedAt)

	v, err = e.valuation().ValueAt(context.Background(), "acct-1", &t2)
	require.NoError(t, err)
	assert.Equal(t, "1100", v.TotalValue.String())
}

func TestValuationService_UnpricedPositionCountsButAddsNothing(t *testing.T) {
	e := newEnv()
	e.instrument(t, "SPY", map[time.Time]string{t1: "100"})
	e.instrument(t, "BND", map[time.Time]string{t3: "70"})
	e.hold(t, "acct-1", "SPY", "2", t0)
	e.hold(t, "acct-1", "BND", "5", t0)
	e.hold(t, "acct-1", "NOPRICE", "7", t0)

	v, err := e.valuation().ValueAt(context.Background(), "acct-1", &t2)
	require.NoError(t, err)
	assert.Equal(t, 3, v.NumPositions)
	assert.Equal(t, "200", v.TotalValue.String())
	assert.Equal(t, "14", v.TotalShares.String())

	// positions come back ordered by symbol
	require.Len(t, v.Positions, 3)
	assert.Equal(t, "BND", v.Positions[0].Symbol)
	assert.Nil(t, v.Positions[0].Price)
	assert.Equal(t, "NOPRICE", v.Positions[1].Symbol)
	assert.Equal(t, "SPY", v.Positions[2].Symbol)
}

func TestValuationService_HistoricalIgnoresLaterEvents(t *testing.T) {
	e := newEnv()
	e.instrument(t, "VTI", map[time.Time]string{t0: "200", t2: "210"})
	e.hold(t, "acct-1", "VTI", "10", t0)
	e.hold(t, "acct-1", "VTI", "30", t2)

	past, err := e.valuation().ValueAt(context.Background(), "acct-1", &t1)
	require.NoError(t, err)
	assert.Equal(t, "2000", past.TotalValue.String())

	now, err := e.valuation().ValueAt(context.Background(), "acct-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "6300", now.TotalValue.String())
}

func TestValuationService_NowAgreesWithHistoryAtNow(t *testing.T) {
	e := newEnv()
	e.instrument(t, "SPY", map[time.Time]string{t0: "10"})
	e.instrument(t, "QQQ", map[time.Time]string{t1: "20"})
	e.hold(t, "acct-1", "SPY", "3", t0)
	e.hold(t, "acct-1", "QQQ", "4", t1)
	e.hold(t, "acct-1", "SPY", "5", t2)

	current, err := e.valuation().ValueAt(context.Background(), "acct-1", nil)
	require.NoError(t, err)
	replayed, err := e.valuation().ValueAt(context.Background(), "acct-1", &e.now)
	require.NoError(t, err)

	assert.True(t, current.TotalValue.Equal(replayed.TotalValue))
	assert.Equal(t, current.NumPositions, replayed.NumPositions)
	assert.Equal(t, "130", current.TotalValue.String())
}

func TestValuationService_PriceLookupFailure(t *testing.T) {
	e := newEnv()
	e.hold(t, "acct-1", "SPY", "1", t0)

	prices := new(MockPriceHistory)
	prices.On("PriceAt", mock.Anything, "SPY", t1).
		Return(nil, pkgerrors.NewTransientError("Query", errors.New("throttled")))

	svc := NewValuationService(e.positions, prices, zap.NewNop(), WithPriceLookups(2))
	_, err := svc.ValueAt(context.Background(), "acct-1", &t1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsTransient(err))
	prices.AssertExpectations(t)
}

func TestValuationService_ManyPositions(t *testing.T) {
	e := newEnv()
	symbols := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"}
	for _, s := range symbols {
		e.instrument(t, s, map[time.Time]string{t0: "1.5"})
		e.hold(t, "acct-1", s, "2", t0)
	}

	v, err := NewValuationService(e.positions, e.prices, zap.NewNop(), WithPriceLookups(3)).
		ValueAt(context.Background(), "acct-1", &t1)
	require.NoError(t, err)
	assert.Equal(t, len(symbols), v.NumPositions)
	assert.Equal(t, "36", v.TotalValue.String())
}

func TestPriceService_RecordPricePublishes(t *testing.T) {
	e := newEnv()
	e.instrument(t, "SPY", nil)

	publisher := new(MockEventPublisher)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(ev events.DomainEvent) bool {
		pr, ok := ev.(events.PriceRecorded)
		return ok && pr.Symbol == "SPY" && pr.Price.Equal(decimal.NewFromInt(42))
	})).Return(nil).Once()

	metrics := observability.NewCollector("test")
	svc := NewPriceService(e.instruments, e.prices, publisher, metrics, zap.NewNop())

	point, err := svc.RecordPrice(context.Background(), "SPY", decimal.NewFromInt(42), t1, nil)
	require.NoError(t, err)
	assert.Equal(t, "SPY", point.Symbol)
	publisher.AssertExpectations(t)

	got, err := svc.PriceAt(context.Background(), "SPY", t2)
	require.NoError(t, err)
	assert.Equal(t, point.EventID, got.EventID)

	_, err = svc.PriceAt(context.Background(), "SPY", t0)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestPriceService_PublishFailureDoesNotFailWrite(t *testing.T) {
	e := newEnv()
	e.instrument(t, "SPY", nil)

	publisher := new(MockEventPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus down"))

	svc := NewPriceService(e.instruments, e.prices, publisher, nil, zap.NewNop())
	_, err := svc.RecordPrice(context.Background(), "SPY", decimal.NewFromInt(1), t1, nil)
	require.NoError(t, err)

	points, err := svc.PriceHistory(context.Background(), "SPY", t0, t3)
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestPriceService_GetInstrumentNotFound(t *testing.T) {
	e := newEnv()
	svc := NewPriceService(e.instruments, e.prices, nil, nil, zap.NewNop())

	_, err := svc.GetInstrument(context.Background(), "NOPE")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestPortfolioService_Ownership(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	publisher := new(MockEventPublisher)
	publisher.On("Publish", mock.Anything, mock.AnythingOfType("events.PositionRecorded")).Return(nil).Once()

	svc := NewPortfolioService(e.users, e.accounts, e.positions, publisher, nil, zap.NewNop())

	account, err := svc.CreateAccount(ctx, "user_1", "Brokerage", "", decimal.Zero, decimal.Zero)
	require.NoError(t, err)

	_, err = svc.RecordPosition(ctx, "user_1", account.ID, "SPY", decimal.NewFromInt(10), valueobjects.ActionBuy, &t1)
	require.NoError(t, err)
	publisher.AssertExpectations(t)

	_, err = svc.RecordPosition(ctx, "user_2", account.ID, "SPY", decimal.NewFromInt(10), valueobjects.ActionBuy, &t1)
	assert.True(t, pkgerrors.IsForbidden(err))

	_, err = svc.Positions(ctx, "user_1", "missing-account", nil)
	assert.True(t, pkgerrors.IsNotFound(err))

	positions, err := svc.Positions(ctx, "user_1", account.ID, nil)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	asOf, err := svc.Positions(ctx, "user_1", account.ID, &t0)
	require.NoError(t, err)
	assert.Empty(t, asOf)

	history, err := svc.History(ctx, "user_1", account.ID, "SPY", nil, nil)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPortfolioService_SaveProfileCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	svc := NewPortfolioService(e.users, e.accounts, e.positions, nil, nil, zap.NewNop())

	_, err := svc.GetProfile(ctx, "user_1")
	assert.True(t, pkgerrors.IsNotFound(err))

	name := "Grace"
	user, err := svc.SaveProfile(ctx, "user_1", entities.UserUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Grace", user.DisplayName)

	years := 12
	user, err = svc.SaveProfile(ctx, "user_1", entities.UserUpdate{YearsUntilRetirement: &years})
	require.NoError(t, err)
	assert.Equal(t, "Grace", user.DisplayName)
	assert.Equal(t, 12, *user.YearsUntilRetirement)
}

func TestJobService_StatusLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	publisher := new(MockEventPublisher)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(ev events.DomainEvent) bool {
		return ev.GetEventType() == events.TypeJobStatusChanged
	})).Return(nil).Twice()

	svc := NewJobService(e.jobs, publisher, nil, zap.NewNop())

	job, err := svc.Create(ctx, "user_1", "portfolio_analysis", entities.Payload{"k": "v"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "user_2", job.ID)
	assert.True(t, pkgerrors.IsForbidden(err))

	updated, err := svc.UpdateStatus(ctx, "user_1", job.ID, valueobjects.JobStatusRunning, "")
	require.NoError(t, err)
	assert.Equal(t, valueobjects.JobStatusRunning, updated.Status)

	updated, err = svc.UpdateStatus(ctx, "user_1", job.ID, valueobjects.JobStatusCompleted, "")
	require.NoError(t, err)
	assert.NotNil(t, updated.CompletedAt)

	_, err = svc.UpdateStatus(ctx, "user_1", job.ID, valueobjects.JobStatusRunning, "")
	assert.True(t, pkgerrors.IsConflict(err))

	publisher.AssertExpectations(t)

	list, err := svc.List(ctx, "user_1", ports.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestJobService_UpdatePayload(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	svc := NewJobService(e.jobs, nil, nil, zap.NewNop())

	job, err := svc.Create(ctx, "user_1", "analysis", nil)
	require.NoError(t, err)

	require.NoError(t, svc.UpdatePayload(ctx, "user_1", job.ID, entities.JobFieldCharts, entities.Payload{"charts": []interface{}{"pie"}}))
	require.NoError(t, svc.UpdatePayload(ctx, "user_1", job.ID, entities.JobFieldSummary, entities.Payload{"text": "ok"}))

	got, err := svc.Get(ctx, "user_1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"pie"}, got.ChartsPayload["charts"])
	assert.Equal(t, "ok", got.SummaryPayload["text"])
	assert.Nil(t, got.ReportPayload)

	err = svc.UpdatePayload(ctx, "user_1", job.ID, entities.JobField("notes"), entities.Payload{})
	assert.True(t, pkgerrors.IsValidation(err))

	err = svc.UpdatePayload(ctx, "user_1", "missing", entities.JobFieldReport, entities.Payload{})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestJobService_RecordStageWithoutOwner(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	svc := NewJobService(e.jobs, nil, nil, zap.NewNop())

	first, err := svc.Create(ctx, "user_1", "analysis", nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "user_2", "analysis", nil)
	require.NoError(t, err)

	require.NoError(t, svc.RecordStage(ctx, first.ID, entities.JobFieldReport, entities.Payload{"markdown": "# Report"}))

	got, err := svc.Get(ctx, "user_1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, "# Report", got.ReportPayload["markdown"])

	err = svc.RecordStage(ctx, "missing", entities.JobFieldReport, entities.Payload{})
	assert.True(t, pkgerrors.IsNotFound(err))

	all, err := svc.ListAll(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	limited, err := svc.ListAll(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/infrastructure/persistence/abstractions"
	"github.com/gpazevedo/alex/infrastructure/persistence/memory"
	"github.com/gpazevedo/alex/infrastructure/persistence/schema"
)

var (
	t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
	t3 = t0.Add(3 * time.Hour)
)

type fixture struct {
	users       *memory.Table
	instruments *memory.Table
	now         time.Time

	userRepo       *UserRepository
	accountRepo    *AccountRepository
	instrumentRepo *InstrumentRepository
	priceRepo      *PriceRepository
	positionRepo   *PositionRepository
	jobRepo        *JobRepository
}

func newFixture() *fixture {
	f := &fixture{
		users:       memory.NewTable(schema.UsersTable("users", schema.DefaultIndexNames())),
		instruments: memory.NewTable(schema.InstrumentsTable("instruments")),
		now:         t3.Add(time.Hour),
	}
	clock := WithClock(func() time.Time { return f.now })
	logger := zap.NewNop()
	idx := schema.DefaultIndexNames()

	f.userRepo = NewUserRepository(f.users, logger, clock)
	f.accountRepo = NewAccountRepository(f.users, logger, clock)
	f.instrumentRepo = NewInstrumentRepository(f.instruments, logger, clock)
	f.priceRepo = NewPriceRepository(f.instruments, logger, clock)
	f.positionRepo = NewPositionRepository(f.users, idx, logger, clock)
	f.jobRepo = NewJobRepository(f.users, idx, logger, clock)
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) seedInstrument(t *testing.T, symbol string) {
	t.Helper()
	require.NoError(t, f.instrumentRepo.Create(context.Background(), &entities.Instrument{
		Symbol:       symbol,
		Name:         symbol + " fund",
		Type:         entities.InstrumentTypeETF,
		CurrentPrice: dec("1"),
		AllocationAssetClass: valueobjects.Allocation{
			"equity": dec("100"),
		},
	}))
}

func TestNumber_PreservesPrecision(t *testing.T) {
	type holder struct {
		Value Number            `dynamodbav:"value"`
		Map   map[string]Number `dynamodbav:"map"`
	}

	in := holder{Value: num(dec("123.456789012345678")), Map: map[string]Number{"a": num(dec("33.33"))}}
	item, err := attributevalue.MarshalMap(in)
	require.NoError(t, err)

	n, ok := item["value"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "123.456789012345678", n.Value)

	var out holder
	require.NoError(t, attributevalue.UnmarshalMap(item, &out))
	assert.True(t, in.Value.Equal(out.Value.Decimal))
	assert.True(t, dec("33.33").Equal(out.Map["a"].Decimal))
}

func TestNumber_RejectsGarbage(t *testing.T) {
	var n Number
	assert.Error(t, n.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberN{Value: "abc"}))
	assert.Error(t, n.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberBOOL{Value: true}))
}

func TestUserRepository_CreateFindUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	years := 25
	income := dec("80000")
	require.NoError(t, f.userRepo.Create(ctx, &entities.User{
		ClerkUserID:            "user_1",
		DisplayName:            "Ada",
		YearsUntilRetirement:   &years,
		TargetRetirementIncome: &income,
		AssetClassTargets:      valueobjects.Allocation{"equity": dec("70"), "fixed_income": dec("30")},
	}))

	got, err := f.userRepo.FindByClerkID(ctx, "user_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada", got.DisplayName)
	assert.Equal(t, 25, *got.YearsUntilRetirement)
	assert.True(t, income.Equal(*got.TargetRetirementIncome))
	assert.True(t, dec("70").Equal(got.AssetClassTargets["equity"]))
	assert.Equal(t, f.now, got.CreatedAt)

	f.now = f.now.Add(time.Minute)
	name := "Ada L."
	n, err := f.userRepo.Update(ctx, "user_1", entities.UserUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = f.userRepo.FindByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", got.DisplayName)
	assert.Equal(t, 25, *got.YearsUntilRetirement, "untouched fields survive a partial update")
	assert.Equal(t, f.now, got.UpdatedAt)
}

func TestUserRepository_Missing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	got, err := f.userRepo.FindByClerkID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	name := "x"
	n, err := f.userRepo.Update(ctx, "nobody", entities.UserUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.users.Len(), "update must not create a partial user")
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a := &entities.Account{ClerkUserID: "user_1", Name: "Brokerage", CashBalance: dec("1500.50"), CashInterest: dec("0.04")}
	require.NoError(t, f.accountRepo.Create(ctx, a))
	require.NotEmpty(t, a.ID)
	require.NoError(t, f.accountRepo.Create(ctx, &entities.Account{ClerkUserID: "user_1", Name: "IRA"}))
	require.NoError(t, f.accountRepo.Create(ctx, &entities.Account{ClerkUserID: "user_2", Name: "Other"}))

	list, err := f.accountRepo.FindByUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	got, err := f.accountRepo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Brokerage", got.Name)
	assert.Equal(t, "user_1", got.ClerkUserID)
	assert.True(t, dec("1500.50").Equal(got.CashBalance))

	missing, err := f.accountRepo.FindByID(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = f.accountRepo.FindByID(ctx, "bad#id")
	assert.Error(t, err)
}

func TestInstrumentRepository(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.seedInstrument(t, "spy")
	f.seedInstrument(t, "QQQ")
	_, err := f.priceRepo.RecordPrice(ctx, "SPY", dec("450"), t1, nil)
	require.NoError(t, err)

	got, err := f.instrumentRepo.FindBySymbol(ctx, "Spy")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "SPY", got.Symbol)
	assert.True(t, dec("100").Equal(got.AllocationAssetClass["equity"]))

	all, err := f.instrumentRepo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2, "price points are not instruments")
	assert.Equal(t, "QQQ", all[0].Symbol)
	assert.Equal(t, "SPY", all[1].Symbol)

	batch, err := f.instrumentRepo.BatchGetBySymbols(ctx, []string{"SPY", "spy", "VTI"})
	require.NoError(t, err)
	assert.Len(t, batch, 1)
	assert.Contains(t, batch, "SPY")

	missing, err := f.instrumentRepo.FindBySymbol(ctx, "VTI")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInstrumentRepository_RejectsInvalid(t *testing.T) {
	f := newFixture()
	err := f.instrumentRepo.Create(context.Background(), &entities.Instrument{
		Symbol: "SPY",
		Name:   "bad",
		Type:   entities.InstrumentTypeETF,
		AllocationRegions: valueobjects.Allocation{
			"europe": dec("120"),
		},
	})
	assert.Error(t, err)
	assert.Equal(t, 0, f.instruments.Len())
}

func TestPriceRepository_RecordPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedInstrument(t, "SPY")

	volume := int64(1000)
	point, err := f.priceRepo.RecordPrice(ctx, "SPY", dec("451.10"), t1, &volume)
	require.NoError(t, err)
	assert.NotEmpty(t, point.EventID)
	assert.Equal(t, SourceUpdate, point.Source)

	inst, err := f.instrumentRepo.FindBySymbol(ctx, "SPY")
	require.NoError(t, err)
	assert.True(t, dec("451.10").Equal(inst.CurrentPrice))

	_, err = f.priceRepo.RecordPrice(ctx, "SPY", dec("-1"), t1, nil)
	assert.Error(t, err)
}

func TestPriceRepository_BackDatedPointKeepsLatestCurrentPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedInstrument(t, "SPY")

	_, err := f.priceRepo.RecordPrice(ctx, "SPY", dec("110"), t2, nil)
	require.NoError(t, err)
	point, err := f.priceRepo.RecordPrice(ctx, "SPY", dec("100"), t1, nil)
	require.NoError(t, err)
	require.NotNil(t, point)

	inst, err := f.instrumentRepo.FindBySymbol(ctx, "SPY")
	require.NoError(t, err)
	assert.True(t, dec("110").Equal(inst.CurrentPrice), "cached price must follow the latest point")

	latest, err := f.priceRepo.PriceAt(ctx, "SPY", t3)
	require.NoError(t, err)
	assert.True(t, latest.Price.Equal(inst.CurrentPrice))

	history, err := f.priceRepo.PriceHistory(ctx, "SPY", t0, t3)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = f.priceRepo.RecordPrice(ctx, "SPY", dec("120"), t3, nil)
	require.NoError(t, err)
	inst, err = f.instrumentRepo.FindBySymbol(ctx, "SPY")
	require.NoError(t, err)
	assert.True(t, dec("120").Equal(inst.CurrentPrice))
}

func TestPriceRepository_UnknownInstrument(t *testing.T) {
	f := newFixture()
	_, err := f.priceRepo.RecordPrice(context.Background(), "NOPE", dec("1"), t1, nil)
	require.Error(t, err)
	assert.Equal(t, 0, f.instruments.Len())
}

func TestPriceRepository_ProjectionFailureKeepsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedInstrument(t, "SPY")

	f.instruments.FailNext("Update", errors.New("throttled"))
	_, err := f.priceRepo.RecordPrice(ctx, "SPY", dec("99"), t1, nil)
	require.Error(t, err)

	history, err := f.priceRepo.PriceHistory(ctx, "SPY", t0, t3)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPriceRepository_PriceAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedInstrument(t, "SPY")

	for _, p := range []struct {
		at    time.Time
		price string
	}{{t1, "100"}, {t2, "110"}, {t3, "120"}} {
		_, err := f.priceRepo.RecordPrice(ctx, "SPY", dec(p.price), p.at, nil)
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"before first", t0, ""},
		{"exact first", t1, "100"},
		{"between", t1.Add(30 * time.Minute), "100"},
		{"exact second", t2, "110"},
		{"after last", t3.Add(time.Hour), "120"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.priceRepo.PriceAt(ctx, "SPY", tt.at)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, dec(tt.want).Equal(got.Price), "got %s", got.Price)
		})
	}
}

func TestPriceRepository_PriceAtIsMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedInstrument(t, "VTI")

	for i := 0; i < 10; i++ {
		_, err := f.priceRepo.RecordPrice(ctx, "VTI", decimal.NewFromInt(int64(200+i)), t0.Add(time.Duration(i)*time.Minute), nil)
		require.NoError(t, err)
	}

	var last time.Time
	for q := t0; q.Before(t0.Add(12 * time.Minute)); q = q.Add(17 * time.Second) {
		got, err := f.priceRepo.PriceAt(ctx, "VTI", q)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.Timestamp.Before(last), "price at %s looked backward", q)
		assert.False(t, got.Timestamp.After(q))
		last = got.Timestamp
	}
}

func TestPriceRepository_PriceHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedInstrument(t, "SPY")

	for i, at := range []time.Time{t0, t1, t2, t3} {
		_, err := f.priceRepo.RecordPrice(ctx, "SPY", decimal.NewFromInt(int64(100+i)), at, nil)
		require.NoError(t, err)
	}
	// same instant, distinct event
	_, err := f.priceRepo.RecordPrice(ctx, "SPY", dec("101.5"), t1, nil)
	require.NoError(t, err)

	points, err := f.priceRepo.PriceHistory(ctx, "SPY", t1, t2)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, t1, points[0].Timestamp)
	assert.Equal(t, t1, points[1].Timestamp)
	assert.Equal(t, t2, points[2].Timestamp)

	_, err = f.priceRepo.PriceHistory(ctx, "SPY", t2, t1)
	assert.Error(t, err)
}

func TestPriceRepository_SeedSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedInstrument(t, "SPY")

	point, err := f.priceRepo.WithSource(SourceSeed).RecordPrice(ctx, "SPY", dec("1"), t1, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceSeed, point.Source)

	got, err := f.priceRepo.PriceAt(ctx, "SPY", t1)
	require.NoError(t, err)
	assert.Equal(t, SourceSeed, got.Source)
}

func TestPositionRepository_BuyBuySellScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	steps := []struct {
		qty    string
		action valueobjects.PositionAction
		at     time.Time
	}{
		{"50", valueobjects.ActionBuy, t1},
		{"75", valueobjects.ActionBuy, t2},
		{"50", valueobjects.ActionSell, t3},
	}
	for _, s := range steps {
		at := s.at
		_, err := f.positionRepo.RecordPosition(ctx, "acct-1", "SPY", dec(s.qty), s.action, &at)
		require.NoError(t, err)
	}

	current, err := f.positionRepo.CurrentPositions(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.True(t, dec("50").Equal(current[0].Quantity))
	assert.Equal(t, valueobjects.ActionSell, current[0].LastAction)
	assert.Equal(t, t3, current[0].Timestamp)

	events, err := f.positionRepo.EventsFor(ctx, "acct-1", "SPY", nil, nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	var actions []valueobjects.PositionAction
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []valueobjects.PositionAction{valueobjects.ActionBuy, valueobjects.ActionBuy, valueobjects.ActionSell}, actions)
	assert.Equal(t, "2024-03-01", events[0].AsOfDate)
}

func TestPositionRepository_PositionsAsOf(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	record := func(symbol, qty string, at time.Time) {
		_, err := f.positionRepo.RecordPosition(ctx, "acct-1", symbol, dec(qty), valueobjects.ActionUpdate, &at)
		require.NoError(t, err)
	}
	record("SPY", "10", t1)
	record("QQQ", "5", t2)
	record("SPY", "20", t3)
	// another account must not leak in
	_, err := f.positionRepo.RecordPosition(ctx, "acct-2", "VTI", dec("1"), valueobjects.ActionBuy, &t0)
	require.NoError(t, err)

	tests := []struct {
		name string
		at   time.Time
		want map[string]string
	}{
		{"before any event", t0, map[string]string{}},
		{"at first event", t1, map[string]string{"SPY": "10"}},
		{"between", t2.Add(time.Minute), map[string]string{"SPY": "10", "QQQ": "5"}},
		{"at last", t3, map[string]string{"SPY": "20", "QQQ": "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.positionRepo.PositionsAsOf(ctx, "acct-1", tt.at)
			require.NoError(t, err)
			have := map[string]string{}
			for _, p := range got {
				have[p.Symbol] = p.Quantity.String()
			}
			assert.Equal(t, tt.want, have)
		})
	}
}

func TestPositionRepository_AsOfNowAgreesWithCurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	for i, symbol := range []string{"SPY", "QQQ", "SPY", "BND", "QQQ"} {
		at := t0.Add(time.Duration(i) * time.Minute)
		_, err := f.positionRepo.RecordPosition(ctx, "acct-1", symbol, decimal.NewFromInt(int64(i+1)), valueobjects.ActionUpdate, &at)
		require.NoError(t, err)
	}

	current, err := f.positionRepo.CurrentPositions(ctx, "acct-1")
	require.NoError(t, err)
	asOf, err := f.positionRepo.PositionsAsOf(ctx, "acct-1", f.now)
	require.NoError(t, err)

	require.Len(t, asOf, len(current))
	for i := range current {
		assert.Equal(t, current[i].Symbol, asOf[i].Symbol)
		assert.True(t, current[i].Quantity.Equal(asOf[i].Quantity))
		assert.Equal(t, current[i].EventID, asOf[i].EventID)
	}
}

func TestPositionRepository_SameTimestampDoesNotCollide(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	at := t1
	first, err := f.positionRepo.RecordPosition(ctx, "acct-1", "SPY", dec("1"), valueobjects.ActionBuy, &at)
	require.NoError(t, err)
	second, err := f.positionRepo.RecordPosition(ctx, "acct-1", "SPY", dec("2"), valueobjects.ActionBuy, &at)
	require.NoError(t, err)
	assert.NotEqual(t, first.EventID, second.EventID)

	events, err := f.positionRepo.EventsFor(ctx, "acct-1", "SPY", nil, nil)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestPositionRepository_DefaultsAndValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	event, err := f.positionRepo.RecordPosition(ctx, "acct-1", "spy", dec("3"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "SPY", event.Symbol)
	assert.Equal(t, valueobjects.ActionUpdate, event.Action)
	assert.Equal(t, f.now, event.Timestamp)

	_, err = f.positionRepo.RecordPosition(ctx, "acct#1", "SPY", dec("3"), valueobjects.ActionBuy, nil)
	assert.Error(t, err)
	_, err = f.positionRepo.RecordPosition(ctx, "acct-1", "SPY", dec("-3"), valueobjects.ActionBuy, nil)
	assert.Error(t, err)

	start, end := t3, t1
	_, err = f.positionRepo.EventsFor(ctx, "acct-1", "SPY", &start, &end)
	assert.Error(t, err)
}

func TestPositionRepository_EventsForWindowAndPrefix(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	for _, at := range []time.Time{t0, t1, t2} {
		at := at
		_, err := f.positionRepo.RecordPosition(ctx, "acct-1", "SPY", dec("1"), valueobjects.ActionBuy, &at)
		require.NoError(t, err)
	}
	// SPYG shares the SPY prefix
	_, err := f.positionRepo.RecordPosition(ctx, "acct-1", "SPYG", dec("1"), valueobjects.ActionBuy, &t1)
	require.NoError(t, err)

	start, end := t1, t2
	events, err := f.positionRepo.EventsFor(ctx, "acct-1", "SPY", &start, &end)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, t1, events[0].Timestamp)
	assert.Equal(t, t2, events[1].Timestamp)
}

func TestPositionRepository_ProjectionFailureKeepsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.positionRepo.RecordPosition(ctx, "acct-1", "SPY", dec("10"), valueobjects.ActionBuy, &t1)
	require.NoError(t, err)

	// the history put succeeds, the projection put fails
	f.users.FailNext("Put", nil)
	f.users.FailNext("Put", errors.New("network"))
	_, err = f.positionRepo.RecordPosition(ctx, "acct-1", "SPY", dec("15"), valueobjects.ActionBuy, &t2)
	require.Error(t, err)

	current, err := f.positionRepo.CurrentPositions(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(current[0].Quantity))

	asOf, err := f.positionRepo.PositionsAsOf(ctx, "acct-1", t3)
	require.NoError(t, err)
	assert.True(t, dec("15").Equal(asOf[0].Quantity))
}

func TestJobRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	job := &entities.Job{
		ClerkUserID:    "user_1",
		JobType:        "portfolio_analysis",
		RequestPayload: entities.Payload{"depth": "full"},
	}
	require.NoError(t, f.jobRepo.Create(ctx, job))
	require.NotEmpty(t, job.ID)
	assert.Equal(t, valueobjects.JobStatusPending, job.Status)

	got, err := f.jobRepo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "full", got.RequestPayload["depth"])

	n, err := f.jobRepo.UpdateStatus(ctx, job.ID, valueobjects.JobStatusRunning, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = f.jobRepo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobjects.JobStatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	n, err = f.jobRepo.UpdateStatus(ctx, job.ID, valueobjects.JobStatusFailed, "planner crashed")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = f.jobRepo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "planner crashed", got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
}

func TestJobRepository_PayloadUpdatesAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	job := &entities.Job{ClerkUserID: "user_1", JobType: "analysis"}
	require.NoError(t, f.jobRepo.Create(ctx, job))

	updates := []func(context.Context, string, entities.Payload) (int, error){
		f.jobRepo.UpdateReport,
		f.jobRepo.UpdateCharts,
		f.jobRepo.UpdateRetirement,
		f.jobRepo.UpdateSummary,
	}
	for i, update := range updates {
		n, err := update(ctx, job.ID, entities.Payload{"stage": float64(i)})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	got, err := f.jobRepo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(0), got.ReportPayload["stage"])
	assert.Equal(t, float64(1), got.ChartsPayload["stage"])
	assert.Equal(t, float64(2), got.RetirementPayload["stage"])
	assert.Equal(t, float64(3), got.SummaryPayload["stage"])
	assert.Equal(t, valueobjects.JobStatusPending, got.Status)
}

func TestJobRepository_MissingJobReportsZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	got, err := f.jobRepo.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := f.jobRepo.UpdateStatus(ctx, "missing", valueobjects.JobStatusRunning, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.jobRepo.UpdateSummary(ctx, "missing", entities.Payload{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.users.Len())

	_, err = f.jobRepo.UpdateStatus(ctx, "missing", "paused", "")
	assert.Error(t, err)
}

func TestJobRepository_FindByUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	var ids []string
	for i := 0; i < 25; i++ {
		job := &entities.Job{ClerkUserID: "user_1", JobType: "analysis", CreatedAt: t0.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, f.jobRepo.Create(ctx, job))
		ids = append(ids, job.ID)
	}
	require.NoError(t, f.jobRepo.Create(ctx, &entities.Job{ClerkUserID: "user_2", JobType: "analysis"}))

	jobs, err := f.jobRepo.FindByUser(ctx, "user_1", ports.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, DefaultJobLimit)
	assert.Equal(t, ids[24], jobs[0].ID, "newest first")

	_, err = f.jobRepo.UpdateStatus(ctx, ids[3], valueobjects.JobStatusCompleted, "")
	require.NoError(t, err)
	_, err = f.jobRepo.UpdateStatus(ctx, ids[7], valueobjects.JobStatusCompleted, "")
	require.NoError(t, err)

	completed := valueobjects.JobStatusCompleted
	jobs, err = f.jobRepo.FindByUser(ctx, "user_1", ports.JobFilter{Status: &completed, Limit: 10})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[7], jobs[0].ID)
	assert.Equal(t, ids[3], jobs[1].ID)

	pending := valueobjects.JobStatusPending
	jobs, err = f.jobRepo.FindByUser(ctx, "user_1", ports.JobFilter{Status: &pending, Limit: 100})
	require.NoError(t, err)
	assert.Len(t, jobs, 23)
}

// laggingIndexTable serves global index queries from an index that has not
// caught up yet: they return nothing.
type laggingIndexTable struct {
	*memory.Table
}

func (t laggingIndexTable) Query(ctx context.Context, input abstractions.QueryInput) ([]abstractions.Item, error) {
	if idx, ok := t.Schema().Index(input.Index); ok && !idx.Local {
		return nil, nil
	}
	return t.Table.Query(ctx, input)
}

func TestRepositories_ResolveIdsBeforeGlobalIndexCatchesUp(t *testing.T) {
	ctx := context.Background()
	users := laggingIndexTable{memory.NewTable(schema.UsersTable("users", schema.DefaultIndexNames()))}
	jobs := NewJobRepository(users, schema.DefaultIndexNames(), zap.NewNop())
	accounts := NewAccountRepository(users, zap.NewNop())

	job := &entities.Job{ClerkUserID: "user_1", JobType: "analysis"}
	require.NoError(t, jobs.Create(ctx, job))

	n, err := jobs.UpdateStatus(ctx, job.ID, valueobjects.JobStatusRunning, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = jobs.UpdateReport(ctx, job.ID, entities.Payload{"ok": true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, valueobjects.JobStatusRunning, got.Status)
	assert.Equal(t, true, got.ReportPayload["ok"])

	account := &entities.Account{ClerkUserID: "user_1", Name: "Brokerage"}
	require.NoError(t, accounts.Create(ctx, account))

	found, err := accounts.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "user_1", found.ClerkUserID)
}

func TestJobRepository_DanglingReferenceReportsZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// the reference is written, the job record is not
	f.users.FailNext("Put", nil)
	f.users.FailNext("Put", errors.New("throttled"))
	job := &entities.Job{ClerkUserID: "user_1", JobType: "analysis"}
	require.Error(t, f.jobRepo.Create(ctx, job))
	require.Equal(t, 1, f.users.Len())

	got, err := f.jobRepo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := f.jobRepo.UpdateStatus(ctx, job.ID, valueobjects.JobStatusRunning, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, f.users.Len(), "update must not create a partial job")
}

func TestJobRepository_FindAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.jobRepo.Create(ctx, &entities.Job{ClerkUserID: "user_1", JobType: "analysis"}))
	require.NoError(t, f.jobRepo.Create(ctx, &entities.Job{ClerkUserID: "user_2", JobType: "analysis"}))
	require.NoError(t, f.accountRepo.Create(ctx, &entities.Account{ClerkUserID: "user_1", Name: "IRA"}))
	require.NoError(t, f.userRepo.Create(ctx, &entities.User{ClerkUserID: "user_1", DisplayName: "Ada"}))

	all, err := f.jobRepo.FindAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2, "job references and other records are not jobs")
	owners := []string{all[0].ClerkUserID, all[1].ClerkUserID}
	assert.ElementsMatch(t, []string{"user_1", "user_2"}, owners)
}

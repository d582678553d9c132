package entities

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpazevedo/alex/domain/core/valueobjects"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
)

func validInstrument() *Instrument {
	return &Instrument{
		Symbol:       "SPY",
		Name:         "SPDR S&P 500 ETF",
		Type:         InstrumentTypeETF,
		CurrentPrice: decimal.RequireFromString("450.25"),
		AllocationRegions: valueobjects.Allocation{
			"north_america": decimal.NewFromInt(100),
		},
		AllocationAssetClass: valueobjects.Allocation{
			"equity": decimal.NewFromInt(100),
		},
	}
}

func TestInstrument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(i *Instrument)
		wantErr bool
	}{
		{"valid", func(i *Instrument) {}, false},
		{"lowercase symbol", func(i *Instrument) { i.Symbol = "spy" }, true},
		{"separator in symbol", func(i *Instrument) { i.Symbol = "SP#Y" }, true},
		{"missing name", func(i *Instrument) { i.Name = "" }, true},
		{"unknown type", func(i *Instrument) { i.Type = "warrant" }, true},
		{"negative price", func(i *Instrument) { i.CurrentPrice = decimal.NewFromInt(-1) }, true},
		{"allocation over 100", func(i *Instrument) {
			i.AllocationSectors = valueobjects.Allocation{"technology": decimal.NewFromInt(101)}
		}, true},
		{"allocations not summing to 100 are accepted", func(i *Instrument) {
			i.AllocationSectors = valueobjects.Allocation{"technology": decimal.NewFromInt(30)}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := validInstrument()
			tt.mutate(inst)

			err := inst.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInstrument_ValidateReportsJSONFieldNames(t *testing.T) {
	inst := validInstrument()
	inst.Name = ""

	err := inst.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestPositionEvent_Validate(t *testing.T) {
	base := PositionEvent{
		AccountID: "acc-1",
		Symbol:    "VTI",
		Quantity:  decimal.NewFromInt(10),
		Action:    valueobjects.ActionBuy,
		Timestamp: time.Now(),
	}
	require.NoError(t, base.Validate())

	noAccount := base
	noAccount.AccountID = ""
	assert.Error(t, noAccount.Validate())

	badAccount := base
	badAccount.AccountID = "acc#1"
	assert.Error(t, badAccount.Validate())

	negative := base
	negative.Quantity = decimal.NewFromInt(-5)
	assert.Error(t, negative.Validate())

	badAction := base
	badAction.Action = "HOLD"
	assert.Error(t, badAction.Validate())

	zeroTime := base
	zeroTime.Timestamp = time.Time{}
	assert.Error(t, zeroTime.Validate())
}

func TestPositionEvent_Current(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	event := PositionEvent{
		AccountID: "acc-1",
		Symbol:    "VTI",
		Quantity:  decimal.NewFromInt(25),
		Action:    valueobjects.ActionSell,
		Timestamp: ts,
		AsOfDate:  AsOfDate(ts),
		EventID:   "evt",
	}

	current := event.Current()

	assert.Equal(t, "VTI", current.Symbol)
	assert.True(t, current.Quantity.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, valueobjects.ActionSell, current.LastAction)
	assert.Equal(t, ts, current.Timestamp)
	assert.Equal(t, "2024-02-03", current.AsOfDate)
}

func TestPricePoint_Validate(t *testing.T) {
	vol := int64(-1)
	p := PricePoint{Symbol: "QQQ", Price: decimal.NewFromInt(1), Timestamp: time.Now()}
	require.NoError(t, p.Validate())

	p.Volume = &vol
	assert.Error(t, p.Validate())
}

func TestJob_Validate(t *testing.T) {
	job := Job{ClerkUserID: "user_1", JobType: "portfolio_analysis", Status: valueobjects.JobStatusPending}
	require.NoError(t, job.Validate())
	assert.True(t, job.OwnedBy("user_1"))
	assert.False(t, job.OwnedBy("user_2"))

	job.Status = "paused"
	assert.Error(t, job.Validate())

	job.Status = valueobjects.JobStatusPending
	job.JobType = ""
	assert.Error(t, job.Validate())
}

func TestUserUpdate(t *testing.T) {
	empty := UserUpdate{}
	assert.True(t, empty.IsEmpty())

	name := "Ada"
	years := 101
	update := UserUpdate{DisplayName: &name, YearsUntilRetirement: &years}
	assert.False(t, update.IsEmpty())
	assert.Error(t, update.Validate())

	years = 20
	assert.NoError(t, update.Validate())
}

func TestJobFieldForStage(t *testing.T) {
	field, ok := JobFieldForStage("retirement")
	assert.True(t, ok)
	assert.Equal(t, JobFieldRetirement, field)

	_, ok = JobFieldForStage("retirement_payload")
	assert.False(t, ok)
}

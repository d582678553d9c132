package valueobjects

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusFailed, JobStatusFailed, true},
		{JobStatusPending, "unknown", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
}

func TestParseJobStatus(t *testing.T) {
	s, err := ParseJobStatus("running")
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, s)

	_, err = ParseJobStatus("RUNNING")
	assert.Error(t, err)
}

func TestParsePositionAction(t *testing.T) {
	a, err := ParsePositionAction(" buy ")
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, a)

	a, err = ParsePositionAction("")
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, a)

	_, err = ParsePositionAction("short")
	assert.Error(t, err)
}

func TestAllocation(t *testing.T) {
	alloc := Allocation{
		"equity":       decimal.RequireFromString("60.5"),
		"fixed_income": decimal.RequireFromString("39.5"),
	}

	assert.True(t, alloc.Total().Equal(decimal.NewFromInt(100)))
	assert.True(t, alloc.SumsTo100(decimal.Zero))
	assert.Equal(t, []string{"equity", "fixed_income"}, alloc.Keys())

	other := Allocation{
		"equity":       decimal.RequireFromString("60.50"),
		"fixed_income": decimal.RequireFromString("39.5"),
	}
	assert.True(t, alloc.Equal(other))

	other["equity"] = decimal.NewFromInt(61)
	assert.False(t, alloc.Equal(other))
	assert.False(t, other.SumsTo100(decimal.RequireFromString("0.1")))
}

func TestValidateSymbol(t *testing.T) {
	assert.NoError(t, ValidateSymbol("BRK.B"))
	assert.Error(t, ValidateSymbol("BRK#B"))
	assert.Equal(t, "VTI", NormalizeSymbol(" vti"))
}

package keys

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp_FixedWidthAndOrdered(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	instants := []time.Time{
		base,
		base.Add(time.Nanosecond),
		base.Add(10 * time.Millisecond),
		base.Add(100 * time.Millisecond),
		base.Add(time.Second),
		base.Add(24 * time.Hour),
	}

	var formatted []string
	for _, ts := range instants {
		s := FormatTimestamp(ts)
		assert.Len(t, s, len(TimestampLayout))
		formatted = append(formatted, s)
	}

	assert.True(t, sort.StringsAreSorted(formatted), "string order must follow time order: %v", formatted)
}

func TestFormatTimestamp_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, loc)

	assert.Equal(t, "2024-03-01T12:00:00.000000000Z", FormatTimestamp(ts))
}

func TestParseTimestamp_RoundTrip(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 59, 59, 123456789, time.UTC)

	parsed, err := ParseTimestamp(FormatTimestamp(ts))

	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))
	assert.Equal(t, time.UTC, parsed.Location())
}

func TestParseTimestamp_Invalid(t *testing.T) {
	_, err := ParseTimestamp("2024-03-01T12:00:00Z")
	assert.Error(t, err)
}

func TestPositionHistorySK_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	eventID := NewEventID()

	sk := PositionHistorySK("SPY", ts, eventID)
	key, err := ParsePositionHistorySK(sk)

	require.NoError(t, err)
	assert.Equal(t, "SPY", key.Symbol)
	assert.True(t, ts.Equal(key.Timestamp))
	assert.Equal(t, eventID, key.EventID)

	lsi := PositionHistoryLSISK(ts, "SPY", eventID)
	lsiKey, err := ParsePositionHistoryLSISK(lsi)
	require.NoError(t, err)
	assert.Equal(t, key, lsiKey)
}

func TestParseKeys_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		parse func() error
	}{
		{"history without event id", func() error {
			_, err := ParsePositionHistorySK("HISTORY#SPY#2024-01-02T03:04:05.000000000Z")
			return err
		}},
		{"history wrong prefix", func() error {
			_, err := ParsePositionHistorySK("CURRENT#SPY")
			return err
		}},
		{"price bad timestamp", func() error {
			_, _, err := ParsePriceSK("PRICE#yesterday#abc")
			return err
		}},
		{"job missing id", func() error {
			_, _, err := ParseJobSK("JOB#2024-01-02T03:04:05.000000000Z")
			return err
		}},
		{"current empty symbol", func() error {
			_, err := ParseCurrentSK("CURRENT#")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.parse())
		})
	}
}

func TestPriceAndJobSK_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	priceTS, eventID, err := ParsePriceSK(PriceSK(ts, "evt-1"))
	require.NoError(t, err)
	assert.True(t, ts.Equal(priceTS))
	assert.Equal(t, "evt-1", eventID)

	jobTS, jobID, err := ParseJobSK(JobSK(ts, "job-1"))
	require.NoError(t, err)
	assert.True(t, ts.Equal(jobTS))
	assert.Equal(t, "job-1", jobID)

	symbol, err := ParseCurrentSK(CurrentSK("QQQ"))
	require.NoError(t, err)
	assert.Equal(t, "QQQ", symbol)

	userID, err := ParseUserPK(UserPK("user_123"))
	require.NoError(t, err)
	assert.Equal(t, "user_123", userID)
}

func TestHistoryKeys_SameTimestampDoNotCollide(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seen := make(map[string]struct{})

	for i := 0; i < 1000; i++ {
		sk := PositionHistorySK("SPY", ts, NewEventID())
		_, dup := seen[sk]
		require.False(t, dup, "duplicate key %s", sk)
		seen[sk] = struct{}{}
	}
}

func TestNewEventID_TimeOrdered(t *testing.T) {
	first := NewEventID()
	time.Sleep(2 * time.Millisecond)
	second := NewEventID()

	assert.Less(t, first, second)
}

func TestSymbolHistoryRange_Bounds(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)
	lo, hi := SymbolHistoryRange("SPY", t1, t2)

	inside := []string{
		PositionHistorySK("SPY", t1, NewEventID()),
		PositionHistorySK("SPY", t2, NewEventID()),
	}
	outside := []string{
		PositionHistorySK("SPY", t1.Add(-time.Nanosecond), NewEventID()),
		PositionHistorySK("SPY", t3, NewEventID()),
		PositionHistorySK("SPYG", t1, NewEventID()),
		PositionHistorySK("SP", t1, NewEventID()),
	}

	for _, sk := range inside {
		assert.True(t, lo <= sk && sk <= hi, "%s should be within [%s, %s]", sk, lo, hi)
	}
	for _, sk := range outside {
		assert.False(t, lo <= sk && sk <= hi, "%s should be outside [%s, %s]", sk, lo, hi)
	}
}

func TestAsOfRanges_InclusiveUpperBound(t *testing.T) {
	asOf := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	lo, hi := HistoryAsOfRange(asOf)
	atT := PositionHistoryLSISK(asOf, "VTI", NewEventID())
	after := PositionHistoryLSISK(asOf.Add(time.Nanosecond), "AGG", NewEventID())
	assert.True(t, lo <= atT && atT <= hi)
	assert.False(t, after <= hi)

	plo, phi := PriceAsOfRange(asOf)
	priceAtT := PriceSK(asOf, NewEventID())
	assert.True(t, plo <= priceAtT && priceAtT <= phi)
	assert.False(t, PriceSK(asOf.Add(time.Nanosecond), NewEventID()) <= phi)
	assert.False(t, Metadata >= plo && Metadata <= phi, "instrument metadata must not fall in the price range")
}

func TestValidateSymbol(t *testing.T) {
	valid := []string{"SPY", "BRK.B", "VOO", "ABC_1", "X-Y"}
	invalid := []string{"", "spy", "SP#Y", "S P Y", "TOOLONGSYMBOLNAMEFORKEYS"}

	for _, s := range valid {
		assert.NoError(t, ValidateSymbol(s), s)
	}
	for _, s := range invalid {
		assert.Error(t, ValidateSymbol(s), s)
	}
	assert.Equal(t, "SPY", NormalizeSymbol("  spy "))
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("user id", "user_2abc"))
	assert.Error(t, ValidateIdentifier("user id", ""))
	assert.Error(t, ValidateIdentifier("user id", "user#1"))
}

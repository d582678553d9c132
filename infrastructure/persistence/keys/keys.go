// Package keys encodes the single-table key schema used by the planner
// tables. Every entity maps to a (partition key, sort key) pair; entities that
// share a partition are told apart by the sort key prefix, and time-series
// sort keys embed a fixed-width UTC timestamp so that string order is time
// order.
//
// Users-data table (PK / SK):
//
//	User             USER#<userID>       METADATA
//	Account          USER#<userID>       ACCOUNT#<accountID>
//	Account (by id)  ACCOUNT#<accountID> METADATA
//	CurrentPosition  ACCOUNT#<accountID> CURRENT#<symbol>
//	PositionEvent    ACCOUNT#<accountID> HISTORY#<symbol>#<ts>#<eventID>
//	Job              USER#<userID>       JOB#<ts>#<jobID>
//	Job (by id)      JOBID#<jobID>       METADATA
//
// The by-id records live on the base table so that resolving an id is a
// strongly consistent Get.
//
// Instruments table (symbol / SK):
//
//	Instrument       <symbol>            METADATA
//	PricePoint       <symbol>            PRICE#<ts>#<eventID>
package keys

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gpazevedo/alex/domain/core/valueobjects"
)

// TimestampLayout is the sort-key timestamp format. Unlike RFC3339Nano it
// never trims trailing zeros, so equal-width strings compare like instants.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

const (
	Separator = "#"
	Metadata  = "METADATA"

	UserPrefix      = "USER#"
	AccountPrefix = "ACCOUNT#"
	CurrentPrefix = "CURRENT#"
	HistoryPrefix = "HISTORY#"
	JobPrefix     = "JOB#"
	JobIDPrefix   = "JOBID#"
	PricePrefix   = "PRICE#"

	// upperBound sorts after every character allowed in a key segment.
	upperBound = "~"
)

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a sort-key timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid key timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// NewEventID returns a time-ordered unique suffix for history sort keys.
// Two events recorded at the same timestamp still get distinct keys.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ValidateIdentifier rejects identifiers that would break key parsing.
func ValidateIdentifier(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s is required", kind)
	}
	if strings.Contains(id, Separator) {
		return fmt.Errorf("%s %q must not contain %q", kind, id, Separator)
	}
	return nil
}

// ValidateSymbol checks that an instrument symbol is safe to embed in keys.
func ValidateSymbol(symbol string) error {
	return valueobjects.ValidateSymbol(symbol)
}

// NormalizeSymbol upper-cases and trims a user supplied symbol.
func NormalizeSymbol(symbol string) string {
	return valueobjects.NormalizeSymbol(symbol)
}

// Users

func UserPK(userID string) string { return UserPrefix + userID }

// ParseUserPK extracts the user id from a USER# partition key.
func ParseUserPK(pk string) (string, error) {
	return trimPrefix(pk, UserPrefix)
}

// Accounts

func AccountSK(accountID string) string { return AccountPrefix + accountID }
func AccountPK(accountID string) string { return AccountPrefix + accountID }

// ParseAccountKey extracts the account id from an ACCOUNT# key.
func ParseAccountKey(key string) (string, error) {
	return trimPrefix(key, AccountPrefix)
}

// Positions

func CurrentSK(symbol string) string { return CurrentPrefix + symbol }

// ParseCurrentSK extracts the symbol from a CURRENT# sort key.
func ParseCurrentSK(sk string) (string, error) {
	return trimPrefix(sk, CurrentPrefix)
}

// HistoryKey identifies one position event.
type HistoryKey struct {
	Symbol    string
	Timestamp time.Time
	EventID   string
}

// PositionHistorySK builds HISTORY#<symbol>#<ts>#<eventID>.
func PositionHistorySK(symbol string, ts time.Time, eventID string) string {
	return HistoryPrefix + symbol + Separator + FormatTimestamp(ts) + Separator + eventID
}

// PositionHistoryLSISK builds the time-first variant HISTORY#<ts>#<symbol>#<eventID>
// stored on the LSI1SK attribute so that an account's whole history can be
// range-scanned in time order.
func PositionHistoryLSISK(ts time.Time, symbol, eventID string) string {
	return HistoryPrefix + FormatTimestamp(ts) + Separator + symbol + Separator + eventID
}

// ParsePositionHistorySK parses a HISTORY#<symbol>#<ts>#<eventID> sort key.
func ParsePositionHistorySK(sk string) (HistoryKey, error) {
	rest, err := trimPrefix(sk, HistoryPrefix)
	if err != nil {
		return HistoryKey{}, err
	}
	parts := strings.SplitN(rest, Separator, 3)
	if len(parts) != 3 {
		return HistoryKey{}, fmt.Errorf("malformed history key %q", sk)
	}
	ts, err := ParseTimestamp(parts[1])
	if err != nil {
		return HistoryKey{}, err
	}
	return HistoryKey{Symbol: parts[0], Timestamp: ts, EventID: parts[2]}, nil
}

// ParsePositionHistoryLSISK parses a HISTORY#<ts>#<symbol>#<eventID> index key.
func ParsePositionHistoryLSISK(sk string) (HistoryKey, error) {
	rest, err := trimPrefix(sk, HistoryPrefix)
	if err != nil {
		return HistoryKey{}, err
	}
	parts := strings.SplitN(rest, Separator, 3)
	if len(parts) != 3 {
		return HistoryKey{}, fmt.Errorf("malformed history index key %q", sk)
	}
	ts, err := ParseTimestamp(parts[0])
	if err != nil {
		return HistoryKey{}, err
	}
	return HistoryKey{Symbol: parts[1], Timestamp: ts, EventID: parts[2]}, nil
}

// SymbolHistoryRange bounds the events of one symbol with start <= ts <= end.
func SymbolHistoryRange(symbol string, start, end time.Time) (string, string) {
	prefix := HistoryPrefix + symbol + Separator
	return prefix + FormatTimestamp(start), prefix + FormatTimestamp(end) + Separator + upperBound
}

// HistoryAsOfRange bounds the LSI1SK values of all events with ts <= asOf.
func HistoryAsOfRange(asOf time.Time) (string, string) {
	return HistoryPrefix, HistoryPrefix + FormatTimestamp(asOf) + Separator + upperBound
}

// Jobs

// JobSK builds JOB#<ts>#<jobID>.
func JobSK(createdAt time.Time, jobID string) string {
	return JobPrefix + FormatTimestamp(createdAt) + Separator + jobID
}

// JobIDKey is the partition of a job's by-id record.
func JobIDKey(jobID string) string { return JobIDPrefix + jobID }

// JobStatusKey is the GSI2 partition for status-based job queries.
func JobStatusKey(status string) string { return JobPrefix + status }

// JobStatusSortKey is the GSI2 sort key: USER#<userID>#<ts>.
func JobStatusSortKey(userID string, createdAt time.Time) string {
	return UserPrefix + userID + Separator + FormatTimestamp(createdAt)
}

// JobStatusUserPrefix narrows a status query to one user.
func JobStatusUserPrefix(userID string) string {
	return UserPrefix + userID + Separator
}

// ParseJobSK parses a JOB#<ts>#<jobID> sort key.
func ParseJobSK(sk string) (time.Time, string, error) {
	rest, err := trimPrefix(sk, JobPrefix)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(rest, Separator, 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("malformed job key %q", sk)
	}
	ts, err := ParseTimestamp(parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

// Prices

// PriceSK builds PRICE#<ts>#<eventID>.
func PriceSK(ts time.Time, eventID string) string {
	return PricePrefix + FormatTimestamp(ts) + Separator + eventID
}

// ParsePriceSK parses a PRICE#<ts>#<eventID> sort key.
func ParsePriceSK(sk string) (time.Time, string, error) {
	rest, err := trimPrefix(sk, PricePrefix)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(rest, Separator, 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("malformed price key %q", sk)
	}
	ts, err := ParseTimestamp(parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

// PriceRange bounds the price points with start <= ts <= end.
func PriceRange(start, end time.Time) (string, string) {
	return PricePrefix + FormatTimestamp(start), PricePrefix + FormatTimestamp(end) + Separator + upperBound
}

// PriceAsOfRange bounds the price points with ts <= asOf.
func PriceAsOfRange(asOf time.Time) (string, string) {
	return PricePrefix, PricePrefix + FormatTimestamp(asOf) + Separator + upperBound
}

func trimPrefix(key, prefix string) (string, error) {
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return "", fmt.Errorf("key %q does not start with %q", key, prefix)
	}
	return key[len(prefix):], nil
}

package valueobjects

import (
	"fmt"
	"regexp"
	"strings"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9._-]{1,20}$`)

// NormalizeSymbol upper-cases and trims a ticker symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol checks that a symbol only uses A-Z, 0-9, '.', '_' and '-'.
// Symbols are embedded in table keys, so '#' in particular is rejected.
func ValidateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol %q: expected 1-20 characters of A-Z, 0-9, '.', '_' or '-'", symbol)
	}
	return nil
}

// IsValidSymbol reports whether ValidateSymbol accepts the symbol
func IsValidSymbol(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

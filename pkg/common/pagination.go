package common

import (
	"fmt"
	"net/http"
	"strconv"
)

// ExtractLimit reads the "limit" query parameter. Missing means def; values
// above max are clamped.
func ExtractLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}

package services

import (
	"strconv"
	"strings"
)

// parseBudget extracts a dollar ceiling from a free-text customer budget.
// Accepted forms: "5000", "$5,000", "5k", and ranges like "5k-10k" or
// "$5,000 - $10,000". For a range the upper bound is the ceiling. Returns
// false when no amount can be recovered.
func parseBudget(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	// Split on a range dash, tolerating "to" as a separator.
	normalized := strings.ReplaceAll(strings.ToLower(raw), " to ", "-")
	parts := strings.Split(normalized, "-")

	var ceiling float64
	found := false
	for _, part := range parts {
		if amount, ok := parseBudgetAmount(part); ok {
			found = true
			if amount > ceiling {
				ceiling = amount
			}
		}
	}

	return ceiling, found
}

func parseBudgetAmount(part string) (float64, bool) {
	part = strings.TrimSpace(part)
	part = strings.TrimPrefix(part, "$")
	part = strings.ReplaceAll(part, ",", "")
	if part == "" {
		return 0, false
	}

	multiplier := 1.0
	if strings.HasSuffix(part, "k") {
		multiplier = 1000
		part = strings.TrimSuffix(part, "k")
	}

	value, err := strconv.ParseFloat(part, 64)
	if err != nil || value <= 0 {
		return 0, false
	}

	return value * multiplier, true
}

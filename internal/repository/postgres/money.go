package postgres

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amounts are stored as NUMERIC(14,2) in the database and handled as int64
// minor units everywhere else.

func numericStringToMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}

	return int64(math.Round(f * 100)), nil
}

func minorToNumericString(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	whole := minor / 100
	frac := minor % 100

	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}

package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericStringToMinor_Success(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{"whole units", "1500", 150000},
		{"units with minor", "1500.50", 150050},
		{"minor only", "0.99", 99},
		{"zero", "0", 0},
		{"zero with decimals", "0.00", 0},
		{"rounding up", "99.999", 10000},
		{"rounding down", "99.994", 9999},
		{"with whitespace", "  50.25  ", 5025},
		{"negative amount", "-10.50", -1050},
		{"single decimal", "5.5", 550},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := numericStringToMinor(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNumericStringToMinor_Errors(t *testing.T) {
	for _, input := range []string{"", "abc", "₦100.00", "10.5.5"} {
		_, err := numericStringToMinor(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestMinorToNumericString(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{150000, "1500.00"},
		{150050, "1500.50"},
		{99, "0.99"},
		{0, "0.00"},
		{1, "0.01"},
		{10, "0.10"},
		{-1050, "-10.50"},
		{-1, "-0.01"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, minorToNumericString(tt.input), "minor %d", tt.input)
	}
}

func TestMoneyConversion_RoundTrip(t *testing.T) {
	for _, original := range []int64{0, 1, 10, 999, 150000, 12345, 999999999999, -100, -12345} {
		str := minorToNumericString(original)
		minor, err := numericStringToMinor(str)
		require.NoError(t, err)
		assert.Equal(t, original, minor, "minor=%d str=%s", original, str)
	}
}

package format

import (
	"strconv"
)

// Percent formats a probability in [0, 1] with two decimals, e.g. "7.25%".
func Percent(p float64) string {
	return strconv.FormatFloat(p*100, 'f', 2, 64) + "%"
}

// Number formats a float without trailing zeros.
func Number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Truncate shortens s to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

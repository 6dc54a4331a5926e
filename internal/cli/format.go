// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatGB formats a usage volume with thousands separators and two decimals.
// e.g., 1234.5 -> "1,234.50 GB"
func FormatGB(gb float64) string {
	if math.IsNaN(gb) || math.IsInf(gb, 0) {
		return "- GB"
	}
	sign := ""
	if gb < 0 {
		sign = "-"
		gb = -gb
	}
	cents := int64(math.Round(gb * 100))
	return fmt.Sprintf("%s%s.%02d GB", sign, FormatNumber(cents/100), cents%100)
}

// FormatPercent formats a percentage with one decimal.
func FormatPercent(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// Package strings holds text helpers for terminal output.
package strings

import (
	"strings"
)

// DefaultCellMaxLen is the longest value printed in one table cell.
const DefaultCellMaxLen = 100

// MinTruncateLen leaves room for one character plus "...".
const MinTruncateLen = 4

// Truncate collapses all whitespace in s to single spaces and shortens the
// result to maxLen runes, ending in "..." when cut. maxLen values below
// MinTruncateLen are raised to it.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

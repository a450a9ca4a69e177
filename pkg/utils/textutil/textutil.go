// Package textutil bounds captured program output before it is persisted
// or surfaced to users.
package textutil

import "strings"

// DefaultMaxCaptured is the byte bound applied to captured compiler and
// program output.
const DefaultMaxCaptured = 1024 * 1024

// Truncate returns s cut to at most max bytes. Non-positive max yields "".
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// MergeNonEmpty joins the non-empty parts with newlines, truncating each
// part to max bytes first.
func MergeNonEmpty(max int, parts ...string) string {
	var sb strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		sb.WriteString(Truncate(part, max))
		sb.WriteString("\n")
	}
	return sb.String()
}

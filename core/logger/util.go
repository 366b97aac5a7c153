package logger

import (
	"strings"
	"time"
)

// Status reduces err to the status value every summary line carries.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// Took returns the millisecond-rounded duration since start, for handler
// and store call summaries.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds a duration to whole milliseconds. Sub-millisecond noise
// adds nothing when comparing send and query timings.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins at most limit elements, reporting whether any
// were cut. Used for migration file previews and similar short lists.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	truncated := len(values) > limit
	if truncated {
		values = values[:limit]
	}
	return strings.Join(values, ", "), truncated
}

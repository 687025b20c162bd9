package content

import (
	"strings"
	"time"
)

// CountWords counts the non-empty whitespace separated tokens in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// ElapsedMs returns the milliseconds elapsed since start.
func ElapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

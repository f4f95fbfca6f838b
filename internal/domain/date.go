package domain

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date layout used in every table.
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar date, as seen in t's own location.
// The result is midnight UTC so dates compare and hash consistently.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

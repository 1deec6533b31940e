// Package common holds the UTC calendar helpers shared by streaks, missions and leaderboards.
package common

import "time"

const day = 24 * time.Hour

// TruncateToDateUTC truncates the given time to midnight (00:00:00) in UTC.
// This matches PostgreSQL's DATE() function behavior for consistency.
//
// Example:
//   - Input: 2025-10-17 14:23:45 UTC
//   - Output: 2025-10-17 00:00:00 UTC
//
// Usage: All streak and mission period arithmetic works on UTC calendar days.
func TruncateToDateUTC(t time.Time) time.Time {
	return t.UTC().Truncate(day)
}

// DaysBetween returns the number of UTC calendar days from a to b.
// Times on the same calendar day are 0 days apart; the result is negative when b is before a.
//
// Example:
//   - a: 2024-03-10 23:59 UTC, b: 2024-03-11 00:01 UTC
//   - Output: 1
func DaysBetween(a, b time.Time) int {
	return int(TruncateToDateUTC(b).Sub(TruncateToDateUTC(a)) / day)
}

// StartOfWeekUTC returns Monday 00:00:00 UTC of the week containing t.
func StartOfWeekUTC(t time.Time) time.Time {
	d := TruncateToDateUTC(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

// StartOfMonthUTC returns the first day of t's month at 00:00:00 UTC.
func StartOfMonthUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EndOfDateUTC returns the first instant of the calendar day after t (exclusive bound).
func EndOfDateUTC(t time.Time) time.Time {
	return TruncateToDateUTC(t).Add(day)
}

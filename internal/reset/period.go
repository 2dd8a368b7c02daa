// Package reset holds the period boundary math and the sweep that
// returns consumption counters to zero on their configured cadence.
package reset

import (
	"time"

	subdomain "github.com/revora/revora/internal/subscription/domain"
)

// PeriodStart returns the start of the period containing at, expressed in
// UTC, for the given cadence and zone. Weekly periods begin Monday 00:00.
// The second return is false for NEVER and unknown cadences.
func PeriodStart(period subdomain.ResetPeriod, at time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	switch period {
	case subdomain.ResetDaily:
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC(), true
	case subdomain.ResetWeekly:
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset).UTC(), true
	case subdomain.ResetMonthly:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).UTC(), true
	}
	return time.Time{}, false
}

// PeriodEnd returns the start of the period after the one containing at.
func PeriodEnd(period subdomain.ResetPeriod, at time.Time, loc *time.Location) (time.Time, bool) {
	start, ok := PeriodStart(period, at, loc)
	if !ok {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	local := start.In(loc)
	switch period {
	case subdomain.ResetDaily:
		return local.AddDate(0, 0, 1).UTC(), true
	case subdomain.ResetWeekly:
		return local.AddDate(0, 0, 7).UTC(), true
	case subdomain.ResetMonthly:
		return local.AddDate(0, 1, 0).UTC(), true
	}
	return time.Time{}, false
}

// Due reports whether the subscription's counter belongs to an elapsed
// period and returns the boundary it should be reset to.
func Due(sub subdomain.Subscription, now time.Time) (time.Time, bool) {
	start, ok := PeriodStart(sub.ResetPeriod, now, sub.Location())
	if !ok {
		return time.Time{}, false
	}
	if sub.LastResetAt.Before(start) {
		return start, true
	}
	return time.Time{}, false
}

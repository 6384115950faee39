// Package period turns a logical period selector (weekly/monthly/yearly)
// plus "now" into the concrete [start, end) range that scopes a settlement
// query. Pure functions of wall-clock time; nothing here is cached or
// persisted.
package period

import (
	"time"

	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
)

// Resolve returns the deterministic bucket containing now:
//   - weekly:  most recent Monday 00:00 through the following Monday
//   - monthly: first of now's month through the first of the next month
//   - yearly:  Jan 1 of now's year through Jan 1 of the next year
//
// Boundaries are midnight in now's location. End is exclusive.
func Resolve(kind models.PeriodKind, now time.Time) models.SettlementPeriod {
	var start, end time.Time
	switch kind {
	case models.PeriodKindWeekly:
		start = startOfWeek(now)
		end = start.AddDate(0, 0, 7)
	case models.PeriodKindMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)
	case models.PeriodKindYearly:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(1, 0, 0)
	default:
		// Unknown kinds are a programming error upstream; fall back to the
		// single day containing now so callers never see start >= end.
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 0, 1)
	}
	return models.SettlementPeriod{Kind: kind, Start: start, End: end}
}

func startOfWeek(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	// time.Weekday has Sunday = 0; shift so Monday = 0.
	offset := (int(midnight.Weekday()) + 6) % 7
	return midnight.AddDate(0, 0, -offset)
}

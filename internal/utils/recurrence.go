package utils

import (
	"time"

	"github.com/julianstephens/habitual/internal/models"
)

// IsDueOn reports whether rule selects the calendar date of day (in day's location).
// Dates past the end of a month (e.g. the 31st in April) are never due that month.
func IsDueOn(rule models.FrequencyRule, day time.Time) bool {
	switch r := rule.(type) {
	case models.Daily:
		return true
	case models.WeeklyOnDays:
		return r.Days.Has(day.Weekday())
	case models.MonthlyOnDates:
		return r.Dates.Has(day.Day())
	default:
		return false
	}
}

// NextDueDate returns the first date on or after from that rule selects,
// searching at most one year ahead.
func NextDueDate(rule models.FrequencyRule, from time.Time) (time.Time, bool) {
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for i := 0; i < 366; i++ {
		if IsDueOn(rule, day) {
			return day, true
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

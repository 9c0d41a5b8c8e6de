package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/habitual/internal/models"
)

// ParseWeekdays parses a comma-separated list of weekdays. Names (English
// or Spanish, full or short) and numbers 0 (Sunday) to 6 are accepted.
func ParseWeekdays(s string) ([]time.Weekday, error) {
	var weekdays []time.Weekday
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if wd, err := models.ParseWeekday(part); err == nil {
			weekdays = append(weekdays, wd)
			continue
		}
		num, err := strconv.Atoi(part)
		if err != nil || num < 0 || num > 6 {
			return nil, fmt.Errorf("invalid weekday: %s", part)
		}
		weekdays = append(weekdays, time.Weekday(num))
	}
	return weekdays, nil
}

// ParseDates parses a comma-separated list of days of the month.
func ParseDates(s string) ([]int, error) {
	var dates []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 31 {
			return nil, fmt.Errorf("invalid day of month: %s", part)
		}
		dates = append(dates, n)
	}
	return dates, nil
}

// BuildFrequency assembles a rule of kind from the given selections by
// switching to an empty rule and toggling each selection on. Selections
// that do not belong to kind are ignored.
func BuildFrequency(kind models.FrequencyKind, days []time.Weekday, dates []int) (models.FrequencyRule, error) {
	rule, err := models.Switch(kind)
	if err != nil {
		return nil, err
	}
	switch r := rule.(type) {
	case models.WeeklyOnDays:
		for _, d := range days {
			if !r.Days.Has(d) {
				r.Days = r.Days.Toggle(d)
			}
		}
		rule = r
	case models.MonthlyOnDates:
		for _, n := range dates {
			if !r.Dates.Has(n) {
				r.Dates = r.Dates.Toggle(n)
			}
		}
		rule = r
	}
	return rule, models.Validate(rule)
}

// FrequencyFromFlags reads the --frequency, --days and --dates flags. An
// empty kind is inferred from which selection flag is set.
func FrequencyFromFlags(kind, days, dates string) (models.FrequencyRule, error) {
	if kind == "" {
		switch {
		case days != "":
			kind = string(models.FrequencyWeekly)
		case dates != "":
			kind = string(models.FrequencyMonthly)
		default:
			kind = string(models.FrequencyDaily)
		}
	}
	k, err := models.ParseFrequencyKind(kind)
	if err != nil {
		return nil, err
	}

	weekdays, err := ParseWeekdays(days)
	if err != nil {
		return nil, err
	}
	monthDates, err := ParseDates(dates)
	if err != nil {
		return nil, err
	}
	return BuildFrequency(k, weekdays, monthDates)
}

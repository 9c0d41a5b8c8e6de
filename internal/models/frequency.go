package models

import (
	stderrors "errors"
	"fmt"
	"math/bits"
	"sort"
	"strings"
	"time"

	apperrors "github.com/julianstephens/habitual/internal/errors"
)

// FrequencyKind is the persisted discriminator of a FrequencyRule.
type FrequencyKind string

const (
	FrequencyDaily   FrequencyKind = "daily"
	FrequencyWeekly  FrequencyKind = "weekly"
	FrequencyMonthly FrequencyKind = "monthly"
)

// Values written by the first mobile client. Accepted on read only.
const (
	legacyDaily   = "Todos los días"
	legacyWeekly  = "Días específicos de la semana"
	legacyMonthly = "Días específicos del mes"
)

var ErrMissingSelection = stderrors.New("at least one day must be selected")

// FrequencyRule is one of Daily, WeeklyOnDays or MonthlyOnDates.
type FrequencyRule interface {
	Kind() FrequencyKind
	isFrequencyRule()
}

type Daily struct{}

type WeeklyOnDays struct {
	Days WeekdaySet
}

type MonthlyOnDates struct {
	Dates DateSet
}

func (Daily) Kind() FrequencyKind          { return FrequencyDaily }
func (WeeklyOnDays) Kind() FrequencyKind   { return FrequencyWeekly }
func (MonthlyOnDates) Kind() FrequencyKind { return FrequencyMonthly }

func (Daily) isFrequencyRule()          {}
func (WeeklyOnDays) isFrequencyRule()   {}
func (MonthlyOnDates) isFrequencyRule() {}

// WeekdaySet is a set of weekdays stored as a bitmask indexed by time.Weekday.
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			s |= 1 << uint(d)
		}
	}
	return s
}

// Toggle adds d when absent and removes it when present.
func (s WeekdaySet) Toggle(d time.Weekday) WeekdaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s ^ 1<<uint(d)
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	if d < time.Sunday || d > time.Saturday {
		return false
	}
	return s&(1<<uint(d)) != 0
}

func (s WeekdaySet) Len() int { return bits.OnesCount8(uint8(s)) }

// Days lists members Monday first, the order the week is shown in.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// DateSet is a set of days of the month (1..31) stored as a bitmask.
type DateSet uint32

func NewDateSet(dates ...int) DateSet {
	var s DateSet
	for _, n := range dates {
		s = s.add(n)
	}
	return s
}

func (s DateSet) add(n int) DateSet {
	if n < 1 || n > 31 {
		return s
	}
	return s | 1<<uint(n)
}

// Toggle adds n when absent and removes it when present. Out of range values are ignored.
func (s DateSet) Toggle(n int) DateSet {
	if n < 1 || n > 31 {
		return s
	}
	return s ^ 1<<uint(n)
}

func (s DateSet) Has(n int) bool {
	if n < 1 || n > 31 {
		return false
	}
	return s&(1<<uint(n)) != 0
}

func (s DateSet) Len() int { return bits.OnesCount32(uint32(s)) }

func (s DateSet) Dates() []int {
	var out []int
	for n := 1; n <= 31; n++ {
		if s.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// Validate rejects a missing rule and weekly or monthly rules without selections.
func Validate(rule FrequencyRule) error {
	const op = "validate frequency"
	switch r := rule.(type) {
	case nil:
		return apperrors.Validation(op, "a frequency is required", nil)
	case Daily:
		return nil
	case WeeklyOnDays:
		if r.Days.Len() == 0 {
			return apperrors.Validation(op, "select at least one day of the week", ErrMissingSelection)
		}
		return nil
	case MonthlyOnDates:
		if r.Dates.Len() == 0 {
			return apperrors.Validation(op, "select at least one day of the month", ErrMissingSelection)
		}
		return nil
	default:
		return apperrors.Validation(op, fmt.Sprintf("unsupported frequency %T", rule), nil)
	}
}

// Switch returns the empty rule of the given kind. No selection carries over.
func Switch(kind FrequencyKind) (FrequencyRule, error) {
	switch kind {
	case FrequencyDaily:
		return Daily{}, nil
	case FrequencyWeekly:
		return WeeklyOnDays{}, nil
	case FrequencyMonthly:
		return MonthlyOnDates{}, nil
	default:
		return nil, apperrors.Validation("switch frequency", fmt.Sprintf("unknown frequency %q", kind), nil)
	}
}

// ParseFrequencyKind accepts canonical and legacy frequency names.
func ParseFrequencyKind(s string) (FrequencyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", strings.ToLower(legacyDaily):
		return FrequencyDaily, nil
	case "weekly", strings.ToLower(legacyWeekly):
		return FrequencyWeekly, nil
	case "monthly", strings.ToLower(legacyMonthly):
		return FrequencyMonthly, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "domingo": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "lunes": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "martes": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "miércoles": time.Wednesday, "miercoles": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "jueves": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "viernes": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "sábado": time.Saturday, "sabado": time.Saturday,
}

// ParseWeekday accepts English full or short names and Spanish names, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	if d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("invalid weekday: %s", s)
}

// EncodeFrequency flattens a rule into the row columns.
func EncodeFrequency(rule FrequencyRule) (kind string, days []string, dates []int) {
	days, dates = []string{}, []int{}
	switch r := rule.(type) {
	case WeeklyOnDays:
		for _, d := range r.Days.Days() {
			days = append(days, d.String())
		}
	case MonthlyOnDates:
		dates = r.Dates.Dates()
	}
	if rule == nil {
		return string(FrequencyDaily), days, dates
	}
	return string(rule.Kind()), days, dates
}

// DecodeFrequency rebuilds a rule from row columns. Selections that do not
// belong to the decoded kind are dropped.
func DecodeFrequency(kind string, days []string, dates []int) (FrequencyRule, error) {
	if strings.TrimSpace(kind) == "" {
		return Daily{}, nil
	}
	k, err := ParseFrequencyKind(kind)
	if err != nil {
		return nil, err
	}
	switch k {
	case FrequencyWeekly:
		var set WeekdaySet
		for _, name := range days {
			d, err := ParseWeekday(name)
			if err != nil {
				return nil, err
			}
			set |= NewWeekdaySet(d)
		}
		return WeeklyOnDays{Days: set}, nil
	case FrequencyMonthly:
		for _, n := range dates {
			if n < 1 || n > 31 {
				return nil, fmt.Errorf("invalid day of month: %d", n)
			}
		}
		return MonthlyOnDates{Dates: NewDateSet(dates...)}, nil
	default:
		return Daily{}, nil
	}
}

// FormatFrequency formats a rule into a human-readable string
func FormatFrequency(rule FrequencyRule) string {
	switch r := rule.(type) {
	case Daily:
		return "daily"
	case WeeklyOnDays:
		var names []string
		for _, d := range r.Days.Days() {
			names = append(names, d.String()[:3])
		}
		if len(names) == 0 {
			return "weekly"
		}
		return "weekly on " + strings.Join(names, ",")
	case MonthlyOnDates:
		dates := r.Dates.Dates()
		if len(dates) == 0 {
			return "monthly"
		}
		sort.Ints(dates)
		parts := make([]string, len(dates))
		for i, n := range dates {
			parts[i] = fmt.Sprintf("%d", n)
		}
		return "monthly on " + strings.Join(parts, ",")
	default:
		return "unknown"
	}
}

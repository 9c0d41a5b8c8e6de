package habits

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

// formValues is what the add and edit commands collect before handing the
// values to the wizard.
type formValues struct {
	Name        string
	Description string
	Frequency   models.FrequencyKind
	Days        []time.Weekday
	Dates       []int
	Time        string
}

func (v *formValues) setRule(rule models.FrequencyRule) {
	v.Days, v.Dates = nil, nil
	switch r := rule.(type) {
	case models.WeeklyOnDays:
		v.Frequency = models.FrequencyWeekly
		v.Days = r.Days.Days()
	case models.MonthlyOnDates:
		v.Frequency = models.FrequencyMonthly
		v.Dates = r.Dates.Dates()
	case nil:
		if v.Frequency == "" {
			v.Frequency = models.FrequencyDaily
		}
	default:
		v.Frequency = rule.Kind()
	}
}

var runForm = func(f *huh.Form) error {
	return f.Run()
}

func newHabitForm(v *formValues) *huh.Form {
	dayOptions := make([]huh.Option[time.Weekday], 0, 7)
	for d := time.Monday; d <= time.Saturday; d++ {
		dayOptions = append(dayOptions, huh.NewOption(d.String(), d))
	}
	dayOptions = append(dayOptions, huh.NewOption(time.Sunday.String(), time.Sunday))

	dateOptions := make([]huh.Option[int], 0, 31)
	for n := 1; n <= 31; n++ {
		dateOptions = append(dateOptions, huh.NewOption(strconv.Itoa(n), n))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&v.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("habit name cannot be empty")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Value(&v.Description),
		),
		huh.NewGroup(
			huh.NewSelect[models.FrequencyKind]().
				Title("Frequency").
				Options(
					huh.NewOption("Every day", models.FrequencyDaily),
					huh.NewOption("Specific days of the week", models.FrequencyWeekly),
					huh.NewOption("Specific days of the month", models.FrequencyMonthly),
				).
				Value(&v.Frequency),
		),
		huh.NewGroup(
			huh.NewMultiSelect[time.Weekday]().
				Title("Days of the week").
				Options(dayOptions...).
				Value(&v.Days).
				Validate(func(days []time.Weekday) error {
					if len(days) == 0 {
						return models.ErrMissingSelection
					}
					return nil
				}),
		).WithHideFunc(func() bool { return v.Frequency != models.FrequencyWeekly }),
		huh.NewGroup(
			huh.NewMultiSelect[int]().
				Title("Days of the month").
				Options(dateOptions...).
				Value(&v.Dates).
				Validate(func(dates []int) error {
					if len(dates) == 0 {
						return models.ErrMissingSelection
					}
					return nil
				}),
		).WithHideFunc(func() bool { return v.Frequency != models.FrequencyMonthly }),
		huh.NewGroup(
			huh.NewInput().
				Title("Reminder time (HH:MM)").
				Description("Leave empty for no reminder").
				Value(&v.Time).
				Validate(func(s string) error {
					if s == "" || utils.ValidateTimeFormat(s) {
						return nil
					}
					return fmt.Errorf("expected HH:MM")
				}),
		),
	).WithTheme(huh.ThemeDracula())
}

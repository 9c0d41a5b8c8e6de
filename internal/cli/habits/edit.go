package habits

import (
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/utils"
)

type EditCmd struct {
	ID          string `arg:"" help:"Habit ID."`
	Name        string `help:"New name."`
	Description string `short:"d" help:"New description."`
	Frequency   string `short:"f" help:"New frequency (daily|weekly|monthly)."`
	Days        string `short:"w" help:"Comma-separated weekdays for weekly habits."`
	Dates       string `help:"Comma-separated days of the month for monthly habits."`
	Time        string `short:"t" help:"New reminder time (HH:MM)."`
	ClearTime   bool   `help:"Remove the reminder."`
	Interactive bool   `short:"i" help:"Edit the habit with an interactive form."`
}

func (c *EditCmd) Validate() error {
	if c.Time != "" && c.ClearTime {
		return fmt.Errorf("--time and --clear-time cannot be used together")
	}
	if c.Time != "" && !utils.ValidateTimeFormat(c.Time) {
		return fmt.Errorf("invalid --time %q (expected HH:MM)", c.Time)
	}
	return nil
}

func (c *EditCmd) Run(ctx *cli.Context) error {
	wizard := ctx.NewWizard()
	defer wizard.Close()

	draft, err := wizard.BeginEdit(ctx.Context(), c.ID)
	if err != nil {
		return err
	}

	values := formValues{Name: draft.Name, Description: draft.Description}
	values.setRule(draft.Frequency)
	if draft.ReminderTime != nil {
		values.Time = utils.ToDisplayTime(*draft.ReminderTime, ctx.Config.Timezone).Format("15:04")
	}

	if c.Name != "" {
		values.Name = c.Name
	}
	if c.Description != "" {
		values.Description = c.Description
	}
	if c.Frequency != "" || c.Days != "" || c.Dates != "" {
		rule, err := cli.FrequencyFromFlags(c.Frequency, c.Days, c.Dates)
		if err != nil {
			return err
		}
		values.setRule(rule)
	}
	switch {
	case c.ClearTime:
		values.Time = ""
	case c.Time != "":
		values.Time = c.Time
	}

	if c.Interactive {
		if err := runForm(newHabitForm(&values)); err != nil {
			wizard.Abandon()
			return err
		}
	}

	if err := applyValues(ctx, wizard, values); err != nil {
		return err
	}
	habit, res, err := wizard.Finalize(ctx.Context())
	if err != nil {
		return err
	}

	cli.Success(ctx.Out, "Updated habit: %s", habit.Name)
	printReminder(ctx, habit, res)
	return nil
}

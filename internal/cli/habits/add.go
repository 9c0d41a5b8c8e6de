package habits

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/scheduler"
	"github.com/julianstephens/habitual/internal/session"
	"github.com/julianstephens/habitual/internal/utils"
)

type AddCmd struct {
	Name        string `arg:"" optional:"" help:"Habit name."`
	Description string `short:"d" help:"Habit description."`
	Frequency   string `short:"f" help:"Frequency (daily|weekly|monthly). Inferred from --days or --dates when omitted."`
	Days        string `short:"w" help:"Comma-separated weekdays for weekly habits."`
	Dates       string `help:"Comma-separated days of the month for monthly habits."`
	Time        string `short:"t" help:"Reminder time (HH:MM) in the configured timezone."`
	Interactive bool   `short:"i" help:"Fill in the habit with an interactive form."`
}

func (c *AddCmd) Validate() error {
	if c.Name == "" && !c.Interactive {
		return fmt.Errorf("a habit name is required (or use --interactive)")
	}
	if c.Time != "" && !utils.ValidateTimeFormat(c.Time) {
		return fmt.Errorf("invalid --time %q (expected HH:MM)", c.Time)
	}
	return nil
}

func (c *AddCmd) Run(ctx *cli.Context) error {
	wizard := ctx.NewWizard()
	defer wizard.Close()

	values := formValues{
		Name:        c.Name,
		Description: c.Description,
		Time:        c.Time,
	}
	rule, err := cli.FrequencyFromFlags(c.Frequency, c.Days, c.Dates)
	if err != nil && !c.Interactive {
		return err
	}
	values.setRule(rule)

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

	cli.Success(ctx.Out, "Added habit: %s (ID: %s)", habit.Name, habit.ID)
	printReminder(ctx, habit, res)
	return nil
}

// applyValues feeds form or flag values through the wizard steps.
func applyValues(ctx *cli.Context, wizard *session.Wizard, v formValues) error {
	if err := wizard.NameStep(v.Name, v.Description); err != nil {
		return err
	}

	rule, err := cli.BuildFrequency(v.Frequency, v.Days, v.Dates)
	if err != nil {
		return err
	}
	if err := wizard.FrequencyStep(rule); err != nil {
		return err
	}

	if v.Time == "" {
		wizard.ReminderStep(nil)
		return nil
	}
	at, err := utils.ClockFromTimeOfDay(v.Time, time.Now(), ctx.Config.Timezone)
	if err != nil {
		return err
	}
	wizard.ReminderStep(&at)
	return nil
}

func printReminder(ctx *cli.Context, habit models.Habit, res scheduler.Result) {
	if habit.ReminderTime == nil {
		return
	}
	at := utils.ToDisplayTime(*habit.ReminderTime, ctx.Config.Timezone).Format("15:04")
	switch {
	case res.Err != nil:
		cli.Warning(ctx.Out, "Reminder at %s could not be scheduled: %v. Run 'habitual reminders resync' to retry.", at, res.Err)
	case res.Skipped:
		cli.Warning(ctx.Out, "Reminder not scheduled: %s has already passed today. Run 'habitual reminders resync' to schedule it from tomorrow.", at)
	case habit.NotificationID != "":
		fmt.Fprintf(ctx.Out, "  Reminder set daily at %s\n", at)
	}
}

package reminders

import (
	"fmt"
	"sort"
	"time"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

type RemindersCmd struct {
	List   ListCmd   `cmd:"" help:"List reminder triggers registered on this device." default:"1"`
	Resync ResyncCmd `cmd:"" help:"Reschedule every reminder of the signed-in user."`
}

type ListCmd struct {
	All bool `help:"Include triggers that belong to other users."`
}

func (c *ListCmd) Run(ctx *cli.Context) error {
	user, err := ctx.Auth.CurrentUser(ctx.Context())
	if err != nil {
		return err
	}

	if err := ctx.Engine.Sync(ctx.Context()); err != nil {
		return fmt.Errorf("failed to list reminders: %w", err)
	}
	triggers, err := ctx.Engine.ListAllTriggers(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to list reminders: %w", err)
	}

	sort.Slice(triggers, func(i, j int) bool {
		a, b := triggers[i], triggers[j]
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		if a.Minute != b.Minute {
			return a.Minute < b.Minute
		}
		return a.Handle < b.Handle
	})

	shown := 0
	for _, t := range triggers {
		mine := user != nil && t.Payload.UserID == user.ID
		if !mine && !c.All {
			continue
		}
		if shown == 0 {
			fmt.Fprintln(ctx.Out, cli.HeaderStyle.Render(
				fmt.Sprintf("%-36s %-5s %-24s %-16s", "HANDLE", "TIME", "HABIT", "NEXT")))
		}
		shown++

		name := t.Payload.HabitName
		if name == "" {
			name = t.Payload.HabitID
		}
		line := fmt.Sprintf("%-36s %02d:%02d %-24s %-16s", t.Handle, t.Hour, t.Minute, name, c.nextText(ctx, t, mine))
		if !mine {
			line = cli.MutedStyle.Render(line + " (other user)")
		}
		fmt.Fprintln(ctx.Out, line)
	}

	if shown == 0 {
		fmt.Fprintln(ctx.Out, "No reminders registered")
	}
	return nil
}

// nextText reports the next delivery of t. With recurrence filtering on,
// fires on days the habit is not due are skipped.
func (c *ListCmd) nextText(ctx *cli.Context, t models.ReminderTrigger, mine bool) string {
	next, ok := ctx.Engine.NextFire(t.Handle)
	if !ok {
		next = utils.NextOccurrence(t.Hour, t.Minute, time.Now(), ctx.Location)
	}
	next = next.In(ctx.Location)
	if !mine || !ctx.Config.Reminders.FilterByRecurrence {
		return next.Format(constants.DisplayFormat)
	}

	habit, err := ctx.Habits.Get(ctx.Context(), t.Payload.HabitID, t.Payload.UserID)
	if err != nil {
		return next.Format(constants.DisplayFormat)
	}
	day, ok := utils.NextDueDate(habit.Frequency, next)
	if !ok {
		return "never"
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, ctx.Location).Format(constants.DisplayFormat)
}

type ResyncCmd struct{}

func (c *ResyncCmd) Run(ctx *cli.Context) error {
	user, err := ctx.RequireUser(ctx.Context(), "resync reminders")
	if err != nil {
		return err
	}
	n, err := ctx.Resync(ctx.Context(), user)
	if err != nil {
		return err
	}
	cli.Success(ctx.Out, "Scheduled %d reminder(s)", n)
	return nil
}

package habits

import (
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

type ListCmd struct {
	ShowIDs bool `help:"Show habit IDs." name:"show-ids" default:"true" negatable:""`
}

func (c *ListCmd) Run(ctx *cli.Context) error {
	user, err := ctx.RequireUser(ctx.Context(), "list habits")
	if err != nil {
		return err
	}

	list, err := ctx.Habits.ListForUser(ctx.Context(), user.ID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(ctx.Out, "No habits found")
		return nil
	}

	header := fmt.Sprintf("%-24s %-28s %-17s %s", "NAME", "FREQUENCY", "REMINDER", "STATUS")
	if c.ShowIDs {
		header = fmt.Sprintf("%-36s ", "ID") + header
	}
	fmt.Fprintln(ctx.Out, cli.HeaderStyle.Render(header))

	for _, h := range list {
		line := fmt.Sprintf("%-24s %-28s %-17s %s", h.Name, models.FormatFrequency(h.Frequency), reminderText(h, ctx.Config.Timezone), statusText(h))
		if c.ShowIDs {
			line = fmt.Sprintf("%-36s ", h.ID) + line
		}
		fmt.Fprintln(ctx.Out, line)
		if h.Description != "" {
			fmt.Fprintln(ctx.Out, cli.MutedStyle.Render("    "+h.Description))
		}
	}
	return nil
}

func reminderText(h models.Habit, zone string) string {
	if h.ReminderTime == nil {
		return "-"
	}
	return utils.FormatDisplay(*h.ReminderTime, zone)
}

func statusText(h models.Habit) string {
	switch {
	case h.ReminderTime == nil:
		return "no reminder"
	case h.NotificationID != "":
		return "scheduled"
	default:
		return "not scheduled"
	}
}

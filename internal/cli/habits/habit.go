package habits

type HabitCmd struct {
	Add    AddCmd    `cmd:"" help:"Add a new habit."`
	Edit   EditCmd   `cmd:"" help:"Edit an existing habit."`
	List   ListCmd   `cmd:"" help:"List your habits."`
	Delete DeleteCmd `cmd:"" help:"Delete a habit and cancel its reminder."`
}

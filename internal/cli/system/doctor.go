package system

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/keyring"
	"github.com/julianstephens/habitual/internal/notifier"
	"github.com/julianstephens/habitual/internal/storage"
	"github.com/julianstephens/habitual/internal/utils"
)

type DoctorCmd struct{}

type checkResult int

const (
	checkOK checkResult = iota
	checkWarn
	checkFail
	checkSkipped
)

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	fmt.Fprintln(ctx.Out, "Running diagnostics...")
	fmt.Fprintln(ctx.Out)

	hasError := false
	report := func(name string, res checkResult, detail error) {
		switch res {
		case checkOK:
			fmt.Fprintf(ctx.Out, "✓ %s: OK\n", name)
		case checkWarn:
			fmt.Fprintf(ctx.Out, "⚠ %s: WARNING\n   %v\n", name, detail)
		case checkFail:
			fmt.Fprintf(ctx.Out, "❌ %s: FAIL\n   Error: %v\n", name, detail)
			hasError = true
		case checkSkipped:
			fmt.Fprintf(ctx.Out, "⊘ %s: SKIPPED (%v)\n", name, detail)
		}
	}
	run := func(name string, err error, res checkResult) bool {
		if err != nil {
			report(name, res, err)
			return false
		}
		report(name, checkOK, nil)
		return true
	}

	dbReachable := run("Local database", ctx.Registry.Load(ctx.Context()), checkFail)

	backendReachable := dbReachable
	if ctx.Backend != storage.Backend(ctx.Registry) {
		backendReachable = run(fmt.Sprintf("Backend (%s)", ctx.Config.Backend), ctx.Backend.Load(ctx.Context()), checkFail)
	}

	run("Timezone", checkTimezone(ctx.Config.Timezone), checkFail)
	run("OS keyring", checkKeyring(), checkWarn)

	signedIn := false
	if user, err := ctx.Auth.CurrentUser(ctx.Context()); err != nil {
		report("Signed in", checkFail, err)
	} else if user == nil {
		report("Signed in", checkWarn, fmt.Errorf("no active session; run 'habitual login'"))
	} else {
		report("Signed in", checkOK, nil)
		signedIn = true
	}

	if dbReachable {
		run("Reminder triggers", checkTriggers(ctx), checkFail)
	} else {
		report("Reminder triggers", checkSkipped, fmt.Errorf("database not reachable"))
	}

	if dbReachable && backendReachable && signedIn {
		run("Orphaned triggers", checkOrphans(ctx), checkWarn)
	} else {
		report("Orphaned triggers", checkSkipped, fmt.Errorf("backend not reachable or not signed in"))
	}

	if constants.SinkType(ctx.Config.Reminders.Sink) == constants.SinkTray {
		run("Tray app", notifier.TrayStatus(), checkWarn)
	}

	fmt.Fprintln(ctx.Out)
	if hasError {
		fmt.Fprintln(ctx.Out, "Diagnostics completed with errors.")
		return fmt.Errorf("diagnostics failed")
	}
	fmt.Fprintln(ctx.Out, "All diagnostics passed!")
	return nil
}

func checkTimezone(zone string) error {
	if !utils.ValidateTimezone(zone) {
		return fmt.Errorf("cannot load timezone %q", zone)
	}
	now, err := utils.NowInTimezone(zone)
	if err != nil {
		return err
	}
	if now.Year() < 2020 {
		return fmt.Errorf("system clock looks wrong: %s", now.Format(time.RFC3339))
	}
	return nil
}

func checkKeyring() error {
	if !keyring.IsAvailable() {
		return fmt.Errorf("OS keyring is not available; sign-in sessions will not persist")
	}
	return nil
}

// checkTriggers verifies every registered trigger carries a valid payload
// and that no habit owns more than one trigger.
func checkTriggers(ctx *cli.Context) error {
	triggers, err := ctx.Registry.ListTriggers(ctx.Context())
	if err != nil {
		return err
	}
	perHabit := make(map[string]int)
	for _, t := range triggers {
		if err := t.Payload.Validate(); err != nil {
			return fmt.Errorf("trigger %s: %w", t.Handle, err)
		}
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			return fmt.Errorf("trigger %s has invalid time %02d:%02d", t.Handle, t.Hour, t.Minute)
		}
		perHabit[t.Payload.HabitID]++
	}
	for habitID, n := range perHabit {
		if n > 1 {
			return fmt.Errorf("habit %s has %d triggers; run 'habitual reminders resync'", habitID, n)
		}
	}
	return nil
}

// checkOrphans reports triggers of the signed-in user whose habit is gone.
func checkOrphans(ctx *cli.Context) error {
	user, err := ctx.Auth.CurrentUser(ctx.Context())
	if err != nil || user == nil {
		return err
	}
	list, err := ctx.Habits.ListForUser(ctx.Context(), user.ID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(list))
	for _, h := range list {
		known[h.ID] = true
	}

	triggers, err := ctx.Registry.ListTriggers(ctx.Context())
	if err != nil {
		return err
	}
	orphans := 0
	for _, t := range triggers {
		if t.Payload.UserID == user.ID && !known[t.Payload.HabitID] {
			orphans++
		}
	}
	if orphans > 0 {
		return fmt.Errorf("%d trigger(s) point at deleted habits; run 'habitual reminders resync'", orphans)
	}
	return nil
}

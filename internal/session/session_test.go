package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/habitual/internal/auth"
	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/habits"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/scheduler"
	"github.com/julianstephens/habitual/internal/storage/sqlite"
)

var bogota = func() *time.Location {
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		panic(err)
	}
	return loc
}()

func at(hour, minute int) *time.Time {
	t := time.Date(2024, 3, 10, hour, minute, 0, 0, bogota)
	return &t
}

type call struct {
	op     string
	handle string
	hour   int
	minute int
}

type fakeSubsystem struct {
	calls   []call
	live    map[string]models.ReminderTrigger
	next    int
	failAdd error
}

func (f *fakeSubsystem) ScheduleDailyTrigger(_ context.Context, hour, minute int, payload models.TriggerPayload) (string, error) {
	if f.failAdd != nil {
		return "", f.failAdd
	}
	f.next++
	handle := fmt.Sprintf("t%d", f.next)
	f.calls = append(f.calls, call{op: "create", handle: handle, hour: hour, minute: minute})
	f.live[handle] = models.ReminderTrigger{Handle: handle, Hour: hour, Minute: minute, Repeats: true, Payload: payload}
	return handle, nil
}

func (f *fakeSubsystem) CancelTrigger(_ context.Context, handle string) error {
	f.calls = append(f.calls, call{op: "cancel", handle: handle})
	delete(f.live, handle)
	return nil
}

func (f *fakeSubsystem) ListAllTriggers(context.Context) ([]models.ReminderTrigger, error) {
	out := make([]models.ReminderTrigger, 0, len(f.live))
	for _, t := range f.live {
		out = append(out, t)
	}
	return out, nil
}

type fixture struct {
	wizard    *Wizard
	store     *habits.Store
	subsystem *fakeSubsystem
	users     *auth.Static
}

func setup(t *testing.T) *fixture {
	t.Helper()
	backend := sqlite.NewStore(filepath.Join(t.TempDir(), "habitual.db"))
	if err := backend.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	f := &fixture{
		store:     habits.NewStore(backend, "America/Bogota"),
		subsystem: &fakeSubsystem{live: make(map[string]models.ReminderTrigger)},
		users:     auth.NewStatic(&models.User{ID: "u1"}),
	}
	sched := scheduler.New(f.subsystem, bogota, scheduler.WithClock(func() time.Time { return *at(7, 0) }))
	f.wizard = NewWizard(NewContext(f.users, f.store, sched), f.users)
	t.Cleanup(f.wizard.Close)
	return f
}

func (f *fixture) create(t *testing.T) models.Habit {
	t.Helper()
	if err := f.wizard.NameStep("Drink water", ""); err != nil {
		t.Fatal(err)
	}
	if err := f.wizard.FrequencyStep(models.Daily{}); err != nil {
		t.Fatal(err)
	}
	f.wizard.ReminderStep(at(8, 0))
	habit, _, err := f.wizard.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return habit
}

func TestCreateSchedulesSingleTrigger(t *testing.T) {
	f := setup(t)
	habit := f.create(t)

	if len(f.subsystem.calls) != 1 || f.subsystem.calls[0].op != "create" {
		t.Fatalf("calls = %+v, want one create and no cancel", f.subsystem.calls)
	}
	if c := f.subsystem.calls[0]; c.hour != 8 || c.minute != 0 {
		t.Errorf("trigger at %02d:%02d, want 08:00", c.hour, c.minute)
	}
	if habit.NotificationID != f.subsystem.calls[0].handle {
		t.Errorf("NotificationID = %q, want %q", habit.NotificationID, f.subsystem.calls[0].handle)
	}

	stored, err := f.store.Get(context.Background(), habit.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.NotificationID != habit.NotificationID || stored.UserID != "u1" {
		t.Errorf("stored = %+v", stored)
	}
	if d := f.wizard.Draft(); d.Name != "" || d.ID != "" {
		t.Errorf("draft not reset after finalize: %+v", d)
	}
}

func TestEditReplacesTrigger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	habit := f.create(t)
	f.subsystem.calls = nil

	draft, err := f.wizard.BeginEdit(ctx, habit.ID)
	if err != nil {
		t.Fatalf("BeginEdit() error = %v", err)
	}
	if draft.Name != "Drink water" || draft.NotificationID != habit.NotificationID {
		t.Errorf("draft = %+v", draft)
	}

	f.wizard.ReminderStep(at(9, 30))
	edited, _, err := f.wizard.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	calls := f.subsystem.calls
	if len(calls) != 2 || calls[0] != (call{op: "cancel", handle: habit.NotificationID}) ||
		calls[1].op != "create" || calls[1].hour != 9 || calls[1].minute != 30 {
		t.Errorf("calls = %+v, want cancel then create at 09:30", calls)
	}
	if len(f.subsystem.live) != 1 {
		t.Errorf("live triggers = %d, want 1", len(f.subsystem.live))
	}
	if edited.ID != habit.ID {
		t.Errorf("edit created a new habit: %q != %q", edited.ID, habit.ID)
	}
}

func TestCommitRequiresSignedInUser(t *testing.T) {
	f := setup(t)
	f.users.SetUser(nil)

	f.wizard.NameStep("Read", "")
	f.wizard.FrequencyStep(models.Daily{})
	_, _, err := f.wizard.Finalize(context.Background())
	if !errors.Is(err, apperrors.ErrNotAuthenticated) {
		t.Fatalf("Finalize() error = %v, want NotAuthenticated", err)
	}
	if len(f.subsystem.calls) != 0 {
		t.Errorf("calls = %+v, want none", f.subsystem.calls)
	}
}

func TestCommitValidation(t *testing.T) {
	tests := []struct {
		name  string
		patch models.DraftPatch
	}{
		{"blank name", models.DraftPatch{Name: strPtr("   "), Frequency: models.Daily{}}},
		{"no frequency", models.DraftPatch{Name: strPtr("Read")}},
		{"weekly without days", models.DraftPatch{Name: strPtr("Read"), Frequency: models.WeeklyOnDays{}}},
		{"monthly without dates", models.DraftPatch{Name: strPtr("Read"), Frequency: models.MonthlyOnDates{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.wizard.ctx.Set(tt.patch)

			_, _, err := f.wizard.Finalize(context.Background())
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("Finalize() error = %v, want validation", err)
			}
			if f.wizard.Draft().Name != *tt.patch.Name {
				t.Error("draft should survive a failed finalize")
			}
		})
	}
}

func strPtr(s string) *string { return &s }

func TestNameStepRejectsBlank(t *testing.T) {
	f := setup(t)
	if err := f.wizard.NameStep(" ", "desc"); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("NameStep() error = %v", err)
	}
	if err := f.wizard.NameStep("  Stretch ", "desc"); err != nil {
		t.Fatal(err)
	}
	if d := f.wizard.Draft(); d.Name != "Stretch" || d.Description != "desc" {
		t.Errorf("draft = %+v", d)
	}
}

func TestSwitchFrequencyClearsSelection(t *testing.T) {
	f := setup(t)
	f.wizard.ToggleDay(time.Monday)
	f.wizard.ToggleDay(time.Friday)

	if err := f.wizard.SwitchFrequency(models.FrequencyMonthly); err != nil {
		t.Fatal(err)
	}
	f.wizard.ToggleDate(15)
	if err := f.wizard.SwitchFrequency(models.FrequencyWeekly); err != nil {
		t.Fatal(err)
	}

	weekly, ok := f.wizard.Draft().Frequency.(models.WeeklyOnDays)
	if !ok || weekly.Days.Len() != 0 {
		t.Errorf("Frequency = %#v, want empty weekly rule", f.wizard.Draft().Frequency)
	}
	if err := f.wizard.FrequencyStep(weekly); err == nil {
		t.Error("FrequencyStep() should reject an empty weekly rule")
	}
}

func TestToggleDayTwiceIsNoOp(t *testing.T) {
	f := setup(t)
	f.wizard.ToggleDay(time.Wednesday)
	f.wizard.ToggleDay(time.Wednesday)

	weekly := f.wizard.Draft().Frequency.(models.WeeklyOnDays)
	if weekly.Days.Len() != 0 {
		t.Errorf("Days = %v", weekly.Days.Days())
	}
}

func TestSignOutResetsDraft(t *testing.T) {
	f := setup(t)
	f.wizard.NameStep("Meditate", "")
	f.users.SetUser(nil)

	if d := f.wizard.Draft(); d.Name != "" {
		t.Errorf("draft = %+v, want empty after sign out", d)
	}
}

func TestAbandonResetsDraft(t *testing.T) {
	f := setup(t)
	f.wizard.NameStep("Meditate", "")
	f.wizard.ReminderStep(at(6, 0))
	f.wizard.Abandon()

	if d := f.wizard.Draft(); d.Name != "" || d.ReminderTime != nil {
		t.Errorf("draft = %+v", d)
	}
}

func TestSchedulingFailureStillSaves(t *testing.T) {
	f := setup(t)
	f.subsystem.failAdd = errors.New("permission denied")

	if err := f.wizard.NameStep("Drink water", ""); err != nil {
		t.Fatal(err)
	}
	if err := f.wizard.FrequencyStep(models.Daily{}); err != nil {
		t.Fatal(err)
	}
	f.wizard.ReminderStep(at(8, 0))
	habit, res, err := f.wizard.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if habit.NotificationID != "" {
		t.Errorf("NotificationID = %q, want none", habit.NotificationID)
	}
	if !errors.Is(res.Err, apperrors.ErrScheduling) || res.Skipped {
		t.Errorf("Result = %+v, want a scheduling failure", res)
	}
	if _, err := f.store.Get(context.Background(), habit.ID, "u1"); err != nil {
		t.Errorf("habit should be saved: %v", err)
	}
}

func TestFinalizeReportsSkippedReminder(t *testing.T) {
	f := setup(t)

	if err := f.wizard.NameStep("Stretch", ""); err != nil {
		t.Fatal(err)
	}
	if err := f.wizard.FrequencyStep(models.Daily{}); err != nil {
		t.Fatal(err)
	}
	// The fixture clock is 07:00.
	f.wizard.ReminderStep(at(6, 30))
	_, res, err := f.wizard.Finalize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || res.Err != nil || res.Handle != "" {
		t.Errorf("Result = %+v, want skipped", res)
	}
}

func TestDeleteCancelsTrigger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	habit := f.create(t)
	f.subsystem.calls = nil

	if err := f.wizard.Delete(ctx, habit.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(f.subsystem.calls) != 1 || f.subsystem.calls[0] != (call{op: "cancel", handle: habit.NotificationID}) {
		t.Errorf("calls = %+v", f.subsystem.calls)
	}
	if _, err := f.store.Get(ctx, habit.ID, "u1"); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Get() after delete error = %v", err)
	}
}

func TestDeleteCancelsTriggerRecordedElsewhere(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	habit := f.create(t)
	local := habit.NotificationID

	// A daemon on another device rescheduled the habit and stored its handle.
	if err := f.store.SetNotificationID(ctx, habit, "remote-handle"); err != nil {
		t.Fatal(err)
	}

	if err := f.wizard.Delete(ctx, habit.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := f.subsystem.live[local]; ok {
		t.Errorf("trigger %s of the deleted habit is still registered", local)
	}
	if len(f.subsystem.live) != 0 {
		t.Errorf("live = %+v, want none", f.subsystem.live)
	}
}

func TestDeleteOtherUsersHabit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	habit := f.create(t)

	f.users.SetUser(&models.User{ID: "u2"})
	if err := f.wizard.Delete(ctx, habit.ID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("Delete() error = %v, want Forbidden", err)
	}

	if _, err := f.store.Get(ctx, habit.ID, "u1"); err != nil {
		t.Errorf("habit should survive: %v", err)
	}
	if len(f.subsystem.live) != 1 {
		t.Error("trigger should survive")
	}
}

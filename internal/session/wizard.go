package session

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/scheduler"
)

// AuthNotifier delivers sign-in and sign-out events.
type AuthNotifier interface {
	OnAuthStateChange(fn func(user *models.User)) func()
}

// Wizard drives the authoring flow: name, frequency, reminder, finalize.
// It owns one Context for its lifetime.
type Wizard struct {
	ctx         *Context
	unsubscribe func()
}

// NewWizard creates a wizard with an empty draft. When auth is non-nil the
// draft is dropped on sign-out.
func NewWizard(sessionCtx *Context, auth AuthNotifier) *Wizard {
	w := &Wizard{ctx: sessionCtx}
	if auth != nil {
		w.unsubscribe = auth.OnAuthStateChange(func(user *models.User) {
			if user == nil {
				w.ctx.Reset()
			}
		})
	}
	return w
}

// Close stops listening for sign-out and clears the draft.
func (w *Wizard) Close() {
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
	w.ctx.Reset()
}

func (w *Wizard) Draft() models.HabitDraft {
	return w.ctx.Get()
}

func (w *Wizard) NameStep(name, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.Validation("name step", "habit name cannot be empty", nil)
	}
	w.ctx.Set(models.DraftPatch{Name: &name, Description: &description})
	return nil
}

// FrequencyStep stores a complete rule. Empty weekday or date selections
// are rejected.
func (w *Wizard) FrequencyStep(rule models.FrequencyRule) error {
	if err := models.Validate(rule); err != nil {
		return err
	}
	w.ctx.Set(models.DraftPatch{Frequency: rule})
	return nil
}

// SwitchFrequency replaces the draft's rule with an empty rule of kind,
// discarding any previous selection.
func (w *Wizard) SwitchFrequency(kind models.FrequencyKind) error {
	rule, err := models.Switch(kind)
	if err != nil {
		return err
	}
	w.ctx.Set(models.DraftPatch{Frequency: rule})
	return nil
}

// ToggleDay flips d in a weekly rule, switching to weekly first if needed.
func (w *Wizard) ToggleDay(d time.Weekday) {
	weekly, ok := w.ctx.Get().Frequency.(models.WeeklyOnDays)
	if !ok {
		weekly = models.WeeklyOnDays{}
	}
	weekly.Days = weekly.Days.Toggle(d)
	w.ctx.Set(models.DraftPatch{Frequency: weekly})
}

// ToggleDate flips n in a monthly rule, switching to monthly first if needed.
func (w *Wizard) ToggleDate(n int) {
	monthly, ok := w.ctx.Get().Frequency.(models.MonthlyOnDates)
	if !ok {
		monthly = models.MonthlyOnDates{}
	}
	monthly.Dates = monthly.Dates.Toggle(n)
	w.ctx.Set(models.DraftPatch{Frequency: monthly})
}

// ReminderStep sets the reminder instant. nil removes the reminder.
func (w *Wizard) ReminderStep(at *time.Time) {
	if at == nil {
		w.ctx.Set(models.DraftPatch{ClearReminder: true})
		return
	}
	w.ctx.Set(models.DraftPatch{ReminderTime: at})
}

// Finalize commits the draft and resets it. A failed commit keeps the
// draft so the user can correct it.
func (w *Wizard) Finalize(ctx context.Context) (models.Habit, scheduler.Result, error) {
	habit, res, err := w.ctx.Commit(ctx)
	if err != nil {
		return models.Habit{}, scheduler.Result{}, err
	}
	w.ctx.Reset()
	return habit, res, nil
}

func (w *Wizard) Abandon() {
	w.ctx.Reset()
}

// BeginEdit loads one of the signed-in user's habits into the draft.
func (w *Wizard) BeginEdit(ctx context.Context, id string) (models.HabitDraft, error) {
	user, err := w.ctx.currentUser(ctx, "edit habit")
	if err != nil {
		return models.HabitDraft{}, err
	}
	habit, err := w.ctx.store.Get(ctx, id, user.ID)
	if err != nil {
		return models.HabitDraft{}, err
	}

	w.ctx.Reset()
	draft := models.DraftFromHabit(habit)
	w.ctx.mu.Lock()
	w.ctx.draft = draft
	w.ctx.mu.Unlock()
	return draft, nil
}

// Delete removes one of the signed-in user's habits and cancels its
// reminder trigger.
func (w *Wizard) Delete(ctx context.Context, id string) error {
	const op = "delete habit"

	user, err := w.ctx.currentUser(ctx, op)
	if err != nil {
		return err
	}
	habit, err := w.ctx.store.Get(ctx, id, user.ID)
	if err != nil {
		return err
	}
	if err := w.ctx.store.Remove(ctx, id, user.ID); err != nil {
		return err
	}

	// The row may record another device's handle, so match on the habit.
	if err := w.ctx.scheduler.Cancel(ctx, habit.NotificationID); err != nil {
		logger.Warn("Habit deleted but its reminder could not be canceled", "habit", id, "error", err)
	}
	if _, err := w.ctx.scheduler.CancelForHabit(ctx, id); err != nil {
		logger.Warn("Failed to cancel remaining reminders of deleted habit", "habit", id, "error", err)
	}
	if w.ctx.Get().ID == id {
		w.ctx.Reset()
	}
	return nil
}

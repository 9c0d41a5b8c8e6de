// Package scheduler turns a habit's reminder time into a registered daily
// trigger, replacing whatever trigger the habit had before.
package scheduler

import (
	"context"
	"time"

	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/metrics"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/notifier"
	"github.com/julianstephens/habitual/internal/utils"
)

// Metric labels.
const (
	opSchedule = "schedule"
	opCancel   = "cancel"

	resultScheduled = "scheduled"
	resultSkipped   = "skipped"
	resultCanceled  = "canceled"
	resultFailed    = "failed"
)

type Scheduler struct {
	subsystem notifier.Subsystem
	loc       *time.Location
	now       func() time.Time
	metrics   *metrics.Collector
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New returns a scheduler computing wall clocks in loc.
func New(subsystem notifier.Subsystem, loc *time.Location, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		subsystem: subsystem,
		loc:       loc,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result describes what Schedule did.
type Result struct {
	// Handle of the new trigger; empty when none was created.
	Handle string
	// Canceled is true when the previous trigger was removed.
	Canceled bool
	// Skipped is true when today's fire time had already passed.
	Skipped bool
	// Err is a scheduling failure. The caller should still persist the habit.
	Err error
}

// Schedule cancels previousHandle, if any, and registers a daily trigger at
// the habit's reminder wall clock when today's occurrence is still ahead.
func (s *Scheduler) Schedule(ctx context.Context, habit models.Habit, previousHandle string) Result {
	return s.schedule(ctx, habit, previousHandle, false)
}

func (s *Scheduler) schedule(ctx context.Context, habit models.Habit, previousHandle string, rebase bool) Result {
	var res Result

	if previousHandle != "" {
		res.Canceled = s.Cancel(ctx, previousHandle) == nil
	}
	s.cancelStale(ctx, habit.ID, previousHandle)

	if habit.ReminderTime == nil {
		return res
	}

	local := habit.ReminderTime.In(s.loc)
	hour, minute := local.Hour(), local.Minute()

	now := s.now()
	today := now.In(s.loc)
	next := time.Date(today.Year(), today.Month(), today.Day(), hour, minute, 0, 0, s.loc)
	if rebase {
		next = utils.NextOccurrence(hour, minute, now, s.loc)
	}
	if !next.After(now) {
		logger.Debug("Reminder time already passed today, not scheduling",
			"habit", habit.ID, "time", local.Format("15:04"))
		s.metrics.Trigger(opSchedule, resultSkipped)
		res.Skipped = true
		return res
	}

	handle, err := s.subsystem.ScheduleDailyTrigger(ctx, hour, minute, models.TriggerPayload{
		HabitID:   habit.ID,
		UserID:    habit.UserID,
		HabitName: habit.Name,
	})
	if err != nil {
		logger.Error("Failed to schedule reminder", "habit", habit.ID, "error", err)
		s.metrics.Trigger(opSchedule, resultFailed)
		res.Err = apperrors.Scheduling("schedule reminder", err)
		return res
	}

	s.metrics.Trigger(opSchedule, resultScheduled)
	res.Handle = handle
	return res
}

// cancelStale removes any other trigger on this device still pointing at
// habitID, so a habit never owns more than one.
func (s *Scheduler) cancelStale(ctx context.Context, habitID, previousHandle string) {
	if habitID == "" {
		return
	}
	if _, err := s.cancelMatching(ctx, func(t models.ReminderTrigger) bool {
		return t.Payload.HabitID == habitID && t.Handle != previousHandle
	}); err != nil {
		logger.Warn("Failed to list reminders", "error", err)
	}
}

func (s *Scheduler) cancelMatching(ctx context.Context, match func(models.ReminderTrigger) bool) (int, error) {
	triggers, err := s.subsystem.ListAllTriggers(ctx)
	if err != nil {
		return 0, apperrors.Scheduling("list reminders", err)
	}
	n := 0
	for _, t := range triggers {
		if match(t) && s.Cancel(ctx, t.Handle) == nil {
			n++
		}
	}
	return n, nil
}

// Cancel removes a trigger. Failures are logged and returned but callers
// are free to ignore them.
func (s *Scheduler) Cancel(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := s.subsystem.CancelTrigger(ctx, handle); err != nil {
		logger.Warn("Failed to cancel reminder", "handle", handle, "error", err)
		s.metrics.Trigger(opCancel, resultFailed)
		return apperrors.Scheduling("cancel reminder", err)
	}
	s.metrics.Trigger(opCancel, resultCanceled)
	return nil
}

// CancelForUser removes every trigger on this device that belongs to
// userID and reports how many went away.
func (s *Scheduler) CancelForUser(ctx context.Context, userID string) (int, error) {
	return s.cancelMatching(ctx, func(t models.ReminderTrigger) bool {
		return t.Payload.UserID == userID
	})
}

// CancelForHabit removes every trigger on this device pointing at habitID,
// whatever handle the habit's row currently records.
func (s *Scheduler) CancelForHabit(ctx context.Context, habitID string) (int, error) {
	if habitID == "" {
		return 0, nil
	}
	return s.cancelMatching(ctx, func(t models.ReminderTrigger) bool {
		return t.Payload.HabitID == habitID
	})
}

// PersistFunc stores the handle Reprogram created for habit.
type PersistFunc func(ctx context.Context, habit models.Habit, handle string) error

// Reprogram schedules every habit of userID that has a reminder, rebasing
// each onto its next occurrence, and returns how many triggers exist
// afterwards. Each new handle is handed to persist.
func (s *Scheduler) Reprogram(ctx context.Context, userID string, habits []models.Habit, persist PersistFunc) int {
	n := 0
	for _, h := range habits {
		if h.UserID != userID || h.ReminderTime == nil {
			continue
		}
		res := s.schedule(ctx, h, h.NotificationID, true)
		if res.Handle == "" {
			continue
		}
		n++
		if persist != nil {
			if err := persist(ctx, h, res.Handle); err != nil {
				logger.Warn("Failed to save reminder handle", "habit", h.ID, "error", err)
			}
		}
	}
	return n
}

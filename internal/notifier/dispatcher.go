package notifier

import (
	"context"
	stderrors "errors"
	"time"

	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/metrics"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

// UserSource reports who is signed in on this device.
type UserSource interface {
	CurrentUser(ctx context.Context) (*models.User, error)
}

// HabitLookup loads the habit a trigger points at.
type HabitLookup interface {
	Get(ctx context.Context, id, ownerID string) (models.Habit, error)
}

// TriggerCanceler removes triggers whose habit no longer exists.
type TriggerCanceler interface {
	CancelTrigger(ctx context.Context, handle string) error
}

// Dispatcher decides whether a fired trigger reaches the user.
type Dispatcher struct {
	Users    UserSource
	Habits   HabitLookup
	Triggers TriggerCanceler
	Sink     Sink
	Metrics  *metrics.Collector
	// FilterByRecurrence drops deliveries on days the habit's rule
	// does not select. Requires Habits.
	FilterByRecurrence bool
	Location           *time.Location
	Now                func() time.Time
}

// Outcome labels for delivery metrics.
const (
	OutcomeDelivered      = "delivered"
	OutcomeInvalidPayload = "invalid_payload"
	OutcomeOtherUser      = "other_user"
	OutcomeNotDue         = "not_due"
	OutcomeHabitGone      = "habit_gone"
	OutcomeFailed         = "failed"
)

// Fire handles one fired trigger and returns the outcome label.
func (d *Dispatcher) Fire(ctx context.Context, trigger models.ReminderTrigger) string {
	outcome := d.fire(ctx, trigger)
	d.Metrics.Delivery(d.Sink.Name(), outcome)
	return outcome
}

func (d *Dispatcher) fire(ctx context.Context, trigger models.ReminderTrigger) string {
	if err := trigger.Payload.Validate(); err != nil {
		logger.Warn("Dropping trigger with invalid payload", "handle", trigger.Handle, "error", err)
		return OutcomeInvalidPayload
	}

	user, err := d.Users.CurrentUser(ctx)
	if err != nil || user == nil || user.ID != trigger.Payload.UserID {
		logger.Debug("Suppressing reminder for another user", "handle", trigger.Handle, "habit", trigger.Payload.HabitID)
		return OutcomeOtherUser
	}

	name := trigger.Payload.HabitName
	if d.Habits != nil {
		habit, err := d.Habits.Get(ctx, trigger.Payload.HabitID, user.ID)
		switch {
		case stderrors.Is(err, apperrors.ErrForbidden):
			logger.Info("Dropping reminder for deleted habit", "handle", trigger.Handle, "habit", trigger.Payload.HabitID)
			if d.Triggers != nil {
				if err := d.Triggers.CancelTrigger(ctx, trigger.Handle); err != nil {
					logger.Warn("Failed to cancel trigger of deleted habit", "handle", trigger.Handle, "error", err)
				}
			}
			return OutcomeHabitGone
		case err != nil:
			// The backend may just be unreachable; the payload carries enough to remind.
			logger.Warn("Could not load habit for reminder", "habit", trigger.Payload.HabitID, "error", err)
		default:
			name = habit.Name
			if d.FilterByRecurrence && !utils.IsDueOn(habit.Frequency, d.now().In(d.location())) {
				return OutcomeNotDue
			}
		}
	}
	if name == "" {
		name = "your habit"
	}

	if err := d.Sink.Deliver(ctx, ReminderMessage(name)); err != nil {
		logger.Error("Reminder delivery failed", "sink", d.Sink.Name(), "habit", trigger.Payload.HabitID, "error", err)
		return OutcomeFailed
	}
	return OutcomeDelivered
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) location() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.Local
}

// FireFunc adapts the dispatcher to the engine callback.
func (d *Dispatcher) FireFunc() FireFunc {
	return func(ctx context.Context, trigger models.ReminderTrigger) {
		d.Fire(ctx, trigger)
	}
}

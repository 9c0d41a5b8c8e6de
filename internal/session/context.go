// Package session holds the habit being authored or edited while the
// wizard runs. The Context is owned by a Wizard and passed to each step;
// nothing here is process global.
package session

import (
	"context"
	"sync"

	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/scheduler"
)

// HabitStore is the slice of the habit record store the session needs.
type HabitStore interface {
	Upsert(ctx context.Context, habit models.Habit) (string, error)
	Get(ctx context.Context, id, ownerID string) (models.Habit, error)
	Remove(ctx context.Context, id, ownerID string) error
	SetNotificationID(ctx context.Context, habit models.Habit, handle string) error
}

// Scheduler registers the reminder of a saved habit.
type Scheduler interface {
	Schedule(ctx context.Context, habit models.Habit, previousHandle string) scheduler.Result
	Cancel(ctx context.Context, handle string) error
	CancelForHabit(ctx context.Context, habitID string) (int, error)
}

// UserSource reports the signed-in user, nil when signed out.
type UserSource interface {
	CurrentUser(ctx context.Context) (*models.User, error)
}

type Context struct {
	users     UserSource
	store     HabitStore
	scheduler Scheduler

	mu    sync.Mutex
	draft models.HabitDraft
}

func NewContext(users UserSource, store HabitStore, sched Scheduler) *Context {
	return &Context{users: users, store: store, scheduler: sched}
}

// Get returns a copy of the current draft.
func (c *Context) Get() models.HabitDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Set merges the non-nil fields of p into the draft.
func (c *Context) Set(p models.DraftPatch) {
	c.mu.Lock()
	c.draft = c.draft.Apply(p)
	c.mu.Unlock()
}

func (c *Context) Reset() {
	c.mu.Lock()
	c.draft = models.HabitDraft{}
	c.mu.Unlock()
}

// currentUser returns the signed-in user or a NotAuthenticated error.
func (c *Context) currentUser(ctx context.Context, op string) (*models.User, error) {
	user, err := c.users.CurrentUser(ctx)
	if err != nil {
		logger.Warn("Failed to resolve current user", "error", err)
		return nil, apperrors.NotAuthenticated(op)
	}
	if user == nil || user.ID == "" {
		return nil, apperrors.NotAuthenticated(op)
	}
	return user, nil
}

// Commit validates the draft, saves it for the signed-in user and then
// schedules its reminder, replacing the trigger the habit had before. A
// scheduling failure does not fail the commit; it is reported in the
// returned Result and the habit then carries no live reminder.
func (c *Context) Commit(ctx context.Context) (models.Habit, scheduler.Result, error) {
	const op = "save habit"

	user, err := c.currentUser(ctx, op)
	if err != nil {
		return models.Habit{}, scheduler.Result{}, err
	}

	draft := c.Get()
	habit := draft.Habit(user.ID)
	if err := habit.Validate(); err != nil {
		return models.Habit{}, scheduler.Result{}, err
	}

	id, err := c.store.Upsert(ctx, habit)
	if err != nil {
		logger.Error("Failed to save habit", "error", err)
		return models.Habit{}, scheduler.Result{}, err
	}
	habit.ID = id
	c.Set(models.DraftPatch{ID: &id})

	previous := draft.NotificationID
	res := c.scheduler.Schedule(ctx, habit, previous)
	if res.Handle == previous && !res.Canceled {
		return habit, res, nil
	}

	habit.NotificationID = res.Handle
	if err := c.store.SetNotificationID(ctx, habit, res.Handle); err != nil {
		logger.Warn("Failed to save reminder handle", "habit", habit.ID, "error", err)
	}
	return habit, res, nil
}

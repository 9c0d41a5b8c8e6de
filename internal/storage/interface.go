package storage

import (
	"context"
	"errors"

	"github.com/julianstephens/habitual/internal/models"
)

var ErrNotFound = errors.New("habit not found")

// Backend persists habit rows. Implementations return plain errors; the
// habits package turns them into typed store failures.
type Backend interface {
	Init(ctx context.Context) error
	Load(ctx context.Context) error
	Close() error
	// Location describes where rows live, for status output.
	Location() string

	// UpsertHabit writes row keyed by id, replacing any existing row.
	UpsertHabit(ctx context.Context, row models.HabitRow) (models.HabitRow, error)
	// GetHabit returns ErrNotFound when no visible row has the id.
	GetHabit(ctx context.Context, id string) (models.HabitRow, error)
	ListHabits(ctx context.Context, userID string) ([]models.HabitRow, error)
	// DeleteHabit removes the row only when both id and user match and
	// reports how many rows were removed.
	DeleteHabit(ctx context.Context, id, userID string) (int64, error)
}

// TriggerRegistry persists reminder registrations on this device.
type TriggerRegistry interface {
	SaveTrigger(ctx context.Context, trigger models.ReminderTrigger) error
	DeleteTrigger(ctx context.Context, handle string) error
	ListTriggers(ctx context.Context) ([]models.ReminderTrigger, error)
}

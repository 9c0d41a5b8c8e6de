// Package habits is the boundary between the app and a storage backend.
// Every failure leaving it is an *errors.Error.
package habits

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage"
	"github.com/julianstephens/habitual/internal/utils"
)

type Store struct {
	backend storage.Backend
	zone    string
	newID   func() string
	now     func() time.Time
}

type Option func(*Store)

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore wraps backend. zone is the IANA zone reminder wall clocks are
// entered in.
func NewStore(backend storage.Backend, zone string, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		zone:    zone,
		newID:   func() string { return uuid.New().String() },
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// guard turns a backend panic into a store failure.
func guard(op string, err *error) {
	if r := recover(); r != nil {
		logger.Error("Storage backend panicked", "op", op, "panic", r)
		*err = apperrors.Store(op, fmt.Errorf("backend panic: %v", r))
	}
}

// Upsert writes habit and returns its id, assigning a fresh one when empty.
// The reminder wall clock is normalized to a UTC instant.
func (s *Store) Upsert(ctx context.Context, habit models.Habit) (id string, err error) {
	const op = "save habit"
	defer guard(op, &err)

	if habit.ID == "" {
		habit.ID = s.newID()
	}
	if habit.ReminderTime != nil {
		t := utils.ToStorageInstant(habit.ReminderTime.In(utils.ResolveLocation(s.zone)), s.zone)
		habit.ReminderTime = &t
	}

	saved, err := s.backend.UpsertHabit(ctx, habit.ToRow())
	if err != nil {
		return "", apperrors.Store(op, err)
	}
	if saved.ID == "" {
		return habit.ID, nil
	}
	return saved.ID, nil
}

// Remove deletes a habit, refusing when ownerID does not own it.
func (s *Store) Remove(ctx context.Context, id, ownerID string) (err error) {
	const op = "delete habit"
	defer guard(op, &err)

	row, err := s.backend.GetHabit(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return apperrors.Forbidden(op, "habit not found for this user")
	}
	if err != nil {
		return apperrors.Store(op, err)
	}
	if row.UserID != ownerID {
		logger.Warn("Refusing to delete another user's habit", "habit", id)
		return apperrors.Forbidden(op, "habit belongs to another user")
	}

	n, err := s.backend.DeleteHabit(ctx, id, ownerID)
	if err != nil {
		return apperrors.Store(op, err)
	}
	if n == 0 {
		return apperrors.Forbidden(op, "habit not found for this user")
	}
	return nil
}

// ListForUser returns ownerID's habits. Rows that cannot be decoded are
// logged and skipped.
func (s *Store) ListForUser(ctx context.Context, ownerID string) (out []models.Habit, err error) {
	const op = "list habits"
	defer guard(op, &err)

	rows, err := s.backend.ListHabits(ctx, ownerID)
	if err != nil {
		return nil, apperrors.Store(op, err)
	}

	out = make([]models.Habit, 0, len(rows))
	for _, row := range rows {
		if row.UserID != ownerID {
			continue
		}
		h, err := s.fromRow(row)
		if err != nil {
			logger.Warn("Skipping unreadable habit", "habit", row.ID, "error", err)
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// Get returns one of ownerID's habits.
func (s *Store) Get(ctx context.Context, id, ownerID string) (h models.Habit, err error) {
	const op = "get habit"
	defer guard(op, &err)

	row, err := s.backend.GetHabit(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) || (err == nil && row.UserID != ownerID) {
		return models.Habit{}, apperrors.Forbidden(op, "habit not found for this user")
	}
	if err != nil {
		return models.Habit{}, apperrors.Store(op, err)
	}
	h, err = s.fromRow(row)
	if err != nil {
		return models.Habit{}, apperrors.Store(op, err)
	}
	return h, nil
}

// SetNotificationID records the trigger handle now attached to habit.
func (s *Store) SetNotificationID(ctx context.Context, habit models.Habit, handle string) error {
	habit.NotificationID = handle
	_, err := s.Upsert(ctx, habit)
	return err
}

// FromRow decodes a row delivered outside the adapter, such as a realtime
// event.
func (s *Store) FromRow(row models.HabitRow) (models.Habit, error) {
	return s.fromRow(row)
}

func (s *Store) fromRow(row models.HabitRow) (models.Habit, error) {
	return models.FromRow(row, func(v string) time.Time {
		return utils.ParseInstant(v, s.now)
	})
}

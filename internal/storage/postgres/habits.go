package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage"
)

const habitColumns = `id, user_id, habit_name, description, reminder_time, frequency,
	selected_days, selected_dates, notification_id`

func (s *Store) UpsertHabit(ctx context.Context, row models.HabitRow) (models.HabitRow, error) {
	var reminder, notificationID sql.NullString
	if row.ReminderTime != nil {
		reminder = sql.NullString{String: *row.ReminderTime, Valid: true}
	}
	if row.NotificationID != nil {
		notificationID = sql.NullString{String: *row.NotificationID, Valid: true}
	}

	dates := make(pq.Int64Array, len(row.SelectedDates))
	for i, d := range row.SelectedDates {
		dates[i] = int64(d)
	}
	days := pq.StringArray(row.SelectedDays)
	if days == nil {
		days = pq.StringArray{}
	}

	r := s.db.QueryRowContext(ctx, `
		INSERT INTO habits (`+habitColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			habit_name = EXCLUDED.habit_name,
			description = EXCLUDED.description,
			reminder_time = EXCLUDED.reminder_time,
			frequency = EXCLUDED.frequency,
			selected_days = EXCLUDED.selected_days,
			selected_dates = EXCLUDED.selected_dates,
			notification_id = EXCLUDED.notification_id,
			updated_at = now()
		RETURNING `+habitColumns,
		row.ID, row.UserID, row.HabitName, row.Description, reminder, row.Frequency,
		days, dates, notificationID,
	)
	saved, err := scanHabit(r)
	if err != nil {
		return models.HabitRow{}, fmt.Errorf("failed to upsert habit: %w", err)
	}
	return saved, nil
}

func (s *Store) GetHabit(ctx context.Context, id string) (models.HabitRow, error) {
	r := s.db.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = $1`, id)
	row, err := scanHabit(r)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HabitRow{}, storage.ErrNotFound
	}
	return row, err
}

func (s *Store) ListHabits(ctx context.Context, userID string) ([]models.HabitRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE user_id = $1 ORDER BY habit_name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	var out []models.HabitRow
	for rows.Next() {
		row, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) DeleteHabit(ctx context.Context, id, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM habits WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete habit: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHabit(sc scanner) (models.HabitRow, error) {
	var row models.HabitRow
	var reminder sql.NullTime
	var notificationID sql.NullString
	var days pq.StringArray
	var dates pq.Int64Array

	if err := sc.Scan(&row.ID, &row.UserID, &row.HabitName, &row.Description, &reminder,
		&row.Frequency, &days, &dates, &notificationID); err != nil {
		return models.HabitRow{}, err
	}

	row.SelectedDays = []string(days)
	row.SelectedDates = make([]int, len(dates))
	for i, d := range dates {
		row.SelectedDates[i] = int(d)
	}
	if reminder.Valid {
		s := reminder.Time.UTC().Format(time.RFC3339)
		row.ReminderTime = &s
	}
	if notificationID.Valid {
		row.NotificationID = &notificationID.String
	}
	return row, nil
}

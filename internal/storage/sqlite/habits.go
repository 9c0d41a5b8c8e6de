package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage"
)

const habitColumns = `id, user_id, habit_name, description, reminder_time, frequency,
	selected_days, selected_dates, notification_id`

func (s *Store) UpsertHabit(ctx context.Context, row models.HabitRow) (models.HabitRow, error) {
	days, err := json.Marshal(nonNilStrings(row.SelectedDays))
	if err != nil {
		return models.HabitRow{}, fmt.Errorf("failed to marshal selected_days: %w", err)
	}
	dates, err := json.Marshal(nonNilInts(row.SelectedDates))
	if err != nil {
		return models.HabitRow{}, fmt.Errorf("failed to marshal selected_dates: %w", err)
	}

	var reminder, notificationID sql.NullString
	if row.ReminderTime != nil {
		reminder = sql.NullString{String: *row.ReminderTime, Valid: true}
	}
	if row.NotificationID != nil {
		notificationID = sql.NullString{String: *row.NotificationID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO habits (`+habitColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			habit_name = excluded.habit_name,
			description = excluded.description,
			reminder_time = excluded.reminder_time,
			frequency = excluded.frequency,
			selected_days = excluded.selected_days,
			selected_dates = excluded.selected_dates,
			notification_id = excluded.notification_id,
			updated_at = excluded.updated_at`,
		row.ID, row.UserID, row.HabitName, row.Description, reminder, row.Frequency,
		string(days), string(dates), notificationID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return models.HabitRow{}, fmt.Errorf("failed to upsert habit: %w", err)
	}
	return s.GetHabit(ctx, row.ID)
}

func (s *Store) GetHabit(ctx context.Context, id string) (models.HabitRow, error) {
	r := s.db.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ?`, id)
	row, err := scanHabit(r)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HabitRow{}, storage.ErrNotFound
	}
	return row, err
}

func (s *Store) ListHabits(ctx context.Context, userID string) ([]models.HabitRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE user_id = ? ORDER BY habit_name, id`, userID)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM habits WHERE id = ? AND user_id = ?`, id, userID)
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
	var reminder, notificationID sql.NullString
	var days, dates string

	err := sc.Scan(&row.ID, &row.UserID, &row.HabitName, &row.Description, &reminder,
		&row.Frequency, &days, &dates, &notificationID)
	if err != nil {
		return models.HabitRow{}, err
	}

	if err := json.Unmarshal([]byte(days), &row.SelectedDays); err != nil {
		return models.HabitRow{}, fmt.Errorf("failed to parse selected_days for habit %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(dates), &row.SelectedDates); err != nil {
		return models.HabitRow{}, fmt.Errorf("failed to parse selected_dates for habit %s: %w", row.ID, err)
	}
	if reminder.Valid {
		row.ReminderTime = &reminder.String
	}
	if notificationID.Valid {
		row.NotificationID = &notificationID.String
	}
	return row, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

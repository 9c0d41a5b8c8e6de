package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/julianstephens/habitual/internal/errors"
)

type Habit struct {
	ID          string
	UserID      string
	Name        string
	Description string
	// ReminderTime is an absolute instant; nil means no reminder.
	ReminderTime   *time.Time
	Frequency      FrequencyRule
	NotificationID string
}

// Validate checks the fields a habit needs before it can be saved.
func (h Habit) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return apperrors.Validation("validate habit", "habit name cannot be empty", nil)
	}
	return Validate(h.Frequency)
}

// HabitRow is the persisted shape of a habit, shared by every backend.
type HabitRow struct {
	ID             string   `json:"id"`
	UserID         string   `json:"user_id"`
	HabitName      string   `json:"habit_name"`
	Description    string   `json:"description"`
	ReminderTime   *string  `json:"reminder_time"`
	Frequency      string   `json:"frequency"`
	SelectedDays   []string `json:"selected_days"`
	SelectedDates  []int    `json:"selected_dates"`
	NotificationID *string  `json:"notification_id,omitempty"`
}

// ToRow maps h to its row. The reminder is written as RFC 3339 UTC.
func (h Habit) ToRow() HabitRow {
	kind, days, dates := EncodeFrequency(h.Frequency)
	row := HabitRow{
		ID:            h.ID,
		UserID:        h.UserID,
		HabitName:     strings.TrimSpace(h.Name),
		Description:   h.Description,
		Frequency:     kind,
		SelectedDays:  days,
		SelectedDates: dates,
	}
	if h.ReminderTime != nil {
		s := h.ReminderTime.UTC().Format(time.RFC3339)
		row.ReminderTime = &s
	}
	if h.NotificationID != "" {
		id := h.NotificationID
		row.NotificationID = &id
	}
	return row
}

// FromRow maps a row back to a habit. parseInstant decides how reminder
// strings become instants.
func FromRow(row HabitRow, parseInstant func(string) time.Time) (Habit, error) {
	rule, err := DecodeFrequency(row.Frequency, row.SelectedDays, row.SelectedDates)
	if err != nil {
		return Habit{}, fmt.Errorf("habit %s: %w", row.ID, err)
	}
	h := Habit{
		ID:          row.ID,
		UserID:      row.UserID,
		Name:        row.HabitName,
		Description: row.Description,
		Frequency:   rule,
	}
	if row.ReminderTime != nil && *row.ReminderTime != "" {
		t := parseInstant(*row.ReminderTime)
		h.ReminderTime = &t
	}
	if row.NotificationID != nil {
		h.NotificationID = *row.NotificationID
	}
	return h, nil
}

// TriggerPayload is attached to every reminder trigger.
type TriggerPayload struct {
	HabitID   string `json:"habit_id"`
	UserID    string `json:"user_id"`
	HabitName string `json:"habit_name,omitempty"`
}

func (p TriggerPayload) Validate() error {
	if p.HabitID == "" || p.UserID == "" {
		return fmt.Errorf("trigger payload requires habit_id and user_id")
	}
	return nil
}

// DecodeTriggerPayload parses and validates a stored payload.
func DecodeTriggerPayload(data []byte) (TriggerPayload, error) {
	var p TriggerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return TriggerPayload{}, fmt.Errorf("invalid trigger payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return TriggerPayload{}, err
	}
	return p, nil
}

// ReminderTrigger is a daily registration with the local notification subsystem.
type ReminderTrigger struct {
	Handle    string
	Hour      int
	Minute    int
	Repeats   bool
	Payload   TriggerPayload
	CreatedAt time.Time
}

// User is the authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

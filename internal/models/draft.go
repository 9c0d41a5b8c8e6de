package models

import "time"

// HabitDraft is the in-progress habit held by a session while the wizard runs.
type HabitDraft struct {
	ID             string
	Name           string
	Description    string
	ReminderTime   *time.Time
	Frequency      FrequencyRule
	NotificationID string
}

// DraftPatch carries the fields a wizard step changes. Nil fields are left alone.
type DraftPatch struct {
	ID             *string
	Name           *string
	Description    *string
	ReminderTime   *time.Time
	ClearReminder  bool
	Frequency      FrequencyRule
	NotificationID *string
}

// Apply shallow-merges p into d.
func (d HabitDraft) Apply(p DraftPatch) HabitDraft {
	if p.ID != nil {
		d.ID = *p.ID
	}
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.ClearReminder {
		d.ReminderTime = nil
	} else if p.ReminderTime != nil {
		t := *p.ReminderTime
		d.ReminderTime = &t
	}
	if p.Frequency != nil {
		d.Frequency = p.Frequency
	}
	if p.NotificationID != nil {
		d.NotificationID = *p.NotificationID
	}
	return d
}

// Habit turns the draft into a habit owned by userID.
func (d HabitDraft) Habit(userID string) Habit {
	return Habit{
		ID:             d.ID,
		UserID:         userID,
		Name:           d.Name,
		Description:    d.Description,
		ReminderTime:   d.ReminderTime,
		Frequency:      d.Frequency,
		NotificationID: d.NotificationID,
	}
}

// DraftFromHabit loads an existing habit for editing.
func DraftFromHabit(h Habit) HabitDraft {
	return HabitDraft{
		ID:             h.ID,
		Name:           h.Name,
		Description:    h.Description,
		ReminderTime:   h.ReminderTime,
		Frequency:      h.Frequency,
		NotificationID: h.NotificationID,
	}
}

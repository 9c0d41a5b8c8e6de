// Package notifier is the device's local notification subsystem: a daily
// trigger engine, the persisted registry behind it and the sinks that put
// a fired reminder in front of the user.
package notifier

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
)

// Subsystem registers and removes daily reminder triggers.
type Subsystem interface {
	// ScheduleDailyTrigger registers a trigger firing every day at
	// hour:minute in the engine's zone and returns its handle.
	ScheduleDailyTrigger(ctx context.Context, hour, minute int, payload models.TriggerPayload) (string, error)
	// CancelTrigger removes a trigger. Unknown handles are not an error.
	CancelTrigger(ctx context.Context, handle string) error
	ListAllTriggers(ctx context.Context) ([]models.ReminderTrigger, error)
}

// Message is what a sink shows for a fired reminder.
type Message struct {
	Title string
	Body  string
}

// Text joins title and body for single-line sinks.
func (m Message) Text() string {
	return m.Title + " " + m.Body
}

// ReminderMessage builds the text shown when a habit's reminder fires.
func ReminderMessage(habitName string) Message {
	return Message{
		Title: fmt.Sprintf(constants.ReminderTitleFormat, habitName),
		Body:  constants.ReminderBody,
	}
}

// Package realtime keeps on-device reminders in step with habit changes
// made elsewhere, by listening to the backend's change feed.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/julianstephens/habitual/internal/models"
)

type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// Event is one change to a habits row.
type Event struct {
	Kind EventKind
	New  *models.HabitRow
	Old  *models.HabitRow
}

// Row returns the row the event is about: the new row, or the old one
// for deletions.
func (e Event) Row() *models.HabitRow {
	if e.New != nil {
		return e.New
	}
	return e.Old
}

// Feed opens change subscriptions filtered to one owner.
type Feed interface {
	Subscribe(ctx context.Context, ownerID string) (Subscription, error)
}

// Subscription delivers events until closed. Events is closed after
// Close returns or the feed fails.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// changePayload is the shape both feeds emit: Supabase's postgres_changes
// payload and the JSON built by the postgres migration's trigger.
type changePayload struct {
	Type      string          `json:"type"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

func decodeRow(raw json.RawMessage) (*models.HabitRow, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, nil
	}
	var row models.HabitRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func parseChange(data []byte) (Event, error) {
	var p changePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("invalid change payload: %w", err)
	}

	ev := Event{Kind: EventKind(p.Type)}
	switch ev.Kind {
	case EventInsert, EventUpdate, EventDelete:
	default:
		return Event{}, fmt.Errorf("unknown change type %q", p.Type)
	}

	var err error
	if ev.New, err = decodeRow(p.Record); err != nil {
		return Event{}, fmt.Errorf("invalid record: %w", err)
	}
	if ev.Old, err = decodeRow(p.OldRecord); err != nil {
		return Event{}, fmt.Errorf("invalid old_record: %w", err)
	}
	if ev.Row() == nil {
		return Event{}, fmt.Errorf("%s change carries no row", ev.Kind)
	}
	return ev, nil
}

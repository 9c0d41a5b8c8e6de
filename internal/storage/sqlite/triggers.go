package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/julianstephens/habitual/internal/models"
)

func (s *Store) SaveTrigger(ctx context.Context, trigger models.ReminderTrigger) error {
	payload, err := json.Marshal(trigger.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	repeats := 0
	if trigger.Repeats {
		repeats = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO triggers (handle, hour, minute, repeats, payload, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			hour = excluded.hour,
			minute = excluded.minute,
			repeats = excluded.repeats,
			payload = excluded.payload,
			user_id = excluded.user_id`,
		trigger.Handle, trigger.Hour, trigger.Minute, repeats, string(payload),
		trigger.Payload.UserID, trigger.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save trigger: %w", err)
	}
	return nil
}

// DeleteTrigger removes a registration. Unknown handles are not an error.
func (s *Store) DeleteTrigger(ctx context.Context, handle string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE handle = ?`, handle); err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}
	return nil
}

// ListTriggers returns every registration. Rows with an invalid payload are skipped.
func (s *Store) ListTriggers(ctx context.Context) ([]models.ReminderTrigger, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT handle, hour, minute, repeats, payload, created_at FROM triggers ORDER BY hour, minute, handle`)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()

	var out []models.ReminderTrigger
	for rows.Next() {
		var t models.ReminderTrigger
		var repeats int
		var payload, createdAt string
		if err := rows.Scan(&t.Handle, &t.Hour, &t.Minute, &repeats, &payload, &createdAt); err != nil {
			return nil, err
		}
		p, err := models.DecodeTriggerPayload([]byte(payload))
		if err != nil {
			continue
		}
		t.Payload = p
		t.Repeats = repeats == 1
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			t.CreatedAt = ts
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

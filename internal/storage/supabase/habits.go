package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage"
)

const habitsPath = "/rest/v1/" + constants.HabitsTable

// Store keeps habit rows in the project's habits table. Row level security
// on the server scopes reads to the signed-in user; the filters below keep
// the same scoping when a service key is used.
type Store struct {
	client *Client
}

func NewStore(client *Client) *Store {
	return &Store{client: client}
}

func (s *Store) Client() *Client { return s.client }

// Init checks that the table is reachable. The table itself is managed
// with the project's SQL migrations.
func (s *Store) Init(ctx context.Context) error {
	return s.Load(ctx)
}

func (s *Store) Load(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	if _, err := s.client.do(ctx, request{method: http.MethodGet, path: habitsPath, query: q}); err != nil {
		return fmt.Errorf("failed to reach habits table: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Location() string {
	return s.client.baseURL
}

func (s *Store) UpsertHabit(ctx context.Context, row models.HabitRow) (models.HabitRow, error) {
	if row.SelectedDays == nil {
		row.SelectedDays = []string{}
	}
	if row.SelectedDates == nil {
		row.SelectedDates = []int{}
	}

	q := url.Values{}
	q.Set("on_conflict", "id")
	resp, err := s.client.do(ctx, request{
		method: http.MethodPost,
		path:   habitsPath,
		query:  q,
		body:   []models.HabitRow{row},
		headers: map[string]string{
			"Prefer": "resolution=merge-duplicates,return=representation",
		},
	})
	if err != nil {
		return models.HabitRow{}, fmt.Errorf("failed to upsert habit: %w", err)
	}

	var rows []models.HabitRow
	if err := resp.decode(&rows); err != nil {
		return models.HabitRow{}, err
	}
	if len(rows) == 0 {
		return models.HabitRow{}, fmt.Errorf("upsert returned no rows")
	}
	return rows[0], nil
}

func (s *Store) GetHabit(ctx context.Context, id string) (models.HabitRow, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)
	resp, err := s.client.do(ctx, request{method: http.MethodGet, path: habitsPath, query: q})
	if err != nil {
		return models.HabitRow{}, fmt.Errorf("failed to get habit: %w", err)
	}

	var rows []models.HabitRow
	if err := resp.decode(&rows); err != nil {
		return models.HabitRow{}, err
	}
	if len(rows) == 0 {
		return models.HabitRow{}, storage.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) ListHabits(ctx context.Context, userID string) ([]models.HabitRow, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)
	q.Set("order", "habit_name.asc,id.asc")
	resp, err := s.client.do(ctx, request{method: http.MethodGet, path: habitsPath, query: q})
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}

	var rows []models.HabitRow
	if err := resp.decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) DeleteHabit(ctx context.Context, id, userID string) (int64, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("user_id", "eq."+userID)
	resp, err := s.client.do(ctx, request{
		method:  http.MethodDelete,
		path:    habitsPath,
		query:   q,
		headers: map[string]string{"Prefer": "return=representation"},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete habit: %w", err)
	}

	var rows []models.HabitRow
	if len(resp.Body) > 0 {
		if err := resp.decode(&rows); err != nil {
			return 0, err
		}
	}
	return int64(len(rows)), nil
}

var _ storage.Backend = (*Store)(nil)

package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL + "/", APIKey: "anon", MaxRetries: retries, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.retry.initialBackoff = time.Millisecond
	return c
}

func TestNewRequiresURLAndKey(t *testing.T) {
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Error("New() without URL should fail")
	}
	if _, err := New(Config{URL: "http://x"}); err == nil {
		t.Error("New() without APIKey should fail")
	}
}

func TestHeadersUseAccessToken(t *testing.T) {
	var gotAuth, gotKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		w.Write([]byte(`[]`))
	}, 0)

	s := NewStore(c)
	if _, err := s.ListHabits(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer anon" || gotKey != "anon" {
		t.Errorf("headers = %q / %q", gotAuth, gotKey)
	}

	c.SetAccessToken("jwt")
	if _, err := s.ListHabits(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer jwt" {
		t.Errorf("Authorization = %q, want Bearer jwt", gotAuth)
	}
}

func TestRetriesTransientStatus(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}, 3)

	if _, err := NewStore(c).ListHabits(context.Background(), "u1"); err != nil {
		t.Fatalf("ListHabits() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"JWT expired"}`))
	}, 3)

	_, err := NewStore(c).ListHabits(context.Background(), "u1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "JWT expired" {
		t.Fatalf("error = %v, want 401 APIError", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestUpsertHabitSendsMergePreference(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/habits" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("on_conflict") != "id" {
			t.Errorf("on_conflict = %q", r.URL.Query().Get("on_conflict"))
		}
		if p := r.Header.Get("Prefer"); p != "resolution=merge-duplicates,return=representation" {
			t.Errorf("Prefer = %q", p)
		}
		body, _ := io.ReadAll(r.Body)
		var rows []map[string]any
		if err := json.Unmarshal(body, &rows); err != nil || len(rows) != 1 {
			t.Fatalf("body = %s", body)
		}
		if days, ok := rows[0]["selected_days"].([]any); !ok || len(days) != 0 {
			t.Errorf("selected_days = %v, want []", rows[0]["selected_days"])
		}
		w.Write([]byte(`[{"id":"h1","user_id":"u1","habit_name":"Read","frequency":"daily","selected_days":[],"selected_dates":[]}]`))
	}, 0)

	saved, err := NewStore(c).UpsertHabit(context.Background(), models.HabitRow{
		ID: "h1", UserID: "u1", HabitName: "Read", Frequency: "daily",
	})
	if err != nil {
		t.Fatalf("UpsertHabit() error = %v", err)
	}
	if saved.ID != "h1" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestGetHabitNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "eq.missing" {
			t.Errorf("id filter = %q", r.URL.Query().Get("id"))
		}
		w.Write([]byte(`[]`))
	}, 0)

	if _, err := NewStore(c).GetHabit(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetHabit() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteHabitCountsRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("id") != "eq.h1" || q.Get("user_id") != "eq.u1" {
			t.Errorf("filters = %v", q)
		}
		w.Write([]byte(`[{"id":"h1","user_id":"u1"}]`))
	}, 0)

	n, err := NewStore(c).DeleteHabit(context.Background(), "h1", "u1")
	if err != nil || n != 1 {
		t.Errorf("DeleteHabit() = %d, %v", n, err)
	}
}

func TestSignInWithPassword(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Write([]byte(`{"access_token":"jwt","refresh_token":"r","expires_in":3600,"user":{"id":"u1","email":"a@b.c"}}`))
	}, 0)

	session, err := c.SignInWithPassword(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	if session.AccessToken != "jwt" || session.User == nil || session.User.ID != "u1" {
		t.Errorf("session = %+v", session)
	}
	if session.ExpiresAt == 0 || session.Expired(time.Now()) {
		t.Errorf("ExpiresAt = %d, session should be fresh", session.ExpiresAt)
	}
}

func TestSignUp(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantSigned bool
	}{
		{"confirmation required", `{"id":"u9","email":"new@b.c","confirmation_sent_at":"2024-03-10T13:00:00Z"}`, false},
		{"auto confirmed", `{"access_token":"jwt","refresh_token":"r","expires_in":3600,"user":{"id":"u9","email":"new@b.c"}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/auth/v1/signup" {
					t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
				}
				var got map[string]string
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil || got["email"] != "new@b.c" || got["password"] != "pw" {
					t.Errorf("body = %v, %v", got, err)
				}
				w.Write([]byte(tt.body))
			}, 0)

			user, session, err := c.SignUp(context.Background(), "new@b.c", "pw")
			if err != nil {
				t.Fatalf("SignUp() error = %v", err)
			}
			if user == nil || user.ID != "u9" || user.Email != "new@b.c" {
				t.Errorf("user = %+v", user)
			}
			if (session != nil) != tt.wantSigned {
				t.Fatalf("session = %+v, want signed in = %v", session, tt.wantSigned)
			}
			if session != nil && (session.AccessToken != "jwt" || session.ExpiresAt == 0) {
				t.Errorf("session = %+v", session)
			}
		})
	}
}

func TestGetUserUsesGivenToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer user-jwt" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"id":"u1","email":"a@b.c"}`))
	}, 0)

	user, err := c.GetUser(context.Background(), "user-jwt")
	if err != nil || user.ID != "u1" {
		t.Errorf("GetUser() = %+v, %v", user, err)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL, APIKey: "anon", RateLimit: 0.001, RateBurst: 1})
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore(c)
	if _, err := s.ListHabits(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.ListHabits(ctx, "u1"); err == nil {
		t.Error("second call should fail waiting on the limiter")
	}
}

package notifier

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage/sqlite"
)

func newRegistry(t *testing.T) *sqlite.Store {
	t.Helper()
	s := sqlite.NewStore(filepath.Join(t.TempDir(), "habitual.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// runTrigger invokes a loaded trigger's job synchronously.
func runTrigger(e *Engine, handle string) bool {
	e.mu.Lock()
	id, ok := e.entries[handle]
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.cron.Entry(id).Job.Run()
	return true
}

func TestScheduleDailyTrigger(t *testing.T) {
	bogota, _ := time.LoadLocation("America/Bogota")
	now := time.Date(2024, 3, 10, 7, 0, 0, 0, bogota)

	var (
		mu    sync.Mutex
		fired []models.ReminderTrigger
	)
	reg := newRegistry(t)
	e := NewEngine(reg, bogota, func(_ context.Context, trig models.ReminderTrigger) {
		mu.Lock()
		fired = append(fired, trig)
		mu.Unlock()
	}, WithClock(func() time.Time { return now }))

	payload := models.TriggerPayload{HabitID: "h1", UserID: "u1", HabitName: "Drink water"}
	handle, err := e.ScheduleDailyTrigger(context.Background(), 8, 0, payload)
	if err != nil {
		t.Fatalf("ScheduleDailyTrigger() error = %v", err)
	}
	if handle == "" {
		t.Fatal("expected a handle")
	}

	next, ok := e.NextFire(handle)
	if !ok || !next.Equal(time.Date(2024, 3, 10, 8, 0, 0, 0, bogota)) {
		t.Errorf("NextFire() = %v, %v", next, ok)
	}

	list, err := e.ListAllTriggers(context.Background())
	if err != nil || len(list) != 1 || list[0].Payload != payload || !list[0].Repeats {
		t.Fatalf("ListAllTriggers() = %+v, %v", list, err)
	}

	if !runTrigger(e, handle) {
		t.Fatal("trigger not loaded")
	}
	if len(fired) != 1 || fired[0].Payload.HabitID != "h1" {
		t.Errorf("fired = %+v", fired)
	}
}

func TestScheduleRejectsBadInput(t *testing.T) {
	e := NewEngine(newRegistry(t), time.UTC, nil)
	ctx := context.Background()

	if _, err := e.ScheduleDailyTrigger(ctx, 24, 0, models.TriggerPayload{HabitID: "h", UserID: "u"}); err == nil {
		t.Error("hour 24 should be rejected")
	}
	if _, err := e.ScheduleDailyTrigger(ctx, 8, 0, models.TriggerPayload{HabitID: "h"}); err == nil {
		t.Error("payload without user should be rejected")
	}
	if e.Active() != 0 {
		t.Errorf("Active() = %d, want 0", e.Active())
	}
}

func TestCancelTrigger(t *testing.T) {
	e := NewEngine(newRegistry(t), time.UTC, nil)
	ctx := context.Background()

	handle, err := e.ScheduleDailyTrigger(ctx, 9, 30, models.TriggerPayload{HabitID: "h", UserID: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CancelTrigger(ctx, handle); err != nil {
		t.Fatalf("CancelTrigger() error = %v", err)
	}
	if err := e.CancelTrigger(ctx, handle); err != nil {
		t.Errorf("cancelling a vanished trigger should be a no-op, got %v", err)
	}
	if e.Active() != 0 {
		t.Errorf("Active() = %d, want 0", e.Active())
	}
	if list, _ := e.ListAllTriggers(ctx); len(list) != 0 {
		t.Errorf("registry still holds %+v", list)
	}
}

func TestSyncPicksUpOtherProcesses(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	cli := NewEngine(reg, time.UTC, nil)
	daemon := NewEngine(reg, time.UTC, nil)

	handle, err := cli.ScheduleDailyTrigger(ctx, 6, 15, models.TriggerPayload{HabitID: "h", UserID: "u"})
	if err != nil {
		t.Fatal(err)
	}

	if err := daemon.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if daemon.Active() != 1 {
		t.Fatalf("daemon Active() = %d, want 1", daemon.Active())
	}

	if err := cli.CancelTrigger(ctx, handle); err != nil {
		t.Fatal(err)
	}
	if err := daemon.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if daemon.Active() != 0 {
		t.Errorf("daemon Active() = %d after cancel, want 0", daemon.Active())
	}
}

func TestStartStop(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	if _, err := NewEngine(reg, time.UTC, nil).ScheduleDailyTrigger(ctx, 6, 0, models.TriggerPayload{HabitID: "h", UserID: "u"}); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(reg, time.UTC, nil)
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop()
	if e.Active() != 1 {
		t.Errorf("Active() = %d after Start, want 1", e.Active())
	}
}

func TestStartResyncsOnInterval(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	e := NewEngine(reg, time.UTC, nil, WithSyncInterval(time.Second))
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop()

	other := NewEngine(reg, time.UTC, nil)
	handle, err := other.ScheduleDailyTrigger(ctx, 6, 0, models.TriggerPayload{HabitID: "h", UserID: "u"})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := e.NextFire(handle); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("trigger saved by another engine was never loaded")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestWithSyncIntervalFloor(t *testing.T) {
	e := NewEngine(newRegistry(t), time.UTC, nil, WithSyncInterval(0))
	if e.every != time.Second {
		t.Errorf("every = %v, want 1s", e.every)
	}
	if d := NewEngine(newRegistry(t), time.UTC, nil).every; d != DefaultSyncInterval {
		t.Errorf("default every = %v", d)
	}
}

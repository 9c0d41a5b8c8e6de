package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage"
)

// FireFunc is called on the cron goroutine when a trigger fires.
type FireFunc func(ctx context.Context, trigger models.ReminderTrigger)

// Engine runs daily triggers on robfig/cron and persists every
// registration so another process (or a restart) can pick them up.
type Engine struct {
	registry storage.TriggerRegistry
	cron     *cron.Cron
	loc      *time.Location
	fire     FireFunc
	now      func() time.Time
	every    time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

type EngineOption func(*Engine)

// DefaultSyncInterval is how often a started engine re-reads the registry.
const DefaultSyncInterval = time.Minute

// WithClock overrides the clock used for registration timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithSyncInterval sets how often Start re-reads the registry. Values
// below one second are raised to one second.
func WithSyncInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d < time.Second {
			d = time.Second
		}
		e.every = d
	}
}

// NewEngine builds an engine evaluating schedules in loc. fire may be nil
// when the engine only registers triggers, as the CLI does.
func NewEngine(registry storage.TriggerRegistry, loc *time.Location, fire FireFunc, opts ...EngineOption) *Engine {
	if loc == nil {
		loc = time.Local
	}
	e := &Engine{
		registry: registry,
		cron:     cron.New(cron.WithLocation(loc)),
		loc:      loc,
		fire:     fire,
		now:      time.Now,
		every:    DefaultSyncInterval,
		entries:  make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func dailySpec(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

func (e *Engine) ScheduleDailyTrigger(ctx context.Context, hour, minute int, payload models.TriggerPayload) (string, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid trigger time %02d:%02d", hour, minute)
	}
	if err := payload.Validate(); err != nil {
		return "", err
	}

	trigger := models.ReminderTrigger{
		Handle:    uuid.New().String(),
		Hour:      hour,
		Minute:    minute,
		Repeats:   true,
		Payload:   payload,
		CreatedAt: e.now().UTC(),
	}
	if err := e.registry.SaveTrigger(ctx, trigger); err != nil {
		return "", fmt.Errorf("failed to save trigger: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.addLocked(trigger); err != nil {
		_ = e.registry.DeleteTrigger(ctx, trigger.Handle)
		return "", err
	}
	logger.Debug("Trigger scheduled", "handle", trigger.Handle, "habit", payload.HabitID, "at", fmt.Sprintf("%02d:%02d", hour, minute))
	return trigger.Handle, nil
}

func (e *Engine) addLocked(trigger models.ReminderTrigger) error {
	if _, ok := e.entries[trigger.Handle]; ok {
		return nil
	}
	id, err := e.cron.AddFunc(dailySpec(trigger.Hour, trigger.Minute), func() {
		if e.fire != nil {
			e.fire(context.Background(), trigger)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron entry: %w", err)
	}
	e.entries[trigger.Handle] = id
	return nil
}

func (e *Engine) CancelTrigger(ctx context.Context, handle string) error {
	e.mu.Lock()
	if id, ok := e.entries[handle]; ok {
		e.cron.Remove(id)
		delete(e.entries, handle)
	}
	e.mu.Unlock()

	if err := e.registry.DeleteTrigger(ctx, handle); err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}
	return nil
}

func (e *Engine) ListAllTriggers(ctx context.Context) ([]models.ReminderTrigger, error) {
	return e.registry.ListTriggers(ctx)
}

// Sync reconciles the running cron entries with the registry: triggers
// added by another process are picked up and removed ones are dropped.
func (e *Engine) Sync(ctx context.Context) error {
	triggers, err := e.registry.ListTriggers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list triggers: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		seen[t.Handle] = true
		if err := e.addLocked(t); err != nil {
			logger.Warn("Skipping trigger", "handle", t.Handle, "error", err)
		}
	}
	for handle, id := range e.entries {
		if !seen[handle] {
			e.cron.Remove(id)
			delete(e.entries, handle)
		}
	}
	return nil
}

// Start loads the registry and starts firing triggers. It re-syncs on the
// sync interval, so a trigger another process saves can take up to that
// long to load unless Sync is called sooner.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Sync(ctx); err != nil {
		return err
	}
	if _, err := e.cron.AddFunc("@every "+e.every.String(), func() {
		if err := e.Sync(context.Background()); err != nil {
			logger.Warn("Trigger sync failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to add sync job: %w", err)
	}
	e.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (e *Engine) Stop() {
	<-e.cron.Stop().Done()
}

// Active returns the number of triggers with a live cron entry.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// NextFire reports when handle fires next, if it is loaded.
func (e *Engine) NextFire(handle string) (time.Time, bool) {
	e.mu.Lock()
	id, ok := e.entries[handle]
	e.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return e.cron.Entry(id).Schedule.Next(e.now().In(e.loc)), true
}

var _ Subsystem = (*Engine)(nil)

package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/metrics"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/scheduler"
)

type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Scheduler is the part of scheduler.Scheduler the bridge drives.
type Scheduler interface {
	Schedule(ctx context.Context, habit models.Habit, previousHandle string) scheduler.Result
}

// RowDecoder maps a feed row to a habit. habits.Store implements it.
type RowDecoder interface {
	FromRow(row models.HabitRow) (models.Habit, error)
}

// ChangeFunc observes every accepted event.
type ChangeFunc func(kind EventKind, habit models.Habit)

// Handle identifies one subscription.
type Handle struct {
	ID      string
	OwnerID string
}

// Bridge holds at most one live subscription. The subscription lives in a
// single mutex-guarded slot that both Subscribe and Unsubscribe read, so a
// teardown always sees the latest subscription.
type Bridge struct {
	feed      Feed
	scheduler Scheduler
	decoder   RowDecoder
	// Persist, when set, records handles created for inserted habits.
	Persist scheduler.PersistFunc
	Metrics *metrics.Collector

	mu     sync.Mutex
	state  State
	handle Handle
	sub    Subscription
	done   chan struct{}
}

func NewBridge(feed Feed, sched Scheduler, decoder RowDecoder) *Bridge {
	return &Bridge{feed: feed, scheduler: sched, decoder: decoder}
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Subscribe starts listening to ownerID's habit changes, tearing down any
// existing subscription first. onChange runs on the bridge's event
// goroutine and must not call back into the bridge.
func (b *Bridge) Subscribe(ctx context.Context, ownerID string, onChange ChangeFunc) (Handle, error) {
	if ownerID == "" {
		return Handle{}, fmt.Errorf("owner id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateUnsubscribed {
		if err := b.teardownLocked(ctx); err != nil {
			logger.Warn("Failed to close previous subscription", "error", err)
		}
	}

	b.state = StateSubscribing
	sub, err := b.feed.Subscribe(ctx, ownerID)
	if err != nil {
		b.state = StateUnsubscribed
		return Handle{}, fmt.Errorf("failed to subscribe to habit changes: %w", err)
	}

	b.sub = sub
	b.handle = Handle{ID: uuid.New().String(), OwnerID: ownerID}
	b.done = make(chan struct{})
	b.state = StateActive

	go b.run(sub.Events(), ownerID, onChange, b.done)

	logger.Info("Realtime subscription active", "owner", ownerID, "handle", b.handle.ID)
	return b.handle, nil
}

// Unsubscribe closes the current subscription, if any, and waits for the
// event goroutine to drain.
func (b *Bridge) Unsubscribe(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.teardownLocked(ctx)
}

func (b *Bridge) teardownLocked(ctx context.Context) error {
	sub, done := b.sub, b.done
	b.sub, b.done = nil, nil
	b.handle = Handle{}
	b.state = StateUnsubscribed

	if sub == nil {
		return nil
	}
	err := sub.Close()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (b *Bridge) run(events <-chan Event, ownerID string, onChange ChangeFunc, done chan struct{}) {
	ctx := context.Background()
	for ev := range events {
		b.handleEvent(ctx, ev, ownerID, onChange)
	}
	close(done)
	b.ended(done)
}

// ended clears the slot when the feed closed on its own. A teardown has
// already replaced the slot's done channel, so it is left alone.
func (b *Bridge) ended(done chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != done {
		return
	}
	sub, owner := b.sub, b.handle.OwnerID
	b.sub, b.done = nil, nil
	b.handle = Handle{}
	b.state = StateUnsubscribed
	if sub != nil {
		_ = sub.Close()
	}
	logger.Warn("Realtime subscription ended", "owner", owner)
	b.Metrics.RealtimeEvent("subscription", "ended")
}

func (b *Bridge) handleEvent(ctx context.Context, ev Event, ownerID string, onChange ChangeFunc) {
	kind := string(ev.Kind)
	row := ev.Row()
	if row == nil {
		b.Metrics.RealtimeEvent(kind, "invalid")
		return
	}

	// Deletions may only carry the primary key.
	if row.UserID != ownerID && !(ev.Kind == EventDelete && row.UserID == "") {
		logger.Debug("Ignoring change for another user", "kind", kind, "habit", row.ID)
		b.Metrics.RealtimeEvent(kind, "ignored")
		return
	}

	habit, err := b.decoder.FromRow(*row)
	if err != nil {
		logger.Warn("Ignoring unreadable habit change", "kind", kind, "habit", row.ID, "error", err)
		b.Metrics.RealtimeEvent(kind, "invalid")
		return
	}

	switch ev.Kind {
	case EventInsert:
		res := b.scheduler.Schedule(ctx, habit, habit.NotificationID)
		if res.Handle != "" && b.Persist != nil {
			if err := b.Persist(ctx, habit, res.Handle); err != nil {
				logger.Warn("Failed to save reminder handle", "habit", habit.ID, "error", err)
			}
		}
		b.Metrics.RealtimeEvent(kind, "scheduled")
	default:
		logger.Info("Habit changed remotely", "kind", kind, "habit", habit.ID)
		b.Metrics.RealtimeEvent(kind, "forwarded")
	}

	if onChange != nil {
		onChange(ev.Kind, habit)
	}
}

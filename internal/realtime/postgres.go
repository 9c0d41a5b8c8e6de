package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
)

// PostgresFeed listens for NOTIFY messages sent by the habits table's
// change trigger.
type PostgresFeed struct {
	ConnStr string
	Channel string
}

func (f *PostgresFeed) Subscribe(ctx context.Context, ownerID string) (Subscription, error) {
	channel := f.Channel
	if channel == "" {
		channel = constants.NotifyChannel
	}

	listener := pq.NewListener(f.ConnStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Postgres listener event", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}
	if err := ctx.Err(); err != nil {
		listener.Close()
		return nil, err
	}

	s := &pqSubscription{
		listener: listener,
		owner:    ownerID,
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

type pqSubscription struct {
	listener *pq.Listener
	owner    string
	events   chan Event
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func (s *pqSubscription) Events() <-chan Event { return s.events }

func (s *pqSubscription) loop() {
	defer s.wg.Done()
	defer close(s.events)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ping.C:
			go func() { _ = s.listener.Ping() }()
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect
			if n == nil {
				continue
			}
			ev, err := parseChange([]byte(n.Extra))
			if err != nil {
				logger.Debug("Skipping notification", "error", err)
				continue
			}
			if row := ev.Row(); row == nil || row.UserID != s.owner {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *pqSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.listener.Close()
	})
	return err
}

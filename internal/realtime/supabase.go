package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
)

// SupabaseFeed subscribes to postgres_changes on the habits table over
// Supabase Realtime's Phoenix channel protocol.
type SupabaseFeed struct {
	URL    string
	APIKey string
	Schema string
	// AccessToken, when set, authorizes the channel as the signed-in user.
	AccessToken func() string
	Heartbeat   time.Duration
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

func websocketURL(base, apiKey string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid Supabase URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"
	q := u.Query()
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *SupabaseFeed) Subscribe(ctx context.Context, ownerID string) (Subscription, error) {
	wsURL, err := websocketURL(f.URL, f.APIKey)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: constants.RealtimeHandshake}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	schema := f.Schema
	if schema == "" {
		schema = "public"
	}
	filter := "user_id=eq." + ownerID

	s := &wsSubscription{
		conn:   conn,
		topic:  fmt.Sprintf("realtime:%s:%s:%s", schema, constants.HabitsTable, filter),
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}

	joinPayload := map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]string{{
				"event":  "*",
				"schema": schema,
				"table":  constants.HabitsTable,
				"filter": filter,
			}},
		},
	}
	if f.AccessToken != nil {
		if token := f.AccessToken(); token != "" {
			joinPayload["access_token"] = token
		}
	}

	s.joinRef = s.nextRef()
	if err := s.send("phx_join", joinPayload, s.joinRef); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send join: %w", err)
	}

	heartbeat := f.Heartbeat
	if heartbeat <= 0 {
		heartbeat = constants.RealtimeHeartbeat
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.heartbeat(heartbeat)
	return s, nil
}

type wsSubscription struct {
	conn    *websocket.Conn
	topic   string
	joinRef string
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup

	writeMu sync.Mutex
	ref     int
	once    sync.Once
}

func (s *wsSubscription) Events() <-chan Event { return s.events }

func (s *wsSubscription) nextRef() string {
	s.ref++
	return strconv.Itoa(s.ref)
}

func (s *wsSubscription) send(event string, payload any, joinRef string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ref := s.nextRef()
	msg := phxMessage{Topic: s.topic, Event: event, Payload: data, Ref: &ref}
	if event == "heartbeat" {
		msg.Topic = "phoenix"
	}
	if joinRef != "" {
		msg.JoinRef = &joinRef
	}
	return s.conn.WriteJSON(msg)
}

func (s *wsSubscription) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				logger.Warn("Realtime connection closed", "error", err)
			}
			return
		}

		var msg phxMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Topic != s.topic {
			continue
		}

		payload := msg.Payload
		switch msg.Event {
		case "postgres_changes":
			var wrapped struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(payload, &wrapped); err != nil || len(wrapped.Data) == 0 {
				continue
			}
			payload = wrapped.Data
		case string(EventInsert), string(EventUpdate), string(EventDelete):
		case "phx_reply", "phx_close", "presence_state", "system":
			continue
		case "phx_error":
			logger.Warn("Realtime channel error", "topic", s.topic, "payload", string(payload))
			continue
		default:
			continue
		}

		ev, err := parseChange(payload)
		if err != nil {
			logger.Debug("Skipping realtime message", "error", err)
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *wsSubscription) heartbeat(every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.send("heartbeat", map[string]any{}, ""); err != nil {
				logger.Warn("Realtime heartbeat failed", "error", err)
			}
		}
	}
}

// Close leaves the channel and closes the socket.
func (s *wsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.send("phx_leave", map[string]any{}, s.joinRef)

		s.writeMu.Lock()
		err = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		s.conn.Close()
		s.wg.Wait()
	})
	return err
}

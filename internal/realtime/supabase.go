package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultHeartbeat = 25 * time.Second
	joinTimeout      = 10 * time.Second
	writeWait        = 10 * time.Second
)

// SupabaseClient subscribes to Postgres changes through Supabase Realtime
// (Phoenix channels over a websocket). Each subscription owns one socket.
type SupabaseClient struct {
	URL         string // wss://<project>.supabase.co/realtime/v1/websocket
	APIKey      string
	AccessToken string // optional user JWT; APIKey is used when empty
	Dialer      *websocket.Dialer
	Heartbeat   time.Duration
	Log         zerolog.Logger

	ref atomic.Uint64
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type phxReply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type postgresChangesPayload struct {
	Data struct {
		Schema          string                 `json:"schema"`
		Table           string                 `json:"table"`
		Type            EventType              `json:"type"`
		Record          map[string]interface{} `json:"record"`
		OldRecord       map[string]interface{} `json:"old_record"`
		CommitTimestamp time.Time              `json:"commit_timestamp"`
	} `json:"data"`
}

func (c *SupabaseClient) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

func (c *SupabaseClient) socketURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("realtime: bad url: %w", err)
	}
	q := u.Query()
	q.Set("apikey", c.APIKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *SupabaseClient) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	if c.URL == "" {
		return nil, errors.New("realtime: supabase url is not set")
	}
	wsURL, err := c.socketURL()
	if err != nil {
		return nil, err
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	token := c.AccessToken
	if token == "" {
		token = c.APIKey
	}
	sub := &supabaseSubscription{
		client: c,
		conn:   conn,
		topic:  "realtime:" + f.Table + ":" + f.Expression(),
		events: make(chan ChangeEvent, subscriptionBuffer),
		done:   make(chan struct{}),
		log:    c.Log.With().Str("table", f.Table).Str("filter", f.Expression()).Logger(),
	}
	joinRef := c.nextRef()
	sub.joinRef = joinRef
	join := map[string]interface{}{
		"config": map[string]interface{}{
			"broadcast": map[string]interface{}{"self": false},
			"presence":  map[string]interface{}{"key": ""},
			"postgres_changes": []map[string]string{{
				"event":  "*",
				"schema": f.schema(),
				"table":  f.Table,
				"filter": f.Expression(),
			}},
		},
		"access_token": token,
	}
	if err := sub.send("phx_join", join, joinRef); err != nil {
		conn.Close()
		return nil, err
	}
	if err := sub.awaitJoin(ctx, joinRef); err != nil {
		conn.Close()
		return nil, err
	}

	hb := c.Heartbeat
	if hb <= 0 {
		hb = defaultHeartbeat
	}
	sub.wg.Add(2)
	go sub.readLoop()
	go sub.heartbeat(hb)
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

type supabaseSubscription struct {
	client  *SupabaseClient
	conn    *websocket.Conn
	topic   string
	joinRef string
	events  chan ChangeEvent
	done    chan struct{}
	writeMu sync.Mutex
	once    sync.Once
	wg      sync.WaitGroup
	log     zerolog.Logger
}

func (s *supabaseSubscription) Events() <-chan ChangeEvent { return s.events }

func (s *supabaseSubscription) send(event string, payload interface{}, ref string) error {
	return s.sendTopic(s.topic, event, payload, ref)
}

func (s *supabaseSubscription) sendTopic(topic, event string, payload interface{}, ref string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := phxMessage{Topic: topic, Event: event, Payload: raw, Ref: &ref}
	if topic == s.topic {
		msg.JoinRef = &s.joinRef
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("realtime: write %s: %w", event, err)
	}
	return nil
}

func (s *supabaseSubscription) awaitJoin(ctx context.Context, ref string) error {
	deadline := time.Now().Add(joinTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetReadDeadline(deadline)
	defer s.conn.SetReadDeadline(time.Time{})
	for {
		var msg phxMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("realtime: join %s: %w", s.topic, err)
		}
		if msg.Event != "phx_reply" || msg.Ref == nil || *msg.Ref != ref {
			continue
		}
		var reply phxReply
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("realtime: join reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("realtime: join %s rejected: %s", s.topic, string(reply.Response))
		}
		return nil
	}
}

func (s *supabaseSubscription) readLoop() {
	defer s.wg.Done()
	defer close(s.events)
	for {
		var msg phxMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				s.log.Warn().Err(err).Msg("realtime: socket closed")
			}
			return
		}
		switch msg.Event {
		case "postgres_changes":
			var p postgresChangesPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				s.log.Warn().Err(err).Msg("realtime: dropping malformed change")
				continue
			}
			ev := ChangeEvent{
				Schema:          p.Data.Schema,
				Table:           p.Data.Table,
				Type:            p.Data.Type,
				Record:          p.Data.Record,
				OldRecord:       p.Data.OldRecord,
				CommitTimestamp: p.Data.CommitTimestamp,
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		case "phx_error", "phx_close":
			if msg.Topic == s.topic {
				s.log.Warn().Str("event", msg.Event).Msg("realtime: channel closed by server")
				return
			}
		}
	}
}

func (s *supabaseSubscription) heartbeat(every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if err := s.sendTopic("phoenix", "heartbeat", map[string]interface{}{}, s.client.nextRef()); err != nil {
				s.log.Warn().Err(err).Msg("realtime: heartbeat failed")
				return
			}
		}
	}
}

func (s *supabaseSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.send("phx_leave", map[string]interface{}{}, s.client.nextRef())
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus relays change events between portal instances over Redis pub/sub.
type RedisBus struct {
	Rdb *redis.Client
	Log zerolog.Logger
}

func (b *RedisBus) Publish(ctx context.Context, f Filter, ev ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encode event: %w", err)
	}
	return b.Rdb.Publish(ctx, f.Channel(), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	ps := b.Rdb.Subscribe(ctx, f.Channel())
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("realtime: redis subscribe %s: %w", f.Channel(), err)
	}
	sub := &redisSubscription{
		ps:     ps,
		events: make(chan ChangeEvent, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.pump(ctx, b.Log)
	return sub, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	events chan ChangeEvent
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (s *redisSubscription) Events() <-chan ChangeEvent { return s.events }

func (s *redisSubscription) pump(ctx context.Context, log zerolog.Logger) {
	defer s.wg.Done()
	defer close(s.events)
	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("realtime: dropping malformed event")
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		s.wg.Wait()
	})
	return err
}

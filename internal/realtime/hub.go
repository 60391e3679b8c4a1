package realtime

import (
	"context"
	"sync"
)

const subscriptionBuffer = 64

// Hub is an in-process Subscriber and Publisher keyed by Filter.Channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*hubSubscription]struct{}
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[*hubSubscription]struct{})}
}

type hubSubscription struct {
	hub     *Hub
	channel string
	events  chan ChangeEvent
	once    sync.Once
	stop    chan struct{}
}

func (s *hubSubscription) Events() <-chan ChangeEvent { return s.events }

func (s *hubSubscription) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.hub.mu.Lock()
		if subs, ok := s.hub.channels[s.channel]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.hub.channels, s.channel)
			}
		}
		close(s.events)
		s.hub.mu.Unlock()
	})
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	sub := &hubSubscription{
		hub:     h,
		channel: f.Channel(),
		events:  make(chan ChangeEvent, subscriptionBuffer),
		stop:    make(chan struct{}),
	}
	h.mu.Lock()
	if _, ok := h.channels[sub.channel]; !ok {
		h.channels[sub.channel] = make(map[*hubSubscription]struct{})
	}
	h.channels[sub.channel][sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.stop:
		}
	}()
	return sub, nil
}

// Publish never blocks. A subscriber whose buffer is full misses the event,
// which is harmless: its buffer already holds an event that will trigger a
// re-fetch after this commit.
func (h *Hub) Publish(ctx context.Context, f Filter, ev ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.channels[f.Channel()] {
		select {
		case sub.events <- ev:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for f.
func (h *Hub) Subscribers(f Filter) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[f.Channel()])
}

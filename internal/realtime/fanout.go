package realtime

import (
	"context"
	"errors"
	"sync"
)

// Fanout subscribes to every source and merges their events into one stream.
type Fanout []Subscriber

func (f Fanout) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	merged := &fanoutSubscription{events: make(chan ChangeEvent, subscriptionBuffer), done: make(chan struct{})}
	for _, src := range f {
		sub, err := src.Subscribe(ctx, filter)
		if err != nil {
			merged.Close()
			return nil, err
		}
		merged.subs = append(merged.subs, sub)
	}
	for _, sub := range merged.subs {
		merged.wg.Add(1)
		go merged.forward(sub)
	}
	go func() {
		merged.wg.Wait()
		close(merged.events)
	}()
	return merged, nil
}

type fanoutSubscription struct {
	subs   []Subscription
	events chan ChangeEvent
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (m *fanoutSubscription) Events() <-chan ChangeEvent { return m.events }

func (m *fanoutSubscription) forward(sub Subscription) {
	defer m.wg.Done()
	for ev := range sub.Events() {
		select {
		case m.events <- ev:
		case <-m.done:
			return
		}
	}
}

func (m *fanoutSubscription) Close() error {
	var errs []error
	m.once.Do(func() {
		close(m.done)
		for _, sub := range m.subs {
			if err := sub.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

package events

import (
	"context"
	"sync"

	"github.com/spec-kit/pqrs-service/internal/observability"
)

// LocalBus is an in-process broker. Delivery never blocks the publisher:
// a subscriber whose buffer is full misses the event.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*localSubscription]struct{}
	closed bool
}

// NewLocalBus creates an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[*localSubscription]struct{})}
}

func (b *LocalBus) Name() string { return "memory" }

// Publish hands the event to every subscriber of topic without waiting.
func (b *LocalBus) Publish(_ context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[topic] {
		select {
		case sub.ch <- event:
		default:
			observability.FanoutFailuresTotal.WithLabelValues(b.Name(), "slow_subscriber").Inc()
		}
	}
	return nil
}

// Subscribe registers a buffered subscription on topic.
func (b *LocalBus) Subscribe(_ context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &localSubscription{bus: b, topic: topic, ch: make(chan Event, subscriptionBuffer)}
	if b.closed {
		close(sub.ch)
		return sub, nil
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*localSubscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	return sub, nil
}

// Close terminates every subscription.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(b.subs, topic)
	}
	return nil
}

type localSubscription struct {
	bus   *LocalBus
	topic string
	ch    chan Event
	once  sync.Once
}

func (s *localSubscription) Events() <-chan Event { return s.ch }

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subs[s.topic][s]; !ok {
			return
		}
		delete(s.bus.subs[s.topic], s)
		if len(s.bus.subs[s.topic]) == 0 {
			delete(s.bus.subs, s.topic)
		}
		close(s.ch)
	})
	return nil
}

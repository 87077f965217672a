package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/observability"
)

// RedisBroker fans events out through Redis PUBLISH/SUBSCRIBE so every replica
// reaches its own websocket clients.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroker wraps an existing client. The client is owned by the caller.
func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, logger: logger}
}

func (b *RedisBroker) Name() string { return "redis" }

func (b *RedisBroker) Publish(ctx context.Context, topic string, event Event) error {
	data, err := encode(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, topic, data).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &redisSubscription{ps: ps, ch: make(chan Event, subscriptionBuffer), done: make(chan struct{})}
	go sub.pump(b.logger.With(zap.String("topic", topic)), b.Name())
	return sub, nil
}

// Close is a no-op; the shared client is closed by its owner.
func (b *RedisBroker) Close() error { return nil }

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) pump(logger *zap.Logger, driver string) {
	defer close(s.ch)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.ps.Channel():
			if !ok {
				return
			}
			event, err := decode([]byte(msg.Payload))
			if err != nil {
				logger.Warn("dropping undecodable event", zap.Error(err))
				continue
			}
			select {
			case s.ch <- event:
			default:
				observability.FanoutFailuresTotal.WithLabelValues(driver, "slow_subscriber").Inc()
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan Event { return s.ch }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

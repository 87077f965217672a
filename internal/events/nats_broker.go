package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/observability"
)

// NATSBroker fans events out over core NATS subjects. Topic names map 1:1 to subjects.
type NATSBroker struct {
	nc     *nats.Conn
	logger *zap.Logger
	owned  bool
}

// NewNATSBroker wraps an existing connection.
func NewNATSBroker(nc *nats.Conn, logger *zap.Logger) *NATSBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSBroker{nc: nc, logger: logger}
}

// DialNATS connects to url and returns a broker that owns the connection.
func DialNATS(url string, logger *zap.Logger) (*NATSBroker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("pqrs-service"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBroker{nc: nc, logger: logger, owned: true}, nil
}

func (b *NATSBroker) Name() string { return "nats" }

func (b *NATSBroker) Publish(_ context.Context, topic string, event Event) error {
	data, err := encode(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.nc.Publish(topic, data)
}

func (b *NATSBroker) Subscribe(_ context.Context, topic string) (Subscription, error) {
	msgs := make(chan *nats.Msg, subscriptionBuffer)
	natsSub, err := b.nc.ChanSubscribe(topic, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	if err := b.nc.Flush(); err != nil {
		_ = natsSub.Unsubscribe()
		return nil, fmt.Errorf("flush subscribe %s: %w", topic, err)
	}

	sub := &natsSubscription{sub: natsSub, ch: make(chan Event, subscriptionBuffer), done: make(chan struct{})}
	go sub.pump(msgs, b.logger.With(zap.String("topic", topic)), b.Name())
	return sub, nil
}

// Close drains the connection when the broker dialed it.
func (b *NATSBroker) Close() error {
	if b.owned {
		return b.nc.Drain()
	}
	return nil
}

type natsSubscription struct {
	sub  *nats.Subscription
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *natsSubscription) pump(msgs <-chan *nats.Msg, logger *zap.Logger, driver string) {
	defer close(s.ch)
	for {
		select {
		case <-s.done:
			return
		case msg := <-msgs:
			event, err := decode(msg.Data)
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

func (s *natsSubscription) Events() <-chan Event { return s.ch }

func (s *natsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
		close(s.done)
	})
	return err
}

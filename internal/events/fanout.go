package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/observability"
)

// Fanout is the fire-and-forget notification front used by services.
// Delivery failures are logged and counted and never returned.
type Fanout struct {
	broker Broker
	topics Topics
	logger *zap.Logger
	now    func() time.Time
}

// NewFanout builds a fanout over broker.
func NewFanout(broker Broker, topics Topics, logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{broker: broker, topics: topics, logger: logger, now: time.Now}
}

// Topics exposes the topic builder.
func (f *Fanout) Topics() Topics { return f.topics }

// Publish stamps and sends event on topic.
func (f *Fanout) Publish(ctx context.Context, topic string, event Event) {
	if f == nil || f.broker == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = f.now().UTC()
	}
	if err := f.broker.Publish(ctx, topic, event); err != nil {
		observability.FanoutFailuresTotal.WithLabelValues(f.broker.Name(), "publish").Inc()
		f.logger.Warn("fanout publish failed",
			zap.String("topic", topic),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// ToRequest publishes on the request room.
func (f *Fanout) ToRequest(ctx context.Context, requestID string, event Event) {
	if f == nil {
		return
	}
	f.Publish(ctx, f.topics.Request(requestID), event)
}

// ToEntity publishes on the tenant room.
func (f *Fanout) ToEntity(ctx context.Context, entityID string, event Event) {
	if f == nil {
		return
	}
	f.Publish(ctx, f.topics.Entity(entityID), event)
}

// ToUser publishes on a user channel.
func (f *Fanout) ToUser(ctx context.Context, userID string, event Event) {
	if f == nil {
		return
	}
	f.Publish(ctx, f.topics.User(userID), event)
}

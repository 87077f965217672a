package events

import (
	"context"
	"encoding/json"
)

// Publisher delivers an event to every current subscriber of a topic, at most once.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// Subscription streams events of one topic until closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Subscriber opens topic subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Broker is a pub/sub driver.
type Broker interface {
	Publisher
	Subscriber
	Name() string
	Close() error
}

const subscriptionBuffer = 32

func encode(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func decode(data []byte) (Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return event, err
}

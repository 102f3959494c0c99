package kafka

import (
	"context"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
)

// EventMessagePersisted is the type of events emitted after a message is stored.
const EventMessagePersisted = "message.persisted"

// MessageEvent is the record written to the message topic.
type MessageEvent struct {
	EventType string         `json:"eventType"`
	Message   domain.Message `json:"message"`
	Origin    string         `json:"origin,omitempty"`
}

type MessageProducer interface {
	ProduceMessage(ctx context.Context, msg *domain.Message) error
	Close() error
}

// NoopProducer drops every event. Used when Kafka is disabled.
type NoopProducer struct{}

func (NoopProducer) ProduceMessage(context.Context, *domain.Message) error { return nil }

func (NoopProducer) Close() error { return nil }

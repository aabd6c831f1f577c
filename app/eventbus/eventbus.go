package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/quizwars/duelsvc/app/shared"
)

// eventBus implements the shared.EventBus interface on NATS JetStream via
// watermill.
type eventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	natsConn   *nc.Conn
	logger     *slog.Logger
}

// NewEventBus creates an EventBus connected to NATS JetStream.
func NewEventBus(ctx context.Context, natsURL string, logger *slog.Logger) (shared.EventBus, error) {
	natsConn, err := nc.Connect(natsURL, nc.RetryOnFailedConnect(true))
	if err != nil {
		logger.Error("Failed to connect to NATS", slog.Any("error", err))
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(natsConn)
	if err != nil {
		natsConn.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}
	if err := initializeStreams(ctx, js, logger); err != nil {
		natsConn.Close()
		return nil, err
	}

	watermillLogger := watermill.NewSlogLogger(logger)
	marshaller := &nats.NATSMarshaler{}

	publisher, err := nats.NewPublisher(
		nats.PublisherConfig{
			URL:       natsURL,
			Marshaler: marshaller,
			NatsOptions: []nc.Option{
				nc.RetryOnFailedConnect(true),
			},
		},
		watermillLogger,
	)
	if err != nil {
		natsConn.Close()
		return nil, fmt.Errorf("failed to create Watermill publisher: %w", err)
	}

	subscriber, err := nats.NewSubscriber(
		nats.SubscriberConfig{
			URL:         natsURL,
			Unmarshaler: marshaller,
			NatsOptions: []nc.Option{
				nc.RetryOnFailedConnect(true),
			},
		},
		watermillLogger,
	)
	if err != nil {
		natsConn.Close()
		publisher.Close()
		return nil, fmt.Errorf("failed to create Watermill subscriber: %w", err)
	}

	return &eventBus{
		publisher:  publisher,
		subscriber: subscriber,
		natsConn:   natsConn,
		logger:     logger,
	}, nil
}

// Publish JSON-encodes the payload and publishes it on the topic, tagging the
// message with the duel id so subscribers can route without unmarshaling.
func (b *eventBus) Publish(ctx context.Context, topic string, duelID uuid.UUID, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set(shared.MetadataDuelID, duelID.String())
	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns the message channel for a topic.
func (b *eventBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	messages, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return messages, nil
}

// Close releases the publisher, subscriber and NATS connection.
func (b *eventBus) Close() error {
	var firstErr error
	if err := b.publisher.Close(); err != nil {
		firstErr = err
	}
	if err := b.subscriber.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	b.natsConn.Close()
	return firstErr
}

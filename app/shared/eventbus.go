package shared

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// MetadataDuelID is the message metadata key carrying the duel a message
// belongs to, so subscribers can route without unmarshaling the payload.
const MetadataDuelID = "duel_id"

// EventBus defines the interface for publishing and consuming duel events.
type EventBus interface {
	// Publish publishes an event payload for a duel on the given topic.
	// Payloads are JSON-encoded; the duel ID travels in message metadata.
	Publish(ctx context.Context, topic string, duelID uuid.UUID, payload interface{}) error

	// Subscribe returns a channel of messages for the given topic.
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)

	// Close releases broker connections.
	Close() error
}

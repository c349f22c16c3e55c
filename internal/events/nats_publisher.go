package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is the prefix for NATS subjects; the event type is appended,
// e.g. "marketplace.events.bid_accepted".
const SubjectPrefix = "marketplace.events"

// NatsPublisher implements the Publisher interface over a NATS connection,
// one subject per event type so consumers can subscribe selectively.
type NatsPublisher struct {
	conn *nats.Conn
}

// NewNatsPublisher creates a new NatsPublisher.
func NewNatsPublisher(conn *nats.Conn) Publisher {
	return &NatsPublisher{conn: conn}
}

// Publish sends the event on its type-specific subject.
func (p *NatsPublisher) Publish(ctx context.Context, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, event.Type)
	if err := p.conn.Publish(subject, jsonData); err != nil {
		return fmt.Errorf("failed to publish event %s to subject '%s': %w", event.ID, subject, err)
	}
	return nil
}

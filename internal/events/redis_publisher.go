package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "marketplace:events"

// RedisPublisher implements the Publisher interface by appending events to a
// Redis stream consumed by the notification pipeline.
type RedisPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisPublisher creates a new RedisPublisher. An empty stream name falls
// back to DefaultStream.
func NewRedisPublisher(client *redis.Client, stream string) Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{
		client: client,
		stream: stream,
	}
}

// Publish appends the event to the stream as a single JSON payload field.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":    string(event.Type),
			"payload": jsonData,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish event %s to stream '%s': %w", event.ID, p.stream, err)
	}
	return nil
}

package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dexlens/dexlens/internal/domain"
)

const (
	// busPrefix namespaces every bus channel and stream key so a shared
	// Redis instance can host multiple deployments.
	busPrefix = "dexlens:bus:"

	// streamMaxLen is the approximate cap on durable stream length,
	// enforced with XADD MAXLEN ~. Entries beyond it are trimmed oldest
	// first; the trade collector drains well before this depth.
	streamMaxLen int64 = 10_000

	// subscribeBuffer is the per-subscription delivery channel depth.
	subscribeBuffer = 128
)

// SignalBus implements domain.SignalBus with Redis Pub/Sub for ephemeral
// fan-out and Redis Streams for durable, ordered delivery.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a payload to a Pub/Sub channel. Delivery is fire-and-forget;
// subscribers that are not connected miss the message.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, busPrefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription and returns a channel of raw
// payloads. The returned channel closes when ctx is cancelled or the
// subscription drops.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := sb.rdb.Subscribe(ctx, busPrefix+channel)

	// Receive the subscription confirmation before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscribeBuffer)
	go sb.forward(ctx, pubsub, out)
	return out, nil
}

// forward copies Pub/Sub messages into out until ctx ends or the
// subscription channel closes.
func (sb *SignalBus) forward(ctx context.Context, pubsub *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer pubsub.Close()

	in := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}
}

// StreamAppend appends a payload to a durable stream, trimming the stream to
// roughly streamMaxLen entries.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: busPrefix + stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries with IDs strictly greater than
// lastID, oldest first. Pass "0" to read from the beginning. An empty stream
// yields an empty result, not an error.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	// Exclusive-start XRANGE so the caller can pass the last seen ID back
	// verbatim as the cursor.
	entries, err := sb.rdb.XRangeN(ctx, busPrefix+stream, "("+lastID, "+", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	messages := make([]domain.StreamMessage, 0, len(entries))
	for _, entry := range entries {
		payload, ok := entry.Values["payload"].(string)
		if !ok {
			continue
		}
		messages = append(messages, domain.StreamMessage{
			ID:      entry.ID,
			Payload: []byte(payload),
		})
	}
	return messages, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)

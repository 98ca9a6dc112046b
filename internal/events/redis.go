package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisBus relays events through Redis pub/sub so every API replica sees them.
type RedisBus struct {
	client *redis.Client
	prefix string
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus builds a bus publishing on channels named prefix+room.
func NewRedisBus(client *redis.Client, prefix string) *RedisBus {
	if prefix == "" {
		prefix = "liveclass:events:"
	}
	return &RedisBus{client: client, prefix: prefix}
}

// Publish sends the JSON encoded event.
func (b *RedisBus) Publish(ctx context.Context, room, eventType string, payload any) error {
	evt, err := newEvent(room, eventType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.prefix+room, data).Err()
}

// Subscribe waits for the subscription to be confirmed before returning, so no event
// published afterwards is missed.
func (b *RedisBus) Subscribe(ctx context.Context, room string) (<-chan Event, error) {
	pubsub := b.client.Subscribe(ctx, b.prefix+room)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

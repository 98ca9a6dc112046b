package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event is a broadcast notification addressed to a room.
type Event struct {
	Room    string          `json:"room"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Bus is the abstraction over different backends. Delivery is best effort.
type Bus interface {
	Publish(ctx context.Context, room, eventType string, payload any) error
	// Subscribe streams events of room until ctx is done, then closes the channel.
	Subscribe(ctx context.Context, room string) (<-chan Event, error)
}

func newEvent(room, eventType string, payload any) (Event, error) {
	evt := Event{Room: room, Type: eventType, At: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		evt.Payload = raw
	}
	return evt, nil
}

// InMemory fans events out to subscribers of the same process.
type InMemory struct {
	buffer int

	mu    sync.RWMutex
	rooms map[string]map[chan Event]struct{}
}

var _ Bus = (*InMemory)(nil)

// NewInMemory creates a bus whose subscribers buffer up to size events; slower subscribers
// miss events rather than block publishers.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 16
	}
	return &InMemory{buffer: size, rooms: make(map[string]map[chan Event]struct{})}
}

// Publish delivers to every current subscriber of room.
func (b *InMemory) Publish(ctx context.Context, room, eventType string, payload any) error {
	evt, err := newEvent(room, eventType, payload)
	if err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.rooms[room] {
		select {
		case ch <- evt:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for room.
func (b *InMemory) Subscribe(ctx context.Context, room string) (<-chan Event, error) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	if b.rooms[room] == nil {
		b.rooms[room] = make(map[chan Event]struct{})
	}
	b.rooms[room][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.rooms[room], ch)
		if len(b.rooms[room]) == 0 {
			delete(b.rooms, room)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

package pubsub

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// RoomChannelPrefix prefixes the channel a chat room's frames travel on.
const RoomChannelPrefix = "chat:room:"

// RoomChannel returns the channel name for a chat room.
func RoomChannel(roomID string) string {
	return RoomChannelPrefix + roomID
}

// RoomPattern matches every room channel.
func RoomPattern() string {
	return RoomChannelPrefix + "*"
}

// RoomFromChannel extracts the room id from a room channel name.
func RoomFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, RoomChannelPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(channel, RoomChannelPrefix)
	return id, id != ""
}

// Event is a frame relayed between gateway instances.
type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Origin    string          `json:"origin,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates an event carrying an already encoded payload.
func NewEvent(eventType, roomID, origin string, payload []byte) *Event {
	return &Event{
		Type:      eventType,
		RoomID:    roomID,
		Origin:    origin,
		Payload:   json.RawMessage(payload),
		Timestamp: time.Now().UTC(),
	}
}

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscriber subscribes to events.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Event, error)
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error)
	Unsubscribe(ctx context.Context, channel string) error
}

// PubSub combines Publisher and Subscriber interfaces.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}

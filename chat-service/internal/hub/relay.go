package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sumit-1011/CampusXchange/pkg/log"
	"github.com/Sumit-1011/CampusXchange/pkg/pubsub"
)

const eventTypeRoomFrame = "room_frame"

// Broadcaster delivers a frame to every member of a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID string, message interface{}) error
}

// RedisRelay fans room frames out through Redis so members connected to
// other gateway instances receive them too. Every instance, including the
// publisher, delivers to its local members from the subscription.
type RedisRelay struct {
	hub    *Hub
	ps     pubsub.PubSub
	origin string
}

func NewRedisRelay(h *Hub, ps pubsub.PubSub, origin string) *RedisRelay {
	return &RedisRelay{hub: h, ps: ps, origin: origin}
}

func (r *RedisRelay) Broadcast(ctx context.Context, roomID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	event := pubsub.NewEvent(eventTypeRoomFrame, roomID, r.origin, data)
	if err := r.ps.Publish(ctx, pubsub.RoomChannel(roomID), event); err != nil {
		return fmt.Errorf("failed to publish room frame: %w", err)
	}
	return nil
}

// Run subscribes to all room channels and feeds the local hub until ctx
// is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	events, err := r.ps.SubscribePattern(ctx, pubsub.RoomPattern())
	if err != nil {
		return err
	}

	go func() {
		for ev := range events {
			if ev.Type != eventTypeRoomFrame || ev.RoomID == "" {
				continue
			}
			if r.hub.RoomSize(ev.RoomID) == 0 {
				continue
			}
			if err := r.hub.BroadcastRaw(ctx, ev.RoomID, ev.Payload); err != nil {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldChatID, ev.RoomID).Msg("failed to deliver relayed frame")
			}
		}
		l := log.L()
		l.Info().Msg("room relay subscription closed")
	}()
	return nil
}

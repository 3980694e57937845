package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

var ErrEmptyText = errors.New("message text is empty")

// Notice kinds surfaced by a ChatView.
const (
	NoticeRateLimited = "rateLimited"
	NoticeError       = "error"
)

// Notice is a rejection the user should see.
type Notice struct {
	Kind             string
	ChatID           string
	ClientMessageKey string
	Code             string
	Text             string
}

const noticeBuffer = 32

// ChatView is one open conversation: it owns the timeline of a chat, keeps
// it in sync with the room and sends on behalf of the local user.
type ChatView struct {
	api      *Client
	rt       *RealtimeConn
	contact  Contact
	timeline *Timeline
	notices  chan Notice
	now      func() time.Time

	joined     chan struct{}
	joinedOnce sync.Once
	unsub      func()
}

// OpenChatView opens the conversation with contact. A contact without a
// chat id gets one through StartChat first. The view subscribes to the room
// before history is requested, so broadcasts racing the fetch are merged
// instead of lost.
func OpenChatView(ctx context.Context, api *Client, rt *RealtimeConn, contact Contact, historyLimit int) (*ChatView, error) {
	if contact.ChatID == "" {
		chat, err := api.StartChat(ctx, rt.UserID(), contact.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to start chat: %w", err)
		}
		contact.ChatID = chat.ID
	}

	v := &ChatView{
		api:      api,
		rt:       rt,
		contact:  contact,
		timeline: NewTimeline(),
		notices:  make(chan Notice, noticeBuffer),
		now:      time.Now,
		joined:   make(chan struct{}),
	}
	v.unsub = rt.Subscribe(contact.ChatID, v.handleEvent)

	if err := rt.JoinChat(contact.ChatID); err != nil {
		v.unsub()
		return nil, fmt.Errorf("failed to join chat: %w", err)
	}

	history, _, err := api.Messages(ctx, contact.ChatID, historyLimit)
	if err != nil {
		v.unsub()
		_ = rt.LeaveChat(contact.ChatID)
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	v.timeline.ApplyHistory(history)

	return v, nil
}

func (v *ChatView) ChatID() string {
	return v.contact.ChatID
}

func (v *ChatView) Contact() Contact {
	return v.contact
}

func (v *ChatView) Timeline() *Timeline {
	return v.timeline
}

func (v *ChatView) Entries() []Entry {
	return v.timeline.Entries()
}

// Notices delivers rate limit and error rejections of this view's sends.
func (v *ChatView) Notices() <-chan Notice {
	return v.notices
}

// Joined is closed once the gateway acknowledged the room join.
func (v *ChatView) Joined() <-chan struct{} {
	return v.joined
}

// Send records the message as pending and hands it to the gateway. It
// returns the client message key the broadcast will carry.
func (v *ChatView) Send(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	key := uuid.NewString()
	v.timeline.AddPending(Message{
		ChatID:           v.contact.ChatID,
		Sender:           v.rt.UserID(),
		Text:             text,
		ClientMessageKey: key,
		CreatedAt:        v.now().UTC(),
	})

	if err := v.rt.SendMessage(v.contact.ChatID, text, key); err != nil {
		v.timeline.Reject(key, err.Error())
		return key, err
	}
	return key, nil
}

// Close stops following the room.
func (v *ChatView) Close() error {
	v.unsub()
	return v.rt.LeaveChat(v.contact.ChatID)
}

func (v *ChatView) handleEvent(ev Event) {
	switch ev.Type {
	case FrameReceiveMessage:
		if ev.Message != nil {
			v.timeline.ApplyBroadcast(*ev.Message)
		}

	case FrameChatJoined:
		v.joinedOnce.Do(func() { close(v.joined) })

	case FrameRateLimitExceeded:
		if ev.ClientMessageKey != "" {
			v.timeline.Reject(ev.ClientMessageKey, ev.Text)
		}
		v.notify(Notice{
			Kind:             NoticeRateLimited,
			ChatID:           v.contact.ChatID,
			ClientMessageKey: ev.ClientMessageKey,
			Text:             ev.Text,
		})

	case FrameError:
		// Error frames carry no chat id; only keys of this view's own sends
		// concern it.
		if ev.ClientMessageKey == "" || !v.timeline.Reject(ev.ClientMessageKey, ev.Text) {
			return
		}
		v.notify(Notice{
			Kind:             NoticeError,
			ChatID:           v.contact.ChatID,
			ClientMessageKey: ev.ClientMessageKey,
			Code:             ev.Code,
			Text:             ev.Text,
		})
	}
}

func (v *ChatView) notify(n Notice) {
	select {
	case v.notices <- n:
	default:
		l := log.L()
		l.Warn().Str(log.FieldChatID, n.ChatID).Str("kind", n.Kind).Msg("chatclient: notice dropped, buffer full")
	}
}

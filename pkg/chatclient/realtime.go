package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

// Frame types exchanged with the gateway.
const (
	FrameJoinChat          = "joinChat"
	FrameSendMessage       = "sendMessage"
	FrameLeaveChat         = "leaveChat"
	FramePing              = "ping"
	FrameReceiveMessage    = "receiveMessage"
	FrameRateLimitExceeded = "rateLimitExceeded"
	FrameChatJoined        = "chatJoined"
	FrameChatLeft          = "chatLeft"
	FrameError             = "error"
	FramePong              = "pong"
)

var ErrConnClosed = errors.New("realtime connection closed")

// Event is a decoded server frame. Message is set for receiveMessage.
// Text carries the human readable part of rateLimitExceeded and error.
type Event struct {
	Type             string
	ChatID           string
	ClientMessageKey string
	Code             string
	Text             string
	Message          *Message
}

type wireFrame struct {
	Type             string    `json:"type"`
	ID               string    `json:"_id"`
	ChatID           string    `json:"chatId"`
	Sender           string    `json:"sender"`
	Text             string    `json:"text"`
	CreatedAt        time.Time `json:"createdAt"`
	ClientMessageKey string    `json:"clientMessageKey"`
	Code             string    `json:"code"`
	Message          string    `json:"message"`
}

func (f *wireFrame) event() Event {
	ev := Event{
		Type:             f.Type,
		ChatID:           f.ChatID,
		ClientMessageKey: f.ClientMessageKey,
		Code:             f.Code,
		Text:             f.Message,
	}
	if f.Type == FrameReceiveMessage {
		ev.Message = &Message{
			ID:               f.ID,
			ChatID:           f.ChatID,
			Sender:           f.Sender,
			Text:             f.Text,
			ClientMessageKey: f.ClientMessageKey,
			CreatedAt:        f.CreatedAt,
		}
	}
	return ev
}

type subscription struct {
	id     uint64
	chatID string
	fn     func(Event)
}

// RealtimeConn is one socket to the gateway. Events are dispatched from a
// single read goroutine to the subscribers of their chat; frames without a
// chat id go to every subscriber.
type RealtimeConn struct {
	conn   *websocket.Conn
	userID string

	writeMu sync.Mutex

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial opens the realtime connection for userID.
func (c *Client) Dial(ctx context.Context, userID string) (*RealtimeConn, error) {
	target, err := c.socketURL(userID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("failed to dial chat gateway: %w", ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to dial chat gateway: %w", err)
	}

	rc := &RealtimeConn{
		conn:   conn,
		userID: userID,
		subs:   make(map[uint64]*subscription),
		done:   make(chan struct{}),
	}
	go rc.readLoop()
	return rc, nil
}

func (r *RealtimeConn) UserID() string {
	return r.userID
}

// Subscribe registers fn for events of chatID and returns a func removing it.
// fn runs on the read goroutine and must not block.
func (r *RealtimeConn) Subscribe(chatID string, fn func(Event)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[id] = &subscription{id: id, chatID: chatID, fn: fn}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *RealtimeConn) JoinChat(chatID string) error {
	return r.write(map[string]string{"type": FrameJoinChat, "chatId": chatID, "userId": r.userID})
}

func (r *RealtimeConn) LeaveChat(chatID string) error {
	return r.write(map[string]string{"type": FrameLeaveChat, "chatId": chatID})
}

func (r *RealtimeConn) SendMessage(chatID, text, clientMessageKey string) error {
	return r.write(map[string]string{
		"type":             FrameSendMessage,
		"chatId":           chatID,
		"senderId":         r.userID,
		"text":             text,
		"clientMessageKey": clientMessageKey,
	})
}

func (r *RealtimeConn) Ping() error {
	return r.write(map[string]string{"type": FramePing})
}

// Done is closed when the read loop stops.
func (r *RealtimeConn) Done() <-chan struct{} {
	return r.done
}

// Err reports why the read loop stopped, once Done is closed.
func (r *RealtimeConn) Err() error {
	<-r.done
	return r.err
}

func (r *RealtimeConn) Close() error {
	r.writeMu.Lock()
	_ = r.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	r.writeMu.Unlock()
	return r.conn.Close()
}

func (r *RealtimeConn) write(v interface{}) error {
	select {
	case <-r.done:
		return ErrConnClosed
	default:
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return r.conn.WriteJSON(v)
}

func (r *RealtimeConn) readLoop() {
	defer r.closeOnce.Do(func() { close(r.done) })

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.err = err
			}
			return
		}

		var f wireFrame
		if err := json.Unmarshal(data, &f); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("chatclient: undecodable frame")
			continue
		}
		r.dispatch(f.event())
	}
}

func (r *RealtimeConn) dispatch(ev Event) {
	r.mu.RLock()
	targets := make([]func(Event), 0, len(r.subs))
	for _, s := range r.subs {
		if ev.ChatID == "" || s.chatID == ev.ChatID {
			targets = append(targets, s.fn)
		}
	}
	r.mu.RUnlock()

	for _, fn := range targets {
		fn(ev)
	}
}

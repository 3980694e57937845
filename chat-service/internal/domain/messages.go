package domain

import "time"

// WebSocket message types from client.
const (
	MsgTypeJoinChat    = "joinChat"
	MsgTypeSendMessage = "sendMessage"
	MsgTypeLeaveChat   = "leaveChat"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeReceiveMessage    = "receiveMessage"
	MsgTypeRateLimitExceeded = "rateLimitExceeded"
	MsgTypeChatJoined        = "chatJoined"
	MsgTypeChatLeft          = "chatLeft"
	MsgTypeError             = "error"
	MsgTypePong              = "pong"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeNotInRoom     = "NOT_IN_ROOM"
	ErrCodePersistFailed = "PERSIST_FAILED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// RateLimitText is shown to a sender whose window is exhausted.
const RateLimitText = "You are sending messages too quickly. Please wait a moment."

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type JoinChatMessage struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type SendMessageMessage struct {
	Type             string `json:"type"`
	ChatID           string `json:"chatId"`
	SenderID         string `json:"senderId"`
	Text             string `json:"text"`
	ClientMessageKey string `json:"clientMessageKey"`
}

type LeaveChatMessage struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
}

// Server -> Client messages

type ReceiveMessageOut struct {
	Type             string    `json:"type"`
	ID               string    `json:"_id"`
	ChatID           string    `json:"chatId"`
	Sender           string    `json:"sender"`
	Text             string    `json:"text"`
	CreatedAt        time.Time `json:"createdAt"`
	ClientMessageKey string    `json:"clientMessageKey"`
}

func NewReceiveMessage(m *Message) *ReceiveMessageOut {
	return &ReceiveMessageOut{
		Type:             MsgTypeReceiveMessage,
		ID:               m.ID,
		ChatID:           m.ChatID,
		Sender:           m.Sender,
		Text:             m.Text,
		CreatedAt:        m.CreatedAt,
		ClientMessageKey: m.ClientMessageKey,
	}
}

type RateLimitExceededMessage struct {
	Type             string `json:"type"`
	Message          string `json:"message"`
	ChatID           string `json:"chatId"`
	ClientMessageKey string `json:"clientMessageKey,omitempty"`
}

func NewRateLimitExceeded(chatID, clientKey string) *RateLimitExceededMessage {
	return &RateLimitExceededMessage{
		Type:             MsgTypeRateLimitExceeded,
		Message:          RateLimitText,
		ChatID:           chatID,
		ClientMessageKey: clientKey,
	}
}

type ChatJoinedMessage struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
}

type ChatLeftMessage struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type             string `json:"type"`
	Code             string `json:"code"`
	Message          string `json:"message"`
	ClientMessageKey string `json:"clientMessageKey,omitempty"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

package service

import (
	"context"
	"time"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/hub"
)

type ChatService interface {
	// StartChat opens (or returns) the chat between user1 and user2 on
	// behalf of requesterID, who must be one of them.
	StartChat(ctx context.Context, requesterID, user1ID, user2ID string) (*domain.Chat, error)
	FindOrCreateChat(ctx context.Context, userA, userB string) (*domain.Chat, error)
	GetChat(ctx context.Context, chatID string) (*domain.Chat, error)
	// AuthorizeParticipant returns the chat if userID is a member.
	AuthorizeParticipant(ctx context.Context, chatID, userID string) (*domain.Chat, error)
	ListContacts(ctx context.Context, userID string) ([]domain.Contact, error)
	TouchLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error
}

type MessageService interface {
	// ValidateText trims text and checks it against the length limits.
	ValidateText(text string) (string, error)
	// Append persists a message idempotently by client message key. The
	// bool reports whether a new message was stored.
	Append(ctx context.Context, chatID, senderID, text, clientMessageKey string) (*domain.Message, bool, error)
	// RecentMessages returns the newest messages of a chat, oldest first.
	RecentMessages(ctx context.Context, chatID string, limit int) ([]*domain.Message, error)
	CacheAppend(ctx context.Context, chatID string, msg *domain.Message)
}

// Connection is a socket as seen by the gateway.
type Connection interface {
	hub.Conn
	Session() *domain.Session
}

// RoomRegistry tracks room membership of local connections.
type RoomRegistry interface {
	Join(c hub.Conn, roomID string) bool
	Leave(c hub.Conn, roomID string) bool
}

type GatewayService interface {
	HandleConnect(ctx context.Context, conn Connection)
	HandleJoinChat(ctx context.Context, conn Connection, chatID, userID string) error
	HandleSendMessage(ctx context.Context, conn Connection, chatID, senderID, text, clientMessageKey string) error
	HandleLeaveChat(ctx context.Context, conn Connection, chatID string) error
	HandlePing(ctx context.Context, conn Connection) error
	HandleDisconnect(ctx context.Context, conn Connection)
}

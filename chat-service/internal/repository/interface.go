package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
)

var (
	ErrChatNotFound     = errors.New("chat not found")
	ErrDuplicateChat    = errors.New("chat already exists for participants")
	ErrMessageNotFound  = errors.New("message not found")
	ErrDuplicateMessage = errors.New("message already exists for client key")
	ErrUserNotFound     = errors.New("user not found")
)

// ChatRepository defines the interface for chat persistence.
type ChatRepository interface {
	// Create inserts a chat. Returns ErrDuplicateChat when a chat for the
	// same participants key already exists.
	Create(ctx context.Context, chat *domain.Chat) error
	GetByID(ctx context.Context, id string) (*domain.Chat, error)
	GetByParticipantsKey(ctx context.Context, key string) (*domain.Chat, error)
	// ListByParticipant returns the user's chats, most recently updated first.
	ListByParticipant(ctx context.Context, userID string) ([]*domain.Chat, error)
	UpdateLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error
}

// MessageRepository defines the interface for message persistence.
type MessageRepository interface {
	// Create inserts a message. Returns ErrDuplicateMessage when the client
	// message key is already stored.
	Create(ctx context.Context, msg *domain.Message) error
	GetByClientKey(ctx context.Context, key string) (*domain.Message, error)
	// ListRecent returns up to limit messages of a chat, newest first.
	ListRecent(ctx context.Context, chatID string, limit int) ([]*domain.Message, error)
}

// UserRepository reads accounts owned by the user service.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

package cache

import (
	"context"
	"errors"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RecentMessageCache keeps a bounded, oldest-first list of each chat's
// latest messages.
type RecentMessageCache interface {
	// Recent returns up to limit of the newest cached messages, oldest
	// first. Returns ErrCacheMiss when nothing is cached for the chat.
	Recent(ctx context.Context, chatID string, limit int) ([]*domain.Message, error)
	// Append pushes msg, trims the list and refreshes its TTL atomically.
	Append(ctx context.Context, chatID string, msg *domain.Message) error
	// Warm stores msgs (oldest first) only if the chat has no cached list.
	// Reports whether the list was written.
	Warm(ctx context.Context, chatID string, msgs []*domain.Message) (bool, error)
	Delete(ctx context.Context, chatID string) error
	BuildKey(chatID string) string
}

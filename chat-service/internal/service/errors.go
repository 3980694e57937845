package service

import (
	"errors"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/repository"
)

var (
	ErrInvalidParticipants = errors.New("a chat needs two distinct participants")
	ErrNotParticipant      = errors.New("user is not a participant of this chat")
	ErrEmptyText           = errors.New("message text is empty")
	ErrTextTooLong         = errors.New("message text is too long")
	ErrClientKeyReused     = errors.New("client message key already used for another message")
	ErrNotInRoom           = errors.New("connection has not joined this chat")
	ErrIdentityMismatch    = errors.New("user does not match the connection identity")
	ErrMissingChatID       = errors.New("chatId is required")
	ErrRateLimited         = errors.New("rate limit exceeded")

	ErrChatNotFound = repository.ErrChatNotFound
	ErrUserNotFound = repository.ErrUserNotFound
)

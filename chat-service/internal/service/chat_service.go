package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/repository"
	"github.com/Sumit-1011/CampusXchange/pkg/idgen"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

type chatService struct {
	chats repository.ChatRepository
	users repository.UserRepository
	ids   idgen.Generator
	now   func() time.Time
	group singleflight.Group
}

func NewChatService(chats repository.ChatRepository, users repository.UserRepository, ids idgen.Generator) ChatService {
	return &chatService{
		chats: chats,
		users: users,
		ids:   ids,
		now:   time.Now,
	}
}

func (s *chatService) StartChat(ctx context.Context, requesterID, user1ID, user2ID string) (*domain.Chat, error) {
	if user1ID == "" || user2ID == "" || user1ID == user2ID {
		return nil, ErrInvalidParticipants
	}
	if requesterID != user1ID && requesterID != user2ID {
		return nil, ErrNotParticipant
	}

	counterpart := user1ID
	if requesterID == user1ID {
		counterpart = user2ID
	}
	if _, err := s.users.GetByID(ctx, counterpart); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	return s.FindOrCreateChat(ctx, user1ID, user2ID)
}

// FindOrCreateChat returns the single chat of a user pair. Concurrent
// callers race on the unique participants key; losers re-read the winner.
func (s *chatService) FindOrCreateChat(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	if userA == "" || userB == "" || userA == userB {
		return nil, ErrInvalidParticipants
	}
	key := domain.ParticipantsKey(userA, userB)

	chat, err := s.chats.GetByParticipantsKey(ctx, key)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, repository.ErrChatNotFound) {
		return nil, fmt.Errorf("failed to look up chat: %w", err)
	}

	id, err := s.ids.Generate()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	pair := domain.SortedPair(userA, userB)
	chat = &domain.Chat{
		ID:              id,
		Participants:    pair[:],
		ParticipantsKey: key,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.chats.Create(ctx, chat)
	switch {
	case err == nil:
		l := log.Ctx(ctx)
		l.Info().Str(log.FieldChatID, chat.ID).Strs("participants", chat.Participants).Msg("chat created")
		return chat, nil
	case errors.Is(err, repository.ErrDuplicateChat):
		existing, getErr := s.chats.GetByParticipantsKey(ctx, key)
		if getErr != nil {
			return nil, fmt.Errorf("failed to read concurrently created chat: %w", getErr)
		}
		return existing, nil
	default:
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
}

func (s *chatService) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

func (s *chatService) AuthorizeParticipant(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return chat, nil
}

// ListContacts resolves the counterpart of each of the user's chats, most
// recently active first. Concurrent calls for one user share a lookup.
func (s *chatService) ListContacts(ctx context.Context, userID string) ([]domain.Contact, error) {
	v, err, _ := s.group.Do("contacts:"+userID, func() (interface{}, error) {
		return s.listContacts(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]domain.Contact)
	contacts := make([]domain.Contact, len(shared))
	copy(contacts, shared)
	return contacts, nil
}

func (s *chatService) listContacts(ctx context.Context, userID string) ([]domain.Contact, error) {
	chats, err := s.chats.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	others := make([]string, 0, len(chats))
	for _, c := range chats {
		if other := c.OtherParticipant(userID); other != "" {
			others = append(others, other)
		}
	}

	users, err := s.users.GetByIDs(ctx, others)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve contacts: %w", err)
	}

	l := log.Ctx(ctx)
	contacts := make([]domain.Contact, 0, len(chats))
	for _, c := range chats {
		other := c.OtherParticipant(userID)
		u, ok := users[other]
		if !ok {
			l.Warn().Str(log.FieldChatID, c.ID).Str("participant_id", other).Msg("skipping chat with unknown participant")
			continue
		}
		contacts = append(contacts, domain.Contact{ID: u.ID, Username: u.Username, ChatID: c.ID})
	}
	return contacts, nil
}

func (s *chatService) TouchLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error {
	if err := s.chats.UpdateLastMessage(ctx, chatID, messageID, at); err != nil {
		return fmt.Errorf("failed to update last message: %w", err)
	}
	return nil
}

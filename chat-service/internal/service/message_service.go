package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/cache"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/repository"
	"github.com/Sumit-1011/CampusXchange/pkg/idgen"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

// MessageLimits bounds message text and history page sizes.
type MessageLimits struct {
	MaxLength    int
	DefaultLimit int
	MaxLimit     int
}

func DefaultMessageLimits() MessageLimits {
	return MessageLimits{MaxLength: 2000, DefaultLimit: 10, MaxLimit: 50}
}

type messageService struct {
	messages repository.MessageRepository
	cache    cache.RecentMessageCache
	ids      idgen.Generator
	limits   MessageLimits
	now      func() time.Time
	group    singleflight.Group
}

func NewMessageService(
	messages repository.MessageRepository,
	recent cache.RecentMessageCache,
	ids idgen.Generator,
	limits MessageLimits,
) MessageService {
	return &messageService{
		messages: messages,
		cache:    recent,
		ids:      ids,
		limits:   limits,
		now:      time.Now,
	}
}

func (s *messageService) ValidateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if s.limits.MaxLength > 0 && utf8.RuneCountInString(text) > s.limits.MaxLength {
		return "", ErrTextTooLong
	}
	return text, nil
}

func (s *messageService) Append(ctx context.Context, chatID, senderID, text, clientMessageKey string) (*domain.Message, bool, error) {
	text, err := s.ValidateText(text)
	if err != nil {
		return nil, false, err
	}
	if clientMessageKey == "" {
		clientMessageKey = idgen.NewUUID()
	}

	id, err := s.ids.Generate()
	if err != nil {
		return nil, false, err
	}
	msg := &domain.Message{
		ID:               id,
		ChatID:           chatID,
		Sender:           senderID,
		Text:             text,
		ClientMessageKey: clientMessageKey,
		CreatedAt:        s.now().UTC().Truncate(time.Millisecond),
	}

	err = s.messages.Create(ctx, msg)
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, repository.ErrDuplicateMessage) {
		return nil, false, fmt.Errorf("failed to persist message: %w", err)
	}

	existing, err := s.messages.GetByClientKey(ctx, clientMessageKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read duplicate message: %w", err)
	}
	if existing.ChatID != chatID || existing.Sender != senderID {
		return nil, false, ErrClientKeyReused
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldMessageID, existing.ID).Msg("duplicate send resolved to stored message")
	return existing, false, nil
}

func (s *messageService) RecentMessages(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	limit = s.normalizeLimit(limit)
	l := log.Ctx(ctx)

	cached, err := s.cache.Recent(ctx, chatID, limit)
	switch {
	case err == nil && len(cached) >= limit:
		return cached, nil
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("recent message cache read failed")
	}

	// The shared fill outlives a cancelled caller; each caller stops waiting
	// on its own ctx.
	fillCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(chatID+":"+strconv.Itoa(limit), func() (interface{}, error) {
		return s.loadRecent(fillCtx, chatID, limit)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	shared := res.Val.([]*domain.Message)
	msgs := make([]*domain.Message, len(shared))
	copy(msgs, shared)
	return msgs, nil
}

func (s *messageService) loadRecent(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	newest, err := s.messages.ListRecent(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	msgs := make([]*domain.Message, len(newest))
	for i, m := range newest {
		msgs[len(newest)-1-i] = m
	}

	if _, err := s.cache.Warm(ctx, chatID, msgs); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("failed to warm recent message cache")
	}
	return msgs, nil
}

func (s *messageService) CacheAppend(ctx context.Context, chatID string, msg *domain.Message) {
	if err := s.cache.Append(ctx, chatID, msg); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldChatID, chatID).Str(log.FieldMessageID, msg.ID).Msg("failed to append to recent message cache")
	}
}

func (s *messageService) normalizeLimit(limit int) int {
	if limit <= 0 {
		return s.limits.DefaultLimit
	}
	if limit > s.limits.MaxLimit {
		return s.limits.MaxLimit
	}
	return limit
}

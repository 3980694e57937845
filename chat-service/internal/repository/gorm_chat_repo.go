package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/pkg/database"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

// GormChatRepository implements ChatRepository using GORM.
type GormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository creates a new GORM-based chat repository.
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db}
}

// Create creates a new chat.
func (r *GormChatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	model := domain.ChatToModel(chat)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicateChat
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldChatID, chat.ID).Msg("failed to create chat in db")
		return err
	}

	chat.CreatedAt = model.CreatedAt
	chat.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves a chat by ID.
func (r *GormChatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	var model domain.ChatModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldChatID, id).Msg("failed to get chat by id")
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetByParticipantsKey retrieves the chat of a user pair.
func (r *GormChatRepository) GetByParticipantsKey(ctx context.Context, key string) (*domain.Chat, error) {
	var model domain.ChatModel
	if err := r.db.WithContext(ctx).First(&model, "participants_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByParticipant lists a user's chats, most recently updated first.
func (r *GormChatRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.Chat, error) {
	var models []domain.ChatModel
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("updated_at DESC").
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list chats")
		return nil, err
	}

	chats := make([]*domain.Chat, len(models))
	for i := range models {
		chats[i] = models[i].ToDomain()
	}
	return chats, nil
}

// UpdateLastMessage sets the chat's last message and bumps its update time.
func (r *GormChatRepository) UpdateLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.ChatModel{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"last_message": messageID,
			"updated_at":   at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

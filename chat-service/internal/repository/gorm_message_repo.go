package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/pkg/database"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create inserts a message.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(domain.MessageToModel(msg)).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicateMessage
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).
			Str(log.FieldChatID, msg.ChatID).
			Str(log.FieldClientKey, msg.ClientMessageKey).
			Msg("failed to insert message")
		return err
	}
	return nil
}

// GetByClientKey retrieves a message by its client message key.
func (r *GormMessageRepository) GetByClientKey(ctx context.Context, key string) (*domain.Message, error) {
	var model domain.MessageModel
	if err := r.db.WithContext(ctx).First(&model, "client_message_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListRecent returns the newest messages of a chat, newest first.
func (r *GormMessageRepository) ListRecent(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("failed to list messages")
		return nil, err
	}

	msgs := make([]*domain.Message, len(models))
	for i := range models {
		msgs[i] = models[i].ToDomain()
	}
	return msgs, nil
}

package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
)

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based user repository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "email = ?", email)
}

// GetByIDs returns the users found among ids, keyed by id.
func (r *GormUserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	users := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var models []domain.UserModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for i := range models {
		users[models[i].ID] = models[i].ToDomain()
	}
	return users, nil
}

func (r *GormUserRepository) first(ctx context.Context, query string, arg string) (*domain.User, error) {
	var model domain.UserModel
	if err := r.db.WithContext(ctx).First(&model, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"secgate/internal/domain"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{s.DB} }

func (us *UserStore) Create(ctx context.Context, u *domain.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return us.db.WithContext(ctx).Create(u).Error
}

func (us *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	if err := us.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (us *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	if err := us.db.WithContext(ctx).First(&u, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

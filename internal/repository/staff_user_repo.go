package repository

import (
	"context"
	"errors"

	"dispute-reconciliation-backend/internal/auth"
	"dispute-reconciliation-backend/internal/models"

	"gorm.io/gorm"
)

func (s *Store) CreateStaffUser(ctx context.Context, user *models.StaffUser) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *Store) GetStaffUserByEmail(ctx context.Context, email string) (*models.StaffUser, error) {
	var user models.StaffUser
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

package services

import (
	"context"

	"gorm.io/gorm"

	"custodia/internal/models"
)

// GormUserDirectory resolves display names from the users table.
type GormUserDirectory struct {
	db *gorm.DB
}

func NewGormUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{db: db}
}

func (d *GormUserDirectory) DisplayName(ctx context.Context, userID uint) (string, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Select("full_name").First(&user, userID).Error; err != nil {
		return "", err
	}
	return user.FullName, nil
}

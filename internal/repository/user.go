// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"

	"askallery/internal/cache"
	"askallery/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users and their profiles.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	CreateWithProfile(ctx context.Context, user *models.User) error
	MarkVerified(ctx context.Context, id uint) error
	GetProfile(ctx context.Context, userID uint) (*models.Profile, error)
	UpdateBiography(ctx context.Context, userID uint, biography string) (*models.Profile, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User

	err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		if err := r.db.WithContext(ctx).Where("is_active = ?", true).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)), "User", email)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "username = ?", username, "User", username)
}

func (r *userRepository) findOne(ctx context.Context, query string, arg interface{}, resource string, id interface{}) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError(resource, id)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// CreateWithProfile inserts user and an empty profile for it atomically.
func (r *userRepository) CreateWithProfile(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Profile").Create(user).Error; err != nil {
			return err
		}
		profile := &models.Profile{UserID: user.ID}
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		user.Profile = profile
		return nil
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return models.NewConflictError("a user with that email or username already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) MarkVerified(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_verified", true)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	return nil
}

func (r *userRepository) GetProfile(ctx context.Context, userID uint) (*models.Profile, error) {
	var profile models.Profile

	err := cache.Aside(ctx, cache.ProfileKey(userID), &profile, cache.ProfileTTL, func() error {
		err := r.db.WithContext(ctx).
			Preload("User").
			Joins("JOIN users ON users.id = profiles.user_id AND users.is_active = ?", true).
			Where("profiles.user_id = ?", userID).
			First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("User", userID)
		}
		if err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *userRepository) UpdateBiography(ctx context.Context, userID uint, biography string) (*models.Profile, error) {
	res := r.db.WithContext(ctx).Model(&models.Profile{}).Where("user_id = ?", userID).Update("biography", biography)
	if res.Error != nil {
		return nil, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, models.NewNotFoundError("User", userID)
	}
	cache.InvalidateProfiles(ctx, userID)
	return r.GetProfile(ctx, userID)
}

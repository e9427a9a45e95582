// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"askallery/internal/database"
	"askallery/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens a private in-memory database with the full schema applied.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.ApplySchema(context.Background(), db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// CreateUser inserts an active, verified user with an empty profile.
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Email:      username + "@example.com",
		Username:   username,
		Password:   "x",
		FirstName:  "Test",
		LastName:   "User",
		IsVerified: true,
		IsActive:   true,
	}
	if err := db.Omit("Profile").Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	profile := &models.Profile{UserID: user.ID}
	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("create profile %s: %v", username, err)
	}
	user.Profile = profile
	return user
}

// CreatePost inserts an active post authored by userID.
func CreatePost(t testing.TB, db *gorm.DB, userID uint) *models.Post {
	t.Helper()
	post := &models.Post{UserID: &userID, Caption: "caption", Image: "/media/posts/test.jpg", IsActive: true}
	if err := db.Omit("User").Create(post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	return post
}

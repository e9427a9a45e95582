package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"askallery/internal/models"
	"askallery/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUserRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	tests := []struct {
		name         string
		userID       uint
		mockBehavior func()
		expectedUser *models.User
		expectedCode string
	}{
		{
			name:   "Success",
			userID: 1,
			mockBehavior: func() {
				rows := sqlmock.NewRows([]string{"id", "username", "email"}).
					AddRow(1, "testuser", "test@example.com")
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE is_active = $1 AND "users"."id" = $2 ORDER BY "users"."id" LIMIT $3`)).
					WithArgs(true, 1, 1).
					WillReturnRows(rows)
			},
			expectedUser: &models.User{ID: 1, Username: "testuser", Email: "test@example.com"},
		},
		{
			name:   "Not Found",
			userID: 99,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE is_active = $1 AND "users"."id" = $2`)).
					WithArgs(true, 99, 1).
					WillReturnError(gorm.ErrRecordNotFound)
			},
			expectedCode: models.CodeNotFound,
		},
		{
			name:   "Database Error",
			userID: 1,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE is_active = $1`)).
					WithArgs(true, 1, 1).
					WillReturnError(errors.New("connection timeout"))
			},
			expectedCode: models.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()
			user, err := repo.GetByID(ctx, tt.userID)

			if tt.expectedCode != "" {
				assert.Error(t, err)
				assert.Nil(t, user)
				assert.Equal(t, tt.expectedCode, models.ErrorCode(err))
			} else if assert.NotNil(t, user) {
				assert.Equal(t, tt.expectedUser.Username, user.Username)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_GetByEmailNormalizes(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id", "email"}).AddRow(3, "mixed@example.com")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE email = $1`)).
		WithArgs("mixed@example.com", 1).
		WillReturnRows(rows)

	user, err := repo.GetByEmail(context.Background(), "  Mixed@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, uint(3), user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateWithProfile(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Email: "new@example.com", Username: "newbie", Password: "hash", FirstName: "New", LastName: "User"}
	require.NoError(t, repo.CreateWithProfile(ctx, user))
	require.NotNil(t, user.Profile)
	assert.Equal(t, user.ID, user.Profile.UserID)

	dup := &models.User{Email: "new@example.com", Username: "other", Password: "hash", FirstName: "New", LastName: "User"}
	err := repo.CreateWithProfile(ctx, dup)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))

	var profiles int64
	require.NoError(t, db.Model(&models.Profile{}).Count(&profiles).Error)
	assert.Equal(t, int64(1), profiles)
}

func TestUserRepository_MarkVerified(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Email: "v@example.com", Username: "verify", Password: "hash", FirstName: "Ve", LastName: "Ri"}
	require.NoError(t, repo.CreateWithProfile(ctx, user))
	assert.False(t, user.IsVerified)

	require.NoError(t, repo.MarkVerified(ctx, user.ID))
	stored, err := repo.GetByUsername(ctx, "verify")
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)

	assert.Equal(t, models.CodeNotFound, models.ErrorCode(repo.MarkVerified(ctx, 404)))
}

func TestUserRepository_UpdateBiography(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "writer")

	profile, err := repo.UpdateBiography(ctx, user.ID, "I take pictures")
	require.NoError(t, err)
	assert.Equal(t, "I take pictures", profile.Biography)
	require.NotNil(t, profile.User)
	assert.Equal(t, "writer", profile.User.Username)

	_, err = repo.GetProfile(ctx, 404)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: users.email")))
	assert.False(t, IsUniqueViolation(nil))
}

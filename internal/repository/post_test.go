package repository

import (
	"context"
	"regexp"
	"testing"

	"askallery/internal/models"
	"askallery/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	uid := uint(7)
	post := &models.Post{UserID: &uid, Caption: "Test Post", Image: "/media/posts/abc.jpg"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "posts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.Create(ctx, post)
	assert.NoError(t, err)
	assert.True(t, post.IsActive)
	assert.Equal(t, uint(1), post.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetByIDSkipsInactive(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, "owner")
	post := testutil.CreatePost(t, db, owner.ID)

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, got.User)
	assert.Equal(t, "owner", got.User.Username)

	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).Update("is_active", false).Error)
	_, err = repo.GetByID(ctx, post.ID)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestPostRepository_ListAndUpdateCaption(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "alice")
	b := testutil.CreateUser(t, db, "bobby")
	testutil.CreatePost(t, db, a.ID)
	testutil.CreatePost(t, db, a.ID)
	last := testutil.CreatePost(t, db, b.ID)

	all, err := repo.List(ctx, 30, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := repo.ListByUser(ctx, a.ID, 30, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	page, err := repo.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	updated, err := repo.UpdateCaption(ctx, last.ID, "new words")
	require.NoError(t, err)
	assert.Equal(t, "new words", updated.Caption)

	_, err = repo.UpdateCaption(ctx, 999, "nothing")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

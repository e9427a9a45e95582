package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"askallery/internal/cache"
	"askallery/internal/gate"
	"askallery/internal/models"
	"askallery/internal/repository"
	"askallery/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostService(t *testing.T, posts *postRepoStub, ledger *ledgerRepoStub, g ImageGate) (*PostService, string) {
	t.Helper()
	root := t.TempDir()
	svc := NewPostService(posts, nil, ledger, g, NewFileStore(root, "/media"), PostServiceConfig{
		MaxUploadBytes: 1 << 20,
		Prepare:        gate.PrepareOptions{Quality: 70, MaxDimension: 64},
	})
	return svc, root
}

func TestPostService_CreatePost(t *testing.T) {
	t.Parallel()

	var created *models.Post
	posts := noopPostRepo()
	posts.createFn = func(_ context.Context, p *models.Post) error {
		p.ID = 42
		created = p
		return nil
	}
	g := &gateStub{}
	svc, root := newPostService(t, posts, failingLedger(t), g)

	post, err := svc.CreatePost(context.Background(), CreatePostInput{
		UserID:  5,
		Caption: "  sunset  ",
		Image:   testutil.TinyPNG(t, 200, 100),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, g.calls)
	assert.Equal(t, uint(42), post.ID)
	assert.Equal(t, "sunset", post.Caption)
	require.NotNil(t, created)
	assert.True(t, post.OwnedBy(5))
	assert.True(t, strings.HasPrefix(post.Image, "/media/posts/"))
	assert.True(t, strings.HasSuffix(post.Image, ".jpg"))

	stored, err := os.ReadFile(filepath.Join(root, "posts", filepath.Base(post.Image)))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, stored[:2], "stored file is a JPEG")
}

func TestPostService_CreatePostRejected(t *testing.T) {
	t.Parallel()

	posts := noopPostRepo()
	posts.createFn = func(context.Context, *models.Post) error {
		t.Fatal("rejected uploads must not be persisted")
		return nil
	}
	g := &gateStub{err: errors.Join(gate.ErrImageRejected, errors.New("label contains forbidden keyword"))}
	svc, root := newPostService(t, posts, failingLedger(t), g)

	_, err := svc.CreatePost(context.Background(), CreatePostInput{UserID: 5, Image: testutil.TinyJPEG(t, 10, 10)})
	assertCode(t, err, models.CodeImageRejected)
	assert.ErrorIs(t, err, gate.ErrImageRejected)

	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries)
}

func TestPostService_CreatePostValidation(t *testing.T) {
	t.Parallel()
	g := &gateStub{}
	svc, _ := newPostService(t, noopPostRepo(), failingLedger(t), g)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreatePostInput
	}{
		{"no user", CreatePostInput{Image: []byte{1}}},
		{"no file", CreatePostInput{UserID: 1}},
		{"caption too long", CreatePostInput{UserID: 1, Caption: strings.Repeat("x", 401), Image: []byte{1}}},
		{"too large", CreatePostInput{UserID: 1, Image: make([]byte, (1<<20)+1)}},
		{"not an image", CreatePostInput{UserID: 1, Image: []byte("plain text body")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePost(ctx, tt.in)
			assertValidationError(t, err)
		})
	}
	assert.Zero(t, g.calls)
}

func TestPostService_CreatePostRejectsOversizedImage(t *testing.T) {
	t.Parallel()

	g := &gateStub{}
	svc := NewPostService(noopPostRepo(), nil, failingLedger(t), g, NewFileStore(t.TempDir(), "/media"), PostServiceConfig{
		MaxUploadBytes: 1 << 20,
		Prepare:        gate.PrepareOptions{MaxPixels: 100},
	})

	_, err := svc.CreatePost(context.Background(), CreatePostInput{UserID: 1, Image: testutil.TinyPNG(t, 20, 20)})
	assertValidationError(t, err)
	assert.Contains(t, err.Error(), "Image dimensions too large")
	assert.Zero(t, g.calls, "oversized images never reach the gate")
}

func TestPostService_OwnerOnlyMutations(t *testing.T) {
	t.Parallel()

	deactivated := uint(0)
	ledger := failingLedger(t)
	ledger.deactivatePostFn = func(_ context.Context, id uint) error {
		deactivated = id
		return nil
	}
	svc, _ := newPostService(t, noopPostRepo(), ledger, &gateStub{})
	ctx := context.Background()

	_, err := svc.UpdateCaption(ctx, UpdatePostInput{UserID: 2, PostID: 8, Caption: "mine now"})
	assertCode(t, err, models.CodeForbidden)

	err = svc.DeletePost(ctx, DeletePostInput{UserID: 2, PostID: 8})
	assertCode(t, err, models.CodeForbidden)
	assert.Zero(t, deactivated)

	post, err := svc.UpdateCaption(ctx, UpdatePostInput{UserID: 1, PostID: 8, Caption: "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", post.Caption)

	require.NoError(t, svc.DeletePost(ctx, DeletePostInput{UserID: 1, PostID: 8}))
	assert.Equal(t, uint(8), deactivated)
}

func TestPostService_MissingPost(t *testing.T) {
	t.Parallel()

	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
		return nil, models.NewNotFoundError("Post", id)
	}
	svc, _ := newPostService(t, posts, failingLedger(t), &gateStub{})

	err := svc.DeletePost(context.Background(), DeletePostInput{UserID: 1, PostID: 3})
	assertCode(t, err, models.CodeNotFound)

	_, err = svc.ListComments(context.Background(), 3, 0, 0)
	assertCode(t, err, models.CodeNotFound)
}

func TestPostService_DeletedPostIsNotServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})

	db := testutil.NewSQLiteDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	seeded := testutil.CreatePost(t, db, owner.ID)

	svc := NewPostService(
		repository.NewPostRepository(db),
		repository.NewCommentRepository(db),
		repository.NewLedgerRepository(db),
		&gateStub{},
		NewFileStore(t.TempDir(), "/media"),
		PostServiceConfig{},
	)
	ctx := context.Background()

	post, err := svc.GetPost(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, post.ID)
	assert.True(t, mr.Exists(cache.PostKey(seeded.ID)), "read populates the cache")

	require.NoError(t, svc.DeletePost(ctx, DeletePostInput{UserID: owner.ID, PostID: seeded.ID}))
	assert.False(t, mr.Exists(cache.PostKey(seeded.ID)))

	_, err = svc.GetPost(ctx, seeded.ID)
	assertCode(t, err, models.CodeNotFound)

	_, err = svc.ListComments(ctx, seeded.ID, 0, 0)
	assertCode(t, err, models.CodeNotFound)
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, pageSize(0))
	assert.Equal(t, DefaultPageSize, pageSize(1000))
	assert.Equal(t, 10, pageSize(10))
}

func TestFileStore_SaveJPEGIsContentAddressed(t *testing.T) {
	store := NewFileStore(t.TempDir(), "/media/")

	first, err := store.SaveJPEG("posts", []byte("same"))
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := store.SaveJPEG("posts", []byte("same"))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.URL, second.URL)

	store.Remove(second)
	_, err = os.Stat(first.Path)
	assert.NoError(t, err, "only newly created files are removed")

	store.Remove(first)
	_, err = os.Stat(first.Path)
	assert.True(t, os.IsNotExist(err))
}

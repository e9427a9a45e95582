package database

import (
	"testing"

	modelspkg "askallery/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistentModels_IncludesEdgeTables(t *testing.T) {
	var follows, postLikes, commentLikes bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *modelspkg.Follow:
			follows = true
		case *modelspkg.PostLike:
			postLikes = true
		case *modelspkg.CommentLike:
			commentLikes = true
		}
	}
	require.True(t, follows, "PersistentModels should include Follow")
	require.True(t, postLikes, "PersistentModels should include PostLike")
	require.True(t, commentLikes, "PersistentModels should include CommentLike")
}

func TestPersistentModels_UsersFirst(t *testing.T) {
	models := PersistentModels()
	_, ok := models[0].(*modelspkg.User)
	assert.True(t, ok)
}

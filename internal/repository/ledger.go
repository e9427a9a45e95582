package repository

import (
	"context"
	"errors"
	"time"

	"askallery/internal/models"
	"askallery/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowResult carries both sides of a follow edge after the operation.
type FollowResult struct {
	CurrentUser  *models.Profile `json:"current_user"`
	FollowedUser *models.Profile `json:"followed_user"`
}

// LedgerRepository owns the follow, like and comment edge sets and the
// counters derived from them. Every mutation runs in a single transaction
// and recounts its counters from the edge set before committing.
type LedgerRepository interface {
	Follow(ctx context.Context, followerID, followedID uint) (*FollowResult, error)
	Unfollow(ctx context.Context, followerID, followedID uint) (*FollowResult, error)

	LikePost(ctx context.Context, userID, postID uint) (*models.Post, error)
	UnlikePost(ctx context.Context, userID, postID uint) (*models.Post, error)
	LikeComment(ctx context.Context, userID, commentID uint) (*models.Comment, error)
	UnlikeComment(ctx context.Context, userID, commentID uint) (*models.Comment, error)

	AddComment(ctx context.Context, postID, userID uint, content string) (*models.Comment, error)
	RemoveComment(ctx context.Context, postID, commentID uint) (bool, error)
	DeactivatePost(ctx context.Context, postID uint) error

	Followers(ctx context.Context, userID uint, limit, offset int) ([]*models.User, error)
	Following(ctx context.Context, userID uint, limit, offset int) ([]*models.User, error)
	IsFollowing(ctx context.Context, followerID, followedID uint) (bool, error)
	HasLikedPost(ctx context.Context, userID, postID uint) (bool, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// ledgerTx is one ledger transaction. writes counts statements that changed
// state, so a later failure can be reported as a rolled back partial write.
type ledgerTx struct {
	tx     *gorm.DB
	writes int
}

func (r *ledgerRepository) run(ctx context.Context, op string, fn func(lt *ledgerTx) error) (err error) {
	ctx, span := observability.StartSpan(ctx, "ledger."+op)
	start := time.Now()
	lt := &ledgerTx{}
	defer func() {
		span.SetAttributes(attribute.Int("ledger.writes", lt.writes))
		observability.EndSpan(span, err)
	}()

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lt.tx = tx
		return fn(lt)
	})
	observability.LedgerDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if lt.writes > 0 {
		return models.NewPartialWriteError(op, err)
	}
	return models.NewInternalError(err)
}

func (lt *ledgerTx) wrote() { lt.writes++ }

// forUpdate locks the selected rows of table on PostgreSQL. SQLite
// serializes writers and has no row locks.
func (lt *ledgerTx) forUpdate(table string) *gorm.DB {
	if lt.tx.Dialector.Name() == "postgres" {
		return lt.tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Table: clause.Table{Name: table}})
	}
	return lt.tx
}

// lockProfiles locks the profiles of the given active users in ascending
// user id order and fails if any of them is missing.
func (lt *ledgerTx) lockProfiles(userIDs ...uint) error {
	var profiles []models.Profile
	err := lt.forUpdate("profiles").
		Joins("JOIN users ON users.id = profiles.user_id AND users.is_active = ?", true).
		Where("profiles.user_id IN ?", userIDs).
		Order("profiles.user_id").
		Find(&profiles).Error
	if err != nil {
		return err
	}

	found := make(map[uint]bool, len(profiles))
	for _, p := range profiles {
		found[p.UserID] = true
	}
	for _, id := range userIDs {
		if !found[id] {
			return models.NewNotFoundError("User", id)
		}
	}
	return nil
}

func (lt *ledgerTx) requireUser(userID uint) error {
	var n int64
	if err := lt.tx.Model(&models.User{}).Where("id = ? AND is_active = ?", userID, true).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return models.NewNotFoundError("User", userID)
	}
	return nil
}

func (lt *ledgerTx) lockActivePost(postID uint) (*models.Post, error) {
	var post models.Post
	err := lt.forUpdate("posts").Where("id = ? AND is_active = ?", postID, true).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Post", postID)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (lt *ledgerTx) lockComment(commentID uint) (*models.Comment, error) {
	var comment models.Comment
	err := lt.forUpdate("comments").
		Joins("JOIN posts ON posts.id = comments.post_id AND posts.is_active = ?", true).
		Where("comments.id = ?", commentID).
		First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Comment", commentID)
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// setCount overwrites a cached counter with the cardinality computed by count.
func (lt *ledgerTx) setCount(model interface{}, keyColumn string, key uint, counter string, count *gorm.DB) error {
	err := lt.tx.Model(model).
		Where(keyColumn+" = ?", key).
		UpdateColumn(counter, gorm.Expr("(?)", count)).Error
	if err != nil {
		return err
	}
	lt.wrote()
	return nil
}

func (lt *ledgerTx) recountFollows(followerID, followedID uint) error {
	if err := lt.setCount(&models.Profile{}, "user_id", followerID, "following_quantity",
		lt.tx.Model(&models.Follow{}).Select("COUNT(*)").Where("follower_id = ?", followerID)); err != nil {
		return err
	}
	return lt.setCount(&models.Profile{}, "user_id", followedID, "followers_quantity",
		lt.tx.Model(&models.Follow{}).Select("COUNT(*)").Where("followed_id = ?", followedID))
}

func (lt *ledgerTx) recountPostLikes(postID uint) error {
	return lt.setCount(&models.Post{}, "id", postID, "likes_quantity",
		lt.tx.Model(&models.PostLike{}).Select("COUNT(*)").Where("post_id = ?", postID))
}

func (lt *ledgerTx) recountCommentLikes(commentID uint) error {
	return lt.setCount(&models.Comment{}, "id", commentID, "likes_quantity",
		lt.tx.Model(&models.CommentLike{}).Select("COUNT(*)").Where("comment_id = ?", commentID))
}

func (lt *ledgerTx) recountComments(postID uint) error {
	return lt.setCount(&models.Post{}, "id", postID, "comments_quantity",
		lt.tx.Model(&models.Comment{}).Select("COUNT(*)").Where("post_id = ?", postID))
}

func (lt *ledgerTx) loadFollowResult(followerID, followedID uint) (*FollowResult, error) {
	var current, followed models.Profile
	if err := lt.tx.Preload("User").Where("user_id = ?", followerID).First(&current).Error; err != nil {
		return nil, err
	}
	if err := lt.tx.Preload("User").Where("user_id = ?", followedID).First(&followed).Error; err != nil {
		return nil, err
	}
	return &FollowResult{CurrentUser: &current, FollowedUser: &followed}, nil
}

func (lt *ledgerTx) reloadPost(postID uint) (*models.Post, error) {
	var post models.Post
	if err := lt.tx.Preload("User").First(&post, postID).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (lt *ledgerTx) reloadComment(commentID uint) (*models.Comment, error) {
	var comment models.Comment
	if err := lt.tx.Preload("User").First(&comment, commentID).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func lockOrder(a, b uint) (uint, uint) {
	if a < b {
		return a, b
	}
	return b, a
}

func (r *ledgerRepository) Follow(ctx context.Context, followerID, followedID uint) (*FollowResult, error) {
	var out *FollowResult
	err := r.run(ctx, "follow", func(lt *ledgerTx) error {
		if err := lt.lockProfiles(lockOrder(followerID, followedID)); err != nil {
			return err
		}

		edge := models.Follow{FollowerID: followerID, FollowedID: followedID}
		if err := lt.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error; err != nil {
			return err
		}
		lt.wrote()

		if err := lt.recountFollows(followerID, followedID); err != nil {
			return err
		}

		var err error
		out, err = lt.loadFollowResult(followerID, followedID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ledgerRepository) Unfollow(ctx context.Context, followerID, followedID uint) (*FollowResult, error) {
	var out *FollowResult
	err := r.run(ctx, "unfollow", func(lt *ledgerTx) error {
		if err := lt.lockProfiles(lockOrder(followerID, followedID)); err != nil {
			return err
		}

		res := lt.tx.Where("follower_id = ? AND followed_id = ?", followerID, followedID).Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			lt.wrote()
			if err := lt.recountFollows(followerID, followedID); err != nil {
				return err
			}
		}

		var err error
		out, err = lt.loadFollowResult(followerID, followedID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ledgerRepository) LikePost(ctx context.Context, userID, postID uint) (*models.Post, error) {
	return r.togglePostLike(ctx, "like_post", userID, postID, true)
}

func (r *ledgerRepository) UnlikePost(ctx context.Context, userID, postID uint) (*models.Post, error) {
	return r.togglePostLike(ctx, "unlike_post", userID, postID, false)
}

func (r *ledgerRepository) togglePostLike(ctx context.Context, op string, userID, postID uint, add bool) (*models.Post, error) {
	var out *models.Post
	err := r.run(ctx, op, func(lt *ledgerTx) error {
		if _, err := lt.lockActivePost(postID); err != nil {
			return err
		}
		if err := lt.requireUser(userID); err != nil {
			return err
		}

		var res *gorm.DB
		if add {
			res = lt.tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.PostLike{UserID: userID, PostID: postID})
		} else {
			res = lt.tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.PostLike{})
		}
		if res.Error != nil {
			return res.Error
		}
		lt.wrote()

		if err := lt.recountPostLikes(postID); err != nil {
			return err
		}

		var err error
		out, err = lt.reloadPost(postID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ledgerRepository) LikeComment(ctx context.Context, userID, commentID uint) (*models.Comment, error) {
	return r.toggleCommentLike(ctx, "like_comment", userID, commentID, true)
}

func (r *ledgerRepository) UnlikeComment(ctx context.Context, userID, commentID uint) (*models.Comment, error) {
	return r.toggleCommentLike(ctx, "unlike_comment", userID, commentID, false)
}

func (r *ledgerRepository) toggleCommentLike(ctx context.Context, op string, userID, commentID uint, add bool) (*models.Comment, error) {
	var out *models.Comment
	err := r.run(ctx, op, func(lt *ledgerTx) error {
		if _, err := lt.lockComment(commentID); err != nil {
			return err
		}
		if err := lt.requireUser(userID); err != nil {
			return err
		}

		var res *gorm.DB
		if add {
			res = lt.tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.CommentLike{UserID: userID, CommentID: commentID})
		} else {
			res = lt.tx.Where("user_id = ? AND comment_id = ?", userID, commentID).Delete(&models.CommentLike{})
		}
		if res.Error != nil {
			return res.Error
		}
		lt.wrote()

		if err := lt.recountCommentLikes(commentID); err != nil {
			return err
		}

		var err error
		out, err = lt.reloadComment(commentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ledgerRepository) AddComment(ctx context.Context, postID, userID uint, content string) (*models.Comment, error) {
	var out *models.Comment
	err := r.run(ctx, "add_comment", func(lt *ledgerTx) error {
		if _, err := lt.lockActivePost(postID); err != nil {
			return err
		}
		if err := lt.requireUser(userID); err != nil {
			return err
		}

		comment := models.Comment{PostID: postID, UserID: &userID, Content: content}
		if err := lt.tx.Create(&comment).Error; err != nil {
			return err
		}
		lt.wrote()

		if err := lt.recountComments(postID); err != nil {
			return err
		}

		var err error
		out, err = lt.reloadComment(comment.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveComment deletes commentID if it belongs to postID. It reports false,
// without error, when there was nothing to delete.
func (r *ledgerRepository) RemoveComment(ctx context.Context, postID, commentID uint) (bool, error) {
	removed := false
	err := r.run(ctx, "remove_comment", func(lt *ledgerTx) error {
		if _, err := lt.lockActivePost(postID); err != nil {
			return err
		}

		res := lt.tx.Where("id = ? AND post_id = ?", commentID, postID).Delete(&models.Comment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		lt.wrote()
		removed = true

		if err := lt.tx.Where("comment_id = ?", commentID).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		lt.wrote()

		return lt.recountComments(postID)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// DeactivatePost soft deletes a post and removes its comments together with
// their likes.
func (r *ledgerRepository) DeactivatePost(ctx context.Context, postID uint) error {
	return r.run(ctx, "deactivate_post", func(lt *ledgerTx) error {
		if _, err := lt.lockActivePost(postID); err != nil {
			return err
		}

		if err := lt.tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn("is_active", false).Error; err != nil {
			return err
		}
		lt.wrote()

		commentIDs := lt.tx.Model(&models.Comment{}).Select("id").Where("post_id = ?", postID)
		if err := lt.tx.Where("comment_id IN (?)", commentIDs).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		if err := lt.tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		lt.wrote()

		return lt.recountComments(postID)
	})
}

func (r *ledgerRepository) Followers(ctx context.Context, userID uint, limit, offset int) ([]*models.User, error) {
	var users []*models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN follows ON follows.follower_id = users.id").
		Where("follows.followed_id = ? AND users.is_active = ?", userID, true).
		Order("follows.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *ledgerRepository) Following(ctx context.Context, userID uint, limit, offset int) ([]*models.User, error) {
	var users []*models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN follows ON follows.followed_id = users.id").
		Where("follows.follower_id = ? AND users.is_active = ?", userID, true).
		Order("follows.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *ledgerRepository) IsFollowing(ctx context.Context, followerID, followedID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&n).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

func (r *ledgerRepository) HasLikedPost(ctx context.Context, userID, postID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.PostLike{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&n).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

package service

import (
	"context"
	"strings"

	"askallery/internal/cache"
	"askallery/internal/middleware"
	"askallery/internal/models"
	"askallery/internal/notifications"
	"askallery/internal/observability"
	"askallery/internal/repository"
	"askallery/internal/validation"
)

// SelfFollowMessage is returned when a user targets themselves.
const SelfFollowMessage = "An user cannot follow itself."

// EventPublisher delivers post-commit notifications to a user.
type EventPublisher interface {
	PublishUser(ctx context.Context, userID uint, eventType string, payload map[string]any) error
}

// LedgerService validates and authorizes social graph mutations, runs them
// through the transactional ledger and fans out side effects after commit.
type LedgerService struct {
	ledger   repository.LedgerRepository
	posts    repository.PostRepository
	comments repository.CommentRepository
	events   EventPublisher
}

type LikeInput struct {
	Kind      models.ContentKind
	ContentID uint
	UserID    uint
	Add       bool
}

// LikeResult holds whichever entity the like targeted.
type LikeResult struct {
	Post    *models.Post    `json:"post,omitempty"`
	Comment *models.Comment `json:"comment,omitempty"`
}

type CreateCommentInput struct {
	UserID  uint
	PostID  uint
	Content string
}

type DeleteCommentInput struct {
	UserID    uint
	PostID    uint
	CommentID uint
}

func NewLedgerService(
	ledger repository.LedgerRepository,
	posts repository.PostRepository,
	comments repository.CommentRepository,
	events EventPublisher,
) *LedgerService {
	return &LedgerService{
		ledger:   ledger,
		posts:    posts,
		comments: comments,
		events:   events,
	}
}

func (s *LedgerService) Follow(ctx context.Context, actorID, targetID uint) (*repository.FollowResult, error) {
	if err := validateRelation(actorID, targetID); err != nil {
		return nil, err
	}

	res, err := s.ledger.Follow(ctx, actorID, targetID)
	record("follow", err)
	if err != nil {
		return nil, err
	}

	cache.InvalidateProfiles(ctx, actorID, targetID)
	s.publish(ctx, targetID, notifications.EventUserFollowed, map[string]any{
		"follower_id": actorID,
		"username":    usernameOf(res.CurrentUser),
	})
	return res, nil
}

func (s *LedgerService) Unfollow(ctx context.Context, actorID, targetID uint) (*repository.FollowResult, error) {
	if err := validateRelation(actorID, targetID); err != nil {
		return nil, err
	}

	res, err := s.ledger.Unfollow(ctx, actorID, targetID)
	record("unfollow", err)
	if err != nil {
		return nil, err
	}

	cache.InvalidateProfiles(ctx, actorID, targetID)
	return res, nil
}

// ToggleLike adds or removes a like on a post or comment.
func (s *LedgerService) ToggleLike(ctx context.Context, in LikeInput) (*LikeResult, error) {
	if !in.Kind.Valid() {
		return nil, models.NewValidationError("Unknown content type")
	}
	if in.ContentID == 0 || in.UserID == 0 {
		return nil, models.NewValidationError("Invalid id")
	}

	switch in.Kind {
	case models.ContentPost:
		return s.togglePostLike(ctx, in)
	default:
		return s.toggleCommentLike(ctx, in)
	}
}

func (s *LedgerService) togglePostLike(ctx context.Context, in LikeInput) (*LikeResult, error) {
	var (
		post *models.Post
		err  error
		op   = "unlike_post"
	)
	if in.Add {
		op = "like_post"
		post, err = s.ledger.LikePost(ctx, in.UserID, in.ContentID)
	} else {
		post, err = s.ledger.UnlikePost(ctx, in.UserID, in.ContentID)
	}
	record(op, err)
	if err != nil {
		return nil, err
	}

	cache.InvalidatePost(ctx, post.ID)
	if in.Add && post.UserID != nil && *post.UserID != in.UserID {
		s.publish(ctx, *post.UserID, notifications.EventPostLiked, map[string]any{
			"post_id":  post.ID,
			"liker_id": in.UserID,
		})
	}
	return &LikeResult{Post: post}, nil
}

func (s *LedgerService) toggleCommentLike(ctx context.Context, in LikeInput) (*LikeResult, error) {
	var (
		comment *models.Comment
		err     error
		op      = "unlike_comment"
	)
	if in.Add {
		op = "like_comment"
		comment, err = s.ledger.LikeComment(ctx, in.UserID, in.ContentID)
	} else {
		comment, err = s.ledger.UnlikeComment(ctx, in.UserID, in.ContentID)
	}
	record(op, err)
	if err != nil {
		return nil, err
	}

	if in.Add && comment.UserID != nil && *comment.UserID != in.UserID {
		s.publish(ctx, *comment.UserID, notifications.EventCommentLiked, map[string]any{
			"comment_id": comment.ID,
			"post_id":    comment.PostID,
			"liker_id":   in.UserID,
		})
	}
	return &LikeResult{Comment: comment}, nil
}

func (s *LedgerService) AddComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if err := validation.ValidateMaxLength("Comment", content, validation.MaxCommentLen); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.PostID == 0 || in.UserID == 0 {
		return nil, models.NewValidationError("Invalid id")
	}

	comment, err := s.ledger.AddComment(ctx, in.PostID, in.UserID, content)
	record("add_comment", err)
	if err != nil {
		return nil, err
	}

	cache.InvalidatePost(ctx, in.PostID)
	if post, err := s.posts.GetByID(ctx, in.PostID); err == nil && post.UserID != nil && *post.UserID != in.UserID {
		s.publish(ctx, *post.UserID, notifications.EventCommentAdded, map[string]any{
			"post_id":      in.PostID,
			"comment_id":   comment.ID,
			"commenter_id": in.UserID,
		})
	}
	return comment, nil
}

// RemoveComment deletes a comment. The comment's author and the post's owner
// are both allowed to do so.
func (s *LedgerService) RemoveComment(ctx context.Context, in DeleteCommentInput) error {
	comment, err := s.comments.GetByID(ctx, in.CommentID)
	if err != nil {
		return err
	}
	if comment.PostID != in.PostID {
		return models.NewNotFoundError("Comment", in.CommentID)
	}

	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return err
	}
	if !comment.OwnedBy(in.UserID) && !post.OwnedBy(in.UserID) {
		return models.NewForbiddenError("You can only delete your own comments or comments on your posts")
	}

	_, err = s.ledger.RemoveComment(ctx, in.PostID, in.CommentID)
	record("remove_comment", err)
	if err != nil {
		return err
	}

	cache.InvalidatePost(ctx, in.PostID)
	return nil
}

func (s *LedgerService) Followers(ctx context.Context, userID uint, limit, offset int) ([]*models.User, error) {
	return s.ledger.Followers(ctx, userID, limit, offset)
}

func (s *LedgerService) Following(ctx context.Context, userID uint, limit, offset int) ([]*models.User, error) {
	return s.ledger.Following(ctx, userID, limit, offset)
}

func (s *LedgerService) IsFollowing(ctx context.Context, followerID, followedID uint) (bool, error) {
	return s.ledger.IsFollowing(ctx, followerID, followedID)
}

func (s *LedgerService) HasLikedPost(ctx context.Context, userID, postID uint) (bool, error) {
	return s.ledger.HasLikedPost(ctx, userID, postID)
}

func (s *LedgerService) publish(ctx context.Context, userID uint, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishUser(ctx, userID, eventType, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish notification",
			"event", eventType,
			"user_id", userID,
			"error", err,
		)
	}
}

func validateRelation(actorID, targetID uint) error {
	if actorID == 0 || targetID == 0 {
		return models.NewValidationError("Invalid user id")
	}
	if actorID == targetID {
		return models.NewSelfRelationError(SelfFollowMessage)
	}
	return nil
}

func record(op string, err error) {
	result := "ok"
	if err != nil {
		result = strings.ToLower(models.ErrorCode(err))
		if result == "" {
			result = "error"
		}
	}
	observability.LedgerOperations.WithLabelValues(op, result).Inc()
}

func usernameOf(p *models.Profile) string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.Username
}

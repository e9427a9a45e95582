package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"askallery/internal/cache"
	"askallery/internal/gate"
	"askallery/internal/middleware"
	"askallery/internal/models"
	"askallery/internal/repository"
	"askallery/internal/validation"
)

// DefaultPageSize is the post listing page size.
const DefaultPageSize = 30

// ImageGate decides whether an upload may be published.
type ImageGate interface {
	Check(ctx context.Context, img gate.Image) error
}

// ImageStore persists prepared images.
type ImageStore interface {
	SaveJPEG(dir string, data []byte) (*StoredFile, error)
	Remove(f *StoredFile)
}

type PostService struct {
	posts          repository.PostRepository
	comments       repository.CommentRepository
	ledger         repository.LedgerRepository
	gate           ImageGate
	store          ImageStore
	prepare        gate.PrepareOptions
	maxUploadBytes int64
}

// PostServiceConfig carries the upload limits.
type PostServiceConfig struct {
	MaxUploadBytes int64
	Prepare        gate.PrepareOptions
}

type CreatePostInput struct {
	UserID      uint
	Caption     string
	Image       []byte
	ContentType string
}

type UpdatePostInput struct {
	UserID  uint
	PostID  uint
	Caption string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

func NewPostService(
	posts repository.PostRepository,
	comments repository.CommentRepository,
	ledger repository.LedgerRepository,
	imageGate ImageGate,
	store ImageStore,
	cfg PostServiceConfig,
) *PostService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 * 1024 * 1024
	}
	return &PostService{
		posts:          posts,
		comments:       comments,
		ledger:         ledger,
		gate:           imageGate,
		store:          store,
		prepare:        cfg.Prepare,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

// CreatePost classifies the upload, stores the re-encoded image and inserts
// the post. Nothing is written for a rejected image.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if in.UserID == 0 {
		return nil, models.NewValidationError("Invalid user")
	}
	caption := strings.TrimSpace(in.Caption)
	if err := validation.ValidateMaxLength("Caption", caption, validation.MaxCaptionLen); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if len(in.Image) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Image)) > s.maxUploadBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadBytes/(1024*1024)))
	}

	detected := http.DetectContentType(in.Image)
	if !isAllowedImageMIME(detected) {
		return nil, models.NewValidationError("Invalid image type")
	}

	if err := gate.CheckDimensions(in.Image, s.prepare.MaxPixels); err != nil {
		return nil, imageFileError(err)
	}

	if err := s.gate.Check(ctx, gate.Image{Data: in.Image, ContentType: detected}); err != nil {
		return nil, models.NewImageRejectedError(err)
	}

	prepared, err := gate.PrepareForStorage(in.Image, s.prepare)
	if err != nil {
		return nil, imageFileError(err)
	}

	stored, err := s.store.SaveJPEG("posts", prepared.Data)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	userID := in.UserID
	post := &models.Post{UserID: &userID, Caption: caption, Image: stored.URL}
	if err := s.posts.Create(ctx, post); err != nil {
		s.store.Remove(stored)
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "post created",
		"post_id", post.ID,
		"width", prepared.Width,
		"height", prepared.Height,
		"source_format", prepared.SourceFormat,
	)
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return s.posts.GetByID(ctx, id)
}

func (s *PostService) ListPosts(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	return s.posts.List(ctx, pageSize(limit), max(offset, 0))
}

func (s *PostService) ListUserPosts(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, error) {
	return s.posts.ListByUser(ctx, userID, pageSize(limit), max(offset, 0))
}

func (s *PostService) UpdateCaption(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	caption := strings.TrimSpace(in.Caption)
	if err := validation.ValidateMaxLength("Caption", caption, validation.MaxCaptionLen); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.ownedPost(ctx, in.UserID, in.PostID); err != nil {
		return nil, err
	}
	return s.posts.UpdateCaption(ctx, in.PostID, caption)
}

// DeletePost deactivates the post and drops its comments.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	if _, err := s.ownedPost(ctx, in.UserID, in.PostID); err != nil {
		return err
	}
	err := s.ledger.DeactivatePost(ctx, in.PostID)
	record("deactivate_post", err)
	if err != nil {
		return err
	}

	cache.InvalidatePost(ctx, in.PostID)
	return nil
}

func (s *PostService) ListComments(ctx context.Context, postID uint, limit, offset int) ([]*models.Comment, error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	return s.comments.ListByPost(ctx, postID, pageSize(limit), max(offset, 0))
}

func (s *PostService) ownedPost(ctx context.Context, userID, postID uint) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.OwnedBy(userID) {
		return nil, models.NewForbiddenError("You can only modify your own posts")
	}
	return post, nil
}

func pageSize(limit int) int {
	if limit <= 0 || limit > 100 {
		return DefaultPageSize
	}
	return limit
}

func imageFileError(err error) error {
	if errors.Is(err, gate.ErrImageTooLarge) {
		return models.NewValidationError("Image dimensions too large")
	}
	return models.NewValidationError("Invalid image file")
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

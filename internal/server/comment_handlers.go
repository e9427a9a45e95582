package server

import (
	"askallery/internal/models"
	"askallery/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateCommentRequest is the body of POST /api/posts/:id/comments.
type CreateCommentRequest struct {
	Content string `json:"content"`
}

// GetComments lists a post's comments, newest first.
// @Summary List comments
// @Tags comments
// @Produce json
// @Param id path int true "Post ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Comment
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/comments [get]
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, service.DefaultPageSize)

	comments, err := s.postService.ListComments(c.UserContext(), postID, page.Limit, page.Offset)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(comments)
}

// CreateComment adds a comment to a post.
// @Summary Create comment
// @Tags comments
// @Accept json
// @Produce json
// @Param id path int true "Post ID"
// @Param request body CreateCommentRequest true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.ledgerService.AddComment(c.UserContext(), service.CreateCommentInput{
		UserID:  currentUserID(c),
		PostID:  postID,
		Content: req.Content,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// DeleteComment removes a comment. Its author and the post's owner may do so.
// @Summary Delete comment
// @Tags comments
// @Param id path int true "Post ID"
// @Param commentId path int true "Comment ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/comments/{commentId} [delete]
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	commentID, err := parseID(c, "commentId")
	if err != nil {
		return nil
	}

	if err := s.ledgerService.RemoveComment(c.UserContext(), service.DeleteCommentInput{
		UserID:    currentUserID(c),
		PostID:    postID,
		CommentID: commentID,
	}); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LikeComment adds the caller's like and returns the recounted comment.
// @Summary Like comment
// @Tags comments
// @Produce json
// @Param id path int true "Post ID"
// @Param commentId path int true "Comment ID"
// @Success 201 {object} models.Comment
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/comments/{commentId}/like [post]
func (s *Server) LikeComment(c *fiber.Ctx) error {
	if !s.commentOnPost(c) {
		return nil
	}
	return s.toggleLike(c, models.ContentComment, "commentId", true)
}

// UnlikeComment removes the caller's like.
// @Summary Unlike comment
// @Tags comments
// @Param id path int true "Post ID"
// @Param commentId path int true "Comment ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/comments/{commentId}/like [delete]
func (s *Server) UnlikeComment(c *fiber.Ctx) error {
	if !s.commentOnPost(c) {
		return nil
	}
	return s.toggleLike(c, models.ContentComment, "commentId", false)
}

// commentOnPost checks that :commentId belongs to :id. It writes the error
// response itself and reports false when it does not.
func (s *Server) commentOnPost(c *fiber.Ctx) bool {
	postID, err := parseID(c, "id")
	if err != nil {
		return false
	}
	commentID, err := parseID(c, "commentId")
	if err != nil {
		return false
	}

	comment, err := s.commentRepo.GetByID(c.UserContext(), commentID)
	if err != nil {
		_ = mapServiceError(c, err)
		return false
	}
	if comment.PostID != postID {
		_ = models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("Comment", commentID))
		return false
	}
	return true
}

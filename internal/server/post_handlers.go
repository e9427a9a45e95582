package server

import (
	"io"

	"askallery/internal/models"
	"askallery/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UpdatePostRequest is the body of PATCH /api/posts/:id.
type UpdatePostRequest struct {
	Caption string `json:"caption"`
}

// PostView is a post together with the caller's like state.
type PostView struct {
	*models.Post
	Liked bool `json:"liked"`
}

// GetPosts returns the feed, newest first. ?user_id= narrows it to one author.
// @Summary List posts
// @Tags posts
// @Produce json
// @Param user_id query int false "Author ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Post
// @Security BearerAuth
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePagination(c, service.DefaultPageSize)

	var (
		posts []*models.Post
		err   error
	)
	if authorID := c.QueryInt("user_id", 0); authorID > 0 {
		posts, err = s.postService.ListUserPosts(c.UserContext(), uint(authorID), page.Limit, page.Offset)
	} else {
		posts, err = s.postService.ListPosts(c.UserContext(), page.Limit, page.Offset)
	}
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(posts)
}

// CreatePost accepts a multipart upload with an "image" file and an optional
// "caption" field. The image must pass the content gate.
// @Summary Create post
// @Description Upload an image; it is classified by the content gate before the post is stored
// @Tags posts
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image"
// @Param caption formData string false "Caption"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("No file uploaded"))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Failed to read uploaded file"))
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Failed to read uploaded file"))
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:      currentUserID(c),
		Caption:     c.FormValue("caption"),
		Image:       data,
		ContentType: fileHeader.Header.Get(fiber.HeaderContentType),
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPost returns a single active post.
// @Summary Get post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} PostView
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.GetPost(c.UserContext(), id)
	if err != nil {
		return mapServiceError(c, err)
	}

	liked, err := s.ledgerService.HasLikedPost(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(PostView{Post: post, Liked: liked})
}

// UpdatePost edits the caption of one of the caller's posts.
// @Summary Update post caption
// @Tags posts
// @Accept json
// @Produce json
// @Param id path int true "Post ID"
// @Param request body UpdatePostRequest true "New caption"
// @Success 200 {object} models.Post
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id} [patch]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req UpdatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.UpdateCaption(c.UserContext(), service.UpdatePostInput{
		UserID:  currentUserID(c),
		PostID:  id,
		Caption: req.Caption,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(post)
}

// DeletePost deactivates one of the caller's posts.
// @Summary Delete post
// @Tags posts
// @Param id path int true "Post ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.DeletePost(c.UserContext(), service.DeletePostInput{
		UserID: currentUserID(c),
		PostID: id,
	}); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LikePost adds the caller's like and returns the recounted post.
// @Summary Like post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 201 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/like [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	return s.toggleLike(c, models.ContentPost, "id", true)
}

// UnlikePost removes the caller's like.
// @Summary Unlike post
// @Tags posts
// @Param id path int true "Post ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/like [delete]
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	return s.toggleLike(c, models.ContentPost, "id", false)
}

func (s *Server) toggleLike(c *fiber.Ctx, kind models.ContentKind, param string, add bool) error {
	in, err := likeInput(c, kind, param, add)
	if err != nil {
		return nil
	}

	res, err := s.ledgerService.ToggleLike(c.UserContext(), in)
	if err != nil {
		return mapServiceError(c, err)
	}
	if !add {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if res.Comment != nil {
		return c.Status(fiber.StatusCreated).JSON(res.Comment)
	}
	return c.Status(fiber.StatusCreated).JSON(res.Post)
}

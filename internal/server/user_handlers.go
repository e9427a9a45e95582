package server

import (
	"askallery/internal/models"
	"askallery/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UpdateProfileRequest is the body of PATCH /api/users/me.
type UpdateProfileRequest struct {
	Biography string `json:"biography"`
}

// ProfileResponse adds live presence to a profile view.
type ProfileResponse struct {
	*service.ProfileView
	Online bool `json:"online"`
}

// GetUserProfile returns a profile with the caller's follow state, the
// user's most recent posts and whether they have a notification stream open.
// @Summary Get user profile
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} ProfileResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/{id} [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	ctx := c.UserContext()
	view, err := s.userService.GetProfile(ctx, currentUserID(c), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(ProfileResponse{ProfileView: view, Online: s.presence.IsOnline(ctx, id)})
}

// UpdateMyProfile edits the caller's biography.
// @Summary Update my profile
// @Tags users
// @Accept json
// @Produce json
// @Param request body UpdateProfileRequest true "Profile fields"
// @Success 200 {object} models.Profile
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/me [patch]
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	profile, err := s.userService.UpdateBiography(c.UserContext(), currentUserID(c), req.Biography)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(profile)
}

// GetFollowers lists the users following :id.
// @Summary List followers
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.User
// @Security BearerAuth
// @Router /users/{id}/followers [get]
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, service.DefaultPageSize)

	users, err := s.ledgerService.Followers(c.UserContext(), id, page.Limit, page.Offset)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(users)
}

// GetFollowing lists the users :id follows.
// @Summary List followed users
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.User
// @Security BearerAuth
// @Router /users/{id}/following [get]
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, service.DefaultPageSize)

	users, err := s.ledgerService.Following(c.UserContext(), id, page.Limit, page.Offset)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(users)
}

// FollowUser makes the caller follow :id and returns both updated profiles.
// @Summary Follow user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 201 {object} repository.FollowResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/{id}/follow [post]
func (s *Server) FollowUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	res, err := s.ledgerService.Follow(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// UnfollowUser removes the caller's follow of :id.
// @Summary Unfollow user
// @Tags users
// @Param id path int true "User ID"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/{id}/follow [delete]
func (s *Server) UnfollowUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if _, err := s.ledgerService.Unfollow(c.UserContext(), currentUserID(c), id); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

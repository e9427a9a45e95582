package middleware

import (
	"context"
	"errors"
	"strings"

	"askallery/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// AccessTokenParser verifies a raw bearer token.
type AccessTokenParser interface {
	ParseAccess(ctx context.Context, raw string) (*auth.AccessClaims, error)
}

// VerifiedLookup reports whether a user has confirmed their email address.
type VerifiedLookup func(ctx context.Context, userID uint) (bool, error)

// AuthRequired is a middleware that enforces authentication for protected routes.
// On success it stores the user id in Locals("userID") and the claims in Locals("claims").
func AuthRequired(parser AccessTokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		return authenticate(c, parser, parts[1])
	}
}

// QueryTokenAuth authenticates from the `token` query parameter, for clients
// such as browsers opening a websocket that cannot set headers.
func QueryTokenAuth(parser AccessTokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token required",
			})
		}
		return authenticate(c, parser, token)
	}
}

func authenticate(c *fiber.Ctx, parser AccessTokenParser, raw string) error {
	claims, err := parser.ParseAccess(c.UserContext(), raw)
	if err != nil {
		msg := "Invalid or expired token"
		switch {
		case errors.Is(err, auth.ErrTokenRevoked):
			msg = "Token has been revoked"
		case !errors.Is(err, auth.ErrTokenExpired) && !errors.Is(err, auth.ErrTokenInvalid):
			Logger.ErrorContext(c.UserContext(), "token verification failed", "error", err.Error())
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": msg,
		})
	}

	c.Locals("userID", claims.UserID)
	c.Locals("claims", claims)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, claims.UserID))
	return c.Next()
}

// VerifiedRequired rejects accounts that have not confirmed their email.
// It must run after AuthRequired.
func VerifiedRequired(lookup VerifiedLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("userID").(uint)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		verified, err := lookup(c.UserContext(), userID)
		if err != nil {
			Logger.ErrorContext(c.UserContext(), "verification lookup failed", "error", err.Error())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal server error",
			})
		}
		if !verified {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Your account has not been verified yet.",
			})
		}
		return c.Next()
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"askallery/internal/auth"
	"askallery/internal/middleware"
	"askallery/internal/models"
	"askallery/internal/repository"
	"askallery/internal/validation"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

const (
	msgVerificationExpired = "Verification link has expired."
	msgInvalidToken        = "Invalid token"
	msgInvalidCredentials  = "Invalid email or password"
	msgNotVerified         = "Your account has not been verified yet."
	profilePostsPreview    = 12
)

// TokenIssuer is the subset of auth.Tokens the account flows need.
type TokenIssuer interface {
	IssueAccess(userID uint, username string) (string, *auth.AccessClaims, error)
	IssueVerification(username string) (string, error)
	ParseVerification(raw string) (string, error)
	Revoke(ctx context.Context, claims *auth.AccessClaims) error
}

type UserService struct {
	users  repository.UserRepository
	posts  repository.PostRepository
	ledger repository.LedgerRepository
	tokens TokenIssuer
	mailer Mailer
	appURL string
}

type SignupInput struct {
	Email                string `json:"email"`
	Username             string `json:"username"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
}

// LoginResult is a freshly issued session.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// ProfileView is a profile as seen by another user.
type ProfileView struct {
	Profile     *models.Profile `json:"profile"`
	IsFollowing bool            `json:"is_following"`
	Posts       []*models.Post  `json:"posts"`
}

func NewUserService(
	users repository.UserRepository,
	posts repository.PostRepository,
	ledger repository.LedgerRepository,
	tokens TokenIssuer,
	mailer Mailer,
	appURL string,
) *UserService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &UserService{
		users:  users,
		posts:  posts,
		ledger: ledger,
		tokens: tokens,
		mailer: mailer,
		appURL: strings.TrimRight(appURL, "/"),
	}
}

// Signup creates an unverified account and mails a confirmation link.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	checks := []error{
		validation.ValidateEmail(in.Email),
		validation.ValidateUsername(in.Username),
		validation.ValidatePassword(in.Password, in.PasswordConfirmation),
		validation.ValidateName("first_name", in.FirstName),
		validation.ValidateName("last_name", in.LastName),
	}
	for _, err := range checks {
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Email:     in.Email,
		Username:  in.Username,
		Password:  string(hash),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		IsClient:  true,
		IsActive:  true,
	}
	if err := s.users.CreateWithProfile(ctx, user); err != nil {
		return nil, err
	}

	if err := s.sendVerification(ctx, user); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to send verification email",
			"user_id", user.ID,
			"error", err,
		)
	}
	return user, nil
}

func (s *UserService) sendVerification(ctx context.Context, user *models.User) error {
	token, err := s.tokens.IssueVerification(user.Username)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/api/auth/verify?token=%s", s.appURL, url.QueryEscape(token))
	body := fmt.Sprintf("Hi %s,\n\nConfirm your Askallery account by opening the link below:\n\n%s\n", user.FullName(), link)
	return s.mailer.Send(ctx, user.Email, "Confirm your Askallery account", body)
}

// Verify marks the account named in an email confirmation token as verified.
func (s *UserService) Verify(ctx context.Context, token string) (*models.User, error) {
	username, err := s.tokens.ParseVerification(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, models.NewValidationError(msgVerificationExpired)
		}
		return nil, models.NewValidationError(msgInvalidToken)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return nil, models.NewValidationError(msgInvalidToken)
		}
		return nil, err
	}
	if user.IsVerified {
		return user, nil
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsVerified = true
	return user, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return nil, models.NewUnauthorizedError(msgInvalidCredentials)
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil || !user.IsActive {
		return nil, models.NewUnauthorizedError(msgInvalidCredentials)
	}
	if !user.IsVerified {
		return nil, models.NewForbiddenError(msgNotVerified)
	}

	token, claims, err := s.tokens.IssueAccess(user.ID, user.Username)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt, User: user}, nil
}

// Logout revokes the session token until it would have expired anyway.
func (s *UserService) Logout(ctx context.Context, claims *auth.AccessClaims) error {
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// IsVerified backs the verified-account middleware.
func (s *UserService) IsVerified(ctx context.Context, userID uint) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsVerified, nil
}

// GetProfile loads a profile, the viewer's follow state and recent posts
// concurrently.
func (s *UserService) GetProfile(ctx context.Context, viewerID, userID uint) (*ProfileView, error) {
	view := &ProfileView{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := s.users.GetProfile(gctx, userID)
		view.Profile = p
		return err
	})
	g.Go(func() error {
		if viewerID == 0 || viewerID == userID {
			return nil
		}
		following, err := s.ledger.IsFollowing(gctx, viewerID, userID)
		view.IsFollowing = following
		return err
	})
	g.Go(func() error {
		posts, err := s.posts.ListByUser(gctx, userID, profilePostsPreview, 0)
		view.Posts = posts
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *UserService) UpdateBiography(ctx context.Context, userID uint, biography string) (*models.Profile, error) {
	biography = strings.TrimSpace(biography)
	if err := validation.ValidateMaxLength("Biography", biography, validation.MaxBiographyLen); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	return s.users.UpdateBiography(ctx, userID, biography)
}

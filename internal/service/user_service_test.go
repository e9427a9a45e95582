package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"askallery/internal/auth"
	"askallery/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, IsActive: true}, nil
		},
		getByEmailFn: func(_ context.Context, email string) (*models.User, error) {
			return nil, models.NewNotFoundError("User", email)
		},
		getByUsernameFn: func(_ context.Context, username string) (*models.User, error) {
			return nil, models.NewNotFoundError("User", username)
		},
		createFn:       func(_ context.Context, u *models.User) error { u.ID = 1; return nil },
		markVerifiedFn: func(context.Context, uint) error { return nil },
		getProfileFn: func(_ context.Context, id uint) (*models.Profile, error) {
			return &models.Profile{UserID: id}, nil
		},
		updateBiographyFn: func(_ context.Context, id uint, bio string) (*models.Profile, error) {
			return &models.Profile{UserID: id, Biography: bio}, nil
		},
	}
}

func validSignup() SignupInput {
	return SignupInput{
		Email:                " Shinji@Example.com ",
		Username:             "shinji",
		Password:             "getintherobot",
		PasswordConfirmation: "getintherobot",
		FirstName:            "Shinji",
		LastName:             "Ikari",
	}
}

func TestUserService_Signup(t *testing.T) {
	t.Parallel()

	var saved *models.User
	repo := noopUserRepo()
	repo.createFn = func(_ context.Context, u *models.User) error {
		u.ID = 9
		saved = u
		return nil
	}
	mail := &mailerSpy{}
	svc := NewUserService(repo, noopPostRepo(), failingLedger(t), &tokenStub{}, mail, "https://askallery.test/")

	user, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "shinji@example.com", user.Email)
	assert.False(t, user.IsVerified)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(saved.Password), []byte("getintherobot")))

	assert.Equal(t, "shinji@example.com", mail.to)
	assert.Contains(t, mail.body, "https://askallery.test/api/auth/verify?token=verify-shinji")
}

func TestUserService_SignupValidation(t *testing.T) {
	t.Parallel()
	svc := NewUserService(noopUserRepo(), noopPostRepo(), failingLedger(t), &tokenStub{}, &mailerSpy{}, "")

	tests := []struct {
		name   string
		mutate func(*SignupInput)
	}{
		{"bad email", func(in *SignupInput) { in.Email = "nope" }},
		{"short username", func(in *SignupInput) { in.Username = "abc" }},
		{"password mismatch", func(in *SignupInput) { in.PasswordConfirmation = "different1" }},
		{"short password", func(in *SignupInput) { in.Password, in.PasswordConfirmation = "short", "short" }},
		{"short first name", func(in *SignupInput) { in.FirstName = "S" }},
		{"long last name", func(in *SignupInput) { in.LastName = strings.Repeat("x", 31) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validSignup()
			tt.mutate(&in)
			_, err := svc.Signup(context.Background(), in)
			assertValidationError(t, err)
		})
	}
}

func TestUserService_SignupSurvivesMailFailure(t *testing.T) {
	t.Parallel()
	svc := NewUserService(noopUserRepo(), noopPostRepo(), failingLedger(t), &tokenStub{}, &mailerSpy{err: errors.New("smtp down")}, "")

	user, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	assert.Equal(t, uint(1), user.ID)
}

func TestUserService_Verify(t *testing.T) {
	t.Parallel()

	repo := noopUserRepo()
	repo.getByUsernameFn = func(_ context.Context, username string) (*models.User, error) {
		if username == "shinji" {
			return &models.User{ID: 4, Username: username}, nil
		}
		return nil, models.NewNotFoundError("User", username)
	}
	var marked uint
	repo.markVerifiedFn = func(_ context.Context, id uint) error { marked = id; return nil }

	tokens := &tokenStub{parseVerificationFn: func(raw string) (string, error) {
		switch raw {
		case "good":
			return "shinji", nil
		case "ghost":
			return "nobody", nil
		case "old":
			return "", auth.ErrTokenExpired
		default:
			return "", auth.ErrTokenInvalid
		}
	}}
	svc := NewUserService(repo, noopPostRepo(), failingLedger(t), tokens, nil, "")
	ctx := context.Background()

	user, err := svc.Verify(ctx, "good")
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Equal(t, uint(4), marked)

	_, err = svc.Verify(ctx, "old")
	assertValidationError(t, err)
	assert.Equal(t, "Verification link has expired.", err.Error())

	for _, raw := range []string{"garbage", "ghost"} {
		_, err = svc.Verify(ctx, raw)
		assertValidationError(t, err)
		assert.Equal(t, "Invalid token", err.Error())
	}
}

func TestUserService_Login(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("getintherobot"), bcrypt.MinCost)
	require.NoError(t, err)

	users := map[string]*models.User{
		"verified@example.com":   {ID: 1, Username: "verified", Password: string(hash), IsVerified: true, IsActive: true},
		"unverified@example.com": {ID: 2, Username: "pending", Password: string(hash), IsActive: true},
	}
	repo := noopUserRepo()
	repo.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
		if u, ok := users[email]; ok {
			return u, nil
		}
		return nil, models.NewNotFoundError("User", email)
	}
	svc := NewUserService(repo, noopPostRepo(), failingLedger(t), &tokenStub{}, nil, "")
	ctx := context.Background()

	res, err := svc.Login(ctx, "verified@example.com", "getintherobot")
	require.NoError(t, err)
	assert.Equal(t, "access-token", res.Token)
	assert.Equal(t, uint(1), res.User.ID)

	_, err = svc.Login(ctx, "verified@example.com", "wrong")
	assertCode(t, err, models.CodeUnauthorized)

	_, err = svc.Login(ctx, "missing@example.com", "getintherobot")
	assertCode(t, err, models.CodeUnauthorized)

	_, err = svc.Login(ctx, "unverified@example.com", "getintherobot")
	assertCode(t, err, models.CodeForbidden)
}

func TestUserService_Logout(t *testing.T) {
	t.Parallel()
	tokens := &tokenStub{}
	svc := NewUserService(noopUserRepo(), noopPostRepo(), failingLedger(t), tokens, nil, "")

	claims := &auth.AccessClaims{UserID: 1, ID: "abc"}
	require.NoError(t, svc.Logout(context.Background(), claims))
	require.Len(t, tokens.revoked, 1)
	assert.Equal(t, "abc", tokens.revoked[0].ID)
}

func TestUserService_GetProfile(t *testing.T) {
	t.Parallel()

	ledger := failingLedger(t)
	ledger.isFollowingFn = func(_ context.Context, a, b uint) (bool, error) { return a == 1 && b == 2, nil }
	posts := noopPostRepo()
	posts.listByUserFn = func(_ context.Context, userID uint, limit, _ int) ([]*models.Post, error) {
		assert.Equal(t, profilePostsPreview, limit)
		return []*models.Post{{ID: 10, UserID: uintPtr(userID)}}, nil
	}
	svc := NewUserService(noopUserRepo(), posts, ledger, &tokenStub{}, nil, "")

	view, err := svc.GetProfile(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint(2), view.Profile.UserID)
	assert.True(t, view.IsFollowing)
	assert.Len(t, view.Posts, 1)

	repo := noopUserRepo()
	repo.getProfileFn = func(_ context.Context, id uint) (*models.Profile, error) {
		return nil, models.NewNotFoundError("User", id)
	}
	svc = NewUserService(repo, posts, ledger, &tokenStub{}, nil, "")
	_, err = svc.GetProfile(context.Background(), 1, 3)
	assertCode(t, err, models.CodeNotFound)
}

func TestUserService_UpdateBiography(t *testing.T) {
	t.Parallel()
	svc := NewUserService(noopUserRepo(), noopPostRepo(), failingLedger(t), &tokenStub{}, nil, "")

	_, err := svc.UpdateBiography(context.Background(), 1, strings.Repeat("x", 251))
	assertValidationError(t, err)

	p, err := svc.UpdateBiography(context.Background(), 1, " pilot ")
	require.NoError(t, err)
	assert.Equal(t, "pilot", p.Biography)
}

func TestEnvelopeAddress(t *testing.T) {
	assert.Equal(t, "noreply@askallery.com", envelopeAddress("Askallery <noreply@askallery.com>"))
	assert.Equal(t, "a@b.c", envelopeAddress(" a@b.c "))
}

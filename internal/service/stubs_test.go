package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"askallery/internal/auth"
	"askallery/internal/gate"
	"askallery/internal/models"
	"askallery/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, models.CodeValidation)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

func uintPtr(v uint) *uint { return &v }

// ledgerRepoStub is a stub for repository.LedgerRepository.
type ledgerRepoStub struct {
	followFn         func(context.Context, uint, uint) (*repository.FollowResult, error)
	unfollowFn       func(context.Context, uint, uint) (*repository.FollowResult, error)
	likePostFn       func(context.Context, uint, uint) (*models.Post, error)
	unlikePostFn     func(context.Context, uint, uint) (*models.Post, error)
	likeCommentFn    func(context.Context, uint, uint) (*models.Comment, error)
	unlikeCommentFn  func(context.Context, uint, uint) (*models.Comment, error)
	addCommentFn     func(context.Context, uint, uint, string) (*models.Comment, error)
	removeCommentFn  func(context.Context, uint, uint) (bool, error)
	deactivatePostFn func(context.Context, uint) error
	isFollowingFn    func(context.Context, uint, uint) (bool, error)
}

func (s *ledgerRepoStub) Follow(ctx context.Context, a, b uint) (*repository.FollowResult, error) {
	return s.followFn(ctx, a, b)
}
func (s *ledgerRepoStub) Unfollow(ctx context.Context, a, b uint) (*repository.FollowResult, error) {
	return s.unfollowFn(ctx, a, b)
}
func (s *ledgerRepoStub) LikePost(ctx context.Context, u, p uint) (*models.Post, error) {
	return s.likePostFn(ctx, u, p)
}
func (s *ledgerRepoStub) UnlikePost(ctx context.Context, u, p uint) (*models.Post, error) {
	return s.unlikePostFn(ctx, u, p)
}
func (s *ledgerRepoStub) LikeComment(ctx context.Context, u, c uint) (*models.Comment, error) {
	return s.likeCommentFn(ctx, u, c)
}
func (s *ledgerRepoStub) UnlikeComment(ctx context.Context, u, c uint) (*models.Comment, error) {
	return s.unlikeCommentFn(ctx, u, c)
}
func (s *ledgerRepoStub) AddComment(ctx context.Context, p, u uint, content string) (*models.Comment, error) {
	return s.addCommentFn(ctx, p, u, content)
}
func (s *ledgerRepoStub) RemoveComment(ctx context.Context, p, c uint) (bool, error) {
	return s.removeCommentFn(ctx, p, c)
}
func (s *ledgerRepoStub) DeactivatePost(ctx context.Context, p uint) error {
	return s.deactivatePostFn(ctx, p)
}
func (s *ledgerRepoStub) Followers(context.Context, uint, int, int) ([]*models.User, error) {
	return nil, nil
}
func (s *ledgerRepoStub) Following(context.Context, uint, int, int) ([]*models.User, error) {
	return nil, nil
}
func (s *ledgerRepoStub) IsFollowing(ctx context.Context, a, b uint) (bool, error) {
	return s.isFollowingFn(ctx, a, b)
}
func (s *ledgerRepoStub) HasLikedPost(context.Context, uint, uint) (bool, error) {
	return false, nil
}

func failingLedger(t *testing.T) *ledgerRepoStub {
	fail := func() { t.Helper(); t.Fatal("ledger must not be called") }
	return &ledgerRepoStub{
		followFn:   func(context.Context, uint, uint) (*repository.FollowResult, error) { fail(); return nil, nil },
		unfollowFn: func(context.Context, uint, uint) (*repository.FollowResult, error) { fail(); return nil, nil },
		addCommentFn: func(context.Context, uint, uint, string) (*models.Comment, error) {
			fail()
			return nil, nil
		},
		removeCommentFn:  func(context.Context, uint, uint) (bool, error) { fail(); return false, nil },
		deactivatePostFn: func(context.Context, uint) error { fail(); return nil },
		isFollowingFn:    func(context.Context, uint, uint) (bool, error) { return false, nil },
	}
}

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn        func(context.Context, *models.Post) error
	getByIDFn       func(context.Context, uint) (*models.Post, error)
	listByUserFn    func(context.Context, uint, int, int) ([]*models.Post, error)
	updateCaptionFn func(context.Context, uint, string) (*models.Post, error)
}

func (s *postRepoStub) Create(ctx context.Context, p *models.Post) error { return s.createFn(ctx, p) }
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) List(context.Context, int, int) ([]*models.Post, error) { return nil, nil }
func (s *postRepoStub) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, error) {
	return s.listByUserFn(ctx, userID, limit, offset)
}
func (s *postRepoStub) UpdateCaption(ctx context.Context, id uint, caption string) (*models.Post, error) {
	return s.updateCaptionFn(ctx, id, caption)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn: func(_ context.Context, p *models.Post) error { p.ID = 1; return nil },
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) {
			return &models.Post{ID: id, UserID: uintPtr(1), IsActive: true}, nil
		},
		listByUserFn: func(context.Context, uint, int, int) ([]*models.Post, error) { return nil, nil },
		updateCaptionFn: func(_ context.Context, id uint, caption string) (*models.Post, error) {
			return &models.Post{ID: id, Caption: caption}, nil
		},
	}
}

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	getByIDFn    func(context.Context, uint) (*models.Comment, error)
	listByPostFn func(context.Context, uint, int, int) ([]*models.Comment, error)
}

func (s *commentRepoStub) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	return s.getByIDFn(ctx, id)
}
func (s *commentRepoStub) ListByPost(ctx context.Context, postID uint, limit, offset int) ([]*models.Comment, error) {
	return s.listByPostFn(ctx, postID, limit, offset)
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByIDFn         func(context.Context, uint) (*models.User, error)
	getByEmailFn      func(context.Context, string) (*models.User, error)
	getByUsernameFn   func(context.Context, string) (*models.User, error)
	createFn          func(context.Context, *models.User) error
	markVerifiedFn    func(context.Context, uint) error
	getProfileFn      func(context.Context, uint) (*models.Profile, error)
	updateBiographyFn func(context.Context, uint, string) (*models.Profile, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) CreateWithProfile(ctx context.Context, u *models.User) error {
	return s.createFn(ctx, u)
}
func (s *userRepoStub) MarkVerified(ctx context.Context, id uint) error {
	return s.markVerifiedFn(ctx, id)
}
func (s *userRepoStub) GetProfile(ctx context.Context, id uint) (*models.Profile, error) {
	return s.getProfileFn(ctx, id)
}
func (s *userRepoStub) UpdateBiography(ctx context.Context, id uint, bio string) (*models.Profile, error) {
	return s.updateBiographyFn(ctx, id, bio)
}

// publisherSpy records published events.
type publisherSpy struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	UserID  uint
	Type    string
	Payload map[string]any
}

func (p *publisherSpy) PublishUser(_ context.Context, userID uint, eventType string, payload map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{UserID: userID, Type: eventType, Payload: payload})
	return nil
}

func (p *publisherSpy) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

// gateStub returns a fixed Check result.
type gateStub struct {
	err   error
	calls int
}

func (g *gateStub) Check(context.Context, gate.Image) error {
	g.calls++
	return g.err
}

// tokenStub is a stub for TokenIssuer.
type tokenStub struct {
	parseVerificationFn func(string) (string, error)
	revoked             []*auth.AccessClaims
}

func (s *tokenStub) IssueAccess(userID uint, username string) (string, *auth.AccessClaims, error) {
	return "access-token", &auth.AccessClaims{UserID: userID, Username: username, ID: "jti"}, nil
}
func (s *tokenStub) IssueVerification(username string) (string, error) {
	return "verify-" + username, nil
}
func (s *tokenStub) ParseVerification(raw string) (string, error) {
	return s.parseVerificationFn(raw)
}
func (s *tokenStub) Revoke(_ context.Context, claims *auth.AccessClaims) error {
	s.revoked = append(s.revoked, claims)
	return nil
}

// mailerSpy captures outgoing mail.
type mailerSpy struct {
	to, subject, body string
	err               error
}

func (m *mailerSpy) Send(_ context.Context, to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return m.err
}

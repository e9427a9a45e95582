// Package seed creates demo data for development databases. Graph edges go
// through the ledger so seeded counters match their edge sets.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"askallery/internal/models"
	"askallery/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db     *gorm.DB
	users  repository.UserRepository
	ledger repository.LedgerRepository
	opts   Options
	faker  *gofakeit.Faker
	rnd    *rand.Rand
	hash   string
}

// NewFactory creates a Factory bound to db.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{
		db:     db,
		users:  repository.NewUserRepository(db),
		ledger: repository.NewLedgerRepository(db),
		opts:   opts,
		faker:  gofakeit.New(seed),
		// #nosec G404: acceptable for seeding
		rnd: rand.New(rand.NewSource(seed)),
	}
}

func (f *Factory) passwordHash() (string, error) {
	if f.hash != "" {
		return f.hash, nil
	}
	if f.opts.SkipBcrypt {
		f.hash = DefaultPassword
		return f.hash, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	f.hash = string(hashed)
	return f.hash, nil
}

// CreateUser persists a verified account with its profile. Overrides run
// before the insert. A generated username that is already taken is replaced.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	hash, err := f.passwordHash()
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var user *models.User
	for attempt := 0; ; attempt++ {
		user = f.buildUser(hash)
		for _, override := range overrides {
			override(user)
		}
		err = f.users.CreateWithProfile(ctx, user)
		if err == nil {
			break
		}
		if models.ErrorCode(err) != models.CodeConflict || attempt >= 4 {
			return nil, err
		}
	}

	if _, err := f.users.UpdateBiography(ctx, user.ID, truncate(f.faker.Sentence(10), 250)); err != nil {
		return nil, err
	}
	return user, nil
}

func (f *Factory) buildUser(hash string) *models.User {
	username := truncate(sanitizeUsername(f.faker.Username()), 16) + fmt.Sprintf("%03d", f.rnd.Intn(1000))
	return &models.User{
		Email:      strings.ToLower(username) + "@example.com",
		Username:   username,
		Password:   hash,
		FirstName:  truncate(f.faker.FirstName(), 30),
		LastName:   truncate(f.faker.LastName(), 30),
		IsVerified: true,
		IsClient:   true,
		IsActive:   true,
	}
}

// CreatePost persists a post for user with a placeholder image. Seeded posts
// do not go through the content gate.
func (f *Factory) CreatePost(ctx context.Context, user *models.User, overrides ...func(*models.Post)) (*models.Post, error) {
	userID := user.ID
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	age := time.Duration(f.rnd.Intn(maxDays))*24*time.Hour + time.Duration(f.rnd.Intn(24))*time.Hour

	post := &models.Post{
		UserID:    &userID,
		Caption:   truncate(f.faker.Sentence(8), 400),
		Image:     fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID()),
		IsActive:  true,
		CreatedAt: time.Now().Add(-age),
	}
	for _, override := range overrides {
		override(post)
	}

	if err := f.db.WithContext(ctx).Omit("User").Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// Follow records follower -> followed through the ledger.
func (f *Factory) Follow(ctx context.Context, follower, followed *models.User) error {
	_, err := f.ledger.Follow(ctx, follower.ID, followed.ID)
	return err
}

// Like records a like on post through the ledger.
func (f *Factory) Like(ctx context.Context, user *models.User, post *models.Post) error {
	_, err := f.ledger.LikePost(ctx, user.ID, post.ID)
	return err
}

// Comment adds a generated comment through the ledger.
func (f *Factory) Comment(ctx context.Context, user *models.User, post *models.Post) (*models.Comment, error) {
	return f.ledger.AddComment(ctx, post.ID, user.ID, truncate(f.faker.Sentence(8), 500))
}

// LikeComment records a like on comment through the ledger.
func (f *Factory) LikeComment(ctx context.Context, user *models.User, comment *models.Comment) error {
	_, err := f.ledger.LikeComment(ctx, user.ID, comment.ID)
	return err
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package seed

import (
	"context"
	"fmt"

	"askallery/internal/middleware"
	"askallery/internal/models"

	"gorm.io/gorm"
)

// Options configure the seeder.
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool
	SkipBcrypt  bool
	MaxDays     int
	RandomSeed  int64
}

// Result summarizes what Seed created.
type Result struct {
	Users    []*models.User
	Posts    []*models.Post
	Follows  int
	Likes    int
	Comments int
}

// Seed populates the database with users, posts and a random social graph.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Result, error) {
	if opts.NumUsers < 2 {
		return nil, fmt.Errorf("at least 2 users are required, got %d", opts.NumUsers)
	}
	middleware.Logger.InfoContext(ctx, "seeding database", "users", opts.NumUsers, "posts", opts.NumPosts)

	if opts.ShouldClean {
		if err := clearData(ctx, db); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
	}

	f := NewFactory(db, opts)
	res := &Result{}

	for i := 0; i < opts.NumUsers; i++ {
		user, err := f.CreateUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		res.Users = append(res.Users, user)
	}

	for i := 0; i < opts.NumPosts; i++ {
		author := res.Users[f.rnd.Intn(len(res.Users))]
		post, err := f.CreatePost(ctx, author)
		if err != nil {
			return nil, fmt.Errorf("create post: %w", err)
		}
		res.Posts = append(res.Posts, post)
	}

	// Each user follows roughly a third of the others.
	for _, follower := range res.Users {
		for _, followed := range res.Users {
			if follower.ID == followed.ID || f.rnd.Intn(3) != 0 {
				continue
			}
			if err := f.Follow(ctx, follower, followed); err != nil {
				return nil, fmt.Errorf("follow: %w", err)
			}
			res.Follows++
		}
	}

	for _, post := range res.Posts {
		for _, user := range res.Users {
			if f.rnd.Intn(2) == 0 {
				if err := f.Like(ctx, user, post); err != nil {
					return nil, fmt.Errorf("like: %w", err)
				}
				res.Likes++
			}
			if f.rnd.Intn(4) == 0 {
				comment, err := f.Comment(ctx, user, post)
				if err != nil {
					return nil, fmt.Errorf("comment: %w", err)
				}
				res.Comments++

				liker := res.Users[f.rnd.Intn(len(res.Users))]
				if err := f.LikeComment(ctx, liker, comment); err != nil {
					return nil, fmt.Errorf("like comment: %w", err)
				}
			}
		}
	}

	middleware.Logger.InfoContext(ctx, "seeding completed",
		"users", len(res.Users),
		"posts", len(res.Posts),
		"follows", res.Follows,
		"likes", res.Likes,
		"comments", res.Comments,
	)
	return res, nil
}

// clearData empties every table in dependency order.
func clearData(ctx context.Context, db *gorm.DB) error {
	tables := []string{"comment_likes", "comments", "post_likes", "posts", "follows", "profiles", "users"}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

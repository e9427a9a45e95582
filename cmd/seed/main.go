// Command seed fills the database with demo users, posts and social activity.
package main

import (
	"context"
	"flag"
	"log"

	"askallery/internal/config"
	"askallery/internal/database"
	"askallery/internal/seed"

	"github.com/joho/godotenv"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	maxDays := flag.Int("days", 90, "Spread post dates over this many past days")
	randomSeed := flag.Int64("seed", 0, "Random seed (0 picks one from the clock)")
	fast := flag.Bool("fast", false, "Store plain passwords instead of bcrypt hashes")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	log.Printf("Target: %d users, %d posts, clean=%v", *numUsers, *numPosts, *shouldClean)

	res, err := seed.Seed(context.Background(), db, seed.Options{
		NumUsers:    *numUsers,
		NumPosts:    *numPosts,
		ShouldClean: *shouldClean,
		SkipBcrypt:  *fast,
		MaxDays:     *maxDays,
		RandomSeed:  *randomSeed,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d posts, %d follows, %d likes, %d comments",
		len(res.Users), len(res.Posts), res.Follows, res.Likes, res.Comments)
	if !*fast {
		log.Printf("All seeded users have the password: %s", seed.DefaultPassword)
	}
}

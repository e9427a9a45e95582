// Command migrate applies or inspects the database schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"askallery/internal/config"
	"askallery/internal/database"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <up|status>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = database.Close() }()

	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		if err := database.ApplySchema(ctx, db); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		log.Println("schema applied")
	case "status":
		status, err := database.GetSchemaStatus(ctx, db)
		if err != nil {
			return fmt.Errorf("schema status: %w", err)
		}
		log.Printf("driver=%s present=%d missing=%d", status.Driver, len(status.Present), len(status.Missing))
		for _, table := range status.Missing {
			log.Printf("missing: %s", table)
		}
	default:
		return usage()
	}

	return nil
}

// Command main runs the database seeder for murmur.
package main

import (
	"flag"
	"log"

	"murmur/internal/config"
	"murmur/internal/database"
	"murmur/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numPosts := flag.Int("posts", 100, "Number of live posts to create")
	numScheduled := flag.Int("scheduled", 50, "Number of scheduled posts to create")
	cancelled := flag.Float64("cancelled", 0.1, "Share of scheduled posts seeded as cancelled")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fast := flag.Bool("fast", false, "Store passwords unhashed (local development only)")
	dryRun := flag.Bool("dry-run", false, "Build data without writing it")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Printf("Target: %d users, %d posts, %d scheduled posts, clean=%v\n", *numUsers, *numPosts, *numScheduled, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	s := seed.NewSeeder(db, seed.Options{SkipBcrypt: *fast, DryRun: *dryRun})

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	res, err := s.Run(seed.Plan{
		Users:          *numUsers,
		Posts:          *numPosts,
		ScheduledPosts: *numScheduled,
		Cancelled:      *cancelled,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ Seeded %d users, %d posts, %d scheduled posts (%d already due)",
		len(res.Users), res.Posts, res.ScheduledPosts, res.Due)
	log.Printf("📧 All test users have the password: %s", seed.DefaultPassword)
}

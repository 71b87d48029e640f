package seed

import (
	"fmt"
	"log/slog"
	"time"

	"murmur/internal/middleware"
	"murmur/internal/models"

	"gorm.io/gorm"
)

// Plan sizes one seeding run.
type Plan struct {
	Users          int
	Posts          int
	ScheduledPosts int
	// Cancelled is the share (0..1) of scheduled posts seeded as cancelled.
	Cancelled float64
}

// Result counts what a run created.
type Result struct {
	Users          []*models.User
	Posts          int
	ScheduledPosts int
	Due            int
}

// Seeder populates a database with users, live posts and scheduled posts.
type Seeder struct {
	db      *gorm.DB
	factory *Factory
}

// NewSeeder returns a Seeder writing through db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{db: db, factory: NewFactory(db, opts)}
}

// ClearAll removes every seeded row, children first.
func (s *Seeder) ClearAll() error {
	if s.factory.opts.DryRun {
		return nil
	}
	middleware.Logger.Info("clearing existing data")
	tx := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped()
	for _, model := range []any{&models.ScheduledPost{}, &models.Post{}, &models.User{}} {
		if err := tx.Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// Run creates plan.Users users then spreads posts and scheduled posts across
// them.
func (s *Seeder) Run(plan Plan) (*Result, error) {
	if plan.Users <= 0 {
		return nil, fmt.Errorf("seed: at least one user is required")
	}

	res := &Result{Users: make([]*models.User, 0, plan.Users)}
	for i := 0; i < plan.Users; i++ {
		u, err := s.factory.CreateUser()
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		res.Users = append(res.Users, u)
	}
	middleware.Logger.Info("users created", slog.Int("count", len(res.Users)))

	rng := s.factory.rng

	posts := make([]*models.Post, 0, plan.Posts)
	for i := 0; i < plan.Posts; i++ {
		posts = append(posts, s.factory.BuildPost(res.Users[rng.Intn(len(res.Users))]))
	}
	if err := s.factory.CreatePostsBatch(posts); err != nil {
		return nil, fmt.Errorf("create posts: %w", err)
	}
	res.Posts = len(posts)
	middleware.Logger.Info("posts created", slog.Int("count", res.Posts))

	scheduled := make([]*models.ScheduledPost, 0, plan.ScheduledPosts)
	for i := 0; i < plan.ScheduledPosts; i++ {
		sp := s.factory.BuildScheduledPost(res.Users[rng.Intn(len(res.Users))])
		if plan.Cancelled > 0 && rng.Float64() < plan.Cancelled {
			sp.Status = models.ScheduledPostCancelled
		} else if sp.ScheduledAt.Before(time.Now()) {
			res.Due++
		}
		scheduled = append(scheduled, sp)
	}
	if err := s.factory.CreateScheduledPostsBatch(scheduled); err != nil {
		return nil, fmt.Errorf("create scheduled posts: %w", err)
	}
	res.ScheduledPosts = len(scheduled)
	middleware.Logger.Info("scheduled posts created",
		slog.Int("count", res.ScheduledPosts),
		slog.Int("due", res.Due),
	)

	return res, nil
}

// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"murmur/internal/middleware"
	"murmur/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded user can log in with.
const DefaultPassword = "Murmur-Seed-123!"

// Options tunes the factory and seeder.
type Options struct {
	// DryRun builds entities with synthetic IDs and writes nothing.
	DryRun bool
	// SkipBcrypt stores DefaultPassword unhashed for fast local seeding.
	SkipBcrypt bool
	// MaxDays bounds how far back post timestamps and forward schedules spread.
	MaxDays int
	// BatchSize for bulk inserts.
	BatchSize int
}

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by the seeder and tests.
type Factory struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	// #nosec G404: acceptable for seeding
	return &Factory{
		db:     db,
		opts:   opts,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		nextID: 1000,
	}
}

func (f *Factory) syntheticID() uint {
	f.nextID++
	return f.nextID
}

func (f *Factory) spread() time.Duration {
	days := f.rng.Intn(f.opts.MaxDays)
	return time.Duration(days)*24*time.Hour +
		time.Duration(f.rng.Intn(24))*time.Hour +
		time.Duration(f.rng.Intn(60))*time.Minute
}

func (f *Factory) mediaURL() string {
	if f.rng.Float32() < 0.4 {
		return fmt.Sprintf("https://picsum.photos/seed/%s/800/800", gofakeit.UUID())
	}
	return ""
}

// CreateUser constructs and persists a sample `models.User`.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	username := fmt.Sprintf("%s%d", gofakeit.Username(), gofakeit.Number(100, 999))
	user := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Bio:      gofakeit.Sentence(10),
		Avatar:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
	}

	if f.opts.SkipBcrypt {
		user.Password = DefaultPassword
	} else {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user.Password = string(hashedPassword)
	}

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		user.ID = f.syntheticID()
		return user, nil
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a live post for user dated somewhere in the last
// MaxDays without persisting it.
func (f *Factory) BuildPost(user *models.User, overrides ...func(*models.Post)) *models.Post {
	created := time.Now().UTC().Add(-f.spread())
	post := &models.Post{
		UserID:          user.ID,
		Content:         gofakeit.Paragraph(1, 3, 8, " "),
		MediaURL:        f.mediaURL(),
		CommentsEnabled: f.rng.Float32() < 0.9,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	for _, override := range overrides {
		override(post)
	}
	return post
}

// BuildScheduledPost constructs a pending scheduled post for user. Roughly
// one in five is already due so a sweep has work on a fresh database.
func (f *Factory) BuildScheduledPost(user *models.User, overrides ...func(*models.ScheduledPost)) *models.ScheduledPost {
	at := time.Now().UTC().Add(f.spread() + time.Minute)
	if f.rng.Intn(5) == 0 {
		at = time.Now().UTC().Add(-time.Duration(1+f.rng.Intn(120)) * time.Minute)
	}
	sp := &models.ScheduledPost{
		UserID:          user.ID,
		Content:         gofakeit.Paragraph(1, 2, 8, " "),
		MediaURL:        f.mediaURL(),
		CommentsEnabled: f.rng.Float32() < 0.9,
		ScheduledAt:     at.Truncate(time.Microsecond),
		Status:          models.ScheduledPostPending,
	}
	for _, override := range overrides {
		override(sp)
	}
	return sp
}

// CreatePostsBatch persists multiple posts in batched inserts.
func (f *Factory) CreatePostsBatch(posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, p := range posts {
			p.ID = f.syntheticID()
		}
		middleware.Logger.Info("[dry-run] CreatePostsBatch", "count", len(posts))
		return nil
	}
	return f.db.CreateInBatches(&posts, f.opts.BatchSize).Error
}

// CreateScheduledPostsBatch persists multiple scheduled posts in batched inserts.
func (f *Factory) CreateScheduledPostsBatch(posts []*models.ScheduledPost) error {
	if len(posts) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, p := range posts {
			p.ID = f.syntheticID()
		}
		middleware.Logger.Info("[dry-run] CreateScheduledPostsBatch", "count", len(posts))
		return nil
	}
	return f.db.CreateInBatches(&posts, f.opts.BatchSize).Error
}

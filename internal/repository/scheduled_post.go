package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"murmur/internal/models"
	"murmur/internal/observability"

	"gorm.io/gorm"
)

// ErrNotPending is returned by guarded writes when the record is no longer
// pending (or does not exist), so the write changed nothing.
var ErrNotPending = errors.New("scheduled post is not pending")

const scheduledPostsTable = "scheduled_posts"

// ScheduledPostFilter selects a page of one user's scheduled posts.
type ScheduledPostFilter struct {
	UserID uint
	Status models.ScheduledPostStatus // empty means any
	Limit  int
	Offset int
}

// ScheduledPostPatch is a merge patch; nil fields are left unchanged.
type ScheduledPostPatch struct {
	Content         *string
	MediaURL        *string
	CommentsEnabled *bool
	ScheduledAt     *time.Time
}

// ScheduledPostRepository is the store for scheduled posts and their lifecycle.
type ScheduledPostRepository interface {
	Create(ctx context.Context, sp *models.ScheduledPost) error
	GetByID(ctx context.Context, id uint) (*models.ScheduledPost, error)
	ListByUser(ctx context.Context, f ScheduledPostFilter) ([]*models.ScheduledPost, int64, error)
	Update(ctx context.Context, id uint, patch ScheduledPostPatch) (*models.ScheduledPost, error)
	Cancel(ctx context.Context, id uint) (*models.ScheduledPost, error)
	MarkPosted(ctx context.Context, id, postID uint) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]uint, error)
	Promote(ctx context.Context, id uint, now time.Time) (*models.Post, error)
}

type scheduledPostRepository struct {
	db *gorm.DB
}

// NewScheduledPostRepository returns the gorm-backed scheduled post store.
func NewScheduledPostRepository(db *gorm.DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

// normalizeTime stores instants in UTC at the database's microsecond precision.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Create inserts sp as pending regardless of the status it carries.
func (r *scheduledPostRepository) Create(ctx context.Context, sp *models.ScheduledPost) error {
	defer observability.TrackQuery("create", scheduledPostsTable)()

	sp.ID = 0
	sp.Status = models.ScheduledPostPending
	sp.PublishedPostID = nil
	sp.ScheduledAt = normalizeTime(sp.ScheduledAt)

	if err := r.db.WithContext(ctx).Create(sp).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *scheduledPostRepository) GetByID(ctx context.Context, id uint) (*models.ScheduledPost, error) {
	defer observability.TrackQuery("get", scheduledPostsTable)()
	return getScheduledPost(r.db.WithContext(ctx), id)
}

func getScheduledPost(db *gorm.DB, id uint) (*models.ScheduledPost, error) {
	var sp models.ScheduledPost
	if err := db.First(&sp, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Scheduled post", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &sp, nil
}

// ListByUser returns one page ordered soonest first plus the total for the filter.
func (r *scheduledPostRepository) ListByUser(ctx context.Context, f ScheduledPostFilter) ([]*models.ScheduledPost, int64, error) {
	defer observability.TrackQuery("list", scheduledPostsTable)()

	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("user_id = ?", f.UserID)
		if f.Status != "" {
			db = db.Where("status = ?", f.Status)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.ScheduledPost{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	posts := []*models.ScheduledPost{}
	q := r.db.WithContext(ctx).Scopes(scope).Order("scheduled_at ASC, id ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if err := q.Find(&posts).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return posts, total, nil
}

// guardedUpdate writes fields only while the record is pending.
func guardedUpdate(db *gorm.DB, id uint, fields map[string]any) error {
	res := db.Model(&models.ScheduledPost{}).
		Where("id = ? AND status = ?", id, models.ScheduledPostPending).
		Updates(fields)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

// Update applies the non-nil fields of patch to a pending record.
func (r *scheduledPostRepository) Update(ctx context.Context, id uint, patch ScheduledPostPatch) (*models.ScheduledPost, error) {
	defer observability.TrackQuery("update", scheduledPostsTable)()

	fields := map[string]any{"updated_at": normalizeTime(time.Now())}
	if patch.Content != nil {
		fields["content"] = *patch.Content
	}
	if patch.MediaURL != nil {
		fields["media_url"] = *patch.MediaURL
	}
	if patch.CommentsEnabled != nil {
		fields["comments_enabled"] = *patch.CommentsEnabled
	}
	if patch.ScheduledAt != nil {
		fields["scheduled_at"] = normalizeTime(*patch.ScheduledAt)
	}

	db := r.db.WithContext(ctx)
	if err := guardedUpdate(db, id, fields); err != nil {
		return nil, err
	}
	return getScheduledPost(db, id)
}

// Cancel moves a pending record to cancelled.
func (r *scheduledPostRepository) Cancel(ctx context.Context, id uint) (*models.ScheduledPost, error) {
	defer observability.TrackQuery("cancel", scheduledPostsTable)()

	db := r.db.WithContext(ctx)
	err := guardedUpdate(db, id, map[string]any{
		"status":     models.ScheduledPostCancelled,
		"updated_at": normalizeTime(time.Now()),
	})
	if err != nil {
		return nil, err
	}
	return getScheduledPost(db, id)
}

// MarkPosted moves a pending record to posted and links the live post.
func (r *scheduledPostRepository) MarkPosted(ctx context.Context, id, postID uint) error {
	defer observability.TrackQuery("mark_posted", scheduledPostsTable)()

	return guardedUpdate(r.db.WithContext(ctx), id, map[string]any{
		"status":            models.ScheduledPostPosted,
		"published_post_id": postID,
		"updated_at":        normalizeTime(time.Now()),
	})
}

// ListDue returns ids of pending records with scheduled_at <= now, soonest
// first. limit <= 0 returns every due id.
func (r *scheduledPostRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]uint, error) {
	defer observability.TrackQuery("list_due", scheduledPostsTable)()

	ids := []uint{}
	q := r.db.WithContext(ctx).
		Model(&models.ScheduledPost{}).
		Where("status = ? AND scheduled_at <= ?", models.ScheduledPostPending, normalizeTime(now)).
		Order("scheduled_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// Promote turns a pending record into a live post in one transaction: the
// guarded flip to posted (which takes the row lock), the post insert, then the
// link back. ErrNotPending means another actor got there first and nothing
// was written.
func (r *scheduledPostRepository) Promote(ctx context.Context, id uint, now time.Time) (*models.Post, error) {
	defer observability.TrackQuery("promote", scheduledPostsTable)()

	var post *models.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ts := normalizeTime(now)
		if err := guardedUpdate(tx, id, map[string]any{
			"status":     models.ScheduledPostPosted,
			"updated_at": ts,
		}); err != nil {
			return err
		}

		sp, err := getScheduledPost(tx, id)
		if err != nil {
			return err
		}

		post = sp.LivePost()
		post.CreatedAt = ts
		post.UpdatedAt = ts
		if err := tx.Create(post).Error; err != nil {
			return models.NewInternalError(fmt.Errorf("insert live post: %w", err))
		}

		err = tx.Model(&models.ScheduledPost{}).Where("id = ?", id).Updates(map[string]any{
			"published_post_id": post.ID,
			"updated_at":        ts,
		}).Error
		if err != nil {
			return models.NewInternalError(fmt.Errorf("link live post: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

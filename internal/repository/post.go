package repository

import (
	"context"
	"errors"

	"murmur/internal/cache"
	"murmur/internal/models"

	"gorm.io/gorm"
)

// PostRepository defines the interface for live post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, int64, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewPostRepository creates a new post repository. c may be nil.
func NewPostRepository(db *gorm.DB, c *cache.Cache) PostRepository {
	return &postRepository{db: db, cache: c}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	r.cache.InvalidateUserPosts(ctx, post.UserID)
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post

	err := r.cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		if err := r.db.WithContext(ctx).Preload("User").First(&post, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Post", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

type postPage struct {
	Posts []*models.Post `json:"posts"`
	Total int64          `json:"total"`
}

// ListByUser returns userID's posts, newest first.
func (r *postRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, int64, error) {
	var page postPage

	key := r.cache.UserPostsKey(ctx, userID, limit, offset)
	err := r.cache.Aside(ctx, key, &page, cache.UserPostsTTL, func() error {
		q := r.db.WithContext(ctx).Model(&models.Post{}).Where("user_id = ?", userID)
		if err := q.Count(&page.Total).Error; err != nil {
			return models.NewInternalError(err)
		}
		err := r.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("created_at DESC, id DESC").
			Limit(limit).
			Offset(offset).
			Find(&page.Posts).Error
		if err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if page.Posts == nil {
		page.Posts = []*models.Post{}
	}
	return page.Posts, page.Total, nil
}

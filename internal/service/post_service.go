// Package service holds the business rules that sit between HTTP handlers and
// repositories.
package service

import (
	"context"
	"strings"

	"murmur/internal/models"
	"murmur/internal/repository"
)

type PostService struct {
	postRepo repository.PostRepository
}

type CreatePostInput struct {
	UserID          uint
	Content         string
	MediaURL        string
	CommentsEnabled *bool
}

type ListUserPostsInput struct {
	UserID uint
	Limit  int
	Offset int
}

// PostPage is one page of a user's live posts.
type PostPage struct {
	Posts []*models.Post `json:"posts"`
	Total int64          `json:"total"`
}

func NewPostService(postRepo repository.PostRepository) *PostService {
	return &PostService{postRepo: postRepo}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	if err := validateMediaURL(in.MediaURL); err != nil {
		return nil, err
	}

	commentsEnabled := true
	if in.CommentsEnabled != nil {
		commentsEnabled = *in.CommentsEnabled
	}

	post := &models.Post{
		UserID:          in.UserID,
		Content:         in.Content,
		MediaURL:        strings.TrimSpace(in.MediaURL),
		CommentsEnabled: commentsEnabled,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return s.postRepo.GetByID(ctx, id)
}

// ListUserPosts returns a user's live posts, newest first.
func (s *PostService) ListUserPosts(ctx context.Context, in ListUserPostsInput) (*PostPage, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := max(in.Offset, 0)

	posts, total, err := s.postRepo.ListByUser(ctx, in.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &PostPage{Posts: posts, Total: total}, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/notifications"
	"murmur/internal/repository"
	"murmur/internal/validation"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// ScheduledPostService enforces ownership and lifecycle rules in front of the
// scheduled post store. Records owned by someone else are reported as not
// found.
type ScheduledPostService struct {
	store     repository.ScheduledPostRepository
	publisher *Publisher
	notifier  *notifications.Notifier
}

type CreateScheduledPostInput struct {
	UserID          uint
	Content         string
	MediaURL        string
	CommentsEnabled *bool
	ScheduledAt     *time.Time
}

// UpdateScheduledPostInput is a merge patch; nil fields are left unchanged.
type UpdateScheduledPostInput struct {
	UserID          uint
	ID              uint
	Content         *string
	MediaURL        *string
	CommentsEnabled *bool
	ScheduledAt     *time.Time
}

type ListScheduledPostsInput struct {
	UserID uint
	Status string
	Page   int
	Limit  int
}

// ScheduledPostPage is one page of a user's scheduled posts.
type ScheduledPostPage struct {
	Posts []*models.ScheduledPost `json:"posts"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`
}

// NewScheduledPostService wires the guard. n may be nil.
func NewScheduledPostService(store repository.ScheduledPostRepository, publisher *Publisher, n *notifications.Notifier) *ScheduledPostService {
	return &ScheduledPostService{store: store, publisher: publisher, notifier: n}
}

// validateContent rejects blank or oversized content. Content is stored as given.
func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		return models.NewValidationError(fmt.Sprintf("Content too long (max %d characters)", models.MaxContentLength))
	}
	return nil
}

func validateMediaURL(raw string) error {
	if err := validation.ValidateMediaURL(raw); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}

func (s *ScheduledPostService) Create(ctx context.Context, in CreateScheduledPostInput) (*models.ScheduledPost, error) {
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	if err := validateMediaURL(in.MediaURL); err != nil {
		return nil, err
	}
	if in.ScheduledAt == nil || in.ScheduledAt.IsZero() {
		return nil, models.NewValidationError("scheduledAt is required")
	}

	commentsEnabled := true
	if in.CommentsEnabled != nil {
		commentsEnabled = *in.CommentsEnabled
	}

	sp := &models.ScheduledPost{
		UserID:          in.UserID,
		Content:         in.Content,
		MediaURL:        strings.TrimSpace(in.MediaURL),
		CommentsEnabled: commentsEnabled,
		ScheduledAt:     *in.ScheduledAt,
	}
	if err := s.store.Create(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

// Get returns the record id if userID owns it.
func (s *ScheduledPostService) Get(ctx context.Context, userID, id uint) (*models.ScheduledPost, error) {
	sp, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.UserID != userID {
		return nil, models.NewNotFoundError("Scheduled post", id)
	}
	return sp, nil
}

func (s *ScheduledPostService) List(ctx context.Context, in ListScheduledPostsInput) (*ScheduledPostPage, error) {
	status := models.ScheduledPostStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if status != "" && !status.Valid() {
		return nil, models.NewValidationError("status must be one of pending, posted, cancelled")
	}

	page := in.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return nil, models.NewValidationError("page must be at least 1")
	}
	limit := in.Limit
	if limit == 0 {
		limit = defaultPageLimit
	}
	if limit < 1 || limit > maxPageLimit {
		return nil, models.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", maxPageLimit))
	}

	posts, total, err := s.store.ListByUser(ctx, repository.ScheduledPostFilter{
		UserID: in.UserID,
		Status: status,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	return &ScheduledPostPage{Posts: posts, Total: total, Page: page, Limit: limit}, nil
}

// ownedPending loads id for userID and refuses records that left pending.
func (s *ScheduledPostService) ownedPending(ctx context.Context, userID, id uint, action string) (*models.ScheduledPost, error) {
	sp, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !sp.IsPending() {
		return nil, notPendingError(action, sp.Status)
	}
	return sp, nil
}

func notPendingError(action string, status models.ScheduledPostStatus) error {
	if status == "" {
		return models.NewInvalidStateError(fmt.Sprintf("Cannot %s a scheduled post that is no longer pending", action))
	}
	return models.NewInvalidStateError(fmt.Sprintf("Cannot %s a scheduled post that is already %s", action, status))
}

// mapNotPending turns a lost race on a guarded write into the state error the
// caller would have seen had it arrived a moment later.
func mapNotPending(err error, action string) error {
	if errors.Is(err, repository.ErrNotPending) {
		return notPendingError(action, "")
	}
	return err
}

func (s *ScheduledPostService) Update(ctx context.Context, in UpdateScheduledPostInput) (*models.ScheduledPost, error) {
	if _, err := s.ownedPending(ctx, in.UserID, in.ID, "update"); err != nil {
		return nil, err
	}

	patch := repository.ScheduledPostPatch{
		CommentsEnabled: in.CommentsEnabled,
	}
	if in.Content != nil {
		if err := validateContent(*in.Content); err != nil {
			return nil, err
		}
		patch.Content = in.Content
	}
	if in.MediaURL != nil {
		if err := validateMediaURL(*in.MediaURL); err != nil {
			return nil, err
		}
		mediaURL := strings.TrimSpace(*in.MediaURL)
		patch.MediaURL = &mediaURL
	}
	if in.ScheduledAt != nil {
		if in.ScheduledAt.IsZero() {
			return nil, models.NewValidationError("scheduledAt must be a valid time")
		}
		patch.ScheduledAt = in.ScheduledAt
	}

	sp, err := s.store.Update(ctx, in.ID, patch)
	if err != nil {
		return nil, mapNotPending(err, "update")
	}
	return sp, nil
}

// Cancel moves an owned pending record to cancelled. Posted and cancelled
// records are refused.
func (s *ScheduledPostService) Cancel(ctx context.Context, userID, id uint) (*models.ScheduledPost, error) {
	if _, err := s.ownedPending(ctx, userID, id, "cancel"); err != nil {
		return nil, err
	}

	sp, err := s.store.Cancel(ctx, id)
	if err != nil {
		return nil, mapNotPending(err, "cancel")
	}

	err = s.notifier.PublishEvent(ctx, userID, notifications.Event{
		Type:            notifications.EventScheduledPostCancelled,
		ScheduledPostID: sp.ID,
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish notification",
			slog.Uint64("scheduled_post_id", uint64(sp.ID)),
			slog.String("error", err.Error()),
		)
	}
	return sp, nil
}

// PublishNow promotes an owned pending record immediately.
func (s *ScheduledPostService) PublishNow(ctx context.Context, userID, id uint) (*models.Post, error) {
	if _, err := s.ownedPending(ctx, userID, id, "publish"); err != nil {
		return nil, err
	}

	post, err := s.publisher.PublishOne(ctx, id, TriggerManual)
	if err != nil {
		return nil, mapNotPending(err, "publish")
	}
	return post, nil
}

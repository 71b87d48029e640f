package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"murmur/internal/models"
	"murmur/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn     func(context.Context, *models.Post) error
	getByIDFn    func(context.Context, uint) (*models.Post, error)
	listByUserFn func(context.Context, uint, int, int) ([]*models.Post, int64, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Post, int64, error) {
	return s.listByUserFn(ctx, userID, limit, offset)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:  func(_ context.Context, _ *models.Post) error { return nil },
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) { return &models.Post{ID: id}, nil },
		listByUserFn: func(_ context.Context, _ uint, _, _ int) ([]*models.Post, int64, error) {
			return []*models.Post{}, 0, nil
		},
	}
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByIDFn       func(context.Context, uint) (*models.User, error)
	getByEmailFn    func(context.Context, string) (*models.User, error)
	getByUsernameFn func(context.Context, string) (*models.User, error)
	existsFn        func(context.Context, uint) (bool, error)
	createFn        func(context.Context, *models.User) error
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) Exists(ctx context.Context, id uint) (bool, error) {
	return s.existsFn(ctx, id)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn:       func(_ context.Context, id uint) (*models.User, error) { return &models.User{ID: id}, nil },
		getByEmailFn:    func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		getByUsernameFn: func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		existsFn:        func(_ context.Context, _ uint) (bool, error) { return true, nil },
		createFn:        func(_ context.Context, _ *models.User) error { return nil },
	}
}

// scheduledRepoStub is a stub for repository.ScheduledPostRepository.
type scheduledRepoStub struct {
	createFn     func(context.Context, *models.ScheduledPost) error
	getByIDFn    func(context.Context, uint) (*models.ScheduledPost, error)
	listByUserFn func(context.Context, repository.ScheduledPostFilter) ([]*models.ScheduledPost, int64, error)
	updateFn     func(context.Context, uint, repository.ScheduledPostPatch) (*models.ScheduledPost, error)
	cancelFn     func(context.Context, uint) (*models.ScheduledPost, error)
	markPostedFn func(context.Context, uint, uint) error
	listDueFn    func(context.Context, time.Time, int) ([]uint, error)
	promoteFn    func(context.Context, uint, time.Time) (*models.Post, error)
}

func (s *scheduledRepoStub) Create(ctx context.Context, sp *models.ScheduledPost) error {
	return s.createFn(ctx, sp)
}
func (s *scheduledRepoStub) GetByID(ctx context.Context, id uint) (*models.ScheduledPost, error) {
	return s.getByIDFn(ctx, id)
}
func (s *scheduledRepoStub) ListByUser(ctx context.Context, f repository.ScheduledPostFilter) ([]*models.ScheduledPost, int64, error) {
	return s.listByUserFn(ctx, f)
}
func (s *scheduledRepoStub) Update(ctx context.Context, id uint, patch repository.ScheduledPostPatch) (*models.ScheduledPost, error) {
	return s.updateFn(ctx, id, patch)
}
func (s *scheduledRepoStub) Cancel(ctx context.Context, id uint) (*models.ScheduledPost, error) {
	return s.cancelFn(ctx, id)
}
func (s *scheduledRepoStub) MarkPosted(ctx context.Context, id, postID uint) error {
	return s.markPostedFn(ctx, id, postID)
}
func (s *scheduledRepoStub) ListDue(ctx context.Context, now time.Time, limit int) ([]uint, error) {
	return s.listDueFn(ctx, now, limit)
}
func (s *scheduledRepoStub) Promote(ctx context.Context, id uint, now time.Time) (*models.Post, error) {
	return s.promoteFn(ctx, id, now)
}

// ownedBy returns a stub whose every record is a pending post owned by userID.
func ownedBy(userID uint) *scheduledRepoStub {
	get := func(_ context.Context, id uint) (*models.ScheduledPost, error) {
		return &models.ScheduledPost{ID: id, UserID: userID, Content: "c", Status: models.ScheduledPostPending}, nil
	}
	return &scheduledRepoStub{
		createFn:  func(_ context.Context, _ *models.ScheduledPost) error { return nil },
		getByIDFn: get,
		listByUserFn: func(_ context.Context, _ repository.ScheduledPostFilter) ([]*models.ScheduledPost, int64, error) {
			return []*models.ScheduledPost{}, 0, nil
		},
		updateFn: func(ctx context.Context, id uint, _ repository.ScheduledPostPatch) (*models.ScheduledPost, error) {
			return get(ctx, id)
		},
		cancelFn: func(ctx context.Context, id uint) (*models.ScheduledPost, error) {
			sp, _ := get(ctx, id)
			sp.Status = models.ScheduledPostCancelled
			return sp, nil
		},
		markPostedFn: func(_ context.Context, _, _ uint) error { return nil },
		listDueFn:    func(_ context.Context, _ time.Time, _ int) ([]uint, error) { return nil, nil },
		promoteFn: func(_ context.Context, id uint, now time.Time) (*models.Post, error) {
			return &models.Post{ID: id + 1000, UserID: userID, CreatedAt: now}, nil
		},
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, models.CodeValidation)
}
